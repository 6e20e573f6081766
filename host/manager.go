package host

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/internal/logging"
)

// Manager keeps the set of loaded instances of a host and drives them in
// bulk. Single-instance calls go through the Instance directly.
type Manager struct {
	loader      *Loader
	logger      *zap.Logger
	maxParallel int

	mu        sync.RWMutex
	instances map[string]*Instance
	paths     map[string]string
	configs   map[string]map[string]any
	active    bool
}

// NewManager creates a Manager loading through loader.
func NewManager(loader *Loader, opts ...Option) *Manager {
	o := applyOptions(opts)
	logger := o.logger
	if logger == nil {
		logger = loader.config.logger
	}
	maxParallel := o.maxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	return &Manager{
		loader:      loader,
		logger:      logging.OrNop(logger),
		maxParallel: maxParallel,
		instances:   make(map[string]*Instance),
		paths:       make(map[string]string),
		configs:     make(map[string]map[string]any),
	}
}

// LoadAll discovers root (the loader root when empty) and loads every
// plugin concurrently. configs supplies the initial host state per plugin
// name. Plugins that fail to load are logged and reported in the joined
// error; the rest are added and returned, sorted by name.
func (m *Manager) LoadAll(ctx context.Context, root string, configs map[string]map[string]any) ([]*Instance, error) {
	plugins, err := m.loader.Discover(ctx, root)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for name, cfg := range configs {
		m.configs[name] = cfg
	}
	m.mu.Unlock()

	var (
		mu     sync.Mutex
		loaded []*Instance
		errs   []error
	)
	var eg errgroup.Group
	eg.SetLimit(m.maxParallel)
	for _, d := range plugins {
		eg.Go(func() error {
			inst, err := m.loader.Load(ctx, d, m.config(d.Name))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.logger.Error("failed to load plugin", zap.String("plugin", d.Name), zap.Error(err))
				errs = append(errs, fmt.Errorf("load %s: %w", d.Name, err))
				return nil
			}
			loaded = append(loaded, inst)
			return nil
		})
	}
	_ = eg.Wait()

	sort.Slice(loaded, func(a, b int) bool { return loaded[a].Name() < loaded[b].Name() })
	added := loaded[:0]
	for _, inst := range loaded {
		if err := m.add(inst, pathOf(plugins, inst.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		added = append(added, inst)
	}
	return added, errors.Join(errs...)
}

func pathOf(plugins []entities.DiscoveredPlugin, name string) string {
	for _, d := range plugins {
		if d.Name == name {
			return d.WasmPath
		}
	}
	return ""
}

func (m *Manager) config(name string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configs[name]
}

// Add registers an instance loaded elsewhere. Names must be unique.
func (m *Manager) Add(inst *Instance) error {
	return m.add(inst, "")
}

func (m *Manager) add(inst *Instance, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.instances[inst.Name()]; exists {
		return fmt.Errorf("plugin %q already managed", inst.Name())
	}
	m.instances[inst.Name()] = inst
	if path != "" {
		m.paths[inst.Name()] = path
	}
	return nil
}

// Get returns the instance of a plugin.
func (m *Manager) Get(name string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[name]
	return inst, ok
}

// Names returns the managed plugin names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.instances))
	for name := range m.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instances returns the managed instances sorted by name.
func (m *Manager) Instances() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name() < out[b].Name() })
	return out
}

// EnableAll brings every instance to Enabled in name order, running on_load
// first where needed. Failures are joined; other plugins still proceed.
func (m *Manager) EnableAll(ctx context.Context) error {
	m.mu.Lock()
	m.active = true
	m.mu.Unlock()

	var errs []error
	for _, inst := range m.Instances() {
		if err := enable(ctx, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func enable(ctx context.Context, inst *Instance) error {
	if inst.State() == entities.StateRegistered {
		if err := inst.OnLoad(ctx); err != nil {
			return err
		}
	}
	if inst.State() == entities.StateEnabled {
		return nil
	}
	return inst.OnEnable(ctx)
}

// DisableAll disables every enabled instance.
func (m *Manager) DisableAll(ctx context.Context) error {
	m.mu.Lock()
	m.active = false
	m.mu.Unlock()

	var errs []error
	for _, inst := range m.Instances() {
		if inst.State() != entities.StateEnabled {
			continue
		}
		if err := inst.OnDisable(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnloadAll unloads every instance not already Registered, in reverse name
// order.
func (m *Manager) UnloadAll(ctx context.Context) error {
	instances := m.Instances()
	slices.Reverse(instances)

	var errs []error
	for _, inst := range instances {
		if inst.State() == entities.StateRegistered {
			continue
		}
		if err := inst.OnUnload(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove unloads a plugin if needed and forgets it.
func (m *Manager) Remove(ctx context.Context, name string) error {
	inst, ok := m.Get(name)
	if !ok {
		return &domainerrors.NotFoundError{Name: name}
	}
	if inst.State() != entities.StateRegistered {
		if err := inst.OnUnload(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	delete(m.instances, name)
	delete(m.paths, name)
	m.mu.Unlock()
	inst.metrics.forget(name)
	return nil
}

// Reload replaces a plugin with a fresh instance compiled from its current
// binary, carrying over the host state. A plugin that was Enabled is
// loaded and enabled again.
func (m *Manager) Reload(ctx context.Context, name string) (*Instance, error) {
	old, ok := m.Get(name)
	if !ok {
		return nil, &domainerrors.NotFoundError{Name: name}
	}
	m.mu.RLock()
	path := m.paths[name]
	m.mu.RUnlock()
	wasEnabled := old.State() == entities.StateEnabled

	var inst *Instance
	var err error
	if path != "" {
		inst, err = m.loader.LoadFromPath(ctx, path, old.HostState().Snapshot())
	} else {
		inst, err = m.loader.LoadByName(ctx, name, old.HostState().Snapshot())
	}
	if err != nil {
		return nil, err
	}

	if err := m.Remove(ctx, name); err != nil {
		return nil, err
	}
	if err := m.add(inst, path); err != nil {
		return nil, err
	}
	if wasEnabled {
		if err := enable(ctx, inst); err != nil {
			return inst, err
		}
	}
	m.logger.Info("reloaded plugin", zap.String("plugin", name), zap.String("digest", inst.Component().Digest()))
	return inst, nil
}

// Watch keeps the managed set in sync with the plugin directory until ctx
// is done: new plugins are loaded (and enabled after EnableAll), changed
// binaries are reloaded and deleted ones removed.
func (m *Manager) Watch(ctx context.Context) error {
	return m.loader.Watch(ctx, m.Sync)
}

// Sync applies one discovery result to the managed set.
func (m *Manager) Sync(ctx context.Context, plugins []entities.DiscoveredPlugin) {
	present := make(map[string]bool, len(plugins))
	for _, d := range plugins {
		present[d.Name] = true
		log := m.logger.With(zap.String("plugin", d.Name))

		inst, ok := m.Get(d.Name)
		if !ok {
			loaded, err := m.loader.Load(ctx, d, m.config(d.Name))
			if err != nil {
				log.Error("failed to load new plugin", zap.Error(err))
				continue
			}
			if err := m.add(loaded, d.WasmPath); err != nil {
				log.Warn("skipping plugin", zap.Error(err))
				continue
			}
			m.mu.RLock()
			active := m.active
			m.mu.RUnlock()
			if active {
				if err := enable(ctx, loaded); err != nil {
					log.Error("failed to enable new plugin", zap.Error(err))
				}
			}
			continue
		}

		digest, err := m.loader.Digest(d.WasmPath)
		if err != nil {
			log.Warn("cannot read plugin binary", zap.Error(err))
			continue
		}
		if digest == inst.Component().Digest() && sameConfig(inst.WasmConfig(), d.EffectiveConfig()) {
			continue
		}
		m.mu.Lock()
		m.paths[d.Name] = d.WasmPath
		m.mu.Unlock()
		if _, err := m.Reload(ctx, d.Name); err != nil {
			log.Error("failed to reload plugin", zap.Error(err))
		}
	}

	for _, name := range m.Names() {
		if present[name] {
			continue
		}
		if err := m.Remove(ctx, name); err != nil {
			m.logger.Error("failed to remove plugin", zap.String("plugin", name), zap.Error(err))
			continue
		}
		m.logger.Info("removed plugin", zap.String("plugin", name))
	}
}

func sameConfig(a, b entities.WasmPluginConfig) bool {
	return a.Tier == b.Tier &&
		a.MemoryLimitMB == b.MemoryLimitMB &&
		a.TimeoutSecs == b.TimeoutSecs &&
		slices.Equal(a.Capabilities, b.Capabilities)
}
