// Package registry records which enabled plugins provide which
// capabilities.
package registry

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	"github.com/dentdelion-dev/dentdelion/domain/ports"
)

// registryConfig holds configuration for the Registry.
type registryConfig struct {
	strictMode bool // Reject custom capabilities
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{}
}

// RegistryOption configures a Registry instance.
type RegistryOption func(*registryConfig)

// WithStrictMode rejects publications that contain custom capabilities.
// Default is false: unknown tags are kept so newer plugins still load.
func WithStrictMode(enabled bool) RegistryOption {
	return func(c *registryConfig) {
		c.strictMode = enabled
	}
}

// Registry implements ports.CapabilityRegistry in memory.
type Registry struct {
	config    registryConfig
	mu        sync.RWMutex
	byPlugin  map[string][]entities.Capability
	providers map[entities.Capability]map[string]struct{}
}

var _ ports.CapabilityRegistry = (*Registry)(nil)

// New creates a Registry with the given options.
func New(opts ...RegistryOption) *Registry {
	cfg := defaultRegistryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		config:    cfg,
		byPlugin:  make(map[string][]entities.Capability),
		providers: make(map[entities.Capability]map[string]struct{}),
	}
}

// Publish records caps as provided by plugin, replacing any earlier
// publication of the same plugin.
func (r *Registry) Publish(plugin string, caps []entities.Capability) error {
	if plugin == "" {
		return fmt.Errorf("publish: empty plugin name")
	}
	if r.config.strictMode {
		for _, c := range caps {
			if c.IsCustom() {
				return fmt.Errorf("publish %s: custom capability %q not allowed in strict mode", plugin, c)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawLocked(plugin)

	unique := make([]entities.Capability, 0, len(caps))
	for _, c := range caps {
		if slices.Contains(unique, c) {
			continue
		}
		unique = append(unique, c)
		set, ok := r.providers[c]
		if !ok {
			set = make(map[string]struct{})
			r.providers[c] = set
		}
		set[plugin] = struct{}{}
	}
	r.byPlugin[plugin] = unique
	return nil
}

// Withdraw removes every capability published by plugin.
func (r *Registry) Withdraw(plugin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawLocked(plugin)
}

func (r *Registry) withdrawLocked(plugin string) {
	for _, c := range r.byPlugin[plugin] {
		set := r.providers[c]
		delete(set, plugin)
		if len(set) == 0 {
			delete(r.providers, c)
		}
	}
	delete(r.byPlugin, plugin)
}

// Providers returns the plugins currently providing c, sorted.
func (r *Registry) Providers(c entities.Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers[c]))
	for plugin := range r.providers[c] {
		out = append(out, plugin)
	}
	sort.Strings(out)
	return out
}

// CapabilitiesOf returns what plugin published, in publication order.
func (r *Registry) CapabilitiesOf(plugin string) []entities.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byPlugin[plugin])
}

// Plugins lists the plugins with a current publication.
func (r *Registry) Plugins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byPlugin))
	for plugin := range r.byPlugin {
		out = append(out, plugin)
	}
	sort.Strings(out)
	return out
}
