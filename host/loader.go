package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dentdelion-dev/dentdelion/application/validation"
	"github.com/dentdelion-dev/dentdelion/domain/entities"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/domain/ports"
	"github.com/dentdelion-dev/dentdelion/infrastructure/filesystem"
	"github.com/dentdelion-dev/dentdelion/infrastructure/parser"
	"github.com/dentdelion-dev/dentdelion/internal/logging"
)

const (
	wasmExt         = ".wasm"
	manifestExt     = ".toml"
	pluginWasmFile  = "plugin.wasm"
	pluginManifest  = "plugin.toml"
	manifestDefault = "defaults"
)

// Discovery skip reasons.
const (
	skipUnreadable = "unreadable"
	skipBadMagic   = "invalid_magic"
	skipDuplicate  = "duplicate"
)

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	fs        ports.FileSystem
	parser    ports.ManifestParser
	validator ports.ConfigValidator
	registry  ports.CapabilityRegistry
	logger    *zap.Logger
	metrics   *Metrics
	root      string
	debounce  time.Duration
}

// Loader turns a plugin directory into DiscoveredPlugin records and loaded
// Instances.
type Loader struct {
	runtime *Runtime
	config  loaderConfig
}

// NewLoader creates a Loader compiling through runtime. The logger and
// metrics default to the runtime's.
func NewLoader(runtime *Runtime, opts ...Option) *Loader {
	o := applyOptions(opts)
	cfg := loaderConfig{
		fs:        o.fs,
		parser:    o.parser,
		validator: o.validator,
		registry:  o.capRegistry,
		logger:    o.logger,
		metrics:   o.metrics,
		root:      o.root,
		debounce:  o.debounce,
	}
	if cfg.fs == nil {
		cfg.fs = filesystem.NewOSFileSystem()
	}
	if cfg.parser == nil {
		cfg.parser = parser.NewTomlManifestParser()
	}
	if cfg.validator == nil {
		cfg.validator = validation.NewStructValidator()
	}
	if cfg.logger == nil {
		cfg.logger = runtime.logger
	}
	cfg.logger = logging.OrNop(cfg.logger)
	if cfg.metrics == nil {
		cfg.metrics = runtime.metrics
	}
	if cfg.root == "" {
		cfg.root = DefaultPluginDir
	}
	if cfg.debounce <= 0 {
		cfg.debounce = defaultWatchDebounce
	}
	return &Loader{runtime: runtime, config: cfg}
}

// Root is the directory Discover scans by default.
func (l *Loader) Root() string {
	return l.config.root
}

// Runtime is the runtime the loader compiles with.
func (l *Loader) Runtime() *Runtime {
	return l.runtime
}

// Discover scans root, or the configured root when empty. A missing
// directory yields no plugins. Bad binaries and manifests are logged and
// skipped; only a failure to list root itself is returned. Results are
// sorted by name.
func (l *Loader) Discover(ctx context.Context, root string) ([]entities.DiscoveredPlugin, error) {
	if root == "" {
		root = l.config.root
	}
	log := l.config.logger.With(zap.String("root", root))

	info, err := l.config.fs.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("plugin directory does not exist")
		l.config.metrics.discovered(0)
		return []entities.DiscoveredPlugin{}, nil
	}
	if err != nil {
		return nil, &domainerrors.IoError{Op: "stat", Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &domainerrors.IoError{Op: "discover", Path: root, Err: errors.New("not a directory")}
	}

	entries, err := l.config.fs.ReadDir(root)
	if err != nil {
		return nil, &domainerrors.IoError{Op: "readdir", Path: root, Err: err}
	}

	found := make([]entities.DiscoveredPlugin, 0, len(entries))
	seen := make(map[string]string)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var d entities.DiscoveredPlugin
		var manifests []string
		switch {
		case entry.IsDir():
			dir := filepath.Join(root, entry.Name())
			wasmPath, ok := l.probe(dir, pluginWasmFile, entry.Name()+wasmExt)
			if !ok {
				continue
			}
			d = entities.DiscoveredPlugin{Name: entry.Name(), WasmPath: wasmPath}
			manifests = []string{filepath.Join(dir, pluginManifest), filepath.Join(dir, entry.Name()+manifestExt)}
		case strings.HasSuffix(entry.Name(), wasmExt):
			name := strings.TrimSuffix(entry.Name(), wasmExt)
			d = entities.DiscoveredPlugin{Name: name, WasmPath: filepath.Join(root, entry.Name())}
			manifests = []string{filepath.Join(root, name+manifestExt)}
		default:
			continue
		}

		plog := log.With(zap.String("plugin", d.Name), zap.String("path", d.WasmPath))
		if prev, dup := seen[d.Name]; dup {
			plog.Warn("skipping duplicate plugin name", zap.String("kept", prev))
			l.config.metrics.skipped(skipDuplicate)
			continue
		}

		data, err := l.config.fs.ReadFile(d.WasmPath)
		if err != nil {
			plog.Warn("skipping unreadable plugin binary", zap.Error(err))
			l.config.metrics.skipped(skipUnreadable)
			continue
		}
		if !HasWasmMagic(data) {
			plog.Warn("skipping file without wasm magic header")
			l.config.metrics.skipped(skipBadMagic)
			continue
		}

		if manifestPath, ok := l.probe("", manifests...); ok {
			cfg, err := l.ParseManifest(manifestPath)
			if err != nil {
				plog.Warn("ignoring manifest, using defaults",
					zap.String("manifest", manifestPath),
					zap.Error(err))
			} else {
				d.ManifestPath = manifestPath
				d.Config = cfg
			}
		}

		seen[d.Name] = d.WasmPath
		found = append(found, d)
	}

	sort.Slice(found, func(a, b int) bool { return found[a].Name < found[b].Name })
	l.config.metrics.discovered(len(found))
	log.Debug("discovery complete", zap.Int("plugins", len(found)))
	return found, nil
}

// probe returns the first candidate that exists as a regular file.
func (l *Loader) probe(dir string, candidates ...string) (string, bool) {
	for _, c := range candidates {
		p := c
		if dir != "" {
			p = filepath.Join(dir, c)
		}
		info, err := l.config.fs.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// ParseManifest reads, parses and validates one manifest file.
func (l *Loader) ParseManifest(path string) (*entities.WasmPluginConfig, error) {
	data, err := l.config.fs.ReadFile(path)
	if err != nil {
		return nil, &domainerrors.IoError{Op: "read", Path: path, Err: err}
	}
	cfg, err := l.config.parser.Parse(data)
	if err != nil {
		var pe *domainerrors.ManifestParseError
		if errors.As(err, &pe) && pe.Path == "" {
			pe.Path = path
		}
		return nil, err
	}
	if err := l.config.validator.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load compiles a discovered plugin and returns a Registered Instance whose
// host state is seeded with initialConfig.
func (l *Loader) Load(ctx context.Context, d entities.DiscoveredPlugin, initialConfig map[string]any) (*Instance, error) {
	data, err := l.config.fs.ReadFile(d.WasmPath)
	if err != nil {
		return nil, &domainerrors.IoError{Op: "read", Path: d.WasmPath, Err: err}
	}
	return l.load(ctx, d, data, initialConfig)
}

func (l *Loader) load(ctx context.Context, d entities.DiscoveredPlugin, wasm []byte, initialConfig map[string]any) (*Instance, error) {
	cfg := d.EffectiveConfig()
	log := l.config.logger.With(zap.String("plugin", d.Name))

	caps := cfg.ParsedCapabilities()
	for _, c := range caps {
		if !c.IsWasmCompatible() {
			log.Warn("capability is not available to wasm plugins", zap.Stringer("capability", c))
		}
	}

	comp, err := l.runtime.Compile(ctx, wasm, cfg)
	if err != nil {
		var ib *domainerrors.InvalidWasmBinaryError
		if errors.As(err, &ib) {
			ib.Path = d.WasmPath
		}
		var we *domainerrors.WasmExecutionError
		if errors.As(err, &we) {
			we.Plugin = d.Name
		}
		return nil, err
	}

	hs, err := NewHostState(initialConfig)
	if err != nil {
		return nil, err
	}

	source := manifestDefault
	if d.HasManifest() {
		source = d.ManifestPath
	}
	log.Info("loaded plugin",
		zap.String("path", d.WasmPath),
		zap.String("manifest", source),
		zap.Uint32("memory_limit_mb", cfg.MemoryLimitMB),
		zap.Uint32("timeout_secs", cfg.TimeoutSecs),
		zap.Strings("capabilities", cfg.Capabilities))

	return newInstance(d.Name, comp, cfg, hs, instanceDeps{
		runtime:  l.runtime,
		registry: l.config.registry,
		logger:   l.config.logger,
		metrics:  l.config.metrics,
	}), nil
}

// LoadFromPath loads a .wasm file or a plugin directory. Unlike Discover,
// every failure is returned, including manifest errors.
func (l *Loader) LoadFromPath(ctx context.Context, path string, initialConfig map[string]any) (*Instance, error) {
	d, err := l.locate(path)
	if err != nil {
		return nil, err
	}

	data, err := l.config.fs.ReadFile(d.WasmPath)
	if err != nil {
		return nil, &domainerrors.IoError{Op: "read", Path: d.WasmPath, Err: err}
	}
	if !HasWasmMagic(data) {
		return nil, &domainerrors.InvalidWasmBinaryError{Path: d.WasmPath, Reason: "missing wasm magic header"}
	}
	return l.load(ctx, d, data, initialConfig)
}

// locate resolves path to a binary and its manifest, parsing the manifest
// when present.
func (l *Loader) locate(path string) (entities.DiscoveredPlugin, error) {
	info, err := l.config.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return entities.DiscoveredPlugin{}, &domainerrors.NotFoundError{Name: path}
	}
	if err != nil {
		return entities.DiscoveredPlugin{}, &domainerrors.IoError{Op: "stat", Path: path, Err: err}
	}

	var d entities.DiscoveredPlugin
	var manifests []string
	if info.IsDir() {
		name := filepath.Base(path)
		wasmPath, ok := l.probe(path, pluginWasmFile, name+wasmExt)
		if !ok {
			return entities.DiscoveredPlugin{}, &domainerrors.NotFoundError{Name: name}
		}
		d = entities.DiscoveredPlugin{Name: name, WasmPath: wasmPath}
		manifests = []string{filepath.Join(path, pluginManifest), filepath.Join(path, name+manifestExt)}
	} else {
		dir, file := filepath.Split(path)
		dirName := filepath.Base(filepath.Clean(dir))
		name := strings.TrimSuffix(file, wasmExt)
		// plugin.wasm and <dir>/<dir>.wasm live in a plugin directory, which
		// is searched for plugin.toml first, as Discover does.
		if file == pluginWasmFile || (name == dirName && filepath.Clean(dir) != filepath.Clean(l.config.root)) {
			name = dirName
			manifests = []string{filepath.Join(dir, pluginManifest)}
		}
		manifests = append(manifests, filepath.Join(dir, name+manifestExt))
		d = entities.DiscoveredPlugin{Name: name, WasmPath: path}
	}

	if manifestPath, ok := l.probe("", manifests...); ok {
		cfg, err := l.ParseManifest(manifestPath)
		if err != nil {
			return entities.DiscoveredPlugin{}, err
		}
		d.ManifestPath = manifestPath
		d.Config = cfg
	}
	return d, nil
}

// LoadByName loads <root>/<name>.wasm, <root>/<name>/plugin.wasm or
// <root>/<name>/<name>.wasm, in that order.
func (l *Loader) LoadByName(ctx context.Context, name string, initialConfig map[string]any) (*Instance, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return nil, err
	}
	return l.LoadFromPath(ctx, path, initialConfig)
}

// Resolve returns the binary path LoadByName would load.
func (l *Loader) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", &domainerrors.NotFoundError{Name: name}
	}
	root := l.config.root
	path, ok := l.probe("",
		filepath.Join(root, name+wasmExt),
		filepath.Join(root, name, pluginWasmFile),
		filepath.Join(root, name, name+wasmExt),
	)
	if !ok {
		return "", &domainerrors.NotFoundError{Name: name}
	}
	return path, nil
}

// Digest returns the SHA-256 of a binary, matching Component.Digest.
func (l *Loader) Digest(path string) (string, error) {
	data, err := l.config.fs.ReadFile(path)
	if err != nil {
		return "", &domainerrors.IoError{Op: "read", Path: path, Err: err}
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
