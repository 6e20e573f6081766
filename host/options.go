package host

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dentdelion-dev/dentdelion/domain/ports"
	"github.com/dentdelion-dev/dentdelion/hostfuncs"
)

// DefaultPluginDir is the plugin root used when none is configured.
const DefaultPluginDir = ".dentdelion/plugins"

const (
	defaultCacheSize     = 64
	defaultMaxParallel   = 4
	defaultWatchDebounce = 250 * time.Millisecond
	tracerName           = "github.com/dentdelion-dev/dentdelion/host"
	lifecycleSpanName    = "dentdelion.lifecycle"
)

// options is shared by Runtime, Loader and Manager. Each constructor reads
// the fields it needs and ignores the rest.
type options struct {
	registry       *hostfuncs.HandlerRegistry
	services       *hostfuncs.ServiceDirectory
	tracerProvider trace.TracerProvider
	logger         *zap.Logger
	metrics        *Metrics

	fs          ports.FileSystem
	parser      ports.ManifestParser
	validator   ports.ConfigValidator
	capRegistry ports.CapabilityRegistry

	root        string
	cacheSize   int
	maxParallel int
	debounce    time.Duration
}

// Option configures a Runtime, Loader or Manager.
type Option func(*options)

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHostFunctions replaces the default host function registry of a Runtime.
func WithHostFunctions(registry *hostfuncs.HandlerRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithServiceDirectory sets the directory backing service_register and
// service_lookup. Ignored when WithHostFunctions is used.
func WithServiceDirectory(dir *hostfuncs.ServiceDirectory) Option {
	return func(o *options) {
		o.services = dir
	}
}

// WithCacheSize bounds the number of compiled components a Runtime keeps.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithTracerProvider sets the provider lifecycle spans are created from.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRoot sets the plugin directory a Loader scans.
func WithRoot(root string) Option {
	return func(o *options) {
		o.root = root
	}
}

// WithFileSystem sets the filesystem a Loader reads from.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithParser sets the manifest parser.
func WithParser(p ports.ManifestParser) Option {
	return func(o *options) {
		o.parser = p
	}
}

// WithValidator sets the manifest validator.
func WithValidator(v ports.ConfigValidator) Option {
	return func(o *options) {
		o.validator = v
	}
}

// WithCapabilityRegistry sets the registry instances publish to after
// on_enable.
func WithCapabilityRegistry(r ports.CapabilityRegistry) Option {
	return func(o *options) {
		o.capRegistry = r
	}
}

// WithMaxParallelLoads bounds concurrent compiles in Manager.LoadAll.
func WithMaxParallelLoads(n int) Option {
	return func(o *options) {
		o.maxParallel = n
	}
}

// WithWatchDebounce sets how long Watch waits for events to settle.
func WithWatchDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}
