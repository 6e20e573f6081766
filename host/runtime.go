package host

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/hostfuncs"
	adapter "github.com/dentdelion-dev/dentdelion/infrastructure/wazero"
	"github.com/dentdelion-dev/dentdelion/internal/logging"
)

// PhaseCompile is the WasmExecutionError phase of faults found before any
// guest call.
const PhaseCompile = "compile"

const componentVersion = 0x0d

var (
	wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

	// ErrRuntimeClosed is returned by a Runtime after Close.
	ErrRuntimeClosed = errors.New("runtime is closed")
	// ErrComponentModel is the compile failure of component-model binaries.
	ErrComponentModel = errors.New("component-model binaries are not supported")
)

// HasWasmMagic reports whether data starts with the wasm preamble.
func HasWasmMagic(data []byte) bool {
	return len(data) >= len(wasmMagic) && bytes.Equal(data[:len(wasmMagic)], wasmMagic)
}

// engine is one wazero runtime. Memory caps are runtime-wide in wazero, so
// there is one engine per distinct cap.
type engine struct {
	rt    wazero.Runtime
	pages uint32
}

type cacheKey struct {
	digest string
	pages  uint32
}

// Runtime owns the execution engines, the host function linker and the
// compiled component cache.
type Runtime struct {
	cache      wazero.CompilationCache
	components *lru.Cache[cacheKey, *Component]
	registry   *hostfuncs.HandlerRegistry
	services   *hostfuncs.ServiceDirectory
	tracer     trace.Tracer
	logger     *zap.Logger
	metrics    *Metrics

	mu      sync.Mutex
	engines map[uint32]*engine
	closed  bool
}

// NewRuntime creates a Runtime. Engines are created on first use.
func NewRuntime(ctx context.Context, opts ...Option) (*Runtime, error) {
	o := applyOptions(opts)

	r := &Runtime{
		cache:    wazero.NewCompilationCache(),
		engines:  make(map[uint32]*engine),
		services: o.services,
		logger:   logging.OrNop(o.logger),
		metrics:  o.metrics,
	}
	if r.services == nil {
		r.services = hostfuncs.NewServiceDirectory()
	}

	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	r.tracer = tp.Tracer(tracerName)

	size := o.cacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	components, err := lru.New[cacheKey, *Component](size)
	if err != nil {
		return nil, fmt.Errorf("create component cache: %w", err)
	}
	r.components = components

	r.registry = o.registry
	if r.registry == nil {
		reg, err := hostfuncs.NewRegistry(
			hostfuncs.WithMiddleware(
				hostfuncs.PanicRecoveryMiddleware(),
				adapter.WithCapabilityMiddleware(hostfuncs.CapabilityRequirements()),
				hostfuncs.LoggingMiddleware(r.logger),
			),
			hostfuncs.WithBundle(hostfuncs.DefaultBundles(r.services)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create default registry: %w", err)
		}
		r.registry = reg
	}

	return r, nil
}

// Services is the directory behind service_register and service_lookup.
func (r *Runtime) Services() *hostfuncs.ServiceDirectory {
	return r.services
}

// Compile validates and compiles a plugin binary for the memory cap of cfg.
// Identical bytes compiled for the same cap return the same *Component.
func (r *Runtime) Compile(ctx context.Context, wasm []byte, cfg entities.WasmPluginConfig) (*Component, error) {
	if !HasWasmMagic(wasm) {
		return nil, &domainerrors.InvalidWasmBinaryError{Reason: "missing wasm magic header"}
	}
	if len(wasm) >= 8 && wasm[4] == componentVersion {
		return nil, &domainerrors.WasmExecutionError{Phase: PhaseCompile, Err: ErrComponentModel}
	}

	pages := cfg.MemoryLimitPages()
	if pages == 0 {
		pages = entities.DefaultWasmPluginConfig().MemoryLimitPages()
	}
	sum := sha256.Sum256(wasm)
	key := cacheKey{digest: hex.EncodeToString(sum[:]), pages: pages}

	if comp, ok := r.components.Get(key); ok {
		r.metrics.cacheLookup(true)
		return comp, nil
	}
	r.metrics.cacheLookup(false)

	eng, err := r.engineFor(ctx, pages)
	if err != nil {
		return nil, err
	}

	compiled, err := eng.rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, &domainerrors.WasmExecutionError{Phase: PhaseCompile, Err: err}
	}
	if err := validateABI(compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, &domainerrors.WasmExecutionError{Phase: PhaseCompile, Err: err}
	}

	exports, imports := describeModule(compiled)
	comp := &Component{
		compiled: compiled,
		engine:   eng,
		digest:   key.digest,
		exports:  exports,
		imports:  imports,
		size:     len(wasm),
	}

	// Another caller may have compiled the same bytes meanwhile.
	if prev, ok, _ := r.components.PeekOrAdd(key, comp); ok {
		_ = compiled.Close(ctx)
		return prev, nil
	}

	r.logger.Debug("compiled component",
		zap.String("digest", key.digest),
		zap.Uint32("memory_pages", pages),
		zap.Int("size", len(wasm)))
	return comp, nil
}

func (r *Runtime) engineFor(ctx context.Context, pages uint32) (*engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRuntimeClosed
	}
	if eng, ok := r.engines[pages]; ok {
		return eng, nil
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true).
		WithCompilationCache(r.cache))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}
	if err := adapter.RegisterWithRuntime(ctx, rt, r.registry,
		adapter.WithLogger(r.logger),
		adapter.WithCustomHandler(adapter.LogMessageHandler(r.logger.Named("guest"))),
	); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	eng := &engine{rt: rt, pages: pages}
	r.engines[pages] = eng
	return eng, nil
}

// NewExecutionContext returns a one-shot context for a single guest call
// bound to the given config snapshot, capabilities and limits.
func (r *Runtime) NewExecutionContext(plugin string, snapshot map[string]any, caps []entities.Capability, cfg entities.WasmPluginConfig) *ExecutionContext {
	return &ExecutionContext{
		state: &hostfuncs.CallState{
			Plugin:       plugin,
			Config:       snapshot,
			Capabilities: append([]entities.Capability(nil), caps...),
		},
		timeout: cfg.Timeout(),
	}
}

// Close releases every engine and the compilation cache. Components
// compiled by the Runtime become unusable.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.components.Purge()

	var errs []error
	for pages, eng := range r.engines {
		if err := eng.rt.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close engine (%d pages): %w", pages, err))
		}
	}
	r.engines = nil
	if err := r.cache.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close compilation cache: %w", err))
	}
	return errors.Join(errs...)
}
