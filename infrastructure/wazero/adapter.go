// Package wazero binds host function registries into wazero runtimes using
// the packed (ptr<<32 | len) calling convention.
package wazero

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/dentdelion-dev/dentdelion/hostfuncs"
)

// HostModuleName is the import module guests use for host functions.
const HostModuleName = "dentdelion_host"

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	Logger *zap.Logger

	// ModuleName is the host module name (default: "dentdelion_host").
	ModuleName string

	// CustomHandlers are functions that do not follow the packed
	// request/response shape, such as log_message.
	CustomHandlers []CustomHandler

	// MaxRequestSize limits the size of requests read from guest memory.
	MaxRequestSize uint32
}

// CustomHandler is a raw wazero host function.
type CustomHandler struct {
	Handler     api.GoModuleFunc
	Name        string
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name.
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum request size read from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithCustomHandler adds a raw wazero handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

// WithLogger sets the logger for ABI-level failures.
func WithLogger(l *zap.Logger) AdapterOption {
	return func(c *AdapterConfig) {
		c.Logger = l
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     HostModuleName,
		MaxRequestSize: hostfuncs.DefaultMaxRequestSize,
		Logger:         zap.NewNop(),
	}
}

// RegisterWithRuntime instantiates a host module exporting every handler of
// the registry, plus any custom handlers.
//
// Each registry handler:
//   - reads the request from guest memory at the packed ptr+len argument
//   - invokes the ByteHandler with the call's context
//   - allocates response memory through the guest "allocate" export
//   - returns the packed ptr+len of the response
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) error {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	for _, name := range registry.Names() {
		funcName := name
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = handleRegistryCall(ctx, mod, stack[0], registry, funcName, cfg)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(funcName)
	}

	for _, ch := range cfg.CustomHandlers {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(ch.Handler, ch.ParamTypes, ch.ResultTypes).
			Export(ch.Name)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiate host module %s: %w", cfg.ModuleName, err)
	}
	return nil
}

func handleRegistryCall(ctx context.Context, mod api.Module, arg uint64, registry *hostfuncs.HandlerRegistry, name string, cfg AdapterConfig) uint64 {
	ptr, length := UnpackPtrLen(arg)
	log := cfg.Logger.With(zap.String("function", name), zap.String("plugin", GetPluginName(ctx, mod)))

	if length > cfg.MaxRequestSize {
		msg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, cfg.MaxRequestSize)
		log.Warn("rejecting host call", zap.String("reason", msg))
		return writeResponse(ctx, mod, hostfuncs.NewValidationError(msg).Encode(), log)
	}

	request, ok := mod.Memory().Read(ptr, length)
	if !ok {
		log.Warn("request out of guest memory bounds", zap.Uint32("ptr", ptr), zap.Uint32("len", length))
		return writeResponse(ctx, mod, hostfuncs.NewInternalError("request out of bounds").Encode(), log)
	}

	response, err := registry.Invoke(ctx, name, request)
	if err != nil {
		log.Warn("host function failed", zap.Error(err))
		return writeResponse(ctx, mod, hostfuncs.NewInternalError(err.Error()).Encode(), log)
	}
	return writeResponse(ctx, mod, response, log)
}

// writeResponse copies data into guest memory obtained from the guest's
// allocate export. Returns the packed location, or 0 on failure.
func writeResponse(ctx context.Context, mod api.Module, data []byte, log *zap.Logger) uint64 {
	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		log.Error("guest module missing allocate export")
		return 0
	}

	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		log.Error("guest allocate failed", zap.Error(err))
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: wasm32 pointers are 32-bit

	if !mod.Memory().Write(ptr, data) {
		log.Error("failed to write response to guest memory", zap.Uint32("ptr", ptr))
		return 0
	}
	return PackPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: bounded by guest memory
}

// PackPtrLen packs a pointer and length into a single i64.
// Upper 32 bits: pointer, lower 32 bits: length.
func PackPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

// UnpackPtrLen unpacks a pointer and length from a packed i64.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: packed format stores 32-bit values
	return ptr, length
}
