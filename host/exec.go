package host

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/hostfuncs"
	adapter "github.com/dentdelion-dev/dentdelion/infrastructure/wazero"
	"github.com/dentdelion-dev/dentdelion/wireformat"
)

// ErrContextUsed is returned by a second Call on the same ExecutionContext.
var ErrContextUsed = errors.New("execution context already used")

// ExecutionContext runs exactly one guest call in a freshly instantiated
// module, bound to a config snapshot and the plugin's limits.
type ExecutionContext struct {
	state   *hostfuncs.CallState
	timeout time.Duration
	used    atomic.Bool
}

// Plugin is the plugin the context is bound to.
func (e *ExecutionContext) Plugin() string {
	return e.state.Plugin
}

// Timeout is the deadline applied to the call. Zero means none.
func (e *ExecutionContext) Timeout() time.Duration {
	return e.timeout
}

// Call instantiates comp, invokes export and tears the module down. A nil
// payload calls export with no arguments; otherwise the payload is copied
// into guest memory and passed as (ptr, len).
//
// Engine faults, including a missed deadline, are a
// *errors.WasmExecutionError. An error the guest returned is the
// *wireformat.GuestError result with a nil error.
func (e *ExecutionContext) Call(ctx context.Context, comp *Component, export string, payload []byte) (*wireformat.GuestError, error) {
	if !e.used.CompareAndSwap(false, true) {
		return nil, ErrContextUsed
	}

	ctx = hostfuncs.WithCallState(ctx, e.state)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cfg := wazero.NewModuleConfig().
		WithName(e.state.Plugin + "-" + uuid.NewString()).
		WithStartFunctions("_initialize")

	mod, err := comp.engine.rt.InstantiateModule(ctx, comp.compiled, cfg)
	if err != nil {
		return nil, e.fault(export, err)
	}
	defer mod.Close(context.Background())

	fn := mod.ExportedFunction(export)
	if fn == nil {
		return nil, e.fault(export, fmt.Errorf("export %q not found", export))
	}

	var results []uint64
	if payload == nil {
		results, err = fn.Call(ctx)
	} else {
		results, err = callWithPayload(ctx, mod, fn, payload)
	}
	if err != nil {
		return nil, e.fault(export, err)
	}
	if len(results) == 0 || results[0] == 0 {
		return nil, nil
	}

	ptr, length := adapter.UnpackPtrLen(results[0])
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, e.fault(export, fmt.Errorf("error record at %d+%d is out of bounds", ptr, length))
	}
	guestErr, err := wireformat.DecodeGuestError(data)
	if err != nil {
		return nil, e.fault(export, err)
	}
	return guestErr, nil
}

func callWithPayload(ctx context.Context, mod api.Module, fn api.Function, payload []byte) ([]uint64, error) {
	allocate := mod.ExportedFunction("allocate")
	if allocate == nil {
		return nil, fmt.Errorf("guest does not export 'allocate'")
	}
	res, err := allocate.Call(ctx, uint64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate in guest: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("allocate returned no results")
	}
	ptr := uint32(res[0]) //nolint:gosec // G115: wasm32 pointers are 32-bit
	if !mod.Memory().Write(ptr, payload) {
		return nil, fmt.Errorf("failed to write input to guest memory")
	}
	return fn.Call(ctx, uint64(ptr), uint64(len(payload)))
}

func (e *ExecutionContext) fault(phase string, err error) error {
	var exitErr *sys.ExitError
	timeout := errors.As(err, &exitErr) && exitErr.ExitCode() == sys.ExitCodeDeadlineExceeded
	return &domainerrors.WasmExecutionError{
		Err:     err,
		Plugin:  e.state.Plugin,
		Phase:   phase,
		Timeout: timeout,
	}
}
