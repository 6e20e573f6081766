package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoError(t *testing.T) {
	err := &IoError{Op: "read", Path: "/plugins/a.wasm", Err: fs.ErrPermission}

	assert.Equal(t, "read /plugins/a.wasm: permission denied", err.Error())
	assert.True(t, errors.Is(err, fs.ErrPermission))

	detail := err.ToErrorDetail()
	assert.Equal(t, "io", detail.Type)
	assert.Equal(t, "/plugins/a.wasm", detail.Details["path"])
}

func TestConfigError(t *testing.T) {
	baseErr := fmt.Errorf("value 5000000000 out of range")
	err := &ConfigError{Field: "memory_limit_mb", Err: baseErr}

	assert.Equal(t, "invalid config field 'memory_limit_mb': value 5000000000 out of range", err.Error())
	assert.True(t, errors.Is(err, baseErr))
	assert.Equal(t, "memory_limit_mb", err.ToErrorDetail().Code)
}

func TestConfigError_NoField(t *testing.T) {
	err := &ConfigError{Err: fmt.Errorf("bad")}
	assert.Equal(t, "invalid config: bad", err.Error())
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Name: "missing"}

	assert.Equal(t, `plugin "missing" not found`, err.Error())
	assert.True(t, err.ToErrorDetail().IsNotFound)
}

func TestWasmExecutionError(t *testing.T) {
	baseErr := fmt.Errorf("wasm error: unreachable")
	wrapped := fmt.Errorf("calling guest: %w", &WasmExecutionError{Plugin: "auth", Phase: "on_enable", Err: baseErr})

	var execErr *WasmExecutionError
	require.True(t, errors.As(wrapped, &execErr))
	assert.Equal(t, "auth", execErr.Plugin)
	assert.True(t, errors.Is(wrapped, baseErr))
	assert.Equal(t, "plugin auth: on_enable failed: wasm error: unreachable", execErr.Error())
}

func TestLifecycleError(t *testing.T) {
	err := &LifecycleError{Plugin: "auth", Phase: "on_load", Code: "E_CONFIG", Message: "missing key"}

	assert.Equal(t, "plugin auth: on_load returned E_CONFIG: missing key", err.Error())

	detail := ToErrorDetail(err)
	assert.Equal(t, "lifecycle", detail.Type)
	assert.Equal(t, "E_CONFIG", detail.Code)
	assert.Equal(t, "missing key", detail.Message)
	assert.True(t, detail.Retryable)
}

func TestInvalidStateTransitionError(t *testing.T) {
	err := &InvalidStateTransitionError{Plugin: "auth", From: entities.StateRegistered, To: entities.StateEnabled}

	assert.Equal(t, "plugin auth: invalid state transition from registered to enabled", err.Error())
	detail := err.ToErrorDetail()
	assert.Equal(t, "registered", detail.Details["from"])
	assert.Equal(t, "enabled", detail.Details["to"])
	assert.Equal(t, "invalid_transition", detail.Code)

	busy := &InvalidStateTransitionError{Plugin: "auth", From: entities.StateLoaded, To: entities.StateRegistered, Busy: true}
	assert.Equal(t, "plugin auth: cannot transition from loaded to registered: another lifecycle call is in progress", busy.Error())
	assert.Equal(t, "busy", busy.ToErrorDetail().Code)
	assert.True(t, IsRetryable(busy))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "state transition", err: &InvalidStateTransitionError{}, want: true},
		{name: "lifecycle", err: fmt.Errorf("wrapped: %w", &LifecycleError{}), want: true},
		{name: "execution", err: &WasmExecutionError{Err: fmt.Errorf("trap")}, want: false},
		{name: "binary", err: &InvalidWasmBinaryError{Reason: "bad magic"}, want: false},
		{name: "plain", err: fmt.Errorf("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestToErrorDetail_Generic(t *testing.T) {
	assert.Nil(t, ToErrorDetail(nil))

	detail := ToErrorDetail(fmt.Errorf("boom"))
	assert.Equal(t, "internal", detail.Type)
	assert.Equal(t, "boom", detail.Message)
}
