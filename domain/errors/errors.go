// Package errors provides the typed errors of the plugin host.
// All error types support unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
)

// DetailedError is implemented by errors that can describe themselves as an
// ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts any error into an ErrorDetail, recognizing the
// typed errors of this package.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// IsRetryable reports whether the caller may retry after fixing a
// precondition or the guest's internal condition. Illegal transitions and
// guest-signaled failures are retryable; broken binaries are not.
func IsRetryable(err error) bool {
	var ist *InvalidStateTransitionError
	if stdErrors.As(err, &ist) {
		return true
	}
	var le *LifecycleError
	return stdErrors.As(err, &le)
}

// IoError is a filesystem failure while reading a binary or manifest.
type IoError struct {
	Err  error
	Op   string
	Path string
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *IoError) ToErrorDetail() *entities.ErrorDetail {
	return entities.NewErrorDetail("io", e.Error()).WithCode(e.Op).WithDetail("path", e.Path)
}

// ManifestParseError is a malformed manifest document.
type ManifestParseError struct {
	Err  error
	Path string
}

func (e *ManifestParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse manifest %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse manifest: %v", e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ManifestParseError) ToErrorDetail() *entities.ErrorDetail {
	return entities.NewErrorDetail("manifest", e.Error()).WithCode("parse")
}

// ConfigError represents a configuration value that is out of range or of the
// wrong type.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid config field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// InvalidWasmBinaryError is a file that does not start with the wasm magic
// header.
type InvalidWasmBinaryError struct {
	Path   string
	Reason string
}

func (e *InvalidWasmBinaryError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid wasm binary %s: %s", e.Path, e.Reason)
	}
	return "invalid wasm binary: " + e.Reason
}

// ToErrorDetail implements DetailedError.
func (e *InvalidWasmBinaryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "binary", Code: "invalid_magic"}
}

// NotFoundError is returned when no plugin binary matches a name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("plugin %q not found", e.Name)
}

// ToErrorDetail implements DetailedError.
func (e *NotFoundError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "not_found", Code: e.Name, IsNotFound: true}
}

// WasmExecutionError is an engine-level fault: a trap, a signature mismatch,
// a resource-limit violation or a missed deadline. Phase is "compile" for
// faults detected before any guest call.
type WasmExecutionError struct {
	Err     error
	Plugin  string
	Phase   string
	Timeout bool
}

func (e *WasmExecutionError) Error() string {
	if e.Plugin != "" {
		return fmt.Sprintf("plugin %s: %s failed: %v", e.Plugin, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *WasmExecutionError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WasmExecutionError) ToErrorDetail() *entities.ErrorDetail {
	d := &entities.ErrorDetail{Message: e.Error(), Type: "execution", Code: e.Phase, IsTimeout: e.Timeout}
	return d.WithDetail("plugin", e.Plugin)
}

// LifecycleError is a failure the guest explicitly returned from a
// lifecycle export.
type LifecycleError struct {
	Plugin  string
	Phase   string
	Code    string
	Message string
}

func (e *LifecycleError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("plugin %s: %s returned %s: %s", e.Plugin, e.Phase, e.Code, e.Message)
	}
	return fmt.Sprintf("plugin %s: %s returned error: %s", e.Plugin, e.Phase, e.Message)
}

// ToErrorDetail implements DetailedError.
func (e *LifecycleError) ToErrorDetail() *entities.ErrorDetail {
	d := &entities.ErrorDetail{Message: e.Message, Type: "lifecycle", Code: e.Code, Retryable: true}
	return d.WithDetail("plugin", e.Plugin).WithDetail("phase", e.Phase)
}

// InvalidStateTransitionError is returned when a lifecycle operation is
// called from a state that does not allow it, or while another lifecycle
// call on the same instance is still running. Busy tells the two apart: a
// busy instance may accept the same call once the running one returns. No
// guest code has run.
type InvalidStateTransitionError struct {
	Plugin string
	From   entities.PluginState
	To     entities.PluginState
	Busy   bool
}

func (e *InvalidStateTransitionError) Error() string {
	if e.Busy {
		return fmt.Sprintf("plugin %s: cannot transition from %s to %s: another lifecycle call is in progress", e.Plugin, e.From, e.To)
	}
	return fmt.Sprintf("plugin %s: invalid state transition from %s to %s", e.Plugin, e.From, e.To)
}

// ToErrorDetail implements DetailedError.
func (e *InvalidStateTransitionError) ToErrorDetail() *entities.ErrorDetail {
	code := "invalid_transition"
	if e.Busy {
		code = "busy"
	}
	d := &entities.ErrorDetail{Message: e.Error(), Type: "state", Code: code, Retryable: true}
	return d.WithDetail("from", e.From.String()).WithDetail("to", e.To.String())
}
