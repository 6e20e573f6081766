package hostfuncs

import (
	"fmt"

	"github.com/dentdelion-dev/dentdelion/wireformat"
)

// Error kinds carried in ErrorResponse.Error.
const (
	KindValidation = "VALIDATION_ERROR"
	KindForbidden  = "FORBIDDEN"
	KindNotFound   = "NOT_FOUND"
	KindInternal   = "INTERNAL_ERROR"
)

// ErrorResponse is what a host function returns to the guest instead of a
// regular response. Host function failures never trap the guest.
type ErrorResponse struct {
	Error   string `cbor:"error" json:"error"`
	Message string `cbor:"message" json:"message"`

	// Code follows HTTP status semantics.
	Code int `cbor:"code" json:"code"`
}

// Encode serializes the response. The type always encodes.
func (e ErrorResponse) Encode() []byte {
	data, _ := wireformat.Marshal(e)
	return data
}

// DecodeErrorResponse reads an ErrorResponse. It reports false when data is
// not one.
func DecodeErrorResponse(data []byte) (ErrorResponse, bool) {
	var resp ErrorResponse
	if err := wireformat.Unmarshal(data, &resp); err != nil || resp.Error == "" {
		return ErrorResponse{}, false
	}
	return resp, true
}

// NewValidationError rejects a malformed request.
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: KindValidation, Message: message, Code: 400}
}

// NewForbiddenError rejects a call whose capability the plugin did not
// declare.
func NewForbiddenError(function, capability string) ErrorResponse {
	return ErrorResponse{Error: KindForbidden, Message: function + " requires capability " + capability, Code: 403}
}

// NewNotFoundError answers a call to an unknown host function.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{Error: KindNotFound, Message: "unknown host function: " + name, Code: 404}
}

// NewInternalError reports an unexpected host-side failure.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: KindInternal, Message: message, Code: 500}
}

// NewPanicError reports a recovered panic.
func NewPanicError(recovered any) ErrorResponse {
	var msg string
	switch v := recovered.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
	}
	return NewInternalError("panic: " + msg)
}
