package entities

import "fmt"

// ErrorDetail is the structured, serializable form of a host error.
// Types: "io", "manifest", "config", "binary", "not_found", "execution",
// "lifecycle", "state", "internal".
type ErrorDetail struct {
	// Details carries error-specific context such as plugin or phase.
	Details map[string]any `json:"details,omitempty"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// Retryable is set when the caller may retry after fixing a precondition.
	Retryable bool `json:"retryable,omitempty"`

	// IsTimeout indicates the guest call exceeded its deadline.
	IsTimeout bool `json:"is_timeout,omitempty"`

	// IsNotFound indicates a missing plugin or file.
	IsNotFound bool `json:"is_not_found,omitempty"`
}

// Error implements the error interface.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Type != "" && e.Type != "internal" {
		msg = fmt.Sprintf("%s: %s", e.Type, msg)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	return msg
}

// NewErrorDetail creates a new ErrorDetail with the given type and message.
func NewErrorDetail(errorType, message string) *ErrorDetail {
	return &ErrorDetail{
		Type:    errorType,
		Message: message,
	}
}

// WithDetail attaches one key to Details.
func (e *ErrorDetail) WithDetail(key string, value any) *ErrorDetail {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCode sets the machine-readable code.
func (e *ErrorDetail) WithCode(code string) *ErrorDetail {
	e.Code = code
	return e
}
