package hostfuncs

import (
	"context"
	"maps"
	"slices"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
)

// HostContext wraps a context.Context with the name of the host function
// being invoked and a request-scoped value bag for middleware.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string

	// SetValue stores a request-scoped value.
	SetValue(key, value any)

	// GetValue retrieves a request-scoped value set by SetValue.
	GetValue(key any) (value any, ok bool)
}

type hostContext struct {
	context.Context
	values   map[any]any
	funcName string
}

// NewHostContext creates a new HostContext wrapping the given context.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
		values:   make(map[any]any),
	}
}

func (c *hostContext) FunctionName() string {
	return c.funcName
}

func (c *hostContext) SetValue(key, value any) {
	c.values[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// HostContextFrom returns ctx if it already is a HostContext, or wraps it.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName)
}

// CallState is the immutable view of a plugin that one guest call runs with.
type CallState struct {
	Config       map[string]any
	Plugin       string
	Capabilities []entities.Capability
}

// HasCapability reports whether the calling plugin declared c.
func (s *CallState) HasCapability(c entities.Capability) bool {
	for _, have := range s.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// ConfigKeys returns the sorted configuration keys of the snapshot.
func (s *CallState) ConfigKeys() []string {
	return slices.Sorted(maps.Keys(s.Config))
}

type callStateKey struct{}

// WithCallState attaches the call state of the running guest call.
func WithCallState(ctx context.Context, state *CallState) context.Context {
	return context.WithValue(ctx, callStateKey{}, state)
}

// CallStateFrom returns the call state attached by WithCallState.
func CallStateFrom(ctx context.Context) (*CallState, bool) {
	state, ok := ctx.Value(callStateKey{}).(*CallState)
	return state, ok && state != nil
}
