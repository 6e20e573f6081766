package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// DefaultMaxRequestSize caps a request read from guest memory at 1 MiB.
const DefaultMaxRequestSize uint32 = 1 << 20

// HandlerRegistry maps host function names to handlers. It is fixed at
// construction, so guest calls read it without locking.
type HandlerRegistry struct {
	handlers map[string]ByteHandler
	sorted   []string
}

type registryBuilder struct {
	handlers   map[string]ByteHandler
	middleware []Middleware
	errs       []error
}

// NewRegistry builds a registry. Every invalid or duplicate registration is
// reported in the joined error.
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(DefaultBundles(services)),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{handlers: make(map[string]ByteHandler)}
	for _, opt := range opts {
		opt(b)
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}

	r := &HandlerRegistry{
		handlers: make(map[string]ByteHandler, len(b.handlers)),
		sorted:   slices.Sorted(maps.Keys(b.handlers)),
	}
	for name, h := range b.handlers {
		r.handlers[name] = chain(h, b.middleware)
	}
	return r, nil
}

// chain wraps h so that mw[0] runs first.
func chain(h ByteHandler, mw []Middleware) ByteHandler {
	for _, m := range slices.Backward(mw) {
		h = m(h)
	}
	return h
}

// Invoke calls a host function. An unknown name yields an encoded NOT_FOUND
// response, not a Go error.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	h, ok := r.handlers[name]
	if !ok {
		return NewNotFoundError(name).Encode(), nil
	}
	return h(HostContextFrom(ctx, name), payload)
}

// Has reports whether name is registered.
func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *HandlerRegistry) Names() []string {
	return slices.Clone(r.sorted)
}

func (b *registryBuilder) add(name string, h ByteHandler) {
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("handler name cannot be empty"))
	case h == nil:
		b.errs = append(b.errs, fmt.Errorf("handler %q is nil", name))
	case b.handlers[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("duplicate handler name: %q", name))
	default:
		b.handlers[name] = h
	}
}

// WithByteHandler registers a raw handler.
func WithByteHandler(name string, h ByteHandler) RegistryOption {
	return func(b *registryBuilder) { b.add(name, h) }
}

// WithHandler registers a typed host function speaking CBOR.
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return WithByteHandler(name, NewCBORHandler(fn))
}

// WithBundle registers every handler of a bundle, in name order.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		handlers := bundle.Handlers()
		for _, name := range slices.Sorted(maps.Keys(handlers)) {
			b.add(name, handlers[name])
		}
	}
}

// WithMiddleware appends middleware. The first one added is the outermost.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
