package hostfuncs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Middleware wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first).
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware converts handler panics into an encoded
// ErrorResponse instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = NewPanicError(r).Encode()
					err = nil
				}
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware logs every host function invocation at debug level and
// failures at warn level.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			fields := []zap.Field{zap.String("function", functionName(ctx))}
			if state, ok := CallStateFrom(ctx); ok {
				fields = append(fields, zap.String("plugin", state.Plugin))
			}

			start := time.Now()
			resp, err := next(ctx, payload)
			fields = append(fields, zap.Duration("duration", time.Since(start)), zap.Int("request_bytes", len(payload)))
			if err != nil {
				logger.Warn("host function failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			logger.Debug("host function completed", fields...)
			return resp, nil
		}
	}
}

func functionName(ctx context.Context) string {
	if hc, ok := ctx.(HostContext); ok {
		return hc.FunctionName()
	}
	return "unknown"
}
