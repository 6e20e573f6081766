package hostfuncs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	panicHandler := func(ctx context.Context, payload []byte) ([]byte, error) {
		panic("test panic")
	}

	wrapped := PanicRecoveryMiddleware()(panicHandler)

	resp, err := wrapped(context.Background(), nil)
	require.NoError(t, err)

	errResp, ok := DecodeErrorResponse(resp)
	require.True(t, ok)
	assert.Equal(t, "INTERNAL_ERROR", errResp.Error)
	assert.Equal(t, 500, errResp.Code)
	assert.Contains(t, errResp.Message, "test panic")
}

func TestPanicRecoveryMiddleware_ErrorValue(t *testing.T) {
	wrapped := PanicRecoveryMiddleware()(func(context.Context, []byte) ([]byte, error) {
		panic(errors.New("boom"))
	})

	resp, err := wrapped(context.Background(), nil)
	require.NoError(t, err)
	errResp, ok := DecodeErrorResponse(resp)
	require.True(t, ok)
	assert.Equal(t, "panic: boom", errResp.Message)
}

func TestMiddlewareOrder_FIFO(t *testing.T) {
	var callOrder []string
	record := func(name string) Middleware {
		return func(next ByteHandler) ByteHandler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				callOrder = append(callOrder, name+"-before")
				resp, err := next(ctx, payload)
				callOrder = append(callOrder, name+"-after")
				return resp, err
			}
		}
	}

	reg, err := NewRegistry(
		WithMiddleware(record("mw1"), record("mw2")),
		WithByteHandler("h", func(context.Context, []byte) ([]byte, error) {
			callOrder = append(callOrder, "handler")
			return nil, nil
		}),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "h", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}, callOrder)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	reg, err := NewRegistry(
		WithMiddleware(LoggingMiddleware(zap.New(core))),
		WithByteHandler("ok", echoHandler),
		WithByteHandler("fail", func(context.Context, []byte) ([]byte, error) {
			return nil, errors.New("nope")
		}),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(callCtx(), "ok", []byte{1})
	require.NoError(t, err)
	_, err = reg.Invoke(callCtx(), "fail", nil)
	require.Error(t, err)

	completed := logs.FilterMessage("host function completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, "ok", completed[0].ContextMap()["function"])
	assert.Equal(t, "blog", completed[0].ContextMap()["plugin"])

	failed := logs.FilterMessage("host function failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
}

func TestHostContext_Values(t *testing.T) {
	hc := NewHostContext(context.Background(), "fn")
	hc.SetValue("k", 1)

	v, ok := hc.GetValue("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Same(t, hc, HostContextFrom(hc, "other"))
	assert.Equal(t, "fn", HostContextFrom(hc, "other").FunctionName())
}
