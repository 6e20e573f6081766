package hostfuncs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(_ context.Context, payload []byte) ([]byte, error) {
	return payload, nil
}

func TestNewRegistry_Empty(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Empty(t, reg.Names())
}

func TestNewRegistry_WithByteHandler(t *testing.T) {
	reg, err := NewRegistry(
		WithByteHandler("echo", echoHandler),
	)
	require.NoError(t, err)

	assert.True(t, reg.Has("echo"))
	assert.False(t, reg.Has("nonexistent"))
	assert.Equal(t, []string{"echo"}, reg.Names())
}

func TestNewRegistry_DuplicateHandler(t *testing.T) {
	_, err := NewRegistry(
		WithByteHandler("test", echoHandler),
		WithByteHandler("test", echoHandler),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate handler name")
}

func TestNewRegistry_InvalidHandlers(t *testing.T) {
	_, err := NewRegistry(WithByteHandler("", echoHandler))
	assert.Error(t, err)

	_, err = NewRegistry(WithByteHandler("nil", nil))
	assert.Error(t, err)
}

func TestNewRegistry_BundleCollidesWithHandler(t *testing.T) {
	_, err := NewRegistry(
		WithByteHandler(FuncConfigGet, echoHandler),
		WithBundle(ConfigBundle()),
	)
	assert.Error(t, err)
}

func TestRegistry_Names_Sorted(t *testing.T) {
	reg, err := NewRegistry(WithBundle(DefaultBundles(NewServiceDirectory())))
	require.NoError(t, err)

	assert.Equal(t, []string{
		FuncCapabilityHas,
		FuncConfigGet,
		FuncConfigKeys,
		FuncServiceLookup,
		FuncServiceRegister,
	}, reg.Names())

	names := reg.Names()
	names[0] = "mutated"
	assert.Equal(t, FuncCapabilityHas, reg.Names()[0])
}

func TestRegistry_Invoke(t *testing.T) {
	reg, err := NewRegistry(WithByteHandler("echo", echoHandler))
	require.NoError(t, err)

	resp, err := reg.Invoke(context.Background(), "echo", []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, resp)
}

func TestRegistry_Invoke_UnknownFunction(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	resp, err := reg.Invoke(context.Background(), "nope", nil)
	require.NoError(t, err)

	errResp, ok := DecodeErrorResponse(resp)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", errResp.Error)
	assert.Equal(t, 404, errResp.Code)
}

func TestRegistry_Invoke_PassesFunctionName(t *testing.T) {
	var seen string
	reg, err := NewRegistry(WithByteHandler("named", func(ctx context.Context, _ []byte) ([]byte, error) {
		seen = functionName(ctx)
		return nil, nil
	}))
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "named", nil)
	require.NoError(t, err)
	assert.Equal(t, "named", seen)
}

func TestWithHandler_Typed(t *testing.T) {
	type req struct {
		N int64 `cbor:"n"`
	}
	type resp struct {
		Double int64 `cbor:"double"`
	}

	reg, err := NewRegistry(WithHandler("double", func(_ context.Context, r req) resp {
		return resp{Double: r.N * 2}
	}))
	require.NoError(t, err)

	payload := mustMarshal(t, req{N: 21})
	out, err := reg.Invoke(context.Background(), "double", payload)
	require.NoError(t, err)

	var got resp
	mustUnmarshal(t, out, &got)
	assert.Equal(t, int64(42), got.Double)
}
