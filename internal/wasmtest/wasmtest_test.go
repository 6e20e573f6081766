package wasmtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestAppendLeb(t *testing.T) {
	assert.Equal(t, []byte{0xe5, 0x8e, 0x26}, appendUleb(nil, 624485))
	assert.Equal(t, []byte{0x80, 0x08}, appendSleb(nil, 1024))
	assert.Equal(t, []byte{0x7f}, appendSleb(nil, -1))
	assert.Equal(t, []byte{0xc0, 0xbb, 0x78}, appendSleb(nil, -123456))
}

func TestGuest_CompilesAndExports(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, Guest{}.Build())
	require.NoError(t, err)

	exports := compiled.ExportedFunctions()
	for _, name := range []string{"allocate", "on_load", "on_enable", "on_disable", "on_unload"} {
		require.Contains(t, exports, name)
	}
	assert.Equal(t, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, exports["on_load"].ParamTypes())
	assert.Equal(t, []api.ValueType{api.ValueTypeI64}, exports["on_enable"].ResultTypes())
	assert.Contains(t, compiled.ExportedMemories(), "memory")

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	require.NoError(t, err)

	res, err := mod.ExportedFunction("allocate").Call(ctx, 16)
	require.NoError(t, err)
	assert.Equal(t, uint64(AllocateOffset), res[0])

	res, err = mod.ExportedFunction("on_enable").Call(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res[0])
}

func TestGuest_FailReturnsPackedRecord(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	mod, err := rt.Instantiate(ctx, Guest{OnDisable: Fail, ErrorCode: "E", ErrorMessage: "m"}.Build())
	require.NoError(t, err)

	res, err := mod.ExportedFunction("on_disable").Call(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(errorOffset), uint32(res[0]>>32))
	assert.NotZero(t, uint32(res[0]))
}

func TestGuest_Omit(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, Guest{Omit: "on_unload"}.Build())
	require.NoError(t, err)
	assert.NotContains(t, compiled.ExportedFunctions(), "on_unload")
}
