package wazero

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/dentdelion-dev/dentdelion/hostfuncs"
)

// GetPluginName returns the plugin bound to the call, falling back to the
// module name.
func GetPluginName(ctx context.Context, mod api.Module) string {
	if state, ok := hostfuncs.CallStateFrom(ctx); ok && state.Plugin != "" {
		return state.Plugin
	}
	if mod == nil {
		return ""
	}
	return mod.Name()
}
