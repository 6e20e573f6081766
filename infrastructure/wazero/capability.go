package wazero

import (
	"context"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	"github.com/dentdelion-dev/dentdelion/hostfuncs"
)

// WithCapabilityMiddleware denies host functions listed in requirements to
// plugins that did not declare the required capability. Functions without
// a requirement pass through. A call with no CallState is denied.
func WithCapabilityMiddleware(requirements map[string]entities.Capability) hostfuncs.Middleware {
	return func(next hostfuncs.ByteHandler) hostfuncs.ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			hctx, ok := ctx.(hostfuncs.HostContext)
			if !ok {
				return next(ctx, payload)
			}

			required, gated := requirements[hctx.FunctionName()]
			if !gated {
				return next(ctx, payload)
			}

			state, ok := hostfuncs.CallStateFrom(ctx)
			if !ok || !state.HasCapability(required) {
				return hostfuncs.NewForbiddenError(hctx.FunctionName(), required.String()).Encode(), nil
			}
			return next(ctx, payload)
		}
	}
}
