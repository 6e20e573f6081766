package hostfuncs

import (
	"context"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	"github.com/dentdelion-dev/dentdelion/wireformat"
)

// Names of the built-in host functions.
const (
	FuncConfigGet       = "config_get"
	FuncConfigKeys      = "config_keys"
	FuncCapabilityHas   = "capability_has"
	FuncServiceRegister = "service_register"
	FuncServiceLookup   = "service_lookup"
)

// HostFuncBundle is a pre-configured set of related host functions.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// ConfigBundle exposes the call's configuration snapshot:
// config_get, config_keys.
func ConfigBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncConfigGet: NewCBORHandler(func(ctx context.Context, req wireformat.ConfigGetRequest) wireformat.ConfigGetResponse {
				state, ok := CallStateFrom(ctx)
				if !ok {
					return wireformat.ConfigGetResponse{}
				}
				v, found := state.Config[req.Key]
				return wireformat.ConfigGetResponse{Value: v, Found: found}
			}),
			FuncConfigKeys: NewCBORHandler(func(ctx context.Context, _ struct{}) wireformat.ConfigKeysResponse {
				state, ok := CallStateFrom(ctx)
				if !ok {
					return wireformat.ConfigKeysResponse{Keys: []string{}}
				}
				return wireformat.ConfigKeysResponse{Keys: state.ConfigKeys()}
			}),
		},
	}
}

// CapabilityBundle lets a plugin ask which capabilities it declared:
// capability_has.
func CapabilityBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncCapabilityHas: NewCBORHandler(func(ctx context.Context, req wireformat.CapabilityRequest) wireformat.CapabilityResponse {
				state, ok := CallStateFrom(ctx)
				if !ok {
					return wireformat.CapabilityResponse{}
				}
				return wireformat.CapabilityResponse{Granted: state.HasCapability(entities.ParseCapability(req.Capability))}
			}),
		},
	}
}

// ServiceBundle publishes and resolves plugin services:
// service_register, service_lookup.
func ServiceBundle(dir *ServiceDirectory) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			FuncServiceRegister: func(ctx context.Context, payload []byte) ([]byte, error) {
				state, ok := CallStateFrom(ctx)
				if !ok {
					return NewInternalError("no plugin bound to call").Encode(), nil
				}
				var req wireformat.ServiceRegisterRequest
				if err := wireformat.Unmarshal(payload, &req); err != nil || req.Name == "" {
					return NewValidationError("service_register needs a name").Encode(), nil
				}
				replaced := dir.Register(state.Plugin, req.Name, req.Payload)
				return wireformat.Marshal(wireformat.ServiceRegisterResponse{Replaced: replaced})
			},
			FuncServiceLookup: NewCBORHandler(func(_ context.Context, req wireformat.ServiceLookupRequest) wireformat.ServiceLookupResponse {
				e, ok := dir.Lookup(req.Name)
				if !ok {
					return wireformat.ServiceLookupResponse{}
				}
				return wireformat.ServiceLookupResponse{Provider: e.Provider, Payload: e.Payload, Found: true}
			}),
		},
	}
}

type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Handlers() map[string]ByteHandler {
	result := make(map[string]ByteHandler)
	for _, bundle := range b.bundles {
		for name, handler := range bundle.Handlers() {
			result[name] = handler
		}
	}
	return result
}

// DefaultBundles returns every built-in host function.
func DefaultBundles(dir *ServiceDirectory) HostFuncBundle {
	return &compositeBundle{
		bundles: []HostFuncBundle{
			ConfigBundle(),
			CapabilityBundle(),
			ServiceBundle(dir),
		},
	}
}

// CapabilityRequirements maps host functions to the capability a plugin must
// declare to call them.
func CapabilityRequirements() map[string]entities.Capability {
	return map[string]entities.Capability{
		FuncServiceRegister: entities.CoreCapability(entities.CapabilityServices),
	}
}
