package entities

import "time"

const (
	// DefaultMemoryLimitMB applies when a manifest does not set memory_limit_mb.
	DefaultMemoryLimitMB uint32 = 128
	// DefaultTimeoutSecs applies when a manifest does not set timeout_secs.
	DefaultTimeoutSecs uint32 = 30
	// MaxMemoryLimitMB is the largest linear memory a wasm32 module can address.
	MaxMemoryLimitMB uint32 = 4096

	wasmPagesPerMB = 16
)

// WasmPluginConfig is the manifest-derived configuration of a plugin.
type WasmPluginConfig struct {
	// Tier is the preset the limits were derived from, if the manifest named one.
	Tier PluginTier `json:"tier,omitempty" toml:"tier" yaml:"tier,omitempty" jsonschema:"enum=standard,enum=premium,enum=enterprise"`

	// Capabilities lists the raw capability tags in manifest order.
	Capabilities []string `json:"capabilities" toml:"capabilities" yaml:"capabilities"`

	// MemoryLimitMB caps the guest linear memory.
	MemoryLimitMB uint32 `json:"memory_limit_mb" toml:"memory_limit_mb" yaml:"memory_limit_mb" validate:"gte=1,lte=4096" jsonschema:"minimum=1,maximum=4096,default=128"`

	// TimeoutSecs bounds each guest call. Zero disables the deadline.
	TimeoutSecs uint32 `json:"timeout_secs" toml:"timeout_secs" yaml:"timeout_secs" validate:"lte=86400" jsonschema:"minimum=0,maximum=86400,default=30"`
}

// DefaultWasmPluginConfig returns the configuration used when no manifest exists.
func DefaultWasmPluginConfig() WasmPluginConfig {
	return WasmPluginConfig{
		MemoryLimitMB: DefaultMemoryLimitMB,
		TimeoutSecs:   DefaultTimeoutSecs,
		Capabilities:  []string{},
	}
}

// ConfigForTier returns the defaults of a tier.
func ConfigForTier(t PluginTier) WasmPluginConfig {
	return WasmPluginConfig{
		Tier:          t,
		MemoryLimitMB: t.MemoryLimitMB(),
		TimeoutSecs:   t.TimeoutSecs(),
		Capabilities:  []string{},
	}
}

// Timeout returns the per-call deadline, or zero when disabled.
func (c WasmPluginConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// MemoryLimitPages converts the memory cap to 64 KiB wasm pages.
func (c WasmPluginConfig) MemoryLimitPages() uint32 {
	return c.MemoryLimitMB * wasmPagesPerMB
}

// ParsedCapabilities maps the raw tags to capabilities.
func (c WasmPluginConfig) ParsedCapabilities() []Capability {
	return CapabilitiesFromTags(c.Capabilities)
}

// Clone returns a deep copy.
func (c WasmPluginConfig) Clone() WasmPluginConfig {
	out := c
	out.Capabilities = append([]string{}, c.Capabilities...)
	return out
}
