package entities

import (
	"fmt"
	"strings"
)

// PluginCapability is one of the framework hooks the host knows about.
type PluginCapability int

// Core capabilities. The zero value is not a valid capability.
const (
	CapabilityMiddleware PluginCapability = iota + 1
	CapabilityModels
	CapabilityCommands
	CapabilityViewSets
	CapabilitySignals
	CapabilityServices
	CapabilityAuth
	CapabilityTemplates
	CapabilityStaticFiles
	CapabilityRouting
	CapabilitySignalReceivers
	CapabilityHandlers
	CapabilityNetworkAccess
	CapabilityDatabaseAccess
	CapabilityStaticSiteGeneration
	CapabilityFrontendSSR
	CapabilityFrontendHydration
	CapabilityTypeScriptRuntime
	CapabilityBuildToolIntegration
	CapabilityHotModuleReplacement
)

var capabilityNames = map[PluginCapability]string{
	CapabilityMiddleware:           "middleware",
	CapabilityModels:               "models",
	CapabilityCommands:             "commands",
	CapabilityViewSets:             "viewsets",
	CapabilitySignals:              "signals",
	CapabilityServices:             "services",
	CapabilityAuth:                 "auth",
	CapabilityTemplates:            "templates",
	CapabilityStaticFiles:          "static_files",
	CapabilityRouting:              "routing",
	CapabilitySignalReceivers:      "signal_receivers",
	CapabilityHandlers:             "handlers",
	CapabilityNetworkAccess:        "network_access",
	CapabilityDatabaseAccess:       "database_access",
	CapabilityStaticSiteGeneration: "static_site_generation",
	CapabilityFrontendSSR:          "frontend_ssr",
	CapabilityFrontendHydration:    "frontend_hydration",
	CapabilityTypeScriptRuntime:    "typescript_runtime",
	CapabilityBuildToolIntegration: "build_tool_integration",
	CapabilityHotModuleReplacement: "hot_module_replacement",
}

// capabilityAliases maps every accepted spelling (lowercase, '-' folded to '_')
// to its core capability.
var capabilityAliases = func() map[string]PluginCapability {
	m := make(map[string]PluginCapability, len(capabilityNames)+8)
	for c, name := range capabilityNames {
		m[name] = c
	}
	m["staticfiles"] = CapabilityStaticFiles
	m["view_sets"] = CapabilityViewSets
	m["ssg"] = CapabilityStaticSiteGeneration
	m["ssr"] = CapabilityFrontendSSR
	m["hydration"] = CapabilityFrontendHydration
	m["ts_runtime"] = CapabilityTypeScriptRuntime
	m["hmr"] = CapabilityHotModuleReplacement
	return m
}()

// String returns the canonical tag.
func (c PluginCapability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("PluginCapability(%d)", int(c))
}

// Valid reports whether c is one of the declared core capabilities.
func (c PluginCapability) Valid() bool {
	_, ok := capabilityNames[c]
	return ok
}

// IsWasmCompatible reports whether a plugin running inside the sandbox can
// actually make use of the capability. Direct network or database access and
// the frontend toolchain hooks need a native plugin.
func (c PluginCapability) IsWasmCompatible() bool {
	switch c {
	case CapabilityNetworkAccess, CapabilityDatabaseAccess, CapabilityTypeScriptRuntime,
		CapabilityBuildToolIntegration, CapabilityHotModuleReplacement:
		return false
	default:
		return c.Valid()
	}
}

// ParsePluginCapability resolves a tag or alias to a core capability.
func ParsePluginCapability(tag string) (PluginCapability, bool) {
	c, ok := capabilityAliases[normalizeTag(tag)]
	return c, ok
}

// AllPluginCapabilities returns every core capability in declaration order.
func AllPluginCapabilities() []PluginCapability {
	out := make([]PluginCapability, 0, len(capabilityNames))
	for c := CapabilityMiddleware; c <= CapabilityHotModuleReplacement; c++ {
		out = append(out, c)
	}
	return out
}

func normalizeTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "-", "_")
}

// Capability is either a core PluginCapability or a custom tag the host does
// not recognize yet. It is comparable and can be used as a map key.
type Capability struct {
	custom string
	core   PluginCapability
}

// CoreCapability wraps a known capability.
func CoreCapability(c PluginCapability) Capability {
	return Capability{core: c}
}

// CustomCapability wraps an unrecognized tag, keeping its spelling.
func CustomCapability(tag string) Capability {
	return Capability{custom: tag}
}

// ParseCapability maps a manifest tag to a Capability. It never fails:
// unknown tags become custom capabilities.
func ParseCapability(tag string) Capability {
	if c, ok := ParsePluginCapability(tag); ok {
		return CoreCapability(c)
	}
	return CustomCapability(tag)
}

// CapabilitiesFromTags maps manifest tags in order.
func CapabilitiesFromTags(tags []string) []Capability {
	out := make([]Capability, 0, len(tags))
	for _, tag := range tags {
		out = append(out, ParseCapability(tag))
	}
	return out
}

// IsCustom reports whether c carries an unrecognized tag.
func (c Capability) IsCustom() bool {
	return !c.core.Valid()
}

// Core returns the core capability, if c is one.
func (c Capability) Core() (PluginCapability, bool) {
	if c.IsCustom() {
		return 0, false
	}
	return c.core, true
}

// String returns the canonical tag for core capabilities and the original tag
// for custom ones.
func (c Capability) String() string {
	if c.IsCustom() {
		return c.custom
	}
	return c.core.String()
}

// IsWasmCompatible reports whether the capability is usable from the sandbox.
// Custom capabilities are assumed to be.
func (c Capability) IsWasmCompatible() bool {
	if c.IsCustom() {
		return true
	}
	return c.core.IsWasmCompatible()
}

// MarshalText implements encoding.TextMarshaler.
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Capability) UnmarshalText(text []byte) error {
	*c = ParseCapability(string(text))
	return nil
}
