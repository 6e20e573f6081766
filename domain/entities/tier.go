package entities

import (
	"fmt"
	"strings"
)

// PluginTier selects a preset of resource limits for a plugin.
type PluginTier string

const (
	TierStandard   PluginTier = "standard"
	TierPremium    PluginTier = "premium"
	TierEnterprise PluginTier = "enterprise"
)

// ParsePluginTier resolves a tier name case-insensitively.
func ParsePluginTier(s string) (PluginTier, error) {
	switch t := PluginTier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierStandard, TierPremium, TierEnterprise:
		return t, nil
	default:
		return "", fmt.Errorf("unknown plugin tier %q", s)
	}
}

// MemoryLimitMB is the default memory cap for the tier.
func (t PluginTier) MemoryLimitMB() uint32 {
	switch t {
	case TierPremium:
		return 512
	case TierEnterprise:
		return 1024
	default:
		return DefaultMemoryLimitMB
	}
}

// TimeoutSecs is the default per-call timeout for the tier.
func (t PluginTier) TimeoutSecs() uint32 {
	switch t {
	case TierPremium:
		return 60
	case TierEnterprise:
		return 120
	default:
		return DefaultTimeoutSecs
	}
}
