package entities

import "fmt"

// PluginState is the lifecycle state of a plugin instance.
type PluginState int

const (
	StateRegistered PluginState = iota
	StateLoaded
	StateEnabled
	StateDisabled
)

func (s PluginState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateLoaded:
		return "loaded"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("PluginState(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s PluginState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PluginState) UnmarshalText(text []byte) error {
	for _, candidate := range []PluginState{StateRegistered, StateLoaded, StateEnabled, StateDisabled} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown plugin state %q", text)
}

// Phase is one lifecycle operation of a plugin.
type Phase int

const (
	PhaseLoad Phase = iota
	PhaseEnable
	PhaseDisable
	PhaseUnload
)

// Phases lists the lifecycle operations in their natural order.
func Phases() []Phase {
	return []Phase{PhaseLoad, PhaseEnable, PhaseDisable, PhaseUnload}
}

func (p Phase) String() string {
	switch p {
	case PhaseLoad:
		return "on_load"
	case PhaseEnable:
		return "on_enable"
	case PhaseDisable:
		return "on_disable"
	case PhaseUnload:
		return "on_unload"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Export is the guest function implementing the phase.
func (p Phase) Export() string {
	return p.String()
}

// Target is the state reached when the phase succeeds.
func (p Phase) Target() PluginState {
	switch p {
	case PhaseLoad:
		return StateLoaded
	case PhaseEnable:
		return StateEnabled
	case PhaseDisable:
		return StateDisabled
	default:
		return StateRegistered
	}
}

// Allows reports whether the phase may start from the given state.
func (p Phase) Allows(from PluginState) bool {
	switch p {
	case PhaseLoad:
		return from == StateRegistered
	case PhaseEnable:
		return from == StateLoaded || from == StateDisabled
	case PhaseDisable:
		return from == StateEnabled
	case PhaseUnload:
		return true
	default:
		return false
	}
}

// TakesConfig reports whether the guest export receives the serialized
// host state.
func (p Phase) TakesConfig() bool {
	return p == PhaseLoad
}
