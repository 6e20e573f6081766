package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Values is one plugin's configuration map, as written in the host file or
// decoded from the wire.
type Values map[string]any

// String returns a string value, reporting whether it was present as one.
func (v Values) String(key string) (string, bool) {
	s, ok := v[key].(string)
	return s, ok
}

// RequireString returns a non-empty string value.
func (v Values) RequireString(key string) (string, error) {
	val, ok := v[key]
	if !ok {
		return "", fmt.Errorf("missing required field: %s", key)
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %s must be non-empty string", key)
	}
	return s, nil
}

// Int accepts any integer type and integral floats.
func (v Values) Int(key string) (int64, bool) {
	switch n := v[key].(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// Float accepts floats and integers.
func (v Values) Float(key string) (float64, bool) {
	switch n := v[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Bool returns a bool value.
func (v Values) Bool(key string) (bool, bool) {
	b, ok := v[key].(bool)
	return b, ok
}

// StringSlice returns a list whose items are all strings.
func (v Values) StringSlice(key string) ([]string, bool) {
	switch list := v[key].(type) {
	case []string:
		return append([]string(nil), list...), true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Set parses "key=value" assignments into v. Values are read as YAML
// scalars or flow collections, so "3" is an integer, "true" a bool and
// "[a, b]" a list; anything unparsable stays a string.
func (v Values) Set(assignments ...string) error {
	for _, a := range assignments {
		key, raw, ok := strings.Cut(a, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid assignment %q: want key=value", a)
		}
		var val any
		if err := yaml.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		if val == nil && raw != "" && raw != "null" && raw != "~" {
			val = raw
		}
		v[key] = val
	}
	return nil
}
