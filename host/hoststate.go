package host

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"sync"
	"unicode/utf8"

	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/wireformat"
)

// HostState is the configuration a plugin sees. Values are normalized on
// write to the types the wire codec decodes to, so a snapshot survives a
// serialize/decode round trip unchanged.
type HostState struct {
	mu     sync.RWMutex
	config map[string]any
}

// NewHostState returns a state seeded with initial.
func NewHostState(initial map[string]any) (*HostState, error) {
	hs := &HostState{config: map[string]any{}}
	if err := hs.SetConfigAll(initial); err != nil {
		return nil, err
	}
	return hs, nil
}

// GetConfig returns a copy of one value.
func (h *HostState) GetConfig(key string) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.config[key]
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

// SetConfig stores one value.
func (h *HostState) SetConfig(key string, value any) error {
	v, err := normalize(key, value)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.config[key] = v
	h.mu.Unlock()
	return nil
}

// GetConfigAll returns a copy of the whole map.
func (h *HostState) GetConfigAll() map[string]any {
	return h.Snapshot()
}

// SetConfigAll replaces the whole map. On error the state is unchanged.
func (h *HostState) SetConfigAll(config map[string]any) error {
	next := make(map[string]any, len(config))
	for k, v := range config {
		nv, err := normalize(k, v)
		if err != nil {
			return err
		}
		next[k] = nv
	}
	h.mu.Lock()
	h.config = next
	h.mu.Unlock()
	return nil
}

// Keys returns the sorted keys.
func (h *HostState) Keys() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.config))
}

// Snapshot returns an immutable copy for one guest call.
func (h *HostState) Snapshot() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]any, len(h.config))
	for k, v := range h.config {
		out[k] = deepCopy(v)
	}
	return out
}

// Serialize encodes a snapshot in the form on_load receives.
func (h *HostState) Serialize() ([]byte, error) {
	return wireformat.EncodeConfig(h.Snapshot())
}

// Clone returns an independent copy.
func (h *HostState) Clone() *HostState {
	return &HostState{config: h.Snapshot()}
}

// Keys and strings must survive the CBOR round trip to the guest.
var errInvalidUTF8Key = errors.New("key is not valid UTF-8")

func normalize(field string, value any) (any, error) {
	if !utf8.ValidString(field) {
		return nil, configError(field, errInvalidUTF8Key)
	}
	if value == nil {
		return nil, nil
	}
	return normalizeValue(field, reflect.ValueOf(value))
}

func normalizeValue(field string, v reflect.Value) (any, error) {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return nil, configError(field, errors.New("string is not valid UTF-8"))
		}
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, configError(field, fmt.Errorf("value %d overflows int64", u))
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		if v.Kind() == reflect.Pointer {
			return nil, configError(field, fmt.Errorf("unsupported type %s", v.Type()))
		}
		return normalizeValue(field, v.Elem())
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return b, nil
		}
		if v.Kind() == reflect.Slice && v.IsNil() {
			return []any{}, nil
		}
		out := make([]any, v.Len())
		for i := range out {
			item, err := normalizeValue(fmt.Sprintf("%s[%d]", field, i), v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, configError(field, fmt.Errorf("map key type %s is not string", v.Type().Key()))
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			if !utf8.ValidString(key) {
				return nil, configError(field, errInvalidUTF8Key)
			}
			item, err := normalizeValue(field+"."+key, iter.Value())
			if err != nil {
				return nil, err
			}
			out[key] = item
		}
		return out, nil
	default:
		return nil, configError(field, fmt.Errorf("unsupported type %s", v.Type()))
	}
}

func configError(field string, err error) error {
	return &domainerrors.ConfigError{Field: field, Err: err}
}

// deepCopy copies normalized values.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	case []byte:
		return append([]byte{}, t...)
	default:
		return v
	}
}
