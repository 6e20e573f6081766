// Package wireformat defines the CBOR wire format used between the host and
// guest plugins. These types define the ABI contract and must stay backward
// compatible.
package wireformat

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Deterministic encoding keeps the on_load blob byte-stable for equal maps.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wireformat: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wireformat: cbor decoder: %v", err))
	}
}

// Marshal encodes v with the deterministic wire encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes wire bytes into v. Maps decoded into interface values
// become map[string]any and integers become int64.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeConfig serializes a host configuration map for on_load.
func EncodeConfig(config map[string]any) ([]byte, error) {
	if config == nil {
		config = map[string]any{}
	}
	data, err := encMode.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// DecodeConfig is the inverse of EncodeConfig.
func DecodeConfig(data []byte) (map[string]any, error) {
	config := map[string]any{}
	if len(data) == 0 {
		return config, nil
	}
	if err := decMode.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return config, nil
}

// GuestError is the error arm of a lifecycle export result.
type GuestError struct {
	Code    string `cbor:"code" json:"code"`
	Message string `cbor:"message" json:"message"`
}

func (e *GuestError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// DecodeGuestError reads a guest error record.
func DecodeGuestError(data []byte) (*GuestError, error) {
	var ge GuestError
	if err := decMode.Unmarshal(data, &ge); err != nil {
		return nil, fmt.Errorf("decode guest error: %w", err)
	}
	return &ge, nil
}

// EncodeGuestError writes a guest error record. Guests produce these; the
// host uses it to build fixtures.
func EncodeGuestError(code, message string) ([]byte, error) {
	return encMode.Marshal(GuestError{Code: code, Message: message})
}

// LogRecord is the payload of the log_message host import.
type LogRecord struct {
	Fields  map[string]any `cbor:"fields,omitempty" json:"fields,omitempty"`
	Level   string         `cbor:"level" json:"level"`
	Message string         `cbor:"message" json:"message"`
}

// ConfigGetRequest asks for one host configuration value.
type ConfigGetRequest struct {
	Key string `cbor:"key" json:"key"`
}

// ConfigGetResponse carries the value, if the key exists.
type ConfigGetResponse struct {
	Value any  `cbor:"value,omitempty" json:"value,omitempty"`
	Found bool `cbor:"found" json:"found"`
}

// ConfigKeysResponse lists the configuration keys visible to the call.
type ConfigKeysResponse struct {
	Keys []string `cbor:"keys" json:"keys"`
}

// CapabilityRequest asks whether the calling plugin declared a capability.
type CapabilityRequest struct {
	Capability string `cbor:"capability" json:"capability"`
}

// CapabilityResponse answers a CapabilityRequest.
type CapabilityResponse struct {
	Granted bool `cbor:"granted" json:"granted"`
}

// ServiceRegisterRequest publishes an opaque service descriptor under a name.
type ServiceRegisterRequest struct {
	Name    string `cbor:"name" json:"name"`
	Payload []byte `cbor:"payload" json:"payload"`
}

// ServiceRegisterResponse acknowledges a registration.
type ServiceRegisterResponse struct {
	Replaced bool `cbor:"replaced" json:"replaced"`
}

// ServiceLookupRequest asks for a service descriptor by name.
type ServiceLookupRequest struct {
	Name string `cbor:"name" json:"name"`
}

// ServiceLookupResponse carries the descriptor and its provider.
type ServiceLookupResponse struct {
	Provider string `cbor:"provider,omitempty" json:"provider,omitempty"`
	Payload  []byte `cbor:"payload,omitempty" json:"payload,omitempty"`
	Found    bool   `cbor:"found" json:"found"`
}
