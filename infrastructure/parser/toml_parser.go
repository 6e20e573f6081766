// Package parser provides manifest parsers.
package parser

import (
	"fmt"
	"math"

	"github.com/BurntSushi/toml"
	"github.com/dentdelion-dev/dentdelion/domain/entities"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/domain/ports"
)

// manifestTables are searched in order; the document root is the fallback.
var manifestTables = []string{"wasm", "plugin"}

// TomlManifestParser implements ManifestParser for TOML manifests.
type TomlManifestParser struct{}

// NewTomlManifestParser creates a new TomlManifestParser.
func NewTomlManifestParser() ports.ManifestParser {
	return &TomlManifestParser{}
}

// Parse decodes a manifest. The [wasm] table is preferred, then [plugin],
// then the top level of the document. An empty document yields the defaults.
func (p *TomlManifestParser) Parse(data []byte) (*entities.WasmPluginConfig, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, &domainerrors.ManifestParseError{Err: err}
	}

	table := selectTable(doc)

	cfg := entities.DefaultWasmPluginConfig()
	if raw, ok := table["tier"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, typeError("tier", "string", raw)
		}
		tier, err := entities.ParsePluginTier(s)
		if err != nil {
			return nil, &domainerrors.ConfigError{Field: "tier", Err: err}
		}
		cfg = entities.ConfigForTier(tier)
	}

	if raw, ok := table["memory_limit_mb"]; ok {
		v, err := uint32Value("memory_limit_mb", raw)
		if err != nil {
			return nil, err
		}
		cfg.MemoryLimitMB = v
	}

	if raw, ok := table["timeout_secs"]; ok {
		v, err := uint32Value("timeout_secs", raw)
		if err != nil {
			return nil, err
		}
		cfg.TimeoutSecs = v
	}

	if raw, ok := table["capabilities"]; ok {
		caps, err := stringList("capabilities", raw)
		if err != nil {
			return nil, err
		}
		cfg.Capabilities = caps
	}

	return &cfg, nil
}

func selectTable(doc map[string]any) map[string]any {
	for _, name := range manifestTables {
		if t, ok := doc[name].(map[string]any); ok {
			return t
		}
	}
	return doc
}

func uint32Value(field string, raw any) (uint32, error) {
	n, ok := raw.(int64)
	if !ok {
		return 0, typeError(field, "integer", raw)
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, &domainerrors.ConfigError{
			Field: field,
			Err:   fmt.Errorf("value %d out of range [0, %d]", n, uint32(math.MaxUint32)),
		}
	}
	return uint32(n), nil
}

func stringList(field string, raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, typeError(field, "array of strings", raw)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, typeError(fmt.Sprintf("%s[%d]", field, i), "string", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func typeError(field, want string, got any) error {
	return &domainerrors.ConfigError{Field: field, Err: fmt.Errorf("expected %s, got %T", want, got)}
}
