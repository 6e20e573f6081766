package validation

import (
	"errors"
	"testing"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructValidator_WasmPluginConfig(t *testing.T) {
	v := NewStructValidator()

	tests := []struct {
		name      string
		mutate    func(*entities.WasmPluginConfig)
		wantField string
	}{
		{name: "defaults valid", mutate: func(*entities.WasmPluginConfig) {}},
		{name: "upper memory bound", mutate: func(c *entities.WasmPluginConfig) { c.MemoryLimitMB = 4096 }},
		{name: "zero timeout", mutate: func(c *entities.WasmPluginConfig) { c.TimeoutSecs = 0 }},
		{name: "zero memory", mutate: func(c *entities.WasmPluginConfig) { c.MemoryLimitMB = 0 }, wantField: "memory_limit_mb"},
		{name: "memory over wasm32", mutate: func(c *entities.WasmPluginConfig) { c.MemoryLimitMB = 4097 }, wantField: "memory_limit_mb"},
		{name: "timeout over a day", mutate: func(c *entities.WasmPluginConfig) { c.TimeoutSecs = 86401 }, wantField: "timeout_secs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := entities.DefaultWasmPluginConfig()
			tt.mutate(&cfg)

			err := v.Validate(cfg)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *domainerrors.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestStructValidator_NonStruct(t *testing.T) {
	err := NewStructValidator().Validate("not a struct")

	var cfgErr *domainerrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}
