package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dentdelion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plugin_dir: /srv/plugins
log_level: debug
metrics_addr: localhost:9090
cache_size: 8
watch: true
watch_debounce: 1s
plugins:
  blog:
    title: Hello
    posts: 3
    tags: [a, b]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/plugins", cfg.PluginDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "localhost:9090", cfg.MetricsAddr)
	assert.Equal(t, 8, cfg.CacheSize)
	assert.Equal(t, 4, cfg.MaxParallelLoads, "unset fields keep their default")
	assert.True(t, cfg.Watch)
	assert.Equal(t, time.Second, cfg.WatchDebounce)

	blog := cfg.PluginConfig("blog")
	title, ok := blog.String("title")
	assert.True(t, ok)
	assert.Equal(t, "Hello", title)
	posts, ok := blog.Int("posts")
	assert.True(t, ok)
	assert.Equal(t, int64(3), posts)
	tags, ok := blog.StringSlice("tags")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, tags)

	assert.Nil(t, cfg.PluginConfig("missing"))
	assert.Contains(t, cfg.PluginConfigs(), "blog")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var ioErr *domainerrors.IoError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "read", ioErr.Op)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{name: "unknown key", input: "plugin_directory: x\n"},
		{name: "bad level", input: "log_level: loud\n", field: "log_level"},
		{name: "zero cache", input: "cache_size: 0\n", field: "cache_size"},
		{name: "empty dir", input: "plugin_dir: \"\"\n", field: "plugin_dir"},
		{name: "bad parallelism", input: "max_parallel_loads: 1000\n", field: "max_parallel_loads"},
		{name: "not yaml", input: "plugins: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			var cfgErr *domainerrors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
