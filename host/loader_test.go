package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/infrastructure/filesystem"
	"github.com/dentdelion-dev/dentdelion/internal/wasmtest"
)

func TestDiscover_MissingOrEmptyDirectory(t *testing.T) {
	l := NewLoader(newTestRuntime(t))
	ctx := context.Background()

	plugins, err := l.Discover(ctx, filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, plugins)

	plugins, err = l.Discover(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

func TestDiscover_DefaultRoot(t *testing.T) {
	l := NewLoader(newTestRuntime(t))
	assert.Equal(t, DefaultPluginDir, l.Root())

	root := t.TempDir()
	writePlugin(t, root, "blog", wasmtest.Guest{}, "")
	l = NewLoader(newTestRuntime(t), WithRoot(root))
	plugins, err := l.Discover(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "blog", plugins[0].Name)
}

func TestDiscover_Layouts(t *testing.T) {
	root := t.TempDir()
	bin := wasmtest.Guest{}.Build()

	writeFile(t, filepath.Join(root, "alpha.wasm"), bin)
	writeFile(t, filepath.Join(root, "alpha.toml"), []byte("[wasm]\nmemory_limit_mb = 64\ncapabilities = [\"commands\"]"))
	writeFile(t, filepath.Join(root, "beta", "plugin.wasm"), bin)
	writeFile(t, filepath.Join(root, "beta", "plugin.toml"), []byte("[plugin]\ntimeout_secs = 5"))
	writeFile(t, filepath.Join(root, "gamma", "gamma.wasm"), bin)
	writeFile(t, filepath.Join(root, "gamma", "gamma.toml"), []byte(`tier = "premium"`))
	writeFile(t, filepath.Join(root, "delta", "README.md"), []byte("no binary here"))
	writeFile(t, filepath.Join(root, "notes.txt"), []byte("ignored"))

	plugins, err := NewLoader(newTestRuntime(t)).Discover(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, plugins, 3)

	alpha, beta, gamma := plugins[0], plugins[1], plugins[2]
	assert.Equal(t, "alpha", alpha.Name)
	assert.Equal(t, filepath.Join(root, "alpha.toml"), alpha.ManifestPath)
	assert.Equal(t, uint32(64), alpha.Config.MemoryLimitMB)
	assert.Equal(t, []string{"commands"}, alpha.Config.Capabilities)

	assert.Equal(t, "beta", beta.Name)
	assert.Equal(t, filepath.Join(root, "beta", "plugin.wasm"), beta.WasmPath)
	assert.Equal(t, uint32(5), beta.Config.TimeoutSecs)

	assert.Equal(t, "gamma", gamma.Name)
	assert.Equal(t, filepath.Join(root, "gamma", "gamma.wasm"), gamma.WasmPath)
	assert.Equal(t, entities.TierPremium, gamma.Config.Tier)
	assert.Equal(t, uint32(512), gamma.Config.MemoryLimitMB)
}

func TestDiscover_SkipsInvalidBinaries(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "good", wasmtest.Guest{}, "")
	writeFile(t, filepath.Join(root, "bad.wasm"), []byte("MZ\x90\x00 definitely not wasm"))
	writeFile(t, filepath.Join(root, "short.wasm"), []byte{0x00, 0x61})
	writeFile(t, filepath.Join(root, "nested", "plugin.wasm"), []byte("nope"))

	logger, logs := observedLogger()
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	l := NewLoader(newTestRuntime(t), WithLogger(logger), WithMetrics(metrics))

	plugins, err := l.Discover(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "good", plugins[0].Name)

	assert.Equal(t, 3, logs.FilterMessage("skipping file without wasm magic header").Len())
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.DiscoverySkippedTotal.WithLabelValues(skipBadMagic)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DiscoveredPlugins))
}

func TestDiscover_BadManifestDegradesToDefaults(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{name: "malformed", manifest: "[wasm\nmemory_limit_mb = "},
		{name: "negative", manifest: "memory_limit_mb = -1"},
		{name: "overflow", manifest: "timeout_secs = 4294967296"},
		{name: "out of range", manifest: "memory_limit_mb = 5000"},
		{name: "wrong type", manifest: `capabilities = "middleware"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writePlugin(t, root, "blog", wasmtest.Guest{}, tt.manifest)
			logger, logs := observedLogger()

			plugins, err := NewLoader(newTestRuntime(t), WithLogger(logger)).Discover(context.Background(), root)
			require.NoError(t, err)
			require.Len(t, plugins, 1)
			assert.False(t, plugins[0].HasManifest())
			assert.Nil(t, plugins[0].Config)
			assert.Equal(t, entities.DefaultWasmPluginConfig(), plugins[0].EffectiveConfig())
			assert.Equal(t, 1, logs.FilterMessage("ignoring manifest, using defaults").Len())
		})
	}
}

func TestDiscover_DuplicateNames(t *testing.T) {
	root := t.TempDir()
	bin := wasmtest.Guest{}.Build()
	writeFile(t, filepath.Join(root, "blog.wasm"), bin)
	writeFile(t, filepath.Join(root, "blog", "plugin.wasm"), bin)

	logger, logs := observedLogger()
	plugins, err := NewLoader(newTestRuntime(t), WithLogger(logger)).Discover(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, filepath.Join(root, "blog", "plugin.wasm"), plugins[0].WasmPath)
	assert.Equal(t, 1, logs.FilterMessage("skipping duplicate plugin name").Len())
}

func TestDiscover_RootIsFile(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "plugins"), []byte("x"))
	_, err := NewLoader(newTestRuntime(t)).Discover(context.Background(), path)
	var ioErr *domainerrors.IoError
	assert.ErrorAs(t, err, &ioErr)
}

func TestDiscover_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "blog", wasmtest.Guest{}, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(newTestRuntime(t)).Discover(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_InMemoryFileSystem(t *testing.T) {
	bin := wasmtest.Guest{}.Build()
	fsys := filesystem.NewFromFS(fstest.MapFS{
		"plugins/blog.wasm":       {Data: bin},
		"plugins/blog.toml":       {Data: []byte(`capabilities = ["auth"]`)},
		"plugins/seo/plugin.wasm": {Data: bin},
	})
	l := NewLoader(newTestRuntime(t), WithFileSystem(fsys), WithRoot("plugins"))

	plugins, err := l.Discover(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, []string{"auth"}, plugins[0].Config.Capabilities)

	inst, err := l.Load(context.Background(), plugins[1], nil)
	require.NoError(t, err)
	assert.Equal(t, "seo", inst.Name())
}

func TestLoad_SeedsHostState(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "blog", wasmtest.Guest{}, `capabilities = ["middleware"]`)
	l := NewLoader(newTestRuntime(t))

	plugins, err := l.Discover(context.Background(), root)
	require.NoError(t, err)
	inst, err := l.Load(context.Background(), plugins[0], map[string]any{"theme": "dark"})
	require.NoError(t, err)

	assert.Equal(t, entities.StateRegistered, inst.State())
	assert.Equal(t, map[string]any{"theme": "dark"}, inst.HostState().GetConfigAll())
	assert.Equal(t, []string{"middleware"}, inst.WasmConfig().Capabilities)
}

func TestLoad_WarnsOnIncompatibleCapabilities(t *testing.T) {
	logger, logs := observedLogger()
	l := NewLoader(newTestRuntime(t), WithLogger(logger))

	loadGuest(t, l, "blog", wasmtest.Guest{}, `capabilities = ["network_access", "middleware", "hmr"]`, nil)
	assert.Equal(t, 2, logs.FilterMessage("capability is not available to wasm plugins").Len())
}

func TestLoad_InvalidConfig(t *testing.T) {
	l := NewLoader(newTestRuntime(t))
	path := writePlugin(t, t.TempDir(), "blog", wasmtest.Guest{}, "")

	_, err := l.LoadFromPath(context.Background(), path, map[string]any{"bad": make(chan int)})
	var ce *domainerrors.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestLoadFromPath(t *testing.T) {
	root := t.TempDir()
	l := NewLoader(newTestRuntime(t))
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		path := writePlugin(t, root, "alpha", wasmtest.Guest{}, "memory_limit_mb = 32")
		inst, err := l.LoadFromPath(ctx, path, nil)
		require.NoError(t, err)
		assert.Equal(t, "alpha", inst.Name())
		assert.Equal(t, uint32(32), inst.WasmConfig().MemoryLimitMB)
	})

	t.Run("directory", func(t *testing.T) {
		writeFile(t, filepath.Join(root, "beta", "beta.wasm"), wasmtest.Guest{}.Build())
		writeFile(t, filepath.Join(root, "beta", "plugin.toml"), []byte("timeout_secs = 9"))
		inst, err := l.LoadFromPath(ctx, filepath.Join(root, "beta"), nil)
		require.NoError(t, err)
		assert.Equal(t, "beta", inst.Name())
		assert.Equal(t, uint32(9), inst.WasmConfig().TimeoutSecs)
	})

	t.Run("plugin.wasm names its directory", func(t *testing.T) {
		path := writeFile(t, filepath.Join(root, "gamma", "plugin.wasm"), wasmtest.Guest{}.Build())
		inst, err := l.LoadFromPath(ctx, path, nil)
		require.NoError(t, err)
		assert.Equal(t, "gamma", inst.Name())
	})

	t.Run("invalid magic", func(t *testing.T) {
		path := writeFile(t, filepath.Join(root, "bad.wasm"), []byte("garbage"))
		_, err := l.LoadFromPath(ctx, path, nil)
		var ib *domainerrors.InvalidWasmBinaryError
		require.ErrorAs(t, err, &ib)
		assert.Equal(t, path, ib.Path)
		assert.False(t, domainerrors.IsRetryable(err))
	})

	t.Run("manifest errors propagate", func(t *testing.T) {
		path := writePlugin(t, root, "delta", wasmtest.Guest{}, "[wasm\n")
		_, err := l.LoadFromPath(ctx, path, nil)
		var pe *domainerrors.ManifestParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, filepath.Join(root, "delta.toml"), pe.Path)
	})

	t.Run("range errors propagate", func(t *testing.T) {
		path := writePlugin(t, root, "epsilon", wasmtest.Guest{}, "memory_limit_mb = 0")
		_, err := l.LoadFromPath(ctx, path, nil)
		var ce *domainerrors.ConfigError
		assert.ErrorAs(t, err, &ce)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := l.LoadFromPath(ctx, filepath.Join(root, "nope.wasm"), nil)
		var nf *domainerrors.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("abi violation names plugin", func(t *testing.T) {
		path := writePlugin(t, root, "zeta", wasmtest.Guest{Omit: "on_unload"}, "")
		_, err := l.LoadFromPath(ctx, path, nil)
		var we *domainerrors.WasmExecutionError
		require.ErrorAs(t, err, &we)
		assert.Equal(t, "zeta", we.Plugin)
		assert.Equal(t, PhaseCompile, we.Phase)
	})
}

func TestLoadByName(t *testing.T) {
	root := t.TempDir()
	bin := wasmtest.Guest{}.Build()
	writeFile(t, filepath.Join(root, "flat.wasm"), bin)
	writeFile(t, filepath.Join(root, "dir", "plugin.wasm"), bin)
	writeFile(t, filepath.Join(root, "named", "named.wasm"), bin)
	l := NewLoader(newTestRuntime(t), WithRoot(root))
	ctx := context.Background()

	for _, name := range []string{"flat", "dir", "named"} {
		inst, err := l.LoadByName(ctx, name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, name, inst.Name())
	}

	for _, name := range []string{"missing", "", "..", "dir/plugin"} {
		_, err := l.LoadByName(ctx, name, nil)
		var nf *domainerrors.NotFoundError
		require.ErrorAs(t, err, &nf, name)
		assert.Equal(t, name, nf.Name)
	}
}

func TestLoadByName_DirectoryManifest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "gamma", "gamma.wasm"), wasmtest.Guest{}.Build())
	writeFile(t, filepath.Join(root, "gamma", "plugin.toml"), []byte("[wasm]\nmemory_limit_mb = 64\ncapabilities = [\"commands\"]"))
	l := NewLoader(newTestRuntime(t), WithRoot(root))
	ctx := context.Background()

	plugins, err := l.Discover(ctx, "")
	require.NoError(t, err)
	require.Len(t, plugins, 1)

	byName, err := l.LoadByName(ctx, "gamma", nil)
	require.NoError(t, err)
	byPath, err := l.LoadFromPath(ctx, filepath.Join(root, "gamma", "gamma.wasm"), nil)
	require.NoError(t, err)

	for _, inst := range []*Instance{byName, byPath} {
		assert.Equal(t, "gamma", inst.Name())
		assert.Equal(t, uint32(64), inst.WasmConfig().MemoryLimitMB)
		assert.True(t, inst.HasCapability(entities.CoreCapability(entities.CapabilityCommands)))
		assert.True(t, sameConfig(inst.WasmConfig(), plugins[0].EffectiveConfig()))
	}
}

func TestLoadByName_EmptyRoot(t *testing.T) {
	l := NewLoader(newTestRuntime(t), WithRoot(filepath.Join(t.TempDir(), "absent")))
	_, err := l.LoadByName(context.Background(), "missing", nil)
	var nf *domainerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.Name)
	assert.True(t, nf.ToErrorDetail().IsNotFound)
}

func TestParseManifest(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(newTestRuntime(t))

	empty := writeFile(t, filepath.Join(dir, "empty.toml"), nil)
	cfg, err := l.ParseManifest(empty)
	require.NoError(t, err)
	assert.Equal(t, uint32(128), cfg.MemoryLimitMB)
	assert.Equal(t, uint32(30), cfg.TimeoutSecs)
	assert.Equal(t, []string{}, cfg.Capabilities)

	precedence := writeFile(t, filepath.Join(dir, "p.toml"), []byte(
		"memory_limit_mb = 1\n[plugin]\nmemory_limit_mb = 2\n[wasm]\nmemory_limit_mb = 3\n"))
	cfg, err = l.ParseManifest(precedence)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), cfg.MemoryLimitMB)

	_, err = l.ParseManifest(filepath.Join(dir, "absent.toml"))
	var ioErr *domainerrors.IoError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_Digest(t *testing.T) {
	rt := newTestRuntime(t)
	l := NewLoader(rt)
	inst := loadGuest(t, l, "blog", wasmtest.Guest{}, "", nil)

	path := writePlugin(t, t.TempDir(), "copy", wasmtest.Guest{}, "")
	digest, err := l.Digest(path)
	require.NoError(t, err)
	assert.Equal(t, inst.Component().Digest(), digest)
}
