package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dentdelion-dev/dentdelion/internal/wasmtest"
)

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := NewRuntime(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// writePlugin writes <dir>/<name>.wasm and, if manifest is not empty,
// <dir>/<name>.toml.
func writePlugin(t *testing.T, dir, name string, g wasmtest.Guest, manifest string) string {
	t.Helper()
	path := writeFile(t, filepath.Join(dir, name+".wasm"), g.Build())
	if manifest != "" {
		writeFile(t, filepath.Join(dir, name+".toml"), []byte(manifest))
	}
	return path
}

// loadGuest writes a guest to a temporary directory and loads it.
func loadGuest(t *testing.T, l *Loader, name string, g wasmtest.Guest, manifest string, initial map[string]any) *Instance {
	t.Helper()
	path := writePlugin(t, t.TempDir(), name, g, manifest)
	inst, err := l.LoadFromPath(context.Background(), path, initial)
	require.NoError(t, err)
	return inst
}
