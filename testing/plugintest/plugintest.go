// Package plugintest runs plugin binaries through the host lifecycle inside
// Go tests.
package plugintest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
	"github.com/dentdelion-dev/dentdelion/host"
	"github.com/dentdelion-dev/dentdelion/host/registry"
)

// Harness owns a runtime, a loader rooted in a temporary directory and a
// capability registry. Everything is released when the test ends.
type Harness struct {
	Runtime  *host.Runtime
	Loader   *host.Loader
	Registry *registry.Registry

	t   testing.TB
	dir string
}

// New creates a Harness. opts are passed to both the runtime and the loader.
func New(t testing.TB, opts ...host.Option) *Harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	reg := registry.New()

	opts = append([]host.Option{host.WithRoot(dir), host.WithCapabilityRegistry(reg)}, opts...)
	rt, err := host.NewRuntime(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	return &Harness{
		Runtime:  rt,
		Loader:   host.NewLoader(rt, opts...),
		Registry: reg,
		t:        t,
		dir:      dir,
	}
}

// Dir is the plugin directory of the harness.
func (h *Harness) Dir() string {
	return h.dir
}

// Install writes <name>.wasm and, unless manifest is empty, <name>.toml
// into the plugin directory.
func (h *Harness) Install(name string, wasm []byte, manifest string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name+".wasm")
	require.NoError(h.t, os.WriteFile(path, wasm, 0o644))
	if manifest != "" {
		require.NoError(h.t, os.WriteFile(filepath.Join(h.dir, name+".toml"), []byte(manifest), 0o644))
	}
	return path
}

// Load installs and loads a plugin. The instance is unloaded when the test
// ends if it is still active.
func (h *Harness) Load(name string, wasm []byte, manifest string, config map[string]any) *host.Instance {
	h.t.Helper()
	h.Install(name, wasm, manifest)
	inst, err := h.Loader.LoadByName(context.Background(), name, config)
	require.NoError(h.t, err)
	h.t.Cleanup(func() {
		if inst.State() != entities.StateRegistered {
			_ = inst.OnUnload(context.Background())
		}
	})
	return inst
}

// RunLifecycle calls on_load, on_enable, on_disable and on_unload in order
// and stops at the first error.
func RunLifecycle(ctx context.Context, inst *host.Instance) error {
	for _, call := range []func(context.Context) error{inst.OnLoad, inst.OnEnable, inst.OnDisable, inst.OnUnload} {
		if err := call(ctx); err != nil {
			return err
		}
	}
	return nil
}

// TestCase is one configuration to run a plugin with.
type TestCase struct {
	Name     string
	Config   map[string]any
	Validate func(t *testing.T, inst *host.Instance, err error)
}

// RunLifecycleTests loads the plugin once per case, runs the whole lifecycle
// and hands the outcome to Validate.
func RunLifecycleTests(t *testing.T, name string, wasm []byte, manifest string, tests []TestCase) {
	t.Helper()
	for _, tc := range tests {
		t.Run(tc.Name, func(t *testing.T) {
			h := New(t)
			inst := h.Load(name, wasm, manifest, tc.Config)
			err := RunLifecycle(context.Background(), inst)
			if tc.Validate != nil {
				tc.Validate(t, inst, err)
			}
		})
	}
}

// AssertState asserts the lifecycle state of inst.
func AssertState(t testing.TB, inst *host.Instance, want entities.PluginState) bool {
	t.Helper()
	return assert.Equal(t, want, inst.State(), "state of %s", inst.Name())
}

// AssertGuestError asserts err is a guest-reported error with the given code
// and returns it.
func AssertGuestError(t testing.TB, err error, code string) *domainerrors.LifecycleError {
	t.Helper()
	var le *domainerrors.LifecycleError
	if !assert.ErrorAs(t, err, &le) {
		return nil
	}
	assert.Equal(t, code, le.Code)
	return le
}

// AssertFault asserts err is an engine-level failure (trap, timeout or
// resource limit) and returns it.
func AssertFault(t testing.TB, err error) *domainerrors.WasmExecutionError {
	t.Helper()
	var we *domainerrors.WasmExecutionError
	if !assert.ErrorAs(t, err, &we) {
		return nil
	}
	return we
}

// AssertProvides asserts the harness registry lists inst as a provider of c.
func (h *Harness) AssertProvides(inst *host.Instance, c entities.Capability) bool {
	h.t.Helper()
	return assert.Contains(h.t, h.Registry.Providers(c), inst.Name())
}
