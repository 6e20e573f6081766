package host_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	"github.com/dentdelion-dev/dentdelion/host"
	"github.com/dentdelion-dev/dentdelion/host/registry"
	"github.com/dentdelion-dev/dentdelion/hostfuncs"
	"github.com/dentdelion-dev/dentdelion/internal/wasmtest"
)

// ClockResponse is the reply of the custom clock_now host function.
type ClockResponse struct {
	UnixMillis int64 `cbor:"unix_millis"`
}

func Example() {
	dir, err := os.MkdirTemp("", "dentdelion-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	_ = os.WriteFile(filepath.Join(dir, "blog.wasm"), wasmtest.Guest{}.Build(), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "blog.toml"), []byte("[wasm]\ncapabilities = [\"ssg\"]\n"), 0o644)

	ctx := context.Background()

	// Host functions: the built-in bundles plus one of our own.
	services := hostfuncs.NewServiceDirectory()
	functions, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
		hostfuncs.WithBundle(hostfuncs.DefaultBundles(services)),
		hostfuncs.WithHandler("clock_now", func(context.Context, struct{}) ClockResponse {
			return ClockResponse{UnixMillis: time.Now().UnixMilli()}
		}),
	)
	if err != nil {
		log.Fatal(err)
	}

	rt, err := host.NewRuntime(ctx, host.WithHostFunctions(functions), host.WithServiceDirectory(services))
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close(ctx)

	caps := registry.New()
	manager := host.NewManager(host.NewLoader(rt, host.WithRoot(dir), host.WithCapabilityRegistry(caps)))
	if _, err := manager.LoadAll(ctx, "", map[string]map[string]any{"blog": {"title": "Hello"}}); err != nil {
		log.Fatal(err)
	}
	if err := manager.EnableAll(ctx); err != nil {
		log.Fatal(err)
	}

	blog, _ := manager.Get("blog")
	fmt.Println(blog.Name(), blog.State())
	fmt.Println(caps.Providers(entities.CoreCapability(entities.CapabilityStaticSiteGeneration)))

	if err := manager.UnloadAll(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Println(blog.State())
	// Output:
	// blog enabled
	// [blog]
	// registered
}
