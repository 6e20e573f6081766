package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dentdelion-dev/dentdelion/application/schema"
	"github.com/dentdelion-dev/dentdelion/config"
	"github.com/dentdelion-dev/dentdelion/domain/entities"
	"github.com/dentdelion-dev/dentdelion/host"
	"github.com/dentdelion-dev/dentdelion/host/registry"
)

// newLoader builds a runtime and loader from the host configuration. The
// caller closes the runtime.
func (a *app) newLoader(ctx context.Context, opts ...host.Option) (*host.Runtime, *host.Loader, error) {
	opts = append([]host.Option{
		host.WithLogger(a.logger),
		host.WithCacheSize(a.cfg.CacheSize),
		host.WithRoot(a.cfg.PluginDir),
		host.WithMaxParallelLoads(a.cfg.MaxParallelLoads),
		host.WithWatchDebounce(a.cfg.WatchDebounce),
	}, opts...)
	rt, err := host.NewRuntime(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	return rt, host.NewLoader(rt, opts...), nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) discover(ctx context.Context) error {
	rt, loader, err := a.newLoader(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	plugins, err := loader.Discover(ctx, "")
	if err != nil {
		return err
	}
	return a.printJSON(plugins)
}

type capabilityInfo struct {
	Name          string `json:"name"`
	Custom        bool   `json:"custom"`
	WasmSupported bool   `json:"wasm_supported"`
}

type inspection struct {
	Name             string                    `json:"name"`
	ID               string                    `json:"id"`
	State            entities.PluginState      `json:"state"`
	Digest           string                    `json:"digest"`
	Config           entities.WasmPluginConfig `json:"config"`
	Capabilities     []capabilityInfo          `json:"capabilities"`
	Exports          []string                  `json:"exports"`
	Imports          []string                  `json:"imports"`
	HostStateKeys    []string                  `json:"host_state_keys"`
	Size             int                       `json:"size"`
	MemoryLimitPages uint32                    `json:"memory_limit_pages"`
}

func (a *app) inspect(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: dentdelion inspect <name>")
	}
	rt, loader, err := a.newLoader(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	name := args[0]
	inst, err := loader.LoadByName(ctx, name, a.cfg.PluginConfig(name))
	if err != nil {
		return err
	}

	comp := inst.Component()
	out := inspection{
		Name:             inst.Name(),
		ID:               inst.ID().String(),
		State:            inst.State(),
		Digest:           comp.Digest(),
		Config:           inst.WasmConfig(),
		Exports:          comp.Exports(),
		Imports:          comp.Imports(),
		HostStateKeys:    inst.HostState().Keys(),
		Size:             comp.Size(),
		MemoryLimitPages: comp.MemoryLimitPages(),
	}
	for _, c := range inst.Capabilities() {
		out.Capabilities = append(out.Capabilities, capabilityInfo{
			Name:          c.String(),
			Custom:        c.IsCustom(),
			WasmSupported: c.IsWasmCompatible(),
		})
	}
	return a.printJSON(out)
}

// assignments collects repeated -set flags.
type assignments []string

func (s *assignments) String() string {
	return strings.Join(*s, ",")
}

func (s *assignments) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (a *app) run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var sets assignments
	fs.Var(&sets, "set", "host state entry key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: dentdelion run <name> [-set key=value ...]")
	}
	name := fs.Arg(0)
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	values := config.Values{}
	for k, v := range a.cfg.PluginConfig(name) {
		values[k] = v
	}
	if err := values.Set(sets...); err != nil {
		return err
	}

	rt, loader, err := a.newLoader(ctx, host.WithCapabilityRegistry(registry.New()))
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	inst, err := loader.LoadByName(ctx, name, values)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "load_by_name\t%s\n", inst.State())

	steps := []struct {
		name string
		call func(context.Context) error
	}{
		{"on_load", inst.OnLoad},
		{"on_enable", inst.OnEnable},
		{"on_disable", inst.OnDisable},
		{"on_unload", inst.OnUnload},
	}
	for _, step := range steps {
		if err := step.call(ctx); err != nil {
			fmt.Fprintf(a.stdout, "%s\tfailed\n", step.name)
			if step.name != "on_unload" && inst.State() != entities.StateRegistered {
				_ = inst.OnUnload(ctx)
			}
			return err
		}
		fmt.Fprintf(a.stdout, "%s\t%s\n", step.name, inst.State())
	}
	return nil
}

func (a *app) schema() error {
	data, err := schema.ManifestSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}
