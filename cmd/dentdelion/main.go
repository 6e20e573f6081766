// Command dentdelion discovers, inspects and hosts WASM plugins.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dentdelion-dev/dentdelion/config"
	"github.com/dentdelion-dev/dentdelion/internal/logging"
)

const usage = `usage: dentdelion [flags] <command> [args]

commands:
  discover          list plugins found in the plugin directory
  inspect <name>    load a plugin and describe it
  run <name>        drive a plugin through its whole lifecycle
  schema            print the manifest JSON Schema
  serve             host every plugin until interrupted

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dentdelion", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "host configuration file (YAML)")
	dir := fs.String("dir", "", "plugin directory, overrides plugin_dir")
	logLevel := fs.String("log-level", "", "debug, info, warn or error, overrides log_level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dir != "" {
		cfg.PluginDir = *dir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a := &app{cfg: cfg, logger: logger, stdout: stdout}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "discover":
		return a.discover(ctx)
	case "inspect":
		return a.inspect(ctx, rest)
	case "run":
		return a.run(ctx, rest, stderr)
	case "schema":
		return a.schema()
	case "serve":
		return a.serve(ctx, rest, stderr)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
