package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dentdelion-dev/dentdelion/host"
	"github.com/dentdelion-dev/dentdelion/host/registry"
)

const shutdownTimeout = 30 * time.Second

func (a *app) serve(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	metricsAddr := fs.String("metrics-addr", a.cfg.MetricsAddr, "address of the /metrics endpoint, empty to disable")
	watch := fs.Bool("watch", a.cfg.Watch, "reload plugins when the plugin directory changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := host.NewMetrics(promRegistry)
	if err != nil {
		return err
	}

	caps := registry.New()
	rt, loader, err := a.newLoader(ctx, host.WithMetrics(metrics), host.WithCapabilityRegistry(caps))
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	manager := host.NewManager(loader)
	if _, err := manager.LoadAll(ctx, "", a.cfg.PluginConfigs()); err != nil {
		a.logger.Warn("some plugins failed to load", zap.Error(err))
	}
	if err := manager.EnableAll(ctx); err != nil {
		a.logger.Warn("some plugins failed to enable", zap.Error(err))
	}
	a.logger.Info("serving plugins",
		zap.Strings("plugins", manager.Names()),
		zap.Strings("providers", caps.Plugins()))

	g, gctx := errgroup.WithContext(ctx)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{Registry: promRegistry}))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			a.logger.Info("metrics listening", zap.String("addr", *metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	if *watch && !a.pluginDirExists() {
		a.logger.Warn("plugin directory does not exist, not watching", zap.String("dir", a.cfg.PluginDir))
		*watch = false
	}
	if *watch {
		g.Go(func() error {
			return manager.Watch(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()

	a.logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, manager.DisableAll(sctx), manager.UnloadAll(sctx))
}

func (a *app) pluginDirExists() bool {
	info, err := os.Stat(a.cfg.PluginDir)
	return err == nil && info.IsDir()
}
