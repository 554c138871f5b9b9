// Command sandboxd is the Controller daemon: it owns the SandboxManager,
// serves the public HTTP API, and reaps orphaned Worker containers once
// on startup.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arndt-labs/codesandbox/internal/api"
	"github.com/arndt-labs/codesandbox/internal/config"
	"github.com/arndt-labs/codesandbox/internal/containerdriver"
	"github.com/arndt-labs/codesandbox/internal/controller"
	"github.com/arndt-labs/codesandbox/internal/metrics"
	"github.com/arndt-labs/codesandbox/internal/registry"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("sandboxd", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cfgPath := fs.String("config", "", "path to sandbox.yaml")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 1
	}

	path := *cfgPath
	if path == "" {
		for _, p := range []string{"sandbox.yaml", "/etc/codesandbox/sandbox.yaml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	logger.Debug("config loaded", "config_path", path, "listen", cfg.Listen, "worker_image", cfg.WorkerImage)

	driver, err := containerdriver.NewDockerDriver(cfg.NetworkName)
	if err != nil {
		logger.Error("container driver", "error", err)
		return 1
	}

	reg := registry.New()
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	mgr := controller.New(cfg, driver, reg, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Initialize(ctx); err != nil {
		logger.Error("initialize", "error", err)
		return 1
	}
	logger.Info("controller initialized", "network", cfg.NetworkName)

	go mgr.RunMetricsLoop(ctx, 15*time.Second)

	srv := api.NewServer(cfg, mgr, promReg, logger)
	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
		mgr.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Listen)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("serve", "error", err)
		return 1
	}
	return 0
}
