// Command villasd is the VILLASnode-Go gateway daemon: it loads a
// deployment file, builds and runs its nodes and paths, and shuts down
// gracefully on SIGINT/SIGTERM, grounded on the teacher's
// cmd/oriond/main.go.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/villasnode/villasnode-go/internal/config"
	"github.com/villasnode/villasnode-go/internal/daemon"
)

const (
	defaultConfigPath      = "config/villas.yaml"
	defaultHealthAddr      = ":8080"
	defaultShutdownTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to deployment configuration file")
	healthAddr := flag.String("health-addr", defaultHealthAddr, "Address for the /health and /readiness endpoints")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("starting villasd", "config", *configPath, "debug", *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	d := daemon.New(cfg)
	if err := d.Build(); err != nil {
		slog.Error("failed to build deployment", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := d.StartHealthServer(*healthAddr); err != nil {
		slog.Error("failed to start health check server", "error", err)
		os.Exit(1)
	}

	if err := d.Start(ctx); err != nil {
		slog.Error("failed to start deployment", "error", err)
		os.Exit(1)
	}

	sig := <-sigChan
	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	if err := d.Stop(); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("villasd stopped successfully")
}
