package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ironrift/server/internal/config"
	"github.com/ironrift/server/internal/coordinator"
	"github.com/ironrift/server/internal/metrics"
)

const ConfigPath = "config/coordinator.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load config FIRST to determine log level
	cfgPath := ConfigPath
	if p := os.Getenv("IRONRIFT_COORDINATOR_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadCoordinator(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("matchmaking coordinator starting",
		"bind", cfg.BindAddress,
		"port", cfg.Port,
		"auth", fmt.Sprintf("%s:%d", cfg.AuthHost, cfg.AuthPort),
		"players_per_match", cfg.PlayersPerMatch,
		"log_level", cfg.LogLevel)

	srv := coordinator.NewServer(cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting coordinator", "port", cfg.Port)
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("coordinator: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if cfg.MetricsAddr != "" {
			slog.Info("starting metrics listener", "addr", cfg.MetricsAddr)
		}
		if err := metrics.Serve(gctx, cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
