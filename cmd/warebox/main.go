package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cnavas/warebox/internal/api"
	"github.com/cnavas/warebox/internal/app"
	"github.com/cnavas/warebox/internal/connectivity"
	"github.com/cnavas/warebox/internal/database"
	"github.com/cnavas/warebox/internal/operations"
	"github.com/cnavas/warebox/internal/queue"
	"github.com/cnavas/warebox/internal/remote"
	"github.com/cnavas/warebox/internal/store"
	"github.com/cnavas/warebox/internal/syncengine"
	"github.com/cnavas/warebox/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("warebox", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return errors.New("remote.base_url must be configured")
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	cache := store.New(database.Config{Path: cfg.Database.Path, DSN: cfg.Database.DSN}, store.DefaultSchema())
	if err := cache.Init(ctx); err != nil {
		return fmt.Errorf("initialise local store: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Warn("failed to close local store", zap.Error(err))
		}
	}()

	mutationQueue, err := queue.New(cache)
	if err != nil {
		return fmt.Errorf("initialise mutation queue: %w", err)
	}

	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.Remote.BaseURL,
		Token:   cfg.Remote.Token,
		Timeout: cfg.Remote.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialise remote client: %w", err)
	}

	monitor := connectivity.NewProbeMonitor(client.Ping, cfg.Sync.ProbeInterval)

	engine, err := syncengine.New(cache, mutationQueue, client, monitor, syncengine.Config{
		RetryThreshold: cfg.Sync.RetryThreshold,
		Scope: syncengine.Scope{
			Statuses:        cfg.Sync.Statuses,
			LookbackDays:    cfg.Sync.LookbackDays,
			FetchLimit:      cfg.Sync.FetchLimit,
			ReferenceTables: cfg.Sync.ReferenceTables,
		},
	})
	if err != nil {
		return fmt.Errorf("initialise sync engine: %w", err)
	}
	defer engine.Close()

	// The probe starts after the engine subscribed, so the very first
	// online edge already triggers a sync pass.
	monitor.Start()
	defer monitor.Stop()

	if cfg.Sync.AutoStart {
		if err := engine.StartAutoSync(cfg.Sync.IntervalMinutes); err != nil {
			return fmt.Errorf("start auto-sync: %w", err)
		}
	}

	facade, err := operations.New(cache, mutationQueue, client, monitor)
	if err != nil {
		return fmt.Errorf("initialise operation facade: %w", err)
	}

	router, err := api.NewRouter(cfg, facade, engine, mutationQueue)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
