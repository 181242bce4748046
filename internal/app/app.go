// Package app boots the server: logging router, storage, the hub and the
// HTTP surface, wired from environment configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	server "shotcounter/server"
	"shotcounter/server/internal/config"
	"shotcounter/server/internal/directory"
	servernet "shotcounter/server/internal/net"
	"shotcounter/server/internal/storage"
	"shotcounter/server/internal/telemetry"
	"shotcounter/server/logging"
	loggingSinks "shotcounter/server/logging/sinks"
)

// Options carries overrides the binary may inject before Run.
type Options struct {
	Config *config.Config
	Logger telemetry.Logger
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = &loaded
	}

	telemetryLogger := opts.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}
	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	logCfg := cfg.LoggingConfig()
	namedSinks, closeSinks, err := buildSinks(logCfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	router, err := logging.NewRouter(logging.ClockFunc(time.Now), logCfg, namedSinks)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			telemetryLogger.Printf("failed to close store: %v", cerr)
		}
	}()

	roster := directory.NewMemory()
	if cfg.SeedRoster {
		if err := directory.SeedRoster(ctx, roster); err != nil {
			return fmt.Errorf("seed roster: %w", err)
		}
	}

	metrics := &logging.Metrics{}
	hub := server.NewHub(server.HubConfig{
		BroadcastBuffer: cfg.BroadcastBuffer,
		JournalCapacity: cfg.JournalCapacity,
		JournalMaxAge:   cfg.JournalMaxAge,
	}, server.HubDeps{
		Store:     store,
		Directory: roster,
		Publisher: router,
		Metrics:   telemetry.WrapMetrics(metrics),
		Logger:    telemetryLogger,
	})

	handler := servernet.NewRouter(hub, servernet.HTTPHandlerConfig{
		ClientDir:         cfg.ClientDir,
		Logger:            fallbackLogger,
		Metrics:           metrics.Snapshot,
		IntentMinInterval: cfg.IntentMinInterval,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		telemetryLogger.Printf("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case "memory", "":
		return storage.NewMemory(), nil
	default:
		store, err := storage.OpenSQL(ctx, cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
		}
		return store, nil
	}
}

func buildSinks(cfg logging.Config) ([]logging.NamedSink, func(), error) {
	var named []logging.NamedSink
	var closers []io.Closer

	closeAll := func() {
		for _, closer := range closers {
			closer.Close()
		}
	}

	for _, name := range cfg.EnabledSinks {
		switch name {
		case "console":
			named = append(named, logging.NamedSink{
				Name: name,
				Sink: loggingSinks.NewConsoleSink(os.Stdout, cfg.Console),
			})
		case "json":
			writer := io.Writer(os.Stdout)
			if cfg.JSON.FilePath != "" {
				file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					closeAll()
					return nil, nil, fmt.Errorf("open log file: %w", err)
				}
				closers = append(closers, file)
				writer = file
			}
			named = append(named, logging.NamedSink{
				Name: name,
				Sink: loggingSinks.NewJSON(writer, cfg.JSON.FlushInterval),
			})
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown log sink %q", name)
		}
	}
	return named, closeAll, nil
}
