// Command terminald serves terminal sync, attempt history and GM macros.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/MJE43/hack-terminal/internal/api"
	"github.com/MJE43/hack-terminal/internal/auth"
	"github.com/MJE43/hack-terminal/internal/config"
	"github.com/MJE43/hack-terminal/internal/games"
	"github.com/MJE43/hack-terminal/internal/logging"
	"github.com/MJE43/hack-terminal/internal/macro"
	"github.com/MJE43/hack-terminal/internal/store"
	"github.com/MJE43/hack-terminal/internal/syncbus"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "terminald: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := start(ctx, cfg, logger)
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown_requested", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return d.Shutdown(shutdownCtx)
}

// daemon owns everything terminald starts.
type daemon struct {
	db         *store.SQLiteDB
	hub        *syncbus.Hub
	httpServer *http.Server
	logger     *slog.Logger
	addr       string
	done       chan error
}

// start opens the store and begins listening. It returns once the socket is
// bound.
func start(ctx context.Context, cfg config.Config, logger *slog.Logger) (*daemon, error) {
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}

	token, created, err := auth.NewTokenStore(cfg.KeyringService, cfg.TokenFallback).Ensure()
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("gm token: %w", err), db.Close())
	}
	if created {
		logger.Info("gm_token_created", "service", cfg.KeyringService)
	}

	runner := macro.NewRunner(macro.WithLogger(logger))
	if cfg.MacroDir != "" {
		n, err := runner.LoadDir(cfg.MacroDir)
		if err != nil {
			return nil, multierr.Append(err, db.Close())
		}
		logger.Info("macros_loaded", "dir", cfg.MacroDir, "count", n, "names", runner.Names())
	}

	hub := syncbus.NewHub(
		syncbus.WithSnapshotSink(store.NewArchive(db, logger)),
		syncbus.WithMacroFunc(runner.ExecuteFor),
		syncbus.WithLogger(logger),
	)
	// Table clients are served from other origins.
	hub.SetCheckOrigin(func(*http.Request) bool { return true })

	srv := api.NewServer(api.Options{
		DB:       db,
		Registry: games.NewRegistry(games.WithLogger(logger)),
		Hub:      hub,
		Macros:   runner,
		GMToken:  token,
		Logger:   logger,
	})

	d := &daemon{
		db:     db,
		hub:    hub,
		logger: logger,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		done: make(chan error, 1),
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err), db.Close())
	}
	d.addr = ln.Addr().String()
	go func() {
		err := d.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		d.done <- err
	}()

	logger.Info("server_started",
		"addr", d.addr,
		"db", cfg.DBPath,
		"version", api.EngineVersion,
		"difficulty", cfg.Difficulty.String(),
	)
	return d, nil
}

// Shutdown stops accepting requests, disconnects websocket peers and closes
// the store.
func (d *daemon) Shutdown(ctx context.Context) error {
	err := d.httpServer.Shutdown(ctx)
	err = multierr.Append(err, d.hub.Close())
	err = multierr.Append(err, <-d.done)
	err = multierr.Append(err, d.db.Close())
	if err != nil {
		d.logger.Error("shutdown_failed", "err", err)
		return err
	}
	d.logger.Info("shutdown_complete")
	return nil
}
