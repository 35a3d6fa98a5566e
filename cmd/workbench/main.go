package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	workbench "github.com/rflorenc/mailbox-move-workbench"
	"github.com/rflorenc/mailbox-move-workbench/internal/api"
	"github.com/rflorenc/mailbox-move-workbench/internal/config"
	"github.com/rflorenc/mailbox-move-workbench/internal/migration"
	"github.com/rflorenc/mailbox-move-workbench/internal/mover"
	"github.com/rflorenc/mailbox-move-workbench/internal/progress"
	"github.com/rflorenc/mailbox-move-workbench/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// shutdownGrace bounds how long in-flight sessions may keep the process
// alive after a signal.
const shutdownGrace = 30 * time.Second

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			fmt.Printf("workbench %s (commit: %s, built: %s)\n", version, commit, date)
			os.Exit(0)
		}
	}

	cfg := config.Parse()
	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("workbench: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sessions, err := store.New(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer sessions.Close()

	mv, err := mover.New(cfg.Mover)
	if err != nil {
		return fmt.Errorf("creating mover: %w", err)
	}
	logger.Info("backends configured", "store", cfg.Store.Backend, "mover", cfg.Mover.Backend)

	// Verify connectivity early
	if p, ok := mv.(mover.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := p.Ping(pingCtx); err != nil {
			logger.Warn("mover ping failed", "backend", cfg.Mover.Backend, "error", err)
		} else {
			logger.Info("mover reachable", "backend", cfg.Mover.Backend)
		}
		cancel()
	}

	orch := migration.NewOrchestrator(sessions, mv, migration.Options{
		BatchDelay:     cfg.Migration.BatchDelay,
		LargeMailboxMB: cfg.Migration.LargeMailboxMB,
		Logger:         logger,
	})
	server := &api.Server{
		Sessions:     sessions,
		Orchestrator: orch,
		Notifier:     progress.NewNotifier(sessions, cfg.Migration.ProgressInterval),
		Logger:       logger,
		StoreBackend: cfg.Store.Backend,
		MoverBackend: cfg.Mover.Backend,
	}

	var handler http.Handler
	if cfg.Dev {
		// In dev mode, proxy the frontend to a dev server
		h, err := devRouter(server, cfg.DevServer)
		if err != nil {
			return err
		}
		handler = h
	} else {
		webFS, err := fs.Sub(workbench.WebFS, "web")
		if err != nil {
			return fmt.Errorf("embedded web FS: %w", err)
		}
		handler = api.NewRouter(server, webFS)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Mailbox Move Workbench starting", "version", version, "listen", cfg.Listen)
	if cfg.Dev {
		logger.Info("dev mode: proxying frontend", "target", cfg.DevServer)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("exiting with migrations still running")
	}
	return nil
}

// devRouter creates a handler that serves API routes directly and proxies
// everything else to the frontend dev server.
func devRouter(server *api.Server, target string) (http.Handler, error) {
	// Create API router with a dummy filesystem (won't be used for static files)
	apiRouter := api.NewRouter(server, emptyFS{})

	devURL, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing dev server URL: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(devURL)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Route /api/* and /ws/* to our Go server
		if strings.HasPrefix(r.URL.Path, "/api") || strings.HasPrefix(r.URL.Path, "/ws") {
			apiRouter.ServeHTTP(w, r)
			return
		}
		// Everything else goes to the dev server
		proxy.ServeHTTP(w, r)
	}), nil
}

// emptyFS is a minimal fs.FS that always returns not-found.
type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, os.ErrNotExist
}
