// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/unirepo/internal/api"
	"github.com/starford/unirepo/internal/apperr"
	"github.com/starford/unirepo/internal/catalog"
	"github.com/starford/unirepo/internal/catalogservice"
	"github.com/starford/unirepo/internal/index"
	"github.com/starford/unirepo/internal/mcpserver"
	"github.com/starford/unirepo/internal/report"
	"github.com/starford/unirepo/internal/sse"
	"github.com/starford/unirepo/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		version: "dev",
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) logger() *slog.Logger {
	logger := a.config.App.NewLogger(a.stderr)
	slog.SetDefault(logger)
	return logger
}

func (a *application) catalogOptions() []catalog.Options {
	out := make([]catalog.Options, 0, len(a.config.Catalogs))
	for i := range a.config.Catalogs {
		out = append(out, a.config.Catalogs[i].Options())
	}
	return out
}

func ensureParent(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// serviceOptions returns the options every command shares.
func (a *application) serviceOptions() ([]catalogservice.Option, error) {
	lock := a.config.Site.LockFile
	if lock == "" {
		return nil, nil
	}
	if err := ensureParent(lock); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return []catalogservice.Option{catalogservice.WithLockFile(lock)}, nil
}

func openIndex(cfg IndexConfig) (*index.DB, error) {
	if err := ensureParent(cfg.Path); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := index.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	return db, nil
}

// Build regenerates the selected catalogs (all by default) and prints a
// report per catalog. Every selected catalog is attempted; the returned
// error joins the fatal ones.
func Build(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	selected := cfg.Catalogs
	if len(app.only) > 0 {
		selected = make([]CatalogConfig, 0, len(app.only))
		for _, name := range app.only {
			c, ok := cfg.Catalog(name)
			if !ok {
				return fmt.Errorf("%q: %w", name, apperr.ErrUnknownCatalog)
			}
			selected = append(selected, *c)
		}
	}

	store, err := storage.NewFS(cfg.Site.Root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	svcOpts, err := app.serviceOptions()
	if err != nil {
		return err
	}
	if cfg.Index.Enabled || app.withIndex {
		db, err := openIndex(cfg.Index)
		if err != nil {
			return err
		}
		defer db.Close()
		svcOpts = append(svcOpts, catalogservice.WithIndex(db))
	}
	svc := catalogservice.NewService(store, app.catalogOptions(), logger, svcOpts...)

	printer := report.New(app.stdout, app.quiet)
	var errs []error
	for _, c := range selected {
		printer.Start(c.Name, c.SourceDir)
		res, err := svc.Rebuild(ctx, c.Name, printer.EventFunc(c.Schema.ExampleName(), c.AcceptedMessage))
		if err != nil {
			printer.Fatal(c.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		printer.Summary(res, c.SummaryLabel)
	}
	return errors.Join(errs...)
}

// Serve builds every catalog, then serves the site, the catalog API and
// the event stream while rebuilding catalogs whose folders change.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	store, err := storage.NewFS(cfg.Site.Root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	root := store.Root()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("site_root", root),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))
	db, err := openIndex(cfg.Index)
	if err != nil {
		return err
	}
	defer db.Close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svcOpts, err := app.serviceOptions()
	if err != nil {
		return err
	}
	svcOpts = append(svcOpts, catalogservice.WithIndex(db), catalogservice.WithNotifier(broker))
	svc := catalogservice.NewService(store, app.catalogOptions(), logger, svcOpts...)

	if _, err := svc.RebuildAll(ctx); err != nil {
		logger.Warn("initial build failed", slog.String("error", err.Error()))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := db.Catalogs(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))
	r.Handle("/*", api.SiteHandler(root))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Watch(gCtx, root, cfg.Watch.Debounce)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// MCP builds every catalog and serves the MCP tools over stdio. Logs go to
// stderr because stdout carries the protocol.
func MCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	store, err := storage.NewFS(cfg.Site.Root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	db, err := openIndex(cfg.Index)
	if err != nil {
		return err
	}
	defer db.Close()

	svcOpts, err := app.serviceOptions()
	if err != nil {
		return err
	}
	svc := catalogservice.NewService(store, app.catalogOptions(), logger, append(svcOpts, catalogservice.WithIndex(db))...)
	if _, err := svc.RebuildAll(ctx); err != nil {
		logger.Warn("initial build failed", slog.String("error", err.Error()))
	}

	return mcpserver.New(svc, app.version).ServeStdio()
}

// Search queries the index written by serve, mcp or build --index and
// prints one line per hit.
func Search(ctx context.Context, query string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("search: query is required")
	}

	store, err := storage.NewFS(cfg.Site.Root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	db, err := openIndex(cfg.Index)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Catalogs()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("search: index %s is empty, run build --index first", cfg.Index.Path)
	}

	svc := catalogservice.NewService(store, app.catalogOptions(), logger, catalogservice.WithIndex(db))
	results, err := svc.Search(ctx, query, app.catalog, app.limit)
	if err != nil {
		return err
	}
	report.New(app.stdout, false).Results(results, report.IsTerminal(app.stdout))
	return nil
}
