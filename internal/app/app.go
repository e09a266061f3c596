// Package app wires all Crooner subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithLeaderboard,
// WithCatalog, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/crooner-live/crooner/internal/catalog"
	"github.com/crooner-live/crooner/internal/config"
	"github.com/crooner-live/crooner/internal/health"
	"github.com/crooner-live/crooner/internal/leaderboard"
	"github.com/crooner-live/crooner/internal/lyricsync"
	"github.com/crooner-live/crooner/internal/observe"
	"github.com/crooner-live/crooner/pkg/recognizer"
)

// shutdownTimeout bounds the graceful HTTP drain on exit.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes and serves the karaoke HTTP API.
type App struct {
	cfg        *config.Config
	recognizer recognizer.Provider

	// Subsystems — initialised in New, torn down in Shutdown.
	catalog   *catalog.Catalog
	lyricsync *lyricsync.Client
	board     leaderboard.Store
	manager   *Manager
	metrics   *observe.Metrics
	server    *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLeaderboard injects a leaderboard store instead of creating one from config.
func WithLeaderboard(s leaderboard.Store) Option {
	return func(a *App) { a.board = s }
}

// WithCatalog injects a song catalog instead of loading one from config.
func WithCatalog(c *catalog.Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithLyricSync injects a lyric-sync client instead of creating one from config.
func WithLyricSync(c *lyricsync.Client) Option {
	return func(a *App) { a.lyricsync = c }
}

// WithMetrics injects a metrics instance, mainly to isolate tests from the
// global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The recognizer comes
// from main (created via the config registry). Use Option functions to inject
// test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, rec recognizer.Provider, opts ...Option) (*App, error) {
	a := &App{
		cfg:        cfg,
		recognizer: rec,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.catalog == nil {
		c, err := catalog.Open(cfg.Catalog.LibraryPath, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("app: open catalog: %w", err)
		}
		a.catalog = c
	}

	if a.lyricsync == nil {
		var lsOpts []lyricsync.Option
		if cfg.LyricSync.BaseURL != "" {
			lsOpts = append(lsOpts, lyricsync.WithBaseURL(cfg.LyricSync.BaseURL))
		}
		if t := cfg.LyricSync.Timeout.Std(); t > 0 {
			lsOpts = append(lsOpts, lyricsync.WithHTTPClient(&http.Client{Timeout: t}))
		}
		a.lyricsync = lyricsync.NewClient(lsOpts...)
	}

	if a.board == nil {
		if err := a.initLeaderboard(ctx); err != nil {
			return nil, fmt.Errorf("app: init leaderboard: %w", err)
		}
	}

	a.manager = NewManager(ManagerConfig{
		Catalog:     a.catalog,
		Recognizer:  a.recognizer,
		Leaderboard: a.board,
		Metrics:     a.metrics,
		Config:      cfg,
		Logger:      slog.Default(),
	})

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.buildHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

// initLeaderboard creates the configured persistence backend.
func (a *App) initLeaderboard(ctx context.Context) error {
	lb := a.cfg.Leaderboard
	switch lb.Backend {
	case config.BackendMemory:
		a.board = leaderboard.NewMemoryStore()

	case config.BackendPostgres:
		store, err := leaderboard.NewPostgresStore(ctx, lb.PostgresDSN)
		if err != nil {
			return err
		}
		a.board = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})

	case config.BackendFile, "":
		a.board = leaderboard.NewFileStore(lb.FilePath)

	default:
		return fmt.Errorf("unknown leaderboard backend %q", lb.Backend)
	}

	slog.Info("leaderboard ready", "backend", lb.Backend)
	return nil
}

// buildHandler assembles the HTTP routing tree: API routes behind the
// observability middleware, plus health probes and the metrics endpoint.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	a.registerRoutes(mux)

	checkers := []health.Checker{
		health.BoolChecker("lyricsync", a.lyricsync.Healthy),
	}
	if p, ok := a.board.(health.Pinger); ok {
		checkers = append(checkers, health.PingChecker("leaderboard", p))
	}
	h := health.New(checkers...)
	h.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// Manager exposes the session manager, mainly for tests.
func (a *App) Manager() *Manager { return a.manager }

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. On cancellation the server drains gracefully and live sessions are
// cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening",
			"addr", a.server.Addr,
			"tls", a.cfg.Server.TLS != nil)

		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()

		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		a.manager.Shutdown(drainCtx)
		return a.server.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
