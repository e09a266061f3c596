// Command crooner is the main entry point for the Crooner karaoke server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crooner-live/crooner/internal/app"
	"github.com/crooner-live/crooner/internal/config"
	"github.com/crooner-live/crooner/internal/observe"
	"github.com/crooner-live/crooner/pkg/recognizer"
	"github.com/crooner-live/crooner/pkg/recognizer/deepgram"
	"github.com/crooner-live/crooner/pkg/recognizer/mock"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "crooner: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "crooner: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("crooner starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "crooner",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Recognizer registry ───────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinRecognizers(reg)

	rec, err := buildRecognizer(cfg, reg)
	if err != nil {
		slog.Error("failed to build recognizer", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	// Running sessions keep the config they started with; the watcher applies
	// log-level changes immediately and logs the rest for the next session.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Any() {
			return
		}
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.ScoringChanged || d.AlignerChanged {
			slog.Info("scoring/alignment tuning changed; applies to new sessions")
		}
		if d.LeaderboardTopNChanged {
			slog.Info("leaderboard size changed", "top_n", d.NewTopN)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, rec)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Recognizer wiring ─────────────────────────────────────────────────────────

// registerBuiltinRecognizers wires the recognizer factories that ship with
// Crooner into reg.
func registerBuiltinRecognizers(reg *config.Registry) {
	reg.RegisterRecognizer("deepgram", func(entry config.RecognizerEntry) (recognizer.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if entry.SampleRate > 0 {
			opts = append(opts, deepgram.WithSampleRate(entry.SampleRate))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// The mock recognizer delivers nothing; useful for wiring checks without
	// an API key.
	reg.RegisterRecognizer("mock", func(config.RecognizerEntry) (recognizer.Provider, error) {
		return &mock.Provider{Session: mock.NewClosedSession()}, nil
	})
}

// buildRecognizer instantiates the provider named in cfg using the registry.
// An unconfigured recognizer falls back to the mock so the server still runs.
func buildRecognizer(cfg *config.Config, reg *config.Registry) (recognizer.Provider, error) {
	name := cfg.Recognizer.Name
	if name == "" {
		slog.Warn("no recognizer configured — using mock; sessions will score zero")
		return &mock.Provider{Session: mock.NewClosedSession()}, nil
	}

	p, err := reg.CreateRecognizer(cfg.Recognizer)
	if err != nil {
		return nil, fmt.Errorf("create recognizer %q: %w", name, err)
	}
	slog.Info("recognizer created", "name", name, "model", cfg.Recognizer.Model)
	return p, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Crooner — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Recognizer", providerLabel(cfg.Recognizer.Name, cfg.Recognizer.Model))
	printField("Catalog", cfg.Catalog.LibraryPath)
	printField("Leaderboard", string(cfg.Leaderboard.Backend))
	printField("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printField(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
