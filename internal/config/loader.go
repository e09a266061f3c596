package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidRecognizerNames lists known recognizer provider names.
// Used by [Validate] to warn about unrecognised names.
var ValidRecognizerNames = []string{"deepgram", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Catalog.LibraryPath == "" {
		cfg.Catalog.LibraryPath = "songs.json"
	}
	if cfg.Leaderboard.Backend == "" {
		cfg.Leaderboard.Backend = BackendFile
	}
	if cfg.Leaderboard.FilePath == "" {
		cfg.Leaderboard.FilePath = "leaderboard.jsonl"
	}
	if cfg.Leaderboard.TopN <= 0 {
		cfg.Leaderboard.TopN = 10
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Recognizer name validation — warn for unknown provider names.
	if name := cfg.Recognizer.Name; name != "" && !slices.Contains(ValidRecognizerNames, name) {
		slog.Warn("unknown recognizer name — may be a typo or third-party provider",
			"name", name,
			"known", ValidRecognizerNames,
		)
	}
	if cfg.Recognizer.Name == "" {
		slog.Warn("no recognizer configured; sessions will score every word as missing")
	}
	if cfg.Recognizer.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("recognizer.sample_rate %d is negative", cfg.Recognizer.SampleRate))
	}

	// Scoring thresholds must stay ordered and inside [0, 1].
	sc := cfg.Scoring
	if sc.ExactThreshold < 0 || sc.ExactThreshold > 1 {
		errs = append(errs, fmt.Errorf("scoring.exact_threshold %.2f is out of range [0, 1]", sc.ExactThreshold))
	}
	if sc.CloseThreshold < 0 || sc.CloseThreshold > 1 {
		errs = append(errs, fmt.Errorf("scoring.close_threshold %.2f is out of range [0, 1]", sc.CloseThreshold))
	}
	if sc.ExactThreshold != 0 && sc.CloseThreshold != 0 && sc.CloseThreshold > sc.ExactThreshold {
		errs = append(errs, fmt.Errorf("scoring.close_threshold %.2f must not exceed scoring.exact_threshold %.2f", sc.CloseThreshold, sc.ExactThreshold))
	}
	if sc.CloseWeight < 0 || sc.CloseWeight > 1 {
		errs = append(errs, fmt.Errorf("scoring.close_weight %.2f is out of range [0, 1]", sc.CloseWeight))
	}
	if sc.VibeWindow < 0 || sc.VibeWindow > 1 {
		errs = append(errs, fmt.Errorf("scoring.vibe_window %.2f is out of range [0, 1]", sc.VibeWindow))
	}
	if sc.VibeFactor < 0 {
		errs = append(errs, fmt.Errorf("scoring.vibe_factor %.2f is negative", sc.VibeFactor))
	}

	// Aligner
	al := cfg.Aligner
	if al.ToleranceWindow < 0 {
		errs = append(errs, fmt.Errorf("aligner.tolerance_window %d is negative", al.ToleranceWindow))
	}
	if al.MinSimilarity < 0 || al.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("aligner.min_similarity %.2f is out of range [0, 1]", al.MinSimilarity))
	}
	if al.TextWeight < 0 || al.TimeWeight < 0 {
		errs = append(errs, errors.New("aligner.text_weight and aligner.time_weight must not be negative"))
	}

	// Leaderboard
	lb := cfg.Leaderboard
	if lb.Backend != "" && !lb.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("leaderboard.backend %q is invalid; valid values: memory, file, postgres", lb.Backend))
	}
	if lb.Backend == BackendPostgres && lb.PostgresDSN == "" {
		errs = append(errs, errors.New("leaderboard.postgres_dsn is required when backend is postgres"))
	}
	if lb.TopN < 0 {
		errs = append(errs, fmt.Errorf("leaderboard.top_n %d is negative", lb.TopN))
	}

	return errors.Join(errs...)
}
