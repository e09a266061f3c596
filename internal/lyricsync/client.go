// Package lyricsync fetches timed lyrics for a track from an lrclib-style
// HTTP API. Results carry either line-synced LRC text or plain lyrics, and
// the caller picks the candidate whose duration best matches the local audio.
package lyricsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/crooner-live/crooner/internal/resilience"
)

const defaultBaseURL = "https://lrclib.net"

// ErrNotFound is returned when the service has no lyrics for the track.
var ErrNotFound = errors.New("lyricsync: no lyrics found")

// Track is one candidate result from the lyric service.
type Track struct {
	ID           int64
	Name         string
	Artist       string
	Album        string
	Duration     time.Duration
	Instrumental bool

	// SyncedLyrics is LRC-format text with per-line timestamps, empty when
	// the service only has plain text.
	SyncedLyrics string

	// PlainLyrics is the untimed lyric text.
	PlainLyrics string
}

// Timed reports whether the track carries line-level timing.
func (t Track) Timed() bool { return t.SyncedLyrics != "" }

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL overrides the service endpoint, mainly for tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = base }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the lyric service. Lookups are guarded by a circuit
// breaker so a degraded service fails fast instead of stalling session setup.
// Safe for concurrent use.
type Client struct {
	http    *http.Client
	base    string
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a Client with the given options applied.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: 10 * time.Second},
		base:   defaultBaseURL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "lyricsync",
		MaxFailures:  3,
		ResetTimeout: 15 * time.Second,
	})
	return c
}

// Search returns all candidates for the given artist and title.
func (c *Client) Search(ctx context.Context, artist, title string) ([]Track, error) {
	q := url.Values{}
	q.Set("artist_name", artist)
	q.Set("track_name", title)

	var tracks []Track
	err := c.breaker.Execute(func() error {
		var err error
		tracks, err = c.search(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// BestMatch searches and picks the non-instrumental candidate whose duration
// is closest to the local audio's, preferring synced lyrics on a near tie.
// duration may be zero, in which case the first candidate with lyrics wins.
func (c *Client) BestMatch(ctx context.Context, artist, title string, duration time.Duration) (Track, error) {
	tracks, err := c.Search(ctx, artist, title)
	if err != nil {
		return Track{}, err
	}

	best := -1
	var bestDiff time.Duration
	for i, t := range tracks {
		if t.Instrumental || (t.SyncedLyrics == "" && t.PlainLyrics == "") {
			continue
		}
		diff := t.Duration - duration
		if diff < 0 {
			diff = -diff
		}
		if duration == 0 {
			diff = 0
		}
		switch {
		case best < 0:
			best, bestDiff = i, diff
		case diff < bestDiff:
			best, bestDiff = i, diff
		case diff == bestDiff && t.Timed() && !tracks[best].Timed():
			best = i
		}
	}
	if best < 0 {
		return Track{}, ErrNotFound
	}

	t := tracks[best]
	c.logger.Debug("lyric match selected",
		"artist", t.Artist,
		"track", t.Name,
		"timed", t.Timed(),
		"duration_diff", bestDiff)
	return t, nil
}

// trackJSON is the service's wire representation.
type trackJSON struct {
	ID           int64   `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

func (c *Client) search(ctx context.Context, q url.Values) ([]Track, error) {
	u := c.base + "/api/search?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("lyricsync: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lyricsync: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("lyricsync: search: unexpected status %d: %s", resp.StatusCode, body)
	}

	var raw []trackJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("lyricsync: decode response: %w", err)
	}

	tracks := make([]Track, 0, len(raw))
	for _, r := range raw {
		tracks = append(tracks, Track{
			ID:           r.ID,
			Name:         r.TrackName,
			Artist:       r.ArtistName,
			Album:        r.AlbumName,
			Duration:     time.Duration(r.Duration * float64(time.Second)),
			Instrumental: r.Instrumental,
			PlainLyrics:  r.PlainLyrics,
			SyncedLyrics: r.SyncedLyrics,
		})
	}
	return tracks, nil
}

// Healthy reports whether the breaker currently admits calls.
func (c *Client) Healthy() bool {
	return c.breaker.State() != resilience.StateOpen
}
