// Package catalog is the local song library: per-song metadata, cached
// lyrics, and timeline construction. The library lives in a single JSON file
// next to the audio.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crooner-live/crooner/internal/lyrics"
	"github.com/crooner-live/crooner/internal/lyricsync"
)

// ErrUnknownSong is returned for lookups of songs not in the library.
var ErrUnknownSong = errors.New("catalog: unknown song")

// defaultVocalOnset is the assumed intro length for songs whose lyrics carry
// no timing at all.
const defaultVocalOnset = 8 * time.Second

// Song is one library entry.
type Song struct {
	// ID is the stable identifier used by sessions and the leaderboard.
	ID string

	Title  string
	Artist string

	// Duration is the audio track length.
	Duration time.Duration

	// AudioPath points at the local audio file, relative to the library
	// file's directory.
	AudioPath string

	// SyncedLyrics is cached LRC text from the lyric service; empty until
	// synced or when only plain text was available.
	SyncedLyrics string

	// PlainLyrics is cached untimed lyric text.
	PlainLyrics string

	// SyncedAt records the last successful lyric sync.
	SyncedAt time.Time
}

// songJSON is the on-disk representation. Durations are stored as seconds so
// the file stays hand-editable.
type songJSON struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	DurationSecs float64   `json:"duration_seconds"`
	AudioPath    string    `json:"audio_path"`
	SyncedLyrics string    `json:"synced_lyrics,omitempty"`
	PlainLyrics  string    `json:"plain_lyrics,omitempty"`
	SyncedAt     time.Time `json:"synced_at,omitzero"`
}

func toJSON(s Song) songJSON {
	return songJSON{
		ID:           s.ID,
		Title:        s.Title,
		Artist:       s.Artist,
		DurationSecs: s.Duration.Seconds(),
		AudioPath:    s.AudioPath,
		SyncedLyrics: s.SyncedLyrics,
		PlainLyrics:  s.PlainLyrics,
		SyncedAt:     s.SyncedAt,
	}
}

func fromJSON(j songJSON) Song {
	return Song{
		ID:           j.ID,
		Title:        j.Title,
		Artist:       j.Artist,
		Duration:     time.Duration(j.DurationSecs * float64(time.Second)),
		AudioPath:    j.AudioPath,
		SyncedLyrics: j.SyncedLyrics,
		PlainLyrics:  j.PlainLyrics,
		SyncedAt:     j.SyncedAt,
	}
}

// Catalog is the song library. Safe for concurrent use.
type Catalog struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	songs map[string]Song
}

// Open loads the library at path. A missing file yields an empty library
// that is created on the first save.
func Open(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{path: path, logger: logger, songs: make(map[string]Song)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var raw []songJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	for _, j := range raw {
		s := fromJSON(j)
		if s.ID == "" {
			s.ID = SongID(s.Artist, s.Title)
		}
		c.songs[s.ID] = s
	}
	logger.Info("catalog loaded", "path", path, "songs", len(c.songs))
	return c, nil
}

// SongID derives the stable identifier for an artist/title pair.
func SongID(artist, title string) string {
	slug := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.Join(strings.Fields(s), "-")
	}
	return slug(artist) + "/" + slug(title)
}

// Get returns the song with the given ID.
func (c *Catalog) Get(id string) (Song, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.songs[id]
	if !ok {
		return Song{}, fmt.Errorf("%w: %s", ErrUnknownSong, id)
	}
	return s, nil
}

// List returns all songs sorted by artist, then title.
func (c *Catalog) List() []Song {
	c.mu.RLock()
	out := make([]Song, 0, len(c.songs))
	for _, s := range c.songs {
		out = append(out, s)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Artist != out[j].Artist {
			return out[i].Artist < out[j].Artist
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// Put adds or replaces a song and persists the library. An empty ID is
// derived from artist and title.
func (c *Catalog) Put(s Song) (Song, error) {
	if s.ID == "" {
		s.ID = SongID(s.Artist, s.Title)
	}
	c.mu.Lock()
	c.songs[s.ID] = s
	err := c.saveLocked()
	c.mu.Unlock()
	if err != nil {
		return Song{}, err
	}
	return s, nil
}

// saveLocked writes the library file. Caller holds c.mu.
func (c *Catalog) saveLocked() error {
	raw := make([]songJSON, 0, len(c.songs))
	for _, s := range c.songs {
		raw = append(raw, toJSON(s))
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].ID < raw[j].ID })

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshal: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("catalog: replace %s: %w", c.path, err)
	}
	return nil
}

// Sync fetches lyrics for the song from the lyric service and caches them in
// the library. Already-synced songs are refreshed.
func (c *Catalog) Sync(ctx context.Context, client *lyricsync.Client, id string) (Song, error) {
	s, err := c.Get(id)
	if err != nil {
		return Song{}, err
	}

	track, err := client.BestMatch(ctx, s.Artist, s.Title, s.Duration)
	if err != nil {
		return Song{}, fmt.Errorf("catalog: sync %s: %w", id, err)
	}

	s.SyncedLyrics = track.SyncedLyrics
	s.PlainLyrics = track.PlainLyrics
	s.SyncedAt = time.Now().UTC()
	if s.Duration == 0 && track.Duration > 0 {
		s.Duration = track.Duration
	}
	c.logger.Info("lyrics synced", "song", id, "timed", track.Timed())
	return c.Put(s)
}

// Timeline builds the lyric timeline for the song from its cached lyrics.
// A song with no lyrics at all yields a degenerate empty timeline rather
// than an error, so the session still runs and scores zero.
func (c *Catalog) Timeline(id string) (*lyrics.Timeline, error) {
	s, err := c.Get(id)
	if err != nil {
		return nil, err
	}

	var lines []lyrics.Line
	switch {
	case s.SyncedLyrics != "":
		lines = lyrics.ParseLRC(s.SyncedLyrics)
	case s.PlainLyrics != "":
		lines = lyrics.SplitPlain(s.PlainLyrics)
	}

	tl, err := lyrics.Build(lyrics.BuildInput{Lines: lines, TotalDuration: s.Duration})
	if errors.Is(err, lyrics.ErrEmptyLyrics) {
		c.logger.Warn("song has no lyrics, using empty timeline", "song", id)
		return lyrics.Empty(s.Duration), nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: timeline %s: %w", id, err)
	}
	if tl.Source == lyrics.SourceFallback && tl.StartOffset == 0 {
		tl.StartOffset = defaultVocalOnset
	}
	return tl, nil
}
