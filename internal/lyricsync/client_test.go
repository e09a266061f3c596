package lyricsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crooner-live/crooner/internal/lyricsync"
)

type wireTrack struct {
	ID           int64   `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

func newServer(t *testing.T, handler http.HandlerFunc) *lyricsync.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return lyricsync.NewClient(
		lyricsync.WithBaseURL(srv.URL),
		lyricsync.WithHTTPClient(srv.Client()),
	)
}

func serveTracks(t *testing.T, tracks []wireTrack) *lyricsync.Client {
	t.Helper()
	return newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("artist_name"); got == "" {
			t.Errorf("missing artist_name in query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tracks)
	})
}

func TestSearch_DecodesTracks(t *testing.T) {
	t.Parallel()
	c := serveTracks(t, []wireTrack{
		{
			ID:           7,
			TrackName:    "Never Gonna Give You Up",
			ArtistName:   "Rick Astley",
			Duration:     213.5,
			SyncedLyrics: "[00:18.50]We're no strangers to love",
		},
	})

	tracks, err := c.Search(context.Background(), "Rick Astley", "Never Gonna Give You Up")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("len = %d, want 1", len(tracks))
	}
	tr := tracks[0]
	if tr.ID != 7 || tr.Artist != "Rick Astley" {
		t.Errorf("track = %+v", tr)
	}
	if tr.Duration != 213500*time.Millisecond {
		t.Errorf("duration = %v, want 213.5s", tr.Duration)
	}
	if !tr.Timed() {
		t.Error("track with synced lyrics should report Timed")
	}
}

func TestSearch_NotFound(t *testing.T) {
	t.Parallel()
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.Search(context.Background(), "Nobody", "Nothing")
	if !errors.Is(err, lyricsync.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSearch_ServerError(t *testing.T) {
	t.Parallel()
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.Search(context.Background(), "a", "b")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, lyricsync.ErrNotFound) {
		t.Error("a 500 must not read as not-found")
	}
}

func TestBestMatch_PicksClosestDuration(t *testing.T) {
	t.Parallel()
	c := serveTracks(t, []wireTrack{
		{ID: 1, Duration: 180, PlainLyrics: "lyrics"},
		{ID: 2, Duration: 213, PlainLyrics: "lyrics"},
		{ID: 3, Duration: 300, PlainLyrics: "lyrics"},
	})

	tr, err := c.BestMatch(context.Background(), "a", "b", 212*time.Second)
	if err != nil {
		t.Fatalf("BestMatch: %v", err)
	}
	if tr.ID != 2 {
		t.Errorf("picked track %d, want 2", tr.ID)
	}
}

func TestBestMatch_SkipsInstrumentalAndEmpty(t *testing.T) {
	t.Parallel()
	c := serveTracks(t, []wireTrack{
		{ID: 1, Duration: 213, Instrumental: true, SyncedLyrics: "[00:01.00]x"},
		{ID: 2, Duration: 213},
		{ID: 3, Duration: 250, PlainLyrics: "words"},
	})

	tr, err := c.BestMatch(context.Background(), "a", "b", 213*time.Second)
	if err != nil {
		t.Fatalf("BestMatch: %v", err)
	}
	if tr.ID != 3 {
		t.Errorf("picked track %d, want 3", tr.ID)
	}
}

func TestBestMatch_PrefersSyncedOnTie(t *testing.T) {
	t.Parallel()
	c := serveTracks(t, []wireTrack{
		{ID: 1, Duration: 213, PlainLyrics: "plain only"},
		{ID: 2, Duration: 213, SyncedLyrics: "[00:01.00]synced"},
	})

	tr, err := c.BestMatch(context.Background(), "a", "b", 213*time.Second)
	if err != nil {
		t.Fatalf("BestMatch: %v", err)
	}
	if tr.ID != 2 {
		t.Errorf("picked track %d, want the synced one", tr.ID)
	}
}

func TestBestMatch_ZeroDurationTakesFirstWithLyrics(t *testing.T) {
	t.Parallel()
	c := serveTracks(t, []wireTrack{
		{ID: 1, Duration: 999, Instrumental: true, PlainLyrics: "x"},
		{ID: 2, Duration: 999, PlainLyrics: "words"},
		{ID: 3, Duration: 1, PlainLyrics: "words"},
	})

	tr, err := c.BestMatch(context.Background(), "a", "b", 0)
	if err != nil {
		t.Fatalf("BestMatch: %v", err)
	}
	if tr.ID != 2 {
		t.Errorf("picked track %d, want 2", tr.ID)
	}
}

func TestBestMatch_NoUsableCandidates(t *testing.T) {
	t.Parallel()
	c := serveTracks(t, []wireTrack{
		{ID: 1, Duration: 213, Instrumental: true, SyncedLyrics: "x"},
	})

	_, err := c.BestMatch(context.Background(), "a", "b", 213*time.Second)
	if !errors.Is(err, lyricsync.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	if !c.Healthy() {
		t.Fatal("client should start healthy")
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Search(context.Background(), "a", "b"); err == nil {
			t.Fatal("expected error from failing backend")
		}
	}
	if c.Healthy() {
		t.Error("breaker should be open after repeated failures")
	}

	// Fails fast while open.
	if _, err := c.Search(context.Background(), "a", "b"); err == nil {
		t.Error("open breaker should reject the call")
	}
}
