// Package leaderboard ranks completed session scores. Writes are append-only;
// the ranking is descending by score with earlier submissions winning ties.
package leaderboard

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry is one completed attempt's record on the board.
type Entry struct {
	PlayerName  string    `json:"player_name"`
	SongID      string    `json:"song_id"`
	Score       float64   `json:"score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Store persists leaderboard entries. Implementations must be safe for
// concurrent use.
type Store interface {
	// Submit appends an entry to the board.
	Submit(ctx context.Context, e Entry) error

	// Top returns up to n entries, best first. Reads are idempotent: two
	// calls without an intervening Submit return identical lists.
	Top(ctx context.Context, n int) ([]Entry, error)
}

// Less reports whether a ranks strictly above b.
func Less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.SubmittedAt.Before(b.SubmittedAt)
}

// rank sorts entries in place, best first.
func rank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// MemoryStore is an in-process Store, used by tests and single-node setups
// that do not need persistence across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory board.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Submit implements [Store].
func (m *MemoryStore) Submit(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// Top implements [Store].
func (m *MemoryStore) Top(_ context.Context, n int) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	m.mu.RUnlock()

	rank(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}
