package leaderboard

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// keepTop is how many entries the file store retains on disk. The board only
// ever shows the best scores, so everything below the cut is dropped on the
// next compaction.
const keepTop = 50

// FileStore persists the board as JSON lines in a local file, suitable for a
// single-host setup such as a living-room party box. Thread-safe for
// concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore that reads and writes the given path.
// The file is created on first submit if it does not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Submit implements [Store]. It appends the entry and compacts the file down
// to the retained top entries when it has grown past the cut.
func (fs *FileStore) Submit(_ context.Context, e Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("leaderboard: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("leaderboard: open file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("leaderboard: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("leaderboard: close: %w", err)
	}

	entries, err := fs.load()
	if err != nil {
		return err
	}
	if len(entries) > 2*keepTop {
		return fs.compact(entries)
	}
	return nil
}

// Top implements [Store].
func (fs *FileStore) Top(_ context.Context, n int) ([]Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := fs.load()
	if err != nil {
		return nil, err
	}
	rank(entries)
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// load reads all entries from the file. A missing file is an empty board.
// Unparseable lines (e.g. from a crash mid-write) are skipped.
func (fs *FileStore) load() ([]Entry, error) {
	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leaderboard: open file: %w", err)
	}
	defer f.Close()

	entries := []Entry{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard: read file: %w", err)
	}
	return entries, nil
}

// compact rewrites the file with only the retained top entries. The write
// goes to a sibling temp file first so a crash never loses the whole board.
func (fs *FileStore) compact(entries []Entry) error {
	rank(entries)
	if len(entries) > keepTop {
		entries = entries[:keepTop]
	}

	tmp := fs.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("leaderboard: open temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return fmt.Errorf("leaderboard: marshal: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			f.Close()
			return fmt.Errorf("leaderboard: write temp file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("leaderboard: flush temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("leaderboard: close temp file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("leaderboard: replace file: %w", err)
	}
	return nil
}
