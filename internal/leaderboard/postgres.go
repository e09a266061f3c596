package leaderboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlLeaderboard = `
CREATE TABLE IF NOT EXISTS leaderboard_entries (
    id           BIGSERIAL    PRIMARY KEY,
    player_name  TEXT         NOT NULL,
    song_id      TEXT         NOT NULL,
    score        DOUBLE PRECISION NOT NULL,
    submitted_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leaderboard_rank
    ON leaderboard_entries (score DESC, submitted_at ASC);

CREATE INDEX IF NOT EXISTS idx_leaderboard_song
    ON leaderboard_entries (song_id);
`

// PostgresStore is a [Store] backed by a PostgreSQL leaderboard_entries
// table, for deployments where multiple venues share one board.
//
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore establishes a connection pool to the database at dsn and
// ensures the leaderboard table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("leaderboard: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlLeaderboard); err != nil {
		pool.Close()
		return nil, fmt.Errorf("leaderboard: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Submit implements [Store].
func (s *PostgresStore) Submit(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO leaderboard_entries (player_name, song_id, score, submitted_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q, e.PlayerName, e.SongID, e.Score, e.SubmittedAt)
	if err != nil {
		return fmt.Errorf("leaderboard: submit: %w", err)
	}
	return nil
}

// topQuery builds the ranking query. A non-positive n returns the whole
// board, matching the memory and file backends.
func topQuery(n int) (string, []any) {
	q := `
		SELECT player_name, song_id, score, submitted_at
		FROM   leaderboard_entries
		ORDER  BY score DESC, submitted_at ASC`
	if n <= 0 {
		return q, nil
	}
	return q + `
		LIMIT  $1`, []any{n}
}

// Top implements [Store].
func (s *PostgresStore) Top(ctx context.Context, n int) ([]Entry, error) {
	q, args := topQuery(n)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: top: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.PlayerName, &e.SongID, &e.Score, &e.SubmittedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("leaderboard: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Ping reports connectivity to the database, used by health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
