// Package history records completed fetches in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite" // pure Go driver

	"nomark/internal/media"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetches (
	content_id TEXT PRIMARY KEY,
	handle     TEXT NOT NULL,
	url        TEXT NOT NULL,
	provider   TEXT NOT NULL,
	path       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	fetched_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS fetches_fetched_at ON fetches (fetched_at DESC);
`

// Store is a fetch history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes or updates the entry for a post.
func (s *Store) Save(ctx context.Context, e media.HistoryEntry) error {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetches (content_id, handle, url, provider, path, size, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			handle = excluded.handle,
			url = excluded.url,
			provider = excluded.provider,
			path = excluded.path,
			size = excluded.size,
			fetched_at = excluded.fetched_at`,
		e.ContentID, e.Handle, e.URL, e.Provider, e.Path, e.Size, e.FetchedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving history entry: %w", err)
	}
	return nil
}

// Load returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) Load(ctx context.Context, limit int) ([]media.HistoryEntry, error) {
	query := `SELECT content_id, handle, url, provider, path, size, fetched_at
		FROM fetches ORDER BY fetched_at DESC, content_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	defer rows.Close()

	var entries []media.HistoryEntry
	for rows.Next() {
		var e media.HistoryEntry
		var fetchedAt int64
		if err := rows.Scan(&e.ContentID, &e.Handle, &e.URL, &e.Provider, &e.Path, &e.Size, &fetchedAt); err != nil {
			return nil, fmt.Errorf("reading history row: %w", err)
		}
		e.FetchedAt = time.UnixMilli(fetchedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}

// Remove deletes the entry for a post. Removing a missing entry is not an
// error.
func (s *Store) Remove(ctx context.Context, contentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fetches WHERE content_id = ?`, contentID); err != nil {
		return fmt.Errorf("removing history entry: %w", err)
	}
	return nil
}

// Clear deletes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fetches`); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// FormatForDisplay creates one line per entry for terminal output.
func FormatForDisplay(entries []media.HistoryEntry, now time.Time) []string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		items = append(items, fmt.Sprintf("%s  %s %s  %s via %s  %s",
			humanize.RelTime(e.FetchedAt, now, "ago", "from now"),
			e.Handle,
			e.ContentID,
			humanize.Bytes(uint64(max(e.Size, 0))),
			e.Provider,
			e.Path,
		))
	}
	return items
}
