// Package selections remembers which cities a user has chosen to compare.
package selections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS selection (
	name       TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
	position   INTEGER NOT NULL,
	created_ts INTEGER NOT NULL
);`

// Selection is one saved city.
type Selection struct {
	Name      string
	Position  int
	CreatedAt time.Time
}

// Store is a SQLite-backed list of saved cities.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// DefaultPath returns the store location under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "tzcompare", "selections.db"), nil
}

// Open opens (creating if needed) the store at path. ":memory:" is allowed.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	logger.Debug("selection store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add appends name to the list. Names already saved (case-insensitively)
// keep their position; Add reports whether a row was inserted.
func (s *Store) Add(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.New("empty city name")
	}
	stmt := `INSERT INTO selection (name, position, created_ts)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM selection), ?)
		ON CONFLICT(name) DO NOTHING`
	res, err := s.db.ExecContext(ctx, stmt, name, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to add selection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add selection: %w", err)
	}
	s.logger.Debug("selection added", "city", name, "inserted", n > 0)
	return n > 0, nil
}

// Remove deletes name; it reports whether anything was removed.
func (s *Store) Remove(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM selection WHERE name = ?`, strings.TrimSpace(name))
	if err != nil {
		return false, fmt.Errorf("failed to remove selection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove selection: %w", err)
	}
	return n > 0, nil
}

// Clear deletes every selection.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM selection`); err != nil {
		return fmt.Errorf("failed to clear selections: %w", err)
	}
	return nil
}

// List returns the saved cities in the order they were added.
func (s *Store) List(ctx context.Context) ([]Selection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, position, created_ts FROM selection ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	defer rows.Close()

	var list []Selection
	for rows.Next() {
		var sel Selection
		var createdTs int64
		if err := rows.Scan(&sel.Name, &sel.Position, &createdTs); err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		sel.CreatedAt = time.Unix(createdTs, 0).UTC()
		list = append(list, sel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	return list, nil
}

// Names returns just the saved city names, in order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(list))
	for i, sel := range list {
		names[i] = sel.Name
	}
	return names, nil
}
