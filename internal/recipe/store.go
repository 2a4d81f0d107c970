package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store is the durable recipe KV: save/get/list/
// delete, backed by a small embedded SQLite database storing each recipe as
// a single JSON row. modernc.org/sqlite is pure Go (no cgo), matching the
// hazyhaar-chrc example's use of database/sql against the same driver.
type Store struct {
	db *sql.DB

	// mu serializes writes; concurrent reads are fine, only writes race
	// requires writes be serialized "by the underlying storage" — a single
	// sqlite connection already does that, but an explicit mutex keeps the
	// read-modify-write of upsert-by-id race-free under Go's own scheduler.
	mu sync.Mutex
}

// Open creates/opens the sqlite file at path and ensures the recipes table
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open recipe store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline

	const schema = `
CREATE TABLE IF NOT EXISTS recipes (
	id TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	seq INTEGER NOT NULL
);`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create recipes table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts recipe by id; a conflicting id replaces the existing row.
// Recipes are idempotent under save-by-id.
func (s *Store) Save(ctx context.Context, r Recipe) error {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid recipe: %w", err)
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal recipe: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var seq int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM recipes`)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO recipes (id, body, seq) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET body = excluded.body`,
		r.ID, string(body), seq)
	if err != nil {
		return fmt.Errorf("upsert recipe: %w", err)
	}
	return nil
}

// Get returns the recipe for id, or ok=false if absent.
func (s *Store) Get(ctx context.Context, id string) (Recipe, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM recipes WHERE id = ?`, id)
	var body string
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return Recipe{}, false, nil
		}
		return Recipe{}, false, fmt.Errorf("get recipe %s: %w", id, err)
	}
	var r Recipe
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return Recipe{}, false, fmt.Errorf("decode recipe %s: %w", id, err)
	}
	return r, true, nil
}

// List returns every recipe, ordered deterministically by insertion
// sequence (ties broken by id).
func (s *Store) List(ctx context.Context) ([]Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM recipes ORDER BY seq ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	out := make([]Recipe, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		var r Recipe
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("decode recipe: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes id, returning false if it was not present.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete recipe %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
