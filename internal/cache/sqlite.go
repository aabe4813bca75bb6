// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/research-mcp/pkg/types"
)

// SQLiteStore persists cached results in a SQLite database with a
// full-text index over topics and context.
type SQLiteStore struct {
	db *sql.DB
}

// Entry is a stored result with its topic.
type Entry struct {
	Topic      string         `json:"topic" yaml:"topic"`
	Context    string         `json:"context" yaml:"context"`
	Sources    []types.Source `json:"sources" yaml:"sources"`
	SourceURLs []string       `json:"source_urls" yaml:"source_urls"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// Result returns the entry as a types.Result.
func (e Entry) Result() types.Result {
	return types.Result{
		Context:    e.Context,
		Sources:    e.Sources,
		SourceURLs: e.SourceURLs,
		CreatedAt:  e.CreatedAt,
	}
}

// OpenSQLite opens or creates the database at path, creating parent
// directories and the schema as needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS results (
			topic TEXT PRIMARY KEY,
			context TEXT NOT NULL,
			sources TEXT NOT NULL,
			source_urls TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS results_fts USING fts4(topic, context)`,
		`CREATE TRIGGER IF NOT EXISTS results_ai AFTER INSERT ON results BEGIN
			INSERT INTO results_fts(docid, topic, context) VALUES (new.rowid, new.topic, new.context);
		END`,
		`CREATE TRIGGER IF NOT EXISTS results_au AFTER UPDATE ON results BEGIN
			DELETE FROM results_fts WHERE docid = old.rowid;
			INSERT INTO results_fts(docid, topic, context) VALUES (new.rowid, new.topic, new.context);
		END`,
		`CREATE TRIGGER IF NOT EXISTS results_ad AFTER DELETE ON results BEGIN
			DELETE FROM results_fts WHERE docid = old.rowid;
		END`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save upserts r under topic.
func (s *SQLiteStore) Save(ctx context.Context, topic string, r types.Result) error {
	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return fmt.Errorf("marshaling sources: %w", err)
	}
	urls, err := json.Marshal(r.SourceURLs)
	if err != nil {
		return fmt.Errorf("marshaling source urls: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (topic, context, sources, source_urls, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(topic) DO UPDATE SET
			context = excluded.context,
			sources = excluded.sources,
			source_urls = excluded.source_urls,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		topic, r.Context, string(sources), string(urls),
		created.UTC().Format(time.RFC3339Nano), now)
	if err != nil {
		return fmt.Errorf("saving result for %q: %w", topic, err)
	}
	return nil
}

// Load returns the result stored under topic.
func (s *SQLiteStore) Load(ctx context.Context, topic string) (types.Result, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT topic, context, sources, source_urls, created_at FROM results WHERE topic = ?`, topic)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Result{}, false, nil
	}
	if err != nil {
		return types.Result{}, false, fmt.Errorf("loading result for %q: %w", topic, err)
	}
	return e.Result(), true, nil
}

// Delete removes topic. Deleting a missing topic is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, topic string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE topic = ?`, topic); err != nil {
		return fmt.Errorf("deleting result for %q: %w", topic, err)
	}
	return nil
}

// List returns every stored entry, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT topic, context, sources, source_urls, created_at FROM results ORDER BY updated_at DESC, topic`)
	if err != nil {
		return nil, fmt.Errorf("listing cached results: %w", err)
	}
	return scanEntries(rows)
}

// Search runs a full-text query over stored topics and contexts and
// returns up to limit matches, most recently updated first.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.topic, r.context, r.sources, r.source_urls, r.created_at
		FROM results_fts
		JOIN results r ON r.rowid = results_fts.docid
		WHERE results_fts MATCH ?
		ORDER BY r.updated_at DESC
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching cached results: %w", err)
	}
	return scanEntries(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                     Entry
		sourcesJSON, urlsJSON string
		createdAt             string
	)
	if err := sc.Scan(&e.Topic, &e.Context, &sourcesJSON, &urlsJSON, &createdAt); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &e.Sources); err != nil {
		return Entry{}, fmt.Errorf("decoding sources: %w", err)
	}
	if err := json.Unmarshal([]byte(urlsJSON), &e.SourceURLs); err != nil {
		return Entry{}, fmt.Errorf("decoding source urls: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
