package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/halvar/mdn/internal/apperr"
	"github.com/halvar/mdn/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id          INTEGER PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	group_path  TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	fingerprint TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL DEFAULT 0,
	modified_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

// State is the small persistent record alongside the index: the next id
// to hand out and the recency ids behind the _c/_e/_s tokens.
type State struct {
	NextID  int
	Recency models.Recency
}

// Store persists the Index in a SQLite database.
type Store struct {
	conn  *sql.DB
	fresh bool // true when the database file did not exist before Open
}

// Open opens (or creates) the index database and applies the schema. An
// unreadable existing database fails with *apperr.CorruptIndexError; the
// recovery path is a full regenerate.
func Open(path string) (*Store, error) {
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, &apperr.CorruptIndexError{Err: err}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		if fresh {
			return nil, fmt.Errorf("index: apply schema: %w", err)
		}
		return nil, &apperr.CorruptIndexError{Err: err}
	}
	return &Store{conn: conn, fresh: fresh}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.conn.Close() }

// Load reads the full index into memory. A store whose database file did
// not exist yet fails softly with apperr.ErrNoIndex so the caller can
// rebuild; an unreadable store fails with *apperr.CorruptIndexError.
func (s *Store) Load() (*Index, error) {
	if s.fresh {
		return nil, apperr.ErrNoIndex
	}

	rows, err := s.conn.Query(`
		SELECT id, title, group_path, tags, fingerprint, created_at, modified_at
		FROM notes`)
	if err != nil {
		return nil, &apperr.CorruptIndexError{Err: err}
	}
	defer rows.Close()

	ix := New()
	for rows.Next() {
		var (
			e        models.Entry
			tagsJSON string
			created  int64
			modified int64
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Group, &tagsJSON, &e.Fingerprint, &created, &modified); err != nil {
			return nil, &apperr.CorruptIndexError{Err: err}
		}
		if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
			return nil, &apperr.CorruptIndexError{Err: err}
		}
		e.CreatedAt = time.Unix(0, created)
		e.ModifiedAt = time.Unix(0, modified)
		ix.Put(e)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperr.CorruptIndexError{Err: err}
	}
	return ix, nil
}

// Save replaces the persisted index with ix inside one transaction, so a
// reader never observes a partially written index.
func (s *Store) Save(ix *Index) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM notes`); err != nil {
		return fmt.Errorf("index: clear notes: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO notes (id, title, group_path, tags, fingerprint, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range ix.Entries() {
		tagsJSON, _ := json.Marshal(e.Tags)
		if _, err := stmt.Exec(e.ID, e.Title, e.Group, string(tagsJSON), e.Fingerprint,
			e.CreatedAt.UnixNano(), e.ModifiedAt.UnixNano()); err != nil {
			return fmt.Errorf("index: insert note %d: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	s.fresh = false
	return nil
}

// LoadState reads the persistent state record. Missing keys default to
// zero, so a brand-new store yields NextID 1 via the max below.
func (s *Store) LoadState() (State, error) {
	rows, err := s.conn.Query(`SELECT key, value FROM state`)
	if err != nil {
		return State{}, &apperr.CorruptIndexError{Err: err}
	}
	defer rows.Close()

	vals := make(map[string]int)
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return State{}, &apperr.CorruptIndexError{Err: err}
		}
		vals[k] = v
	}
	if err := rows.Err(); err != nil {
		return State{}, &apperr.CorruptIndexError{Err: err}
	}

	st := State{
		NextID: vals["next_id"],
		Recency: models.Recency{
			LastCreated: vals["last_created"],
			LastEdited:  vals["last_edited"],
			LastShown:   vals["last_shown"],
		},
	}
	if st.NextID < 1 {
		st.NextID = 1
	}
	return st, nil
}

// SaveState persists the state record.
func (s *Store) SaveState(st State) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("index: prepare state upsert: %w", err)
	}
	defer stmt.Close()

	for k, v := range map[string]int{
		"next_id":      st.NextID,
		"last_created": st.Recency.LastCreated,
		"last_edited":  st.Recency.LastEdited,
		"last_shown":   st.Recency.LastShown,
	} {
		if _, err := stmt.Exec(k, v); err != nil {
			return fmt.Errorf("index: upsert state %s: %w", k, err)
		}
	}
	return tx.Commit()
}
