// Package repostore persists repository connections (name, local clone
// path, default branch) in SQLite. Document content and render output
// never live here; those are git's and the render cache's.
package repostore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/perth/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS repos (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL UNIQUE,
	path           TEXT NOT NULL,
	default_branch TEXT NOT NULL DEFAULT 'main',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Repo is one connected repository.
type Repo struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	DefaultBranch string    `json:"default_branch"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store is the repository-connection persistence interface. Consumers
// should depend on it rather than the concrete *DB type.
type Store interface {
	Create(name, path, defaultBranch string) (*Repo, error)
	Get(id int64) (*Repo, error)
	List() ([]Repo, error)
	Delete(id int64) error
	Close() error
}

var _ Store = (*DB)(nil)

// DB wraps a sql.DB with repository-connection operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("repostore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("repostore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("repostore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Create registers a repository connection. The name must be unique.
func (db *DB) Create(name, path, defaultBranch string) (*Repo, error) {
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	var exists int
	if err := db.conn.QueryRow(`SELECT COUNT(1) FROM repos WHERE name = ?`, name).Scan(&exists); err != nil {
		return nil, fmt.Errorf("repostore: check name: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("repostore: repo %q: %w", name, apperr.ErrAlreadyExists)
	}

	res, err := db.conn.Exec(
		`INSERT INTO repos (name, path, default_branch) VALUES (?, ?, ?)`,
		name, path, defaultBranch)
	if err != nil {
		return nil, fmt.Errorf("repostore: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("repostore: last id: %w", err)
	}
	return db.Get(id)
}

// Get returns one repository connection by id.
func (db *DB) Get(id int64) (*Repo, error) {
	var r Repo
	err := db.conn.QueryRow(
		`SELECT id, name, path, default_branch, created_at FROM repos WHERE id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Path, &r.DefaultBranch, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repostore: repo %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("repostore: get: %w", err)
	}
	return &r, nil
}

// List returns all repository connections ordered by name.
func (db *DB) List() ([]Repo, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, path, default_branch, created_at FROM repos ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repostore: list: %w", err)
	}
	defer rows.Close()

	var out []Repo
	for rows.Next() {
		var r Repo
		if err := rows.Scan(&r.ID, &r.Name, &r.Path, &r.DefaultBranch, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes a repository connection.
func (db *DB) Delete(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM repos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("repostore: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("repostore: repo %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}
