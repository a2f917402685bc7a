// Package store holds the database-backed prefs stores.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/harrylevesque/firenet/internal/prefs"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// SQLiteStore keeps prefs groups as rows of one table.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	closed atomic.Bool
}

// NewSQLiteStore opens dbPath and ensures table exists. Several stores may
// share one database file as long as their tables differ.
func NewSQLiteStore(dbPath, table string) (*SQLiteStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, table: table}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		grp TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (grp, key)
	)`, s.table))
	return err
}

func (s *SQLiteStore) Group(name string) prefs.Group {
	return &sqliteGroup{store: s, name: name}
}

func (s *SQLiteStore) ClearAll() error {
	if s.closed.Load() {
		return prefs.ErrClosed
	}
	_, err := s.db.Exec("DELETE FROM " + s.table)
	return err
}

func (s *SQLiteStore) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

type sqliteGroup struct {
	store *SQLiteStore
	name  string
}

func (g *sqliteGroup) Get(key string) (string, bool, error) {
	if g.store.closed.Load() {
		return "", false, prefs.ErrClosed
	}
	var v string
	err := g.store.db.QueryRow(
		"SELECT value FROM "+g.store.table+" WHERE grp = ? AND key = ?", g.name, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (g *sqliteGroup) Snapshot() (map[string]string, error) {
	if g.store.closed.Load() {
		return nil, prefs.ErrClosed
	}
	rows, err := g.store.db.Query("SELECT key, value FROM "+g.store.table+" WHERE grp = ?", g.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Put writes all values in one transaction.
func (g *sqliteGroup) Put(values map[string]string) error {
	if g.store.closed.Load() {
		return prefs.ErrClosed
	}
	tx, err := g.store.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO ` + g.store.table + ` (grp, key, value) VALUES (?, ?, ?)
		ON CONFLICT(grp, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for k, v := range values {
		if _, err := stmt.Exec(g.name, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (g *sqliteGroup) Delete(keys ...string) error {
	if g.store.closed.Load() {
		return prefs.ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	tx, err := g.store.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, k := range keys {
		if _, err := tx.Exec("DELETE FROM "+g.store.table+" WHERE grp = ? AND key = ?", g.name, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (g *sqliteGroup) Clear() error {
	if g.store.closed.Load() {
		return prefs.ErrClosed
	}
	_, err := g.store.db.Exec("DELETE FROM "+g.store.table+" WHERE grp = ?", g.name)
	return err
}
