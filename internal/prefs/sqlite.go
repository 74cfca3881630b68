package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS preferences (
	user_id  TEXT NOT NULL,
	category TEXT NOT NULL,
	name     TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (user_id, category, name)
)`

// SQLiteStore persists preferences to a SQLite database.
//
// One database can hold many users; a store instance reads the rows of the
// user it was opened for.
type SQLiteStore struct {
	db     *sql.DB
	userID string
}

// OpenSQLite opens (creating if needed) the database at path and returns a
// store for userID. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path, userID string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open preference database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create preference schema: %w", err)
	}

	return &SQLiteStore{db: db, userID: userID}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get implements [Store].
func (s *SQLiteStore) Get(category, name string) (string, bool) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM preferences WHERE user_id = ? AND category = ? AND name = ?`,
		s.userID, category, name,
	).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// Save implements [Store]. The batch is applied in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, userID string, prefs []Preference) (err error) {
	if userID == "" {
		return ErrUserRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO preferences (user_id, category, name, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, category, name) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	defer stmt.Close()

	for _, p := range prefs {
		if _, err := stmt.ExecContext(ctx, userID, p.Category, p.Name, p.Value); err != nil {
			return fmt.Errorf("failed to save preference %s/%s: %w", p.Category, p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// List implements [Lister].
func (s *SQLiteStore) List(ctx context.Context) ([]Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, category, name, value FROM preferences WHERE user_id = ? ORDER BY category, name`,
		s.userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	var out []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.UserID, &p.Category, &p.Name, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to list preferences: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
