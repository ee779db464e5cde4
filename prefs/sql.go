package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore keeps preferences in one table of a SQLite or Postgres database.
type SQLStore struct {
	db     *sql.DB
	getSQL string
	setSQL string
}

// Open returns the store for driver: "sqlite3", "postgres" or "memory".
func Open(driver, dsn string) (Store, error) {
	if driver == "memory" {
		return NewMemoryStore(), nil
	}
	return NewSQLStore(driver, dsn)
}

func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	var get, set string
	switch driver {
	case "sqlite3":
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		get = `SELECT value FROM preferences WHERE client_id = ? AND key = ?`
		set = `INSERT INTO preferences (client_id, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (client_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	case "postgres":
		get = `SELECT value FROM preferences WHERE client_id = $1 AND key = $2`
		set = `INSERT INTO preferences (client_id, key, value, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (client_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	default:
		return nil, fmt.Errorf("unsupported preference driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS preferences (
		client_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (client_id, key)
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLStore{db: db, getSQL: get, setSQL: set}, nil
}

func (s *SQLStore) Get(ctx context.Context, client string, key Key) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, s.getSQL, client, string(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query preference %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLStore) Set(ctx context.Context, client string, key Key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, s.setSQL, client, string(key), value, now); err != nil {
		return fmt.Errorf("store preference %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
