package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/vishan-khatavkar/echoes-game/pkg/session"
	"github.com/vishan-khatavkar/echoes-game/pkg/storage"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	username   TEXT PRIMARY KEY,
	level      TEXT NOT NULL,
	inventory  TEXT NOT NULL,
	history    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStorage keeps sessions in a local SQLite file.
type SQLiteStorage struct {
	conn   *sqlx.DB
	logger *slog.Logger
}

// Ensure SQLiteStorage implements Storage interface
var _ storage.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates the database at path.
func NewSQLiteStorage(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer keeps Seed's insert-then-select free of lock errors.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStorage{conn: conn, logger: logger}, nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStorage) Load(ctx context.Context, username string) (*session.Fields, error) {
	var f session.Fields
	err := s.conn.GetContext(ctx, &f,
		`SELECT level, inventory, history FROM sessions WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to load session", "username", username, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &f, nil
}

func (s *SQLiteStorage) Save(ctx context.Context, username string, f session.Fields) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sessions (username, level, inventory, history, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(username) DO UPDATE SET
			level = excluded.level,
			inventory = excluded.inventory,
			history = excluded.history,
			updated_at = excluded.updated_at`,
		username, f.Level, f.Inventory, f.History)
	if err != nil {
		s.logger.Error("Failed to save session", "username", username, "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Seed(ctx context.Context, username string, seed session.Fields) (*session.Fields, bool, error) {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to seed session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (username, level, inventory, history)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO NOTHING`,
		username, seed.Level, seed.Inventory, seed.History)
	if err != nil {
		s.logger.Error("Failed to seed session", "username", username, "error", err)
		return nil, false, fmt.Errorf("failed to seed session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to seed session: %w", err)
	}

	var f session.Fields
	if err := tx.GetContext(ctx, &f,
		`SELECT level, inventory, history FROM sessions WHERE username = ?`, username); err != nil {
		return nil, false, fmt.Errorf("failed to seed session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to seed session: %w", err)
	}
	return &f, n == 1, nil
}

// All returns every stored row keyed by username.
func (s *SQLiteStorage) All(ctx context.Context) (map[string]session.Fields, error) {
	rows := []struct {
		Username string `db:"username"`
		session.Fields
	}{}
	if err := s.conn.SelectContext(ctx, &rows,
		`SELECT username, level, inventory, history FROM sessions ORDER BY username`); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make(map[string]session.Fields, len(rows))
	for _, r := range rows {
		out[r.Username] = r.Fields
	}
	return out, nil
}
