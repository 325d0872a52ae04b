package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"bankroll-tracker/internal/model"
)

var _ AccountStore = (*SQLite)(nil)

// SQLite stores documents in a single local database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and runs migrations.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: conn}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite account store opened")
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id         TEXT PRIMARY KEY,
			email_key  TEXT NOT NULL UNIQUE,
			document   TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_created ON accounts(created_at)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			device     TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) LoadSession(ctx context.Context, device string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM sessions WHERE device = ?`, device).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	return id, nil
}

func (s *SQLite) SaveSession(ctx context.Context, device, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (device, user_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(device) DO UPDATE SET user_id = excluded.user_id, updated_at = excluded.updated_at`,
		device, userID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLite) ClearSession(ctx context.Context, device string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE device = ?`, device); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SQLite) LoadUser(ctx context.Context, id string) (*model.User, error) {
	return s.queryUser(ctx, id, `SELECT id, document FROM accounts WHERE id = ?`, id)
}

func (s *SQLite) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.queryUser(ctx, "", `SELECT id, document FROM accounts WHERE email_key = ?`, EmailKey(email))
}

func (s *SQLite) queryUser(ctx context.Context, want, query string, arg any) (*model.User, error) {
	var (
		id  string
		doc []byte
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&id, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if want == "" {
		want = id
	}
	return decodeUser(want, doc)
}

func (s *SQLite) SaveUser(ctx context.Context, user *model.User) error {
	doc, err := encodeUser(user)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email_key, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email_key = excluded.email_key,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		user.ID, EmailKey(user.Email), string(doc), now, now)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return ErrAlreadyExists
		}
		return fmt.Errorf("save user %s: %w", user.ID, err)
	}
	return nil
}

func (s *SQLite) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE email_key = ?)`, EmailKey(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (s *SQLite) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM accounts ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
