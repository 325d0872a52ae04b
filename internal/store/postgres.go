package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/pkg/db"
)

var _ AccountStore = (*Postgres)(nil)

// Postgres stores documents as JSONB rows.
type Postgres struct {
	pool *db.Pool
}

// NewPostgres runs migrations on pool and returns a store that owns it.
func NewPostgres(ctx context.Context, pool *db.Pool) (*Postgres, error) {
	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id         TEXT PRIMARY KEY,
			seq        BIGSERIAL,
			email_key  TEXT NOT NULL,
			document   JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key_idx ON accounts (email_key);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			device     TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

func (s *Postgres) LoadSession(ctx context.Context, device string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT user_id FROM sessions WHERE device = $1`, device).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	return id, nil
}

func (s *Postgres) SaveSession(ctx context.Context, device, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (device, user_id) VALUES ($1, $2)
		ON CONFLICT (device) DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = NOW()`,
		device, userID)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Postgres) ClearSession(ctx context.Context, device string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE device = $1`, device); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *Postgres) LoadUser(ctx context.Context, id string) (*model.User, error) {
	return scanDocument(s.pool.QueryRow(ctx, `SELECT id, document FROM accounts WHERE id = $1`, id))
}

func (s *Postgres) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanDocument(s.pool.QueryRow(ctx, `SELECT id, document FROM accounts WHERE email_key = $1`, EmailKey(email)))
}

func scanDocument(row pgx.Row) (*model.User, error) {
	var (
		id  string
		doc []byte
	)
	if err := row.Scan(&id, &doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return decodeUser(id, doc)
}

func (s *Postgres) SaveUser(ctx context.Context, user *model.User) error {
	doc, err := encodeUser(user)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email_key, document) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			email_key = EXCLUDED.email_key,
			document = EXCLUDED.document,
			updated_at = NOW()`,
		user.ID, EmailKey(user.Email), string(doc))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("save user %s: %w", user.ID, err)
	}
	return nil
}

func (s *Postgres) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE email_key = $1)`, EmailKey(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM accounts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
