// Package store persists user documents and per-device session pointers.
//
// Every driver stores a user as one JSON document keyed by id, replaced
// wholesale on each save. Email addresses are unique case-insensitively.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"bankroll-tracker/internal/config"
	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/pkg/db"
)

var (
	// ErrNotFound indicates a missing (or unreadable) record.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates an email already owned by another user.
	ErrAlreadyExists = errors.New("record already exists")
)

// AccountStore is the persistence boundary used by the services.
type AccountStore interface {
	// LoadSession returns the user id logged in on device, or ErrNotFound.
	LoadSession(ctx context.Context, device string) (string, error)
	SaveSession(ctx context.Context, device, userID string) error
	// ClearSession removes the device's pointer. Clearing an absent
	// session is not an error.
	ClearSession(ctx context.Context, device string) error

	LoadUser(ctx context.Context, id string) (*model.User, error)
	// SaveUser inserts or replaces the whole document.
	SaveUser(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	// ListUserIDs returns every account id, oldest first.
	ListUserIDs(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// EmailKey normalises an email address for uniqueness checks.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func encodeUser(u *model.User) ([]byte, error) {
	if u == nil || u.ID == "" {
		return nil, fmt.Errorf("encode user: missing id")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode user %s: %w", u.ID, err)
	}
	return data, nil
}

// decodeUser parses a stored document. Unreadable documents are logged and
// reported as ErrNotFound so callers never act on partial data.
func decodeUser(id string, data []byte) (*model.User, error) {
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("Discarding corrupt user document")
		return nil, ErrNotFound
	}
	if u.ID == "" || (id != "" && u.ID != id) {
		log.Warn().Str("user_id", id).Str("document_id", u.ID).Msg("Discarding user document with mismatched id")
		return nil, ErrNotFound
	}
	if u.Bets == nil {
		u.Bets = []model.Bet{}
	}
	return &u, nil
}

// Open returns the driver selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (AccountStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory account store, data is lost on exit")
		return NewMemory(), nil
	case config.DriverSQLite:
		return NewSQLite(ctx, cfg.Store.SQLitePath)
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		s, err := NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
