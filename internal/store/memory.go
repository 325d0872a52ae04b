package store

import (
	"context"
	"sync"

	"bankroll-tracker/internal/model"
)

var _ AccountStore = (*Memory)(nil)

// Memory keeps encoded documents in process memory. Documents are stored
// encoded so that callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string][]byte
	emails   map[string]string // email key -> user id
	keys     map[string]string // user id -> email key
	order    []string
	sessions map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string][]byte),
		emails:   make(map[string]string),
		keys:     make(map[string]string),
		sessions: make(map[string]string),
	}
}

func (m *Memory) LoadSession(_ context.Context, device string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sessions[device]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *Memory) SaveSession(_ context.Context, device, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[device] = userID
	return nil
}

func (m *Memory) ClearSession(_ context.Context, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, device)
	return nil
}

func (m *Memory) LoadUser(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	data, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeUser(id, data)
}

func (m *Memory) SaveUser(_ context.Context, user *model.User) error {
	data, err := encodeUser(user)
	if err != nil {
		return err
	}
	key := EmailKey(user.Email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.emails[key]; ok && owner != user.ID {
		return ErrAlreadyExists
	}
	if prev, ok := m.keys[user.ID]; ok {
		delete(m.emails, prev)
	} else {
		m.order = append(m.order, user.ID)
	}
	m.docs[user.ID] = data
	m.emails[key] = user.ID
	m.keys[user.ID] = key
	return nil
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	id, ok := m.emails[EmailKey(email)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.LoadUser(ctx, id)
}

func (m *Memory) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emails[EmailKey(email)]
	return ok, nil
}

func (m *Memory) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
