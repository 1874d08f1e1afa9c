package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// MemoryStoreOption customises the in-memory store.
type MemoryStoreOption func(*memoryStore)

// WithSessionSnapshot seeds the store with a session record.
func WithSessionSnapshot(snapshot *SessionSnapshot) MemoryStoreOption {
	return func(m *memoryStore) {
		m.session = snapshot.Clone()
	}
}

// WithPermissionSnapshot seeds the store with a permission record.
func WithPermissionSnapshot(snapshot *PermissionSnapshot) MemoryStoreOption {
	return func(m *memoryStore) {
		m.permissions = snapshot.Clone()
	}
}

type memoryStore struct {
	mu          sync.RWMutex
	session     *SessionSnapshot
	permissions *PermissionSnapshot
}

func (m *memoryStore) LoadSession(_ context.Context) (*SessionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone(), nil
}

func (m *memoryStore) SaveSession(_ context.Context, snapshot *SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = snapshot.Clone()
	return nil
}

func (m *memoryStore) LoadPermissions(_ context.Context) (*PermissionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.permissions.Clone(), nil
}

func (m *memoryStore) SavePermissions(_ context.Context, snapshot *PermissionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions = snapshot.Clone()
	return nil
}

func (m *memoryStore) Token(_ context.Context) (*oauth2.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, false
	}
	token := m.session.Token
	return &token, true
}

func (m *memoryStore) SetAccessToken(_ context.Context, access string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	m.session.Token.AccessToken = access
	m.session.Token.Expiry = expiry
	return nil
}

func (m *memoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.permissions = nil
	return nil
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(options ...MemoryStoreOption) Store {
	ret := &memoryStore{}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}
