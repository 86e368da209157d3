package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

func (m *MemoryStore) Get(_ context.Context, sessionID, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[sessionKey(sessionID, key)]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(_ context.Context, sessionID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[sessionKey(sessionID, key)] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, sessionKey(sessionID, key))
	return nil
}

func (m *MemoryStore) Commit(_ context.Context, sessionID string, creds Credentials) error {
	userJSON, err := json.Marshal(creds.User)
	if err != nil {
		return fmt.Errorf("marshal session user failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[sessionKey(sessionID, KeyToken)] = creds.AccessToken
	m.values[sessionKey(sessionID, KeyAccessToken)] = creds.AccessToken
	m.values[sessionKey(sessionID, KeyRefreshToken)] = creds.RefreshToken
	m.values[sessionKey(sessionID, KeyUser)] = string(userJSON)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, sessionKey(sessionID, KeyToken))
	delete(m.values, sessionKey(sessionID, KeyAccessToken))
	delete(m.values, sessionKey(sessionID, KeyRefreshToken))
	delete(m.values, sessionKey(sessionID, KeyUser))
	return nil
}
