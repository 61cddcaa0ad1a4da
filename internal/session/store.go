package session

import (
	"context"
	"sync"
)

// Store is the durable load/save boundary. Implementations must return
// ErrNotFound from Load when the session does not exist and must tolerate
// concurrent calls for different session IDs.
type Store interface {
	// Load retrieves a session by ID.
	Load(ctx context.Context, id string) (*Session, error)

	// Save persists a session record, replacing any existing record.
	Save(ctx context.Context, s *Session) error

	// Delete removes a session record. Deleting an absent session is not
	// an error.
	Delete(ctx context.Context, id string) error

	// Close releases store resources.
	Close() error
}

// MemoryStore is a Store backed by a process-local map. It serves tests and
// the best-effort mode where durability is intentionally disabled.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Load retrieves a session by ID.
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

// Save persists a session record.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	data, err := s.encode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.ID] = data
	m.mu.Unlock()
	return nil
}

// Delete removes a session record.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

// Compile-time check.
var _ Store = (*MemoryStore)(nil)
