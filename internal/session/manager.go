package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/redactd/internal/detect"
)

// Manager is a write-through cache over a Store. Each cached session owns a
// mutex; Update runs its callback under that lock so token counters and
// relationship maps are never mutated concurrently. Different sessions
// proceed in parallel.
//
// Store write failures degrade to cache-only operation with a logged
// warning: availability is favored over durability for session state that
// can be regenerated.
type Manager struct {
	store  Store
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

// NewManager creates a Manager over the given store. A nil store falls back
// to in-memory-only operation.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Create mints a new session with the given privacy level and metadata and
// persists it. An empty level defaults to standard.
func (m *Manager) Create(ctx context.Context, level detect.Level, metadata map[string]string) (*Session, error) {
	if level == "" {
		level = detect.LevelStandard
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}

	sess := New(uuid.NewString(), level)
	if len(metadata) > 0 {
		sess.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			sess.Metadata[k] = v
		}
	}

	m.mu.Lock()
	m.entries[sess.ID] = &entry{sess: sess}
	m.mu.Unlock()

	m.save(ctx, sess)

	m.logger.Info("created session",
		zap.String("session_id", sess.ID),
		zap.String("privacy_level", string(level)),
	)
	return sess.Clone(), nil
}

// Get returns a read-only deep copy of the session. Returns ErrNotFound for
// unknown IDs.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone(), nil
}

// Update runs fn on the session under its mutation lock, then touches the
// last-used timestamp and writes through to the store. If fn returns an
// error the session is left untouched by the write-through.
func (m *Manager) Update(ctx context.Context, id string, fn func(*Session) error) error {
	e, err := m.lookup(ctx, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.sess); err != nil {
		return err
	}
	e.sess.Touch()
	m.save(ctx, e.sess)
	return nil
}

// Delete removes the session from cache and store. Deletion is always an
// explicit external operation; sessions never expire on their own.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// lookup resolves the cache entry for id, loading from the store on a miss.
func (m *Manager) lookup(ctx context.Context, id string) (*entry, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	// Load outside the cache lock; session I/O must not serialize
	// unrelated sessions.
	sess, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		// Lost the race with a concurrent load; keep the cached entry.
		return e, nil
	}
	e := &entry{sess: sess}
	m.entries[id] = e
	return e, nil
}

// save writes through to the store, degrading to cache-only on failure.
func (m *Manager) save(ctx context.Context, sess *Session) {
	if err := m.store.Save(ctx, sess); err != nil {
		m.logger.Warn("session store write failed, continuing in-memory",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
}

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSessionID)
	}
	if len(id) > 128 {
		return fmt.Errorf("%w: exceeds 128 characters", ErrInvalidSessionID)
	}
	if strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidSessionID)
	}
	return nil
}
