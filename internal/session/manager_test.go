package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/redactd/internal/detect"
)

func TestManager_Create(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	t.Run("defaults to standard level", func(t *testing.T) {
		sess, err := m.Create(ctx, "", nil)
		require.NoError(t, err)
		assert.Equal(t, detect.LevelStandard, sess.PrivacyLevel)
		assert.NotEmpty(t, sess.ID)
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := m.Create(ctx, "paranoid", nil)
		assert.ErrorIs(t, err, ErrInvalidLevel)
	})

	t.Run("copies metadata", func(t *testing.T) {
		meta := map[string]string{"owner": "cli"}
		sess, err := m.Create(ctx, detect.LevelStrict, meta)
		require.NoError(t, err)
		meta["owner"] = "changed"
		got, err := m.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "cli", got.Metadata["owner"])
	})
}

func TestManager_Get(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, nil)
	ctx := context.Background()

	sess, err := m.Create(ctx, detect.LevelStandard, nil)
	require.NoError(t, err)

	t.Run("returns a detached copy", func(t *testing.T) {
		got, err := m.Get(ctx, sess.ID)
		require.NoError(t, err)
		got.Mint(detect.TypePerson, "John Smith")

		again, err := m.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, again.TokenMappings)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := m.Get(ctx, "c0ffee00-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty ID", func(t *testing.T) {
		_, err := m.Get(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidSessionID)
	})

	t.Run("ID with whitespace", func(t *testing.T) {
		_, err := m.Get(ctx, "bad id")
		assert.ErrorIs(t, err, ErrInvalidSessionID)
	})

	t.Run("loads from store on cache miss", func(t *testing.T) {
		cold := NewManager(store, nil)
		got, err := cold.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
	})
}

func TestManager_Update(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, nil)
	ctx := context.Background()

	sess, err := m.Create(ctx, detect.LevelStandard, nil)
	require.NoError(t, err)

	t.Run("mutation is persisted", func(t *testing.T) {
		err := m.Update(ctx, sess.ID, func(s *Session) error {
			s.Mint(detect.TypePerson, "John Smith")
			return nil
		})
		require.NoError(t, err)

		stored, err := store.Load(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "John Smith", stored.TokenMappings["PERSON_001"])
		assert.True(t, stored.LastUsed.After(sess.LastUsed) || stored.LastUsed.Equal(sess.LastUsed))
	})

	t.Run("callback error skips write-through", func(t *testing.T) {
		boom := errors.New("boom")
		err := m.Update(ctx, sess.ID, func(s *Session) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("concurrent updates keep counters monotonic", func(t *testing.T) {
		sess, err := m.Create(ctx, detect.LevelStandard, nil)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = m.Update(ctx, sess.ID, func(s *Session) error {
					s.Mint(detect.TypePerson, fmt.Sprintf("Person %03d", i))
					return nil
				})
			}(i)
		}
		wg.Wait()

		got, err := m.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Len(t, got.TokenMappings, 50)

		seen := make(map[string]bool)
		for token := range got.TokenMappings {
			assert.False(t, seen[token], "token %s assigned twice", token)
			seen[token] = true
		}
	})
}

func TestManager_Delete(t *testing.T) {
	m := NewManager(nil, nil)
	ctx := context.Background()

	sess, err := m.Create(ctx, detect.LevelStandard, nil)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, sess.ID))
	_, err = m.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	t.Run("deleting absent session is not an error", func(t *testing.T) {
		assert.NoError(t, m.Delete(ctx, sess.ID))
	})
}

// failingStore fails every write to exercise degraded, cache-only mode.
type failingStore struct{ *MemoryStore }

func (f *failingStore) Save(context.Context, *Session) error {
	return errors.New("disk full")
}

func TestManager_StoreFailureDegrades(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	m := NewManager(store, nil)
	ctx := context.Background()

	sess, err := m.Create(ctx, detect.LevelStandard, nil)
	require.NoError(t, err, "create must succeed despite store failure")

	err = m.Update(ctx, sess.ID, func(s *Session) error {
		s.Mint(detect.TypePerson, "John Smith")
		return nil
	})
	require.NoError(t, err, "update must succeed despite store failure")

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", got.TokenMappings["PERSON_001"])
}
