package privacy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/redactd/internal/detect"
	"github.com/fyrsmithlabs/redactd/internal/relation"
	"github.com/fyrsmithlabs/redactd/internal/session"
)

func TestService_DeidentifyBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("processes items against one session", func(t *testing.T) {
		svc := newTestService(t)
		result, err := svc.DeidentifyBatch(ctx, []string{
			"Call John Smith about Project Alpha",
			"Email John Smith at john.smith@example.com",
		}, "")
		require.NoError(t, err)
		require.Len(t, result.Items, 2)

		require.NoError(t, result.Items[0].Err)
		require.NoError(t, result.Items[1].Err)
		assert.Equal(t, "Call [PERSON_001] about [PROJECT_001]", result.Items[0].Result.Text)
		assert.Equal(t, "Email [PERSON_001] at [EMAIL_001]", result.Items[1].Result.Text)
		assert.Equal(t, result.SessionID, result.Items[0].Result.SessionID)
		assert.Equal(t, result.SessionID, result.Items[1].Result.SessionID)
	})

	t.Run("failing item does not abort siblings", func(t *testing.T) {
		svc := newTestService(t)
		result, err := svc.DeidentifyBatch(ctx, []string{
			"Call John Smith",
			"   ",
			"Email jane@example.com",
		}, "")
		require.NoError(t, err)
		require.Len(t, result.Items, 3)

		assert.NoError(t, result.Items[0].Err)
		assert.ErrorIs(t, result.Items[1].Err, ErrValidation)
		assert.Nil(t, result.Items[1].Result)
		require.NoError(t, result.Items[2].Err)
		assert.Equal(t, "Email [EMAIL_001]", result.Items[2].Result.Text)
	})

	t.Run("session id reported even when every item fails", func(t *testing.T) {
		svc := newTestService(t)
		result, err := svc.DeidentifyBatch(ctx, []string{"", "   "}, "")
		require.NoError(t, err)
		require.Len(t, result.Items, 2)
		assert.Error(t, result.Items[0].Err)
		assert.Error(t, result.Items[1].Err)

		require.NotEmpty(t, result.SessionID)
		_, err = svc.GetSession(ctx, result.SessionID)
		assert.NoError(t, err, "the created session must be reusable")
	})

	t.Run("unknown session fails the batch", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.DeidentifyBatch(ctx, []string{"Call John Smith"},
			"c0ffee00-dead-beef-0000-000000000000")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("empty batch", func(t *testing.T) {
		svc := newTestService(t)
		result, err := svc.DeidentifyBatch(ctx, nil, "")
		require.NoError(t, err)
		assert.Empty(t, result.Items)
		assert.NotEmpty(t, result.SessionID)
	})
}

// TestService_DeidentifyBatch_Deterministic checks that batch token
// assignment matches sequential processing of the same texts, regardless of
// worker count.
func TestService_DeidentifyBatch_Deterministic(t *testing.T) {
	ctx := context.Background()

	texts := make([]string, 100)
	for i := range texts {
		texts[i] = fmt.Sprintf("Call Joh%c Smith about Project Item%d", 'a'+rune(i%26), i)
	}

	sequential := func() []string {
		svc := newTestService(t)
		sess, err := svc.CreateSession(ctx, detect.LevelStandard, nil)
		require.NoError(t, err)
		out := make([]string, len(texts))
		for i, text := range texts {
			result, err := svc.Deidentify(ctx, &DeidentifyRequest{Text: text, SessionID: sess.ID})
			require.NoError(t, err)
			out[i] = result.Text
		}
		return out
	}()

	for _, workers := range []int{1, 4, 16} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			svc, err := NewService(
				&Config{BatchWorkers: workers},
				detect.MustNew(nil),
				relation.NewDetector(nil),
				session.NewManager(nil, nil),
				nil,
			)
			require.NoError(t, err)

			sess, err := svc.CreateSession(ctx, detect.LevelStandard, nil)
			require.NoError(t, err)

			result, err := svc.DeidentifyBatch(ctx, texts, sess.ID)
			require.NoError(t, err)
			require.Len(t, result.Items, len(texts))
			assert.Equal(t, sess.ID, result.SessionID)
			for i, item := range result.Items {
				require.NoError(t, item.Err)
				assert.Equal(t, sequential[i], item.Result.Text, "text %d", i)
			}
		})
	}
}
