package privacy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/redactd/internal/detect"
	"github.com/fyrsmithlabs/redactd/internal/relation"
	"github.com/fyrsmithlabs/redactd/internal/session"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(
		nil,
		detect.MustNew(nil),
		relation.NewDetector(nil),
		session.NewManager(nil, nil),
		nil,
	)
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	t.Run("requires detector", func(t *testing.T) {
		_, err := NewService(nil, nil, nil, session.NewManager(nil, nil), nil)
		assert.Error(t, err)
	})

	t.Run("requires session manager", func(t *testing.T) {
		_, err := NewService(nil, detect.MustNew(nil), nil, nil, nil)
		assert.Error(t, err)
	})
}

func TestService_Deidentify(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("tokenizes person and project", func(t *testing.T) {
		result, err := svc.Deidentify(ctx, &DeidentifyRequest{
			Text: "Call John Smith about Project Alpha",
		})
		require.NoError(t, err)
		assert.Equal(t, "Call [PERSON_001] about [PROJECT_001]", result.Text)
		assert.Equal(t, map[string]string{
			"PERSON_001":  "John Smith",
			"PROJECT_001": "Project Alpha",
		}, result.TokenMap)
		assert.NotEmpty(t, result.SessionID)
	})

	t.Run("reuses tokens and links email", func(t *testing.T) {
		first, err := svc.Deidentify(ctx, &DeidentifyRequest{
			Text: "Call John Smith about Project Alpha",
		})
		require.NoError(t, err)

		second, err := svc.Deidentify(ctx, &DeidentifyRequest{
			Text:      "Email John Smith at john.smith@example.com",
			SessionID: first.SessionID,
		})
		require.NoError(t, err)
		assert.Equal(t, "Email [PERSON_001] at [EMAIL_001]", second.Text)
		assert.Equal(t, "John Smith", second.TokenMap["PERSON_001"], "token must be reused")
		assert.Equal(t, "john.smith@example.com", second.TokenMap["EMAIL_001"])

		sess, err := svc.GetSession(ctx, first.SessionID)
		require.NoError(t, err)
		rel := sess.Relationships["PERSON_001"]
		require.NotNil(t, rel)
		assert.Equal(t, "has_email", rel.Relationships["EMAIL_001"])
	})

	t.Run("same entity yields same token across calls", func(t *testing.T) {
		first, err := svc.Deidentify(ctx, &DeidentifyRequest{Text: "Ping Jane Doe today"})
		require.NoError(t, err)

		second, err := svc.Deidentify(ctx, &DeidentifyRequest{
			Text:      "Did Jane Doe reply?",
			SessionID: first.SessionID,
		})
		require.NoError(t, err)
		assert.Equal(t, first.TokenMap, second.TokenMap)
	})

	t.Run("counters are monotonic and never reused", func(t *testing.T) {
		first, err := svc.Deidentify(ctx, &DeidentifyRequest{Text: "Meet John Smith and Jane Doe"})
		require.NoError(t, err)
		assert.Equal(t, "John Smith", first.TokenMap["PERSON_001"])
		assert.Equal(t, "Jane Doe", first.TokenMap["PERSON_002"])

		second, err := svc.Deidentify(ctx, &DeidentifyRequest{
			Text:      "Also invite Jim Beam",
			SessionID: first.SessionID,
		})
		require.NoError(t, err)
		assert.Equal(t, "Jim Beam", second.TokenMap["PERSON_003"])
	})

	t.Run("idempotent over tokenized text", func(t *testing.T) {
		first, err := svc.Deidentify(ctx, &DeidentifyRequest{Text: "Call John Smith about Project Alpha"})
		require.NoError(t, err)

		again, err := svc.Deidentify(ctx, &DeidentifyRequest{
			Text:      first.Text,
			SessionID: first.SessionID,
		})
		require.NoError(t, err)
		assert.Equal(t, first.Text, again.Text)
		assert.Empty(t, again.TokenMap)
	})

	t.Run("privacy level override narrows detection", func(t *testing.T) {
		result, err := svc.Deidentify(ctx, &DeidentifyRequest{
			Text:         "Call John Smith at john@example.com",
			PrivacyLevel: detect.LevelMinimal,
		})
		require.NoError(t, err)
		assert.Equal(t, "Call John Smith at [EMAIL_001]", result.Text)
	})

	t.Run("unknown session fails with NotFound", func(t *testing.T) {
		_, err := svc.Deidentify(ctx, &DeidentifyRequest{
			Text:      "Call John Smith",
			SessionID: "c0ffee00-dead-beef-0000-000000000000",
		})
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("empty text is a validation error", func(t *testing.T) {
		_, err := svc.Deidentify(ctx, &DeidentifyRequest{Text: "   "})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("invalid level is a validation error", func(t *testing.T) {
		_, err := svc.Deidentify(ctx, &DeidentifyRequest{
			Text:         "Call John Smith",
			PrivacyLevel: "paranoid",
		})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestService_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	texts := []string{
		"Call John Smith about Project Alpha",
		"Email Jane Doe at jane.doe@example.com or 555-867-5309",
		"John Smith met Jane Doe",
	}

	for _, text := range texts {
		result, err := svc.Deidentify(ctx, &DeidentifyRequest{Text: text})
		require.NoError(t, err)

		back, err := svc.Reconstruct(ctx, result.Text, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, text, back.Text)
		assert.Empty(t, back.UnresolvedTokens)
	}
}

func TestService_Reconstruct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Deidentify(ctx, &DeidentifyRequest{Text: "Call John Smith today"})
	require.NoError(t, err)

	t.Run("unknown tokens degrade gracefully", func(t *testing.T) {
		back, err := svc.Reconstruct(ctx, "Meet [PERSON_001] and [PERSON_999]", result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "Meet John Smith and [PERSON_999]", back.Text)
		assert.Equal(t, []string{"PERSON_999"}, back.UnresolvedTokens)
	})

	t.Run("repeated unknown token reported once", func(t *testing.T) {
		back, err := svc.Reconstruct(ctx, "[X_001] then [X_001]", result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, []string{"X_001"}, back.UnresolvedTokens)
	})

	t.Run("text without tokens passes through", func(t *testing.T) {
		back, err := svc.Reconstruct(ctx, "no tokens here", result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "no tokens here", back.Text)
		assert.Empty(t, back.UnresolvedTokens)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := svc.Reconstruct(ctx, "[PERSON_001]", "c0ffee00-dead-beef-0000-000000000000")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestService_Sessions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		sess, err := svc.CreateSession(ctx, detect.LevelStrict, map[string]string{"origin": "test"})
		require.NoError(t, err)

		got, err := svc.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, detect.LevelStrict, got.PrivacyLevel)
		assert.Equal(t, "test", got.Metadata["origin"])
	})

	t.Run("invalid level maps to validation error", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, "paranoid", nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("delete", func(t *testing.T) {
		sess, err := svc.CreateSession(ctx, detect.LevelStandard, nil)
		require.NoError(t, err)
		require.NoError(t, svc.DeleteSession(ctx, sess.ID))
		_, err = svc.GetSession(ctx, sess.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}
