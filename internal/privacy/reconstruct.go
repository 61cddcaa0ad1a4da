package privacy

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/redactd/internal/detect"
)

// ReconstructResult is the output of Reconstruct.
type ReconstructResult struct {
	// Text is the input with every known token replaced by its original
	// value. Unknown tokens are left in place.
	Text string `json:"text"`

	// UnresolvedTokens lists tokens that had no mapping in the session,
	// in order of first occurrence.
	UnresolvedTokens []string `json:"unresolved_tokens"`
}

// Reconstruct resolves bracketed tokens back to their original values using
// the session's mappings. Unknown tokens degrade gracefully: they stay in
// the text and are reported, never raised.
func (s *Service) Reconstruct(ctx context.Context, text, sessionID string) (*ReconstructResult, error) {
	ctx, span := s.tracer.Start(ctx, "privacy.reconstruct")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &ReconstructResult{UnresolvedTokens: []string{}}

	// Single linear pass: copy the segments between matches and splice in
	// originals, never rescanning the buffer.
	matches := detect.TokenPattern().FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		result.Text = text
		return result, nil
	}

	var out strings.Builder
	out.Grow(len(text))
	seen := make(map[string]struct{})
	last := 0
	for _, m := range matches {
		out.WriteString(text[last:m[0]])
		token := text[m[0]+1 : m[1]-1]
		if value, ok := sess.Original(token); ok {
			out.WriteString(value)
		} else {
			out.WriteString(text[m[0]:m[1]])
			if _, dup := seen[token]; !dup {
				seen[token] = struct{}{}
				result.UnresolvedTokens = append(result.UnresolvedTokens, token)
			}
		}
		last = m[1]
	}
	out.WriteString(text[last:])
	result.Text = out.String()

	span.SetAttributes(
		attribute.Int("tokens", len(matches)),
		attribute.Int("unresolved", len(result.UnresolvedTokens)),
	)
	s.logger.Debug("reconstructed text",
		zap.String("session_id", sessionID),
		zap.Int("tokens", len(matches)),
		zap.Int("unresolved", len(result.UnresolvedTokens)),
	)
	return result, nil
}
