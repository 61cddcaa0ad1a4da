package privacy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/redactd/internal/detect"
	"github.com/fyrsmithlabs/redactd/internal/relation"
	"github.com/fyrsmithlabs/redactd/internal/session"
)

const instrumentationName = "github.com/fyrsmithlabs/redactd/internal/privacy"

// Config configures the privacy service.
type Config struct {
	// DefaultLevel applies when neither the request nor an existing
	// session specifies a privacy level (default: standard).
	DefaultLevel detect.Level `koanf:"default_level"`

	// BatchWorkers bounds parallel detection in DeidentifyBatch
	// (default: 4).
	BatchWorkers int `koanf:"batch_workers"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultLevel: detect.LevelStandard,
		BatchWorkers: 4,
	}
}

// Service implements the anonymization operations exposed to collaborators.
type Service struct {
	config    *Config
	detector  *detect.Detector
	relations *relation.Detector
	sessions  *session.Manager
	logger    *zap.Logger

	tracer            trace.Tracer
	meter             metric.Meter
	deidentifyCounter metric.Int64Counter
	tokenCounter      metric.Int64Counter
}

// NewService creates a privacy service.
func NewService(cfg *Config, detector *detect.Detector, relations *relation.Detector, sessions *session.Manager, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = detect.LevelStandard
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 4
	}
	if detector == nil {
		return nil, errors.New("detector is required")
	}
	if relations == nil {
		relations = relation.NewDetector(nil)
	}
	if sessions == nil {
		return nil, errors.New("session manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		config:    cfg,
		detector:  detector,
		relations: relations,
		sessions:  sessions,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *Service) initMetrics() {
	var err error

	s.deidentifyCounter, err = s.meter.Int64Counter(
		"redactd.privacy.deidentify_total",
		metric.WithDescription("Total number of deidentify calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		s.logger.Warn("failed to create deidentify counter", zap.Error(err))
	}

	s.tokenCounter, err = s.meter.Int64Counter(
		"redactd.privacy.tokens_minted_total",
		metric.WithDescription("Total number of tokens minted"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		s.logger.Warn("failed to create token counter", zap.Error(err))
	}
}

// CreateSession creates a session with the given privacy level and metadata.
func (s *Service) CreateSession(ctx context.Context, level detect.Level, metadata map[string]string) (*session.Session, error) {
	ctx, span := s.tracer.Start(ctx, "privacy.create_session")
	defer span.End()

	sess, err := s.sessions.Create(ctx, level, metadata)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, session.ErrInvalidLevel) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("session_id", sess.ID))
	return sess, nil
}

// GetSession returns a read-only view of the session.
func (s *Service) GetSession(ctx context.Context, id string) (*session.Session, error) {
	ctx, span := s.tracer.Start(ctx, "privacy.get_session")
	defer span.End()

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sess, nil
}

// DeleteSession removes a session. Deletion is always explicit; no session
// expires on its own.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "privacy.delete_session")
	defer span.End()

	if err := s.sessions.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// DeidentifyRequest is the input to Deidentify.
type DeidentifyRequest struct {
	// Text is the free text to anonymize.
	Text string `json:"text"`

	// SessionID scopes token assignment. Empty creates a new session;
	// an unknown non-empty ID fails with session.ErrNotFound.
	SessionID string `json:"session_id,omitempty"`

	// PrivacyLevel overrides the session's level for this call only.
	PrivacyLevel detect.Level `json:"privacy_level,omitempty"`
}

// DeidentifyResult is the output of Deidentify.
type DeidentifyResult struct {
	// Text is the tokenized text.
	Text string `json:"text"`

	// TokenMap holds the mappings added or reused by this call.
	TokenMap map[string]string `json:"token_map"`

	// SessionID identifies the owning session (newly created when the
	// request carried none).
	SessionID string `json:"session_id"`
}

// Deidentify replaces detected entities in the text with session-stable
// tokens and merges inferred relationships into the session.
func (s *Service) Deidentify(ctx context.Context, req *DeidentifyRequest) (*DeidentifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "privacy.deidentify")
	defer span.End()

	if err := validateText(req.Text); err != nil {
		span.RecordError(err)
		return nil, err
	}

	sessionID, level, err := s.resolveSession(ctx, req.SessionID, req.PrivacyLevel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("privacy_level", string(level)),
	)

	// Detection is pure and runs outside the session lock.
	spans := s.detector.Detect(req.Text, level)

	result, err := s.applySpans(ctx, sessionID, req.Text, spans)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.deidentifyCounter != nil {
		s.deidentifyCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("privacy_level", string(level)),
		))
	}
	span.SetAttributes(attribute.Int("entities", len(spans)))

	s.logger.Debug("deidentified text",
		zap.String("session_id", sessionID),
		zap.Int("entities", len(spans)),
		zap.String("privacy_level", string(level)),
	)
	return result, nil
}

// resolveSession maps the request's session ID and level override to a
// concrete session and the detection level for this call. An empty ID
// creates a session; an unknown ID is the caller's error.
func (s *Service) resolveSession(ctx context.Context, id string, override detect.Level) (string, detect.Level, error) {
	if override != "" && !override.Valid() {
		return "", "", fmt.Errorf("%w: invalid privacy level %q", ErrValidation, override)
	}

	if id == "" {
		level := override
		if level == "" {
			level = s.config.DefaultLevel
		}
		sess, err := s.sessions.Create(ctx, level, nil)
		if err != nil {
			return "", "", err
		}
		return sess.ID, level, nil
	}

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	level := override
	if level == "" {
		level = sess.PrivacyLevel
	}
	return sess.ID, level, nil
}

// applySpans performs the serialized, session-mutating phase: token reuse
// and minting, reverse-order substitution, and relationship merge.
func (s *Service) applySpans(ctx context.Context, sessionID, text string, spans []detect.Span) (*DeidentifyResult, error) {
	result := &DeidentifyResult{
		SessionID: sessionID,
		TokenMap:  make(map[string]string, len(spans)),
	}

	err := s.sessions.Update(ctx, sessionID, func(sess *session.Session) error {
		entities := make([]relation.Entity, 0, len(spans))
		tokens := make([]string, len(spans))
		minted := 0

		// Tokens are assigned in text order so numbering follows first
		// occurrence.
		for i, sp := range spans {
			token, ok := sess.TokenFor(sp.Text)
			if !ok {
				token = sess.Mint(sp.Type, sp.Text)
				minted++
			}
			tokens[i] = token
			result.TokenMap[token] = sp.Text
			entities = append(entities, relation.Entity{
				Token:    token,
				Type:     sp.Type,
				Start:    sp.Start,
				End:      sp.End,
				Original: sp.Text,
			})
		}

		// Substitute from the highest offset down so earlier span
		// offsets stay valid while the buffer shrinks and grows.
		out := text
		for i := len(spans) - 1; i >= 0; i-- {
			sp := spans[i]
			out = out[:sp.Start] + "[" + tokens[i] + "]" + out[sp.End:]
		}
		result.Text = out

		for _, link := range s.relations.Infer(entities) {
			sess.AddRelationship(link.Source, link.SourceType, link.Target, link.Label)
		}

		if s.tokenCounter != nil && minted > 0 {
			s.tokenCounter.Add(ctx, int64(minted))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrivacy, err)
	}
	return result, nil
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text is empty", ErrValidation)
	}
	return nil
}
