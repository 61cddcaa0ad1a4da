package privacy

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/redactd/internal/detect"
)

// BatchItem is the outcome of one text in a batch. Exactly one of Result
// and Err is set; a failing item never aborts its siblings.
type BatchItem struct {
	Result *DeidentifyResult
	Err    error
}

// BatchResult is the outcome of a whole batch. SessionID names the session
// every item ran against, including one created for the call, so callers can
// reuse it even when individual items failed.
type BatchResult struct {
	SessionID string
	Items     []BatchItem
}

// DeidentifyBatch anonymizes texts against a single session. Detection runs
// on a bounded worker pool; the session-mutating phase is applied serially
// in input order, so the final token assignment matches sequential
// processing of the same texts.
func (s *Service) DeidentifyBatch(ctx context.Context, texts []string, sessionID string) (*BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "privacy.deidentify_batch")
	defer span.End()

	span.SetAttributes(attribute.Int("batch_size", len(texts)))

	resolvedID, level, err := s.resolveSession(ctx, sessionID, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("session_id", resolvedID))

	items := make([]BatchItem, len(texts))
	detected := make([][]detect.Span, len(texts))

	// Phase 1: pure detection, fanned out across the pool. No session
	// state is touched here.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.BatchWorkers)
	for i, text := range texts {
		if err := validateText(text); err != nil {
			items[i].Err = err
			continue
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			detected[i] = s.detector.Detect(text, level)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Phase 2: session mutation, serialized in input order to keep
	// counters monotonic and assignment deterministic.
	failed := 0
	for i, text := range texts {
		if items[i].Err != nil {
			failed++
			continue
		}
		result, err := s.applySpans(ctx, resolvedID, text, detected[i])
		if err != nil {
			items[i].Err = err
			failed++
			continue
		}
		items[i].Result = result
	}

	if s.deidentifyCounter != nil {
		s.deidentifyCounter.Add(ctx, int64(len(texts)-failed), metric.WithAttributes(
			attribute.String("privacy_level", string(level)),
		))
	}
	span.SetAttributes(attribute.Int("failed_items", failed))

	s.logger.Debug("deidentified batch",
		zap.String("session_id", resolvedID),
		zap.Int("items", len(texts)),
		zap.Int("failed", failed),
	)
	return &BatchResult{SessionID: resolvedID, Items: items}, nil
}
