// Package intelligence bridges anonymized text to an intelligence generator
// behind a circuit breaker. The bridge never propagates generator failures:
// every call yields a usable response, falling back to cached or minimal
// intelligence when the dependency is slow, failing, or circuit-broken.
package intelligence

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/redactd/internal/breaker"
)

const instrumentationName = "github.com/fyrsmithlabs/redactd/internal/intelligence"

// BreakerName is the registry key guarding the intelligence dependency.
const BreakerName = "token_intelligence"

// Config configures the Bridge.
type Config struct {
	// Timeout bounds a single generator call (default: 2s).
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 2 * time.Second,
	}
}

// Bridge calls a Generator through a circuit breaker and caches the last
// successful response per session for degraded operation.
type Bridge struct {
	config    *Config
	generator Generator
	breakers  *breaker.Registry
	logger    *zap.Logger

	tracer          trace.Tracer
	meter           metric.Meter
	requestCounter  metric.Int64Counter
	fallbackCounter metric.Int64Counter

	mu        sync.RWMutex
	lastKnown map[string]*Response
}

// NewBridge creates a Bridge. A nil generator defaults to the local
// heuristic generator; a nil registry gets a private one.
func NewBridge(cfg *Config, generator Generator, breakers *breaker.Registry, logger *zap.Logger) *Bridge {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if generator == nil {
		generator = NewLocalGenerator()
	}
	if breakers == nil {
		breakers = breaker.NewRegistry(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bridge{
		config:    cfg,
		generator: generator,
		breakers:  breakers,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
		lastKnown: make(map[string]*Response),
	}
	b.initMetrics()
	return b
}

// initMetrics initializes OpenTelemetry metrics.
func (b *Bridge) initMetrics() {
	var err error

	b.requestCounter, err = b.meter.Int64Counter(
		"redactd.intelligence.requests_total",
		metric.WithDescription("Total intelligence requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		b.logger.Warn("failed to create request counter", zap.Error(err))
	}

	b.fallbackCounter, err = b.meter.Int64Counter(
		"redactd.intelligence.fallbacks_total",
		metric.WithDescription("Intelligence requests served by fallback"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		b.logger.Warn("failed to create fallback counter", zap.Error(err))
	}
}

// GenerateIntelligence produces intelligence for tokenized text. It never
// returns an error: breaker rejection, generator failure, and timeout all
// degrade to the last known response for the session, or to a minimal
// fallback when none exists.
func (b *Bridge) GenerateIntelligence(ctx context.Context, req *Request) *Response {
	ctx, span := b.tracer.Start(ctx, "intelligence.generate")
	defer span.End()

	start := time.Now()
	span.SetAttributes(attribute.String("session_id", req.SessionID))
	if b.requestCounter != nil {
		b.requestCounter.Add(ctx, 1)
	}

	brk := b.breakers.Get(BreakerName)
	if err := brk.Allow(); err != nil {
		b.logger.Debug("intelligence circuit open, serving fallback",
			zap.String("session_id", req.SessionID))
		return b.fallback(ctx, req.SessionID, start, "circuit_open")
	}

	resp, err := b.call(ctx, req)
	if err != nil {
		brk.RecordFailure()
		b.logger.Warn("intelligence generation failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return b.fallback(ctx, req.SessionID, start, "error")
	}
	brk.RecordSuccess()

	resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	b.remember(req.SessionID, resp)
	span.SetAttributes(attribute.String("intelligence_type", resp.IntelligenceType))
	return resp
}

// call runs the generator under the configured timeout. The generator
// goroutine is handed a cancelable context so it can stop early; a result
// arriving after the deadline is dropped.
func (b *Bridge) call(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	type outcome struct {
		resp *Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := b.generator.Generate(ctx, req)
		done <- outcome{resp, err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fallback serves the last known response for the session, or a minimal
// zero-confidence response when the session has none.
func (b *Bridge) fallback(ctx context.Context, sessionID string, start time.Time, reason string) *Response {
	if b.fallbackCounter != nil {
		b.fallbackCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	b.mu.RLock()
	cached := b.lastKnown[sessionID]
	b.mu.RUnlock()

	if cached != nil {
		resp := *cached
		resp.IntelligenceType = "fallback"
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()
		return &resp
	}
	return &Response{
		Intelligence:     map[string]any{},
		Confidence:       0.0,
		IntelligenceType: "fallback",
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func (b *Bridge) remember(sessionID string, resp *Response) {
	if sessionID == "" {
		return
	}
	b.mu.Lock()
	b.lastKnown[sessionID] = resp
	b.mu.Unlock()
}

// Forget drops cached intelligence for a session, called on session delete.
func (b *Bridge) Forget(sessionID string) {
	b.mu.Lock()
	delete(b.lastKnown, sessionID)
	b.mu.Unlock()
}
