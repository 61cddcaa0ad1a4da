package intelligence

import (
	"context"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/redactd/internal/detect"
)

// Request carries anonymized input to a Generator. Only tokens and token
// relationships cross this boundary; original values never do.
type Request struct {
	// SessionID scopes cached intelligence.
	SessionID string `json:"session_id"`

	// Text is tokenized text. Raw entity values must already be replaced.
	Text string `json:"text"`

	// Relationships maps source token -> target token -> relation label.
	Relationships map[string]map[string]string `json:"relationships,omitempty"`

	// Context holds preserved conversational hints from the session.
	Context []string `json:"context,omitempty"`
}

// Response is the intelligence produced for a request.
type Response struct {
	// Intelligence holds the analysis keyed by category.
	Intelligence map[string]any `json:"intelligence"`

	// Confidence is the generator's self-reported confidence in [0, 1].
	// Fallback responses carry 0.0.
	Confidence float64 `json:"confidence"`

	// IntelligenceType names the producer: "heuristic" for the local
	// generator, "fallback" when the dependency was unavailable.
	IntelligenceType string `json:"intelligence_type"`

	// ProcessingTimeMs is wall time spent producing the response.
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// Generator produces intelligence from tokenized text.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// LocalGenerator derives intelligence from token structure alone. It is the
// in-process default when no external intelligence endpoint is configured.
type LocalGenerator struct{}

// NewLocalGenerator creates a LocalGenerator.
func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{}
}

// Generate implements Generator.
func (g *LocalGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byType := make(map[string][]string)
	for _, m := range detect.TokenPattern().FindAllString(req.Text, -1) {
		token := strings.Trim(m, "[]")
		typ := token
		if i := strings.LastIndex(token, "_"); i > 0 {
			typ = token[:i]
		}
		if !contains(byType[typ], token) {
			byType[typ] = append(byType[typ], token)
		}
	}

	intel := make(map[string]any, 3)
	entities := make(map[string][]string, len(byType))
	for typ, tokens := range byType {
		sort.Strings(tokens)
		entities[typ] = tokens
	}
	intel["entities"] = entities

	hints := make([]string, 0, len(req.Relationships))
	for source, targets := range req.Relationships {
		for target, label := range targets {
			hints = append(hints, source+" "+label+" "+target)
		}
	}
	sort.Strings(hints)
	intel["relationship_hints"] = hints

	if len(req.Context) > 0 {
		intel["context_topics"] = append([]string(nil), req.Context...)
	}

	confidence := 0.5
	if len(entities) > 0 {
		confidence = 0.7
	}
	if len(hints) > 0 {
		confidence = 0.85
	}

	return &Response{
		Intelligence:     intel,
		Confidence:       confidence,
		IntelligenceType: "heuristic",
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
