package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/redactd/internal/detect"
)

// EntityRelation holds the typed, labeled edges from one token to others
// within the same session.
type EntityRelation struct {
	// Type is the entity category of the source token.
	Type detect.Type `json:"type"`

	// Relationships maps target token -> relation label.
	Relationships map[string]string `json:"relationships"`
}

// Session is the unit of token-assignment consistency. All fields with JSON
// tags form the persisted record; inverse mappings and per-type counters are
// derived and rebuilt on load.
//
// A Session is not safe for concurrent mutation on its own; the Manager
// serializes access through a per-session lock.
type Session struct {
	ID            string                     `json:"session_id"`
	CreatedAt     time.Time                  `json:"created_at"`
	LastUsed      time.Time                  `json:"last_used"`
	PrivacyLevel  detect.Level               `json:"privacy_level"`
	TokenMappings map[string]string          `json:"token_mappings"`
	Relationships map[string]*EntityRelation `json:"entity_relationships"`
	Context       []string                   `json:"preserved_context"`
	Metadata      map[string]string          `json:"metadata,omitempty"`

	// inverse maps original value -> token for O(1) reuse lookup.
	inverse map[string]string

	// counters tracks the highest minted suffix per type prefix. Suffixes
	// only ever increase; mappings are immutable once created, so the
	// maximum survives load/save round trips.
	counters map[detect.Type]int
}

// New creates an empty session with the given privacy level.
func New(id string, level detect.Level) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:            id,
		CreatedAt:     now,
		LastUsed:      now,
		PrivacyLevel:  level,
		TokenMappings: make(map[string]string),
		Relationships: make(map[string]*EntityRelation),
		Context:       []string{},
		inverse:       make(map[string]string),
		counters:      make(map[detect.Type]int),
	}
}

// TokenFor returns the token already assigned to the exact entity value.
// Reuse keys on the exact string: "John Smith" and "john smith" are
// distinct entities.
func (s *Session) TokenFor(value string) (string, bool) {
	token, ok := s.inverse[value]
	return token, ok
}

// Mint assigns the next token of the given type to value and records the
// mapping. The numeric suffix is strictly increasing per type and is never
// reused within the session's lifetime.
func (s *Session) Mint(typ detect.Type, value string) string {
	s.counters[typ]++
	token := fmt.Sprintf("%s_%03d", typ, s.counters[typ])
	s.TokenMappings[token] = value
	s.inverse[value] = token
	return token
}

// Original resolves a token back to its original value.
func (s *Session) Original(token string) (string, bool) {
	value, ok := s.TokenMappings[token]
	return value, ok
}

// AddRelationship records a directed labeled edge between two tokens.
// Existing edges are never overwritten; the call reports whether a new edge
// was added. Both tokens must already exist in the mapping table.
func (s *Session) AddRelationship(source string, typ detect.Type, target, label string) bool {
	if _, ok := s.TokenMappings[source]; !ok {
		return false
	}
	if _, ok := s.TokenMappings[target]; !ok {
		return false
	}

	rel, ok := s.Relationships[source]
	if !ok {
		rel = &EntityRelation{Type: typ, Relationships: make(map[string]string)}
		s.Relationships[source] = rel
	}
	if _, exists := rel.Relationships[target]; exists {
		return false
	}
	rel.Relationships[target] = label
	return true
}

// Touch updates the last-used timestamp.
func (s *Session) Touch() {
	s.LastUsed = time.Now().UTC()
}

// Clone returns a deep copy, used for read-only views handed outside the
// manager's lock.
func (s *Session) Clone() *Session {
	c := &Session{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		LastUsed:      s.LastUsed,
		PrivacyLevel:  s.PrivacyLevel,
		TokenMappings: make(map[string]string, len(s.TokenMappings)),
		Relationships: make(map[string]*EntityRelation, len(s.Relationships)),
		Context:       append([]string(nil), s.Context...),
		inverse:       make(map[string]string, len(s.inverse)),
		counters:      make(map[detect.Type]int, len(s.counters)),
	}
	for k, v := range s.TokenMappings {
		c.TokenMappings[k] = v
	}
	for k, v := range s.inverse {
		c.inverse[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	for token, rel := range s.Relationships {
		cp := &EntityRelation{Type: rel.Type, Relationships: make(map[string]string, len(rel.Relationships))}
		for t, l := range rel.Relationships {
			cp.Relationships[t] = l
		}
		c.Relationships[token] = cp
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// rehydrate rebuilds the derived inverse map and per-type counters from the
// persisted token mappings. Called after unmarshaling a stored record.
func (s *Session) rehydrate() {
	if s.TokenMappings == nil {
		s.TokenMappings = make(map[string]string)
	}
	if s.Relationships == nil {
		s.Relationships = make(map[string]*EntityRelation)
	}
	if s.Context == nil {
		s.Context = []string{}
	}
	s.inverse = make(map[string]string, len(s.TokenMappings))
	s.counters = make(map[detect.Type]int)
	for token, value := range s.TokenMappings {
		s.inverse[value] = token
		typ, n, ok := splitToken(token)
		if !ok {
			continue
		}
		if n > s.counters[typ] {
			s.counters[typ] = n
		}
	}
}

// splitToken parses TYPE_NNN into its prefix and numeric suffix.
func splitToken(token string) (detect.Type, int, bool) {
	i := strings.LastIndex(token, "_")
	if i <= 0 || i == len(token)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(token[i+1:])
	if err != nil {
		return "", 0, false
	}
	return detect.Type(token[:i]), n, true
}

// decode unmarshals a persisted record and rebuilds derived state.
func decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	s.rehydrate()
	return &s, nil
}

// encode marshals the persisted record.
func (s *Session) encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}
