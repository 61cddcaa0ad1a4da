package detect

import (
	"fmt"
	"regexp"
)

// Type classifies a detected entity. The value doubles as the token prefix
// (PERSON_001, EMAIL_002, ...), so it must match ^[A-Z][A-Z_]*$.
type Type string

// Built-in entity types.
const (
	TypePerson   Type = "PERSON"
	TypeEmail    Type = "EMAIL"
	TypePhone    Type = "PHONE"
	TypeLocation Type = "LOCATION"
	TypeProject  Type = "PROJECT"
)

// Level selects how aggressive detection is. Higher levels enable
// additional matchers on top of the lower ones.
type Level string

const (
	// LevelMinimal detects only unambiguous identifiers (emails, phones).
	LevelMinimal Level = "minimal"

	// LevelStandard adds names and project identifiers.
	LevelStandard Level = "standard"

	// LevelStrict adds locations and custom rules.
	LevelStrict Level = "strict"
)

// rank orders levels for matcher-subset selection.
func (l Level) rank() int {
	switch l {
	case LevelMinimal:
		return 1
	case LevelStandard:
		return 2
	case LevelStrict:
		return 3
	default:
		return 0
	}
}

// Valid reports whether the level is one of the known values.
func (l Level) Valid() bool {
	return l.rank() > 0
}

// typePattern validates entity types supplied through configuration.
var typePattern = regexp.MustCompile(`^[A-Z][A-Z_]*$`)

// Config configures the detector.
type Config struct {
	// Rules defines the detection rules. Order is irrelevant; matchers run
	// by descending Priority.
	Rules []Rule `koanf:"rules"`

	// compiled matchers (populated by Validate), sorted by priority.
	compiled []*regexMatcher
}

// Rule defines one entity detection rule.
type Rule struct {
	// ID is the unique identifier for this rule
	ID string `koanf:"id"`

	// Type is the entity category this rule detects (token prefix)
	Type Type `koanf:"type"`

	// Pattern is the regex matching the entity
	Pattern string `koanf:"pattern"`

	// Group selects a capture group as the entity span (0 = whole match)
	Group int `koanf:"group"`

	// Priority orders rules; higher runs first and claims text regions
	Priority int `koanf:"priority"`

	// Level is the least aggressive privacy level that enables this rule
	Level Level `koanf:"level"`

	// TrimStopWords removes leading sentence words ("Call", "Meet", ...)
	// from matches and rejects matches reduced below two words. Used by
	// name rules that anchor on capitalization.
	TrimStopWords bool `koanf:"trim_stop_words"`
}

// DefaultConfig returns a configuration with the standard entity rules.
func DefaultConfig() *Config {
	return &Config{Rules: DefaultRules()}
}

// Validate validates and compiles the configuration.
func (c *Config) Validate() error {
	if len(c.Rules) == 0 {
		c.Rules = DefaultRules()
	}

	seen := make(map[string]struct{}, len(c.Rules))
	c.compiled = make([]*regexMatcher, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("rule %s: duplicate ID", rule.ID)
		}
		seen[rule.ID] = struct{}{}

		if !typePattern.MatchString(string(rule.Type)) {
			return fmt.Errorf("rule %s: invalid entity type %q", rule.ID, rule.Type)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		if rule.Level == "" {
			rule.Level = LevelStandard
		}
		if !rule.Level.Valid() {
			return fmt.Errorf("rule %s: invalid level %q", rule.ID, rule.Level)
		}

		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		if rule.Group < 0 || rule.Group > pattern.NumSubexp() {
			return fmt.Errorf("rule %s: capture group %d out of range", rule.ID, rule.Group)
		}

		c.compiled = append(c.compiled, &regexMatcher{
			rule:    rule,
			pattern: pattern,
		})
	}

	return nil
}
