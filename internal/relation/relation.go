// Package relation infers typed links between anonymization tokens that
// co-occur in a call. Inference only ever sees tokens, entity types, span
// offsets, and the original values already held by the owning session;
// nothing here leaves the process.
package relation

import (
	"strings"

	"github.com/fyrsmithlabs/redactd/internal/detect"
)

// Entity is one tokenized occurrence within a single deidentify call. Start
// and End are offsets into the call's input text, used by the proximity
// heuristic.
type Entity struct {
	Token    string
	Type     detect.Type
	Start    int
	End      int
	Original string
}

// Link is a directed labeled edge between two tokens.
type Link struct {
	Source     string
	SourceType detect.Type
	Target     string
	Label      string
}

// PairRule links co-occurring tokens of a source and target type.
type PairRule struct {
	Source detect.Type `koanf:"source"`
	Target detect.Type `koanf:"target"`
	Label  string      `koanf:"label"`
}

// Config configures relationship inference.
type Config struct {
	// ProximityWindow is the maximum gap in bytes between two entity spans
	// for the generic "related" heuristic. Zero disables the heuristic.
	ProximityWindow int `koanf:"proximity_window"`

	// Rules overrides the default type-pair rule table when non-empty.
	Rules []PairRule `koanf:"rules"`
}

// DefaultConfig returns the standard rule table and proximity window.
func DefaultConfig() *Config {
	return &Config{ProximityWindow: 120}
}

// DefaultPairRules returns the built-in type-pair rule table.
func DefaultPairRules() []PairRule {
	return []PairRule{
		{Source: detect.TypePerson, Target: detect.TypeEmail, Label: "has_email"},
		{Source: detect.TypePerson, Target: detect.TypePhone, Label: "has_phone"},
		{Source: detect.TypeProject, Target: detect.TypePerson, Label: "has_member"},
		{Source: detect.TypePerson, Target: detect.TypeLocation, Label: "located_in"},
		{Source: detect.TypeProject, Target: detect.TypeLocation, Label: "based_in"},
	}
}

// Detector applies the rule table, the name/email cross-reference, and the
// proximity heuristic, in that order. Stateless and safe for concurrent use.
type Detector struct {
	rules  map[[2]detect.Type]string
	window int
}

// NewDetector creates a Detector. If cfg is nil, DefaultConfig() is used.
func NewDetector(cfg *Config) *Detector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultPairRules()
	}

	table := make(map[[2]detect.Type]string, len(rules))
	for _, r := range rules {
		table[[2]detect.Type{r.Source, r.Target}] = r.Label
	}
	return &Detector{rules: table, window: cfg.ProximityWindow}
}

// Infer returns the links implied by the entities of one call. Duplicate
// edges between the same token pair are collapsed; the first applicable rule
// wins, and the proximity heuristic only fires for pairs no explicit rule
// covered.
func (d *Detector) Infer(entities []Entity) []Link {
	var links []Link
	seen := make(map[string]struct{})

	add := func(source Entity, target Entity, label string) {
		if source.Token == target.Token {
			return
		}
		key := source.Token + "\x00" + target.Token
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, Link{
			Source:     source.Token,
			SourceType: source.Type,
			Target:     target.Token,
			Label:      label,
		})
	}

	// Type-pair rule table.
	for i, a := range entities {
		for j, b := range entities {
			if i == j {
				continue
			}
			if label, ok := d.rules[[2]detect.Type{a.Type, b.Type}]; ok {
				add(a, b, label)
			}
		}
	}

	// Name fragments appearing in an email local part tie the person to
	// the address even when a custom rule table dropped the generic pair.
	for _, a := range entities {
		if a.Type != detect.TypePerson {
			continue
		}
		for _, b := range entities {
			if b.Type != detect.TypeEmail {
				continue
			}
			if emailMatchesName(b.Original, a.Original) {
				add(a, b, "has_email")
			}
		}
	}

	// Proximity fallback for pairs without an explicit rule.
	if d.window > 0 {
		for i, a := range entities {
			for j, b := range entities {
				if i >= j {
					continue
				}
				if _, ruled := d.rules[[2]detect.Type{a.Type, b.Type}]; ruled {
					continue
				}
				if _, ruled := d.rules[[2]detect.Type{b.Type, a.Type}]; ruled {
					continue
				}
				if gap(a, b) <= d.window {
					add(a, b, "related")
				}
			}
		}
	}

	return links
}

// gap is the distance in bytes between two non-overlapping spans.
func gap(a, b Entity) int {
	switch {
	case a.End <= b.Start:
		return b.Start - a.End
	case b.End <= a.Start:
		return a.Start - b.End
	default:
		return 0
	}
}

// emailMatchesName reports whether the email's local part contains a
// normalized fragment of the person's name (at least three characters, to
// keep initials from matching everything).
func emailMatchesName(email, name string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return false
	}
	local := strings.ToLower(email[:at])

	for _, fragment := range strings.Fields(strings.ToLower(name)) {
		if len(fragment) >= 3 && strings.Contains(local, fragment) {
			return true
		}
	}
	return false
}
