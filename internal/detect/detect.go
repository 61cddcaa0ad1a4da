package detect

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Span is a detected entity occurrence. Spans are transient: they reference
// offsets into the input text of a single Detect call and are never
// persisted.
type Span struct {
	// Start is the byte offset of the first character of the entity.
	Start int

	// End is the byte offset one past the last character.
	End int

	// Text is the matched entity value.
	Text string

	// Type is the entity category.
	Type Type
}

// tokenPattern matches anonymization tokens already present in the text.
// Their regions are claimed up front so re-running detection over tokenized
// output is a no-op for those regions.
var tokenPattern = regexp.MustCompile(`\[[A-Z][A-Z_]*_\d+\]`)

// Detector recognizes sensitive entities using an ordered set of compiled
// matchers. Safe for concurrent use; Detect has no side effects.
type Detector struct {
	matchers []*regexMatcher
}

// New creates a Detector from the configuration. If cfg is nil,
// DefaultConfig() is used.
func New(cfg *Config) (*Detector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	matchers := make([]*regexMatcher, len(cfg.compiled))
	copy(matchers, cfg.compiled)
	sort.SliceStable(matchers, func(i, j int) bool {
		return matchers[i].rule.Priority > matchers[j].rule.Priority
	})

	return &Detector{matchers: matchers}, nil
}

// MustNew creates a Detector, panicking on error.
func MustNew(cfg *Config) *Detector {
	d, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return d
}

// Detect returns the entity spans found in text at the given privacy level,
// ordered by start offset. Spans never overlap each other or existing
// bracketed tokens. Matchers disabled at the level are skipped.
func (d *Detector) Detect(text string, level Level) []Span {
	if text == "" {
		return nil
	}
	if !level.Valid() {
		level = LevelStandard
	}

	claimed := make([]bool, len(text))
	for _, m := range tokenPattern.FindAllStringIndex(text, -1) {
		claim(claimed, m[0], m[1])
	}

	var spans []Span
	for _, matcher := range d.matchers {
		if matcher.rule.Level.rank() > level.rank() {
			continue
		}
		for _, s := range matcher.match(text) {
			if overlaps(claimed, s.Start, s.End) {
				continue
			}
			claim(claimed, s.Start, s.End)
			spans = append(spans, s)
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}

// regexMatcher is the single Matcher implementation; rules are data, not
// code, so new entity types are plain configuration.
type regexMatcher struct {
	rule    Rule
	pattern *regexp.Regexp
}

func (m *regexMatcher) match(text string) []Span {
	matches := m.pattern.FindAllStringSubmatchIndex(text, -1)
	spans := make([]Span, 0, len(matches))
	for _, idx := range matches {
		start, end := idx[0], idx[1]
		if m.rule.Group > 0 {
			start, end = idx[2*m.rule.Group], idx[2*m.rule.Group+1]
			if start < 0 {
				continue
			}
		}

		if m.rule.TrimStopWords {
			var ok bool
			start, ok = trimStopWords(text, start, end)
			if !ok {
				continue
			}
		}

		spans = append(spans, Span{
			Start: start,
			End:   end,
			Text:  text[start:end],
			Type:  m.rule.Type,
		})
	}
	return spans
}

// trimStopWords advances start past leading stop words and reports whether
// at least two words remain. "Call John Smith" becomes "John Smith";
// "Thank You" is rejected outright.
func trimStopWords(text string, start, end int) (int, bool) {
	words := strings.FieldsFunc(text[start:end], unicode.IsSpace)
	offset := start
	for len(words) >= 2 {
		if _, stop := stopWords[words[0]]; !stop {
			break
		}
		cut := strings.Index(text[offset:end], words[1])
		if cut < 0 {
			return start, false
		}
		offset += cut
		words = words[1:]
	}
	if len(words) < 2 {
		return start, false
	}
	return offset, true
}

func claim(claimed []bool, start, end int) {
	for i := start; i < end && i < len(claimed); i++ {
		claimed[i] = true
	}
}

func overlaps(claimed []bool, start, end int) bool {
	for i := start; i < end && i < len(claimed); i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

// TokenPattern exposes the bracketed-token regex for packages that scan
// tokenized text (reconstruction, intelligence).
func TokenPattern() *regexp.Regexp {
	return tokenPattern
}
