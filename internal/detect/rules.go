package detect

// DefaultRules returns the standard entity detection rules.
//
// Priority order matters: self-identifying formats (emails, phones) run
// before keyword-anchored rules (projects, locations), which run before the
// capitalization heuristic for person names. Once a higher-priority rule
// claims a region, lower-priority rules skip it.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "email-address",
			Type:     TypeEmail,
			Pattern:  `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
			Priority: 100,
			Level:    LevelMinimal,
		},
		{
			ID:       "phone-number",
			Type:     TypePhone,
			Pattern:  `(?:\+?\d{1,2}[\s.-]?)?(?:\(\d{3}\)|\d{3})[\s.-]\d{3}[\s.-]\d{4}`,
			Priority: 90,
			Level:    LevelMinimal,
		},
		{
			ID:       "project-name",
			Type:     TypeProject,
			Pattern:  `\bProject\s+[A-Z][A-Za-z0-9]+\b|\b[A-Z][A-Za-z0-9]+\s+[Pp]roject\b`,
			Priority: 80,
			Level:    LevelStandard,
		},
		{
			ID:       "location-preposition",
			Type:     TypeLocation,
			Pattern:  `\b(?:in|near)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`,
			Group:    1,
			Priority: 70,
			Level:    LevelStrict,
		},
		{
			ID:            "person-name",
			Type:          TypePerson,
			Pattern:       `\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`,
			Priority:      60,
			Level:         LevelStandard,
			TrimStopWords: true,
		},
	}
}

// stopWords are sentence-leading words the capitalization heuristic must
// not swallow into a person name ("Call John Smith" -> "John Smith").
var stopWords = map[string]struct{}{
	"A": {}, "An": {}, "The": {}, "This": {}, "That": {},
	"Call": {}, "Email": {}, "Meet": {}, "Contact": {}, "Tell": {},
	"Ask": {}, "Ping": {}, "See": {}, "Thank": {}, "Thanks": {},
	"Please": {}, "Dear": {}, "Hi": {}, "Hello": {}, "Regards": {},
	"From": {}, "To": {}, "About": {}, "With": {}, "For": {},
	"Did": {}, "Does": {}, "Is": {}, "Was": {}, "Has": {}, "Have": {},
	"Can": {}, "Will": {}, "Would": {}, "Could": {}, "Should": {},
	"Monday": {}, "Tuesday": {}, "Wednesday": {}, "Thursday": {},
	"Friday": {}, "Saturday": {}, "Sunday": {},
	"January": {}, "February": {}, "March": {}, "April": {}, "May": {},
	"June": {}, "July": {}, "August": {}, "September": {}, "October": {},
	"November": {}, "December": {},
}
