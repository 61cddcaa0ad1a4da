// Package detect provides pattern-based recognition of sensitive entities
// in free text.
//
// Detection is a pure function of the input text and the compiled matcher
// set: matchers run in priority order, spans never overlap, and regions
// already holding anonymization tokens are never re-claimed. New entity
// types are added through configuration rules without touching the
// detection loop.
package detect
