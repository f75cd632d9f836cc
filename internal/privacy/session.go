package privacy

import (
	"strings"
)

// Session owns the mapping and per-category counters of a single mask call.
// A new session starts empty, so numbering never leaks between calls.
type Session struct {
	mapping  *Mapping
	counters map[Category]int
}

// NewSession returns an empty session
func NewSession() *Session {
	return &Session{
		mapping:  NewMapping(),
		counters: make(map[Category]int, len(Categories)),
	}
}

// Assign allocates the next placeholder for a category and records the value
func (s *Session) Assign(c Category, original string) string {
	s.counters[c]++
	placeholder := Placeholder(c, s.counters[c])
	s.mapping.Set(placeholder, original)
	return placeholder
}

// Count returns how many placeholders were assigned for a category
func (s *Session) Count(c Category) int {
	return s.counters[c]
}

// Mapping returns a snapshot of the mapping built so far
func (s *Session) Mapping() *Mapping {
	return s.mapping.Clone()
}

// Contains reports whether value occurs in text outside placeholders
// assigned by this session.
func (s *Session) Contains(text, value string) bool {
	found := false
	s.eachFreeSpan(text, func(span string) string {
		if !found && strings.Contains(span, value) {
			found = true
		}
		return span
	})
	return found
}

// ReplaceAll replaces every occurrence of value outside assigned placeholders
func (s *Session) ReplaceAll(text, value, placeholder string) string {
	return s.eachFreeSpan(text, func(span string) string {
		return strings.ReplaceAll(span, value, placeholder)
	})
}

// eachFreeSpan rewrites the parts of text that are not placeholders issued
// by this session and reassembles the result.
func (s *Session) eachFreeSpan(text string, fn func(string) string) string {
	if s.mapping.Len() == 0 {
		return fn(text)
	}

	var b strings.Builder
	last := 0
	for _, loc := range placeholderToken.FindAllStringIndex(text, -1) {
		if _, ok := s.mapping.Get(text[loc[0]:loc[1]]); !ok {
			continue
		}
		b.WriteString(fn(text[last:loc[0]]))
		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(fn(text[last:]))
	return b.String()
}

// Substitute applies a detection result to text. Categories are visited in
// fixed order and values in detection order; each value still present gets
// the next placeholder of its category and all of its occurrences are
// replaced. Values no longer present are skipped.
func Substitute(text string, detected DetectionResult) (string, *Mapping) {
	session := NewSession()
	masked := text

	for _, c := range Categories {
		for _, value := range detected[c] {
			if value == "" || !session.Contains(masked, value) {
				continue
			}
			placeholder := session.Assign(c, value)
			masked = session.ReplaceAll(masked, value, placeholder)
		}
	}

	return masked, session.Mapping()
}

// Unmask restores original values by replacing every occurrence of each
// placeholder in mapping order. Tokens missing from the mapping are left as is.
func Unmask(text string, mapping *Mapping) string {
	if text == "" || mapping.Len() == 0 {
		return text
	}

	restored := text
	for _, e := range mapping.entries {
		restored = strings.ReplaceAll(restored, e.Placeholder, e.Original)
	}
	return restored
}
