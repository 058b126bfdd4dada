package domain

import (
	"slices"
	"strings"
)

// DefaultSensitiveFields are screened when no explicit set is configured.
var DefaultSensitiveFields = []string{"password", "pwd", "secret", "salary"}

// SensitiveFieldSet is an immutable set of lower-cased substrings that must
// never appear anywhere in query text.
type SensitiveFieldSet struct {
	fields []string
}

// NewSensitiveFieldSet lower-cases, trims and de-duplicates fields. Empty entries are dropped.
func NewSensitiveFieldSet(fields ...string) SensitiveFieldSet {
	var set []string
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" && !slices.Contains(set, f) {
			set = append(set, f)
		}
	}
	slices.Sort(set)
	return SensitiveFieldSet{fields: set}
}

// DefaultSensitiveFieldSet returns a set built from DefaultSensitiveFields.
func DefaultSensitiveFieldSet() SensitiveFieldSet {
	return NewSensitiveFieldSet(DefaultSensitiveFields...)
}

// With returns a new set containing the receiver's members and fields.
func (s SensitiveFieldSet) With(fields ...string) SensitiveFieldSet {
	return NewSensitiveFieldSet(append(s.Fields(), fields...)...)
}

// Fields returns a copy of the members in sorted order.
func (s SensitiveFieldSet) Fields() []string {
	return slices.Clone(s.fields)
}

// Len reports the number of members.
func (s SensitiveFieldSet) Len() int {
	return len(s.fields)
}

// Matches reports whether any member occurs in text, ignoring case.
func (s SensitiveFieldSet) Matches(text string) bool {
	lowered := strings.ToLower(text)
	for _, f := range s.fields {
		if strings.Contains(lowered, f) {
			return true
		}
	}
	return false
}
