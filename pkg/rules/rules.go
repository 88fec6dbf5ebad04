package rules

import "strings"

// Rule pairs a string predicate with the label emitted when it matches.
type Rule struct {
	Predicate func(string) bool
	Label     string
}

// Classifier evaluates an ordered rule list against a string.
// The first matching rule wins; the fallback label is returned when
// no rule matches.
type Classifier struct {
	rules    []Rule
	fallback string
}

// NewClassifier creates a classifier with the given fallback label and
// ordered rules.
func NewClassifier(fallback string, rules ...Rule) *Classifier {
	return &Classifier{
		rules:    rules,
		fallback: fallback,
	}
}

// Classify returns the label of the first matching rule, or the
// fallback when none match.
func (c *Classifier) Classify(s string) string {
	for _, r := range c.rules {
		if r.Predicate != nil && r.Predicate(s) {
			return r.Label
		}
	}
	return c.fallback
}

// Fallback returns the classifier's fallback label.
func (c *Classifier) Fallback() string {
	return c.fallback
}

// ContainsFold returns a predicate matching strings that contain substr,
// ignoring case.
func ContainsFold(substr string) func(string) bool {
	lowered := strings.ToLower(substr)
	return func(s string) bool {
		return strings.Contains(strings.ToLower(s), lowered)
	}
}

// Contains creates a label rule from a case-insensitive substring match.
// The label doubles as the keyword unless an explicit keyword is needed.
func Contains(substr, label string) Rule {
	return Rule{
		Predicate: ContainsFold(substr),
		Label:     label,
	}
}
