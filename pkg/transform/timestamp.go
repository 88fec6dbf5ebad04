package transform

import (
	"strings"
	"time"
)

// displayLayout is the fixed-width local display format. The .000
// fraction truncates (floors) sub-millisecond digits, and zero-padding
// keeps the rendered strings lexicographically sortable.
const displayLayout = "2006-01-02 15:04:05.000"

// Normalizer converts absolute UTC instants into local display strings
// with millisecond precision.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer creates a normalizer for the named IANA zone.
func NewNormalizer(zoneName string) (*Normalizer, error) {
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return nil, err
	}
	return &Normalizer{loc: loc}, nil
}

// NewNormalizerIn creates a normalizer bound to an already-resolved
// location.
func NewNormalizerIn(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Location returns the normalizer's target zone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// ToLocalMillis converts an ISO-8601 UTC instant into the local display
// form "YYYY-MM-DD HH:MM:SS.mmm ZONE". Empty and unparsable inputs
// degrade to the empty string; they never fail the request.
func (n *Normalizer) ToLocalMillis(iso string) string {
	if iso == "" {
		return ""
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return ""
	}

	local := t.In(n.loc)
	return local.Format(displayLayout) + " " + local.Format("MST")
}

// ParseDisplay parses a display string previously produced by
// ToLocalMillis back into a wall-clock time for duration math. The
// zone label is ignored: both operands of a subtraction carry the same
// zone, so the offset cancels. Failure is reported through ok, never a
// panic.
func ParseDisplay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	parts := strings.SplitN(s, " ", 3)
	if len(parts) < 2 {
		return time.Time{}, false
	}

	t, err := time.Parse(displayLayout, parts[0]+" "+parts[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
