package domain

import "time"

// Interval is a half-open date range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval is non-empty and correctly ordered.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps reports whether two half-open intervals share any instant:
// [a,b) and [c,d) overlap iff a < d and c < b. Back-to-back stays
// (checkout day equals checkin day) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}
