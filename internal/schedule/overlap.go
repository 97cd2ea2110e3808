package schedule

import "myplanner/internal/model"

// Overlaps reports whether two events occupy intersecting time ranges.
//
// Ranges are half-open: an event ending exactly when another starts does
// not overlap it, so back-to-back events are never flagged as conflicting.
// The predicate is symmetric. A zero-duration deadline (start == end) can
// only overlap a range strictly straddling its instant.
func Overlaps(a, b model.Event) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}
