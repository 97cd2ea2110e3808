package schedule

import (
	"errors"
	"time"

	"myplanner/internal/model"
)

// FindConflict returns the first stored event that overlaps the candidate,
// in collection iteration order. An event never conflicts with itself
// (same id), and re-saving one instance of a series never conflicts with
// its siblings' stale copy of the same instance.
//
// Bulk series saves bypass conflict detection entirely; callers expanding
// a template go straight to the store's series replace.
func FindConflict(candidate model.Event, existing []model.Event) (model.Event, bool) {
	for _, e := range existing {
		if e.ID == candidate.ID {
			continue
		}
		if Overlaps(e, candidate) {
			return e, true
		}
	}
	return model.Event{}, false
}

// Resolution describes the outcome of resolving two conflicting events:
// Kept stays where it is, Displaced is proposed to move to
// [NewStart, NewEnd).
type Resolution struct {
	Kept      model.Event
	Displaced model.Event
	NewStart  time.Time
	NewEnd    time.Time
}

// Resolve decides which of two conflicting events keeps its slot and
// computes a new slot for the other.
//
// The higher-priority event stays put; on a tie the first argument,
// conventionally the event currently being saved, wins, favoring the
// user's current edit. The displaced event is placed back-to-back after
// the kept one, preserving its original duration. Per the half-open
// overlap rule the two no longer conflict.
func Resolve(a, b model.Event) Resolution {
	kept, displaced := a, b
	if b.Priority.Rank() > a.Priority.Rank() {
		kept, displaced = b, a
	}

	newStart := kept.End
	return Resolution{
		Kept:      kept,
		Displaced: displaced,
		NewStart:  newStart,
		NewEnd:    newStart.Add(displaced.Duration()),
	}
}

var (
	errProposalWrongEvent  = errors.New("schedule: proposal targets an event other than the displaced one")
	errProposalDuration    = errors.New("schedule: proposal does not preserve the displaced event's duration")
	errProposalOverlaps    = errors.New("schedule: proposed slot still overlaps the kept event")
)

// ValidateProposal checks an externally supplied displacement, typically
// from the AI suggestion collaborator, against the invariants the local
// computation guarantees: it must target the displaced event, preserve its
// duration, and not overlap the kept event. External proposals are
// untrusted input; callers fall back to Resolve's slot when this fails.
func ValidateProposal(local Resolution, targetID string, newStart, newEnd time.Time) error {
	if targetID != local.Displaced.ID {
		return errProposalWrongEvent
	}
	if newEnd.Before(newStart) {
		return errProposalDuration
	}
	if newEnd.Sub(newStart) != local.Displaced.Duration() {
		return errProposalDuration
	}

	moved := local.Displaced
	moved.Start = newStart
	moved.End = newEnd
	if Overlaps(local.Kept, moved) {
		return errProposalOverlaps
	}
	return nil
}
