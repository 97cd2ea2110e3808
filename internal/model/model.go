package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority ranks events for conflict resolution. Higher rank wins the slot.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
	PriorityNone   Priority = "None"
)

// Rank maps a priority onto its numeric ordering: High(3) > Medium(2) >
// Low(1) > None(0). Unknown values rank as None.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Freq is the recurrence frequency of a template event.
type Freq string

const (
	FreqNone    Freq = "none"
	FreqDaily   Freq = "daily"
	FreqWeekly  Freq = "weekly"
	FreqMonthly Freq = "monthly"
)

// RecurrenceRule is present only on the template event that originates a
// series. Until is an inclusive end date, interpreted as end-of-day in the
// template's own timezone.
type RecurrenceRule struct {
	Freq  Freq      `json:"freq" yaml:"freq"`
	Until time.Time `json:"until,omitempty" yaml:"until,omitempty"`
}

// Event is a single calendar entry. Instances produced from a recurring
// template share a RecurringEventID; standalone events have none.
type Event struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Priority    Priority `json:"priority"`

	Location     string `json:"location,omitempty"`
	Link         string `json:"link,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`

	// AutoNotified is set once an alert fires for this instance and is
	// never cleared; the evaluator skips instances that carry it.
	AutoNotified          bool `json:"auto_notified"`
	ProximityAlertEnabled bool `json:"proximity_alert_enabled"`

	Recurrence       *RecurrenceRule `json:"recurrence,omitempty"`
	RecurringEventID string          `json:"recurring_event_id,omitempty"`
}

// Duration returns End - Start. Zero-duration deadlines return 0.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// IsDeadline reports whether the event is a zero-duration point event.
func (e Event) IsDeadline() bool {
	return e.End.Equal(e.Start)
}

// IsRecurringTemplate reports whether the event carries a recurrence rule
// that actually repeats.
func (e Event) IsRecurringTemplate() bool {
	return e.Recurrence != nil && e.Recurrence.Freq != FreqNone && e.Recurrence.Freq != ""
}

// HasContact reports whether an alert for this event can offer a
// "notify contact" action.
func (e Event) HasContact() bool {
	return e.ContactEmail != "" || e.ContactPhone != ""
}

// Coordinates is a position sample from the host's position source.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

var (
	ErrEmptyTitle       = errors.New("model: event title is empty")
	ErrEndBeforeStart   = errors.New("model: event ends before it starts")
	ErrUntilBeforeStart = errors.New("model: recurrence until precedes event start")
)

// Validate checks the invariants a save must satisfy. Zero-duration events
// (deadlines) are allowed; negative durations are not.
func Validate(e Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrEmptyTitle
	}
	if e.End.Before(e.Start) {
		return ErrEndBeforeStart
	}
	if e.Recurrence != nil {
		switch e.Recurrence.Freq {
		case FreqNone, FreqDaily, FreqWeekly, FreqMonthly, "":
		default:
			return fmt.Errorf("model: unknown recurrence freq %q", e.Recurrence.Freq)
		}
		if e.IsRecurringTemplate() {
			if e.Recurrence.Until.IsZero() {
				return errors.New("model: recurrence rule has no until date")
			}
			if e.Recurrence.Until.Before(startOfDay(e.Start)) {
				return ErrUntilBeforeStart
			}
		}
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
