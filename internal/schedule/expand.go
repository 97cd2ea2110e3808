package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "myplanner/internal/log"
	"myplanner/internal/model"
)

const defaultMaxInstancesPerSeries = 1000

// ErrNotRecurring is returned when ExpandSeries is handed an event whose
// rule does not actually repeat; such saves short-circuit to a plain
// single-event save at the call site.
var ErrNotRecurring = errors.New("schedule: event has no repeating recurrence rule")

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// MaxInstancesPerSeries is a safety cap against runaway rules.
	// If zero, defaultMaxInstancesPerSeries is used.
	MaxInstancesPerSeries int

	// Location is the timezone in which the rule's until date is taken as
	// end-of-day. Nil falls back to the template's own timezone.
	Location *time.Location
}

// ExpandSeries expands a recurring template into its concrete instances.
//
// Starting at the template's own start instant, one instance of the
// template's duration is emitted per frequency unit until the advanced
// instant would pass the rule's until date (inclusive, end-of-day in
// cfg.Location or the template's own timezone). Every instance inherits the template's fields,
// carries seriesID as its RecurringEventID, and gets the deterministic id
// "{seriesID}-{epoch-millis-of-start}" so that re-expanding the same rule
// reproduces the same ids.
//
// Month-end note: expansion follows RFC 5545 semantics as implemented by
// rrule-go. A monthly rule anchored on day 29/30/31 skips months that
// lack that day rather than clamping to the month's last day.
func ExpandSeries(template model.Event, seriesID string, cfg ExpandConfig) ([]model.Event, error) {
	if !template.IsRecurringTemplate() {
		return nil, ErrNotRecurring
	}
	if seriesID == "" {
		return nil, errors.New("schedule: series id is empty")
	}
	if err := model.Validate(template); err != nil {
		return nil, err
	}
	if cfg.MaxInstancesPerSeries <= 0 {
		cfg.MaxInstancesPerSeries = defaultMaxInstancesPerSeries
	}

	freq, err := rruleFreq(template.Recurrence.Freq)
	if err != nil {
		return nil, err
	}

	// Inclusive boundary: 23:59:59 on the until date.
	loc := cfg.Location
	if loc == nil {
		loc = template.Start.Location()
	}
	u := template.Recurrence.Until
	until := time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 0, loc)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    freq,
		Dtstart: template.Start,
		Until:   until,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: build rrule: %w", err)
	}

	starts := r.All()
	if len(starts) > cfg.MaxInstancesPerSeries {
		appLog.Warn("series expansion truncated at cap",
			"series_id", seriesID,
			"cap", cfg.MaxInstancesPerSeries,
			"total", len(starts),
		)
		starts = starts[:cfg.MaxInstancesPerSeries]
	}

	dur := template.Duration()
	instances := make([]model.Event, 0, len(starts))
	for _, start := range starts {
		inst := template
		inst.ID = InstanceID(seriesID, start)
		inst.Start = start
		inst.End = start.Add(dur)
		inst.Recurrence = nil
		inst.RecurringEventID = seriesID
		instances = append(instances, inst)
	}

	appLog.Debug("series expanded",
		"series_id", seriesID,
		"instances", len(instances),
		"freq", string(template.Recurrence.Freq),
	)
	return instances, nil
}

// InstanceID derives the deterministic id of one series instance from the
// series id and the instance's start instant.
func InstanceID(seriesID string, start time.Time) string {
	return fmt.Sprintf("%s-%d", seriesID, start.UnixMilli())
}

func rruleFreq(f model.Freq) (rrule.Frequency, error) {
	switch f {
	case model.FreqDaily:
		return rrule.DAILY, nil
	case model.FreqWeekly:
		return rrule.WEEKLY, nil
	case model.FreqMonthly:
		return rrule.MONTHLY, nil
	default:
		return 0, fmt.Errorf("schedule: unsupported recurrence freq %q", f)
	}
}
