package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"myplanner/internal/model"
)

// Export renders the event collection as an iCalendar document so the
// planner can be subscribed to from other calendar clients.
//
// Each instance becomes its own VEVENT; series instances keep their
// deterministic per-instance UIDs, so re-exports after an idempotent
// re-expansion produce stable UIDs. Zero-duration deadlines are emitted
// as point events (DTEND equals DTSTART). A non-empty IANA timezone name
// is advertised as the feed's X-WR-TIMEZONE.
func Export(events []model.Event, now time.Time, timezone string) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	if timezone != "" && timezone != "Local" {
		cal.SetXWRTimezone(timezone)
	}

	for _, e := range events {
		ev := cal.AddEvent(e.ID)
		ev.SetDtStampTime(now)
		ev.SetStartAt(e.Start)
		ev.SetEndAt(e.End)
		ev.SetSummary(e.Title)

		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Link != "" {
			ev.SetURL(e.Link)
		}
		if e.Category != "" {
			ev.SetProperty(ical.ComponentPropertyCategories, e.Category)
		}
	}

	return cal.Serialize()
}
