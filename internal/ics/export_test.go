package ics

import (
	"strings"
	"testing"
	"time"

	"myplanner/internal/model"
)

func TestExport(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	events := []model.Event{
		{
			ID:       "e1",
			Title:    "Team Standup",
			Start:    start,
			End:      start.Add(30 * time.Minute),
			Location: "Online",
			Category: "Meeting",
			Priority: model.PriorityMedium,
		},
		{
			ID:       "series-1-1717405200000",
			Title:    "Weekly Review",
			Start:    start.Add(2 * time.Hour),
			End:      start.Add(3 * time.Hour),
			Priority: model.PriorityHigh,

			RecurringEventID: "series-1",
		},
	}

	out := Export(events, now, "Europe/Berlin")

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"END:VCALENDAR",
		"METHOD:PUBLISH",
		"X-WR-TIMEZONE:Europe/Berlin",
		"BEGIN:VEVENT",
		"UID:e1",
		"UID:series-1-1717405200000",
		"SUMMARY:Team Standup",
		"LOCATION:Online",
		"CATEGORIES:Meeting",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q", want)
		}
	}

	if got := strings.Count(out, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("VEVENT count = %d, want 2", got)
	}
}

func TestExportDeadline(t *testing.T) {
	at := time.Date(2024, 6, 5, 17, 0, 0, 0, time.UTC)
	events := []model.Event{
		{ID: "d1", Title: "Submit Proposal", Start: at, End: at, Priority: model.PriorityHigh},
	}

	out := Export(events, at, "Local")

	if !strings.Contains(out, "DTSTART:20240605T170000Z") {
		t.Error("deadline DTSTART missing or wrong")
	}
	if !strings.Contains(out, "DTEND:20240605T170000Z") {
		t.Error("deadline DTEND should equal DTSTART")
	}
	if strings.Contains(out, "X-WR-TIMEZONE") {
		t.Error("local timezone must not be advertised in the feed")
	}
}
