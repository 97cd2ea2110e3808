package store

import (
	"path/filepath"
	"testing"
	"time"

	"myplanner/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func testEvent(id string, start time.Time, dur time.Duration) model.Event {
	return model.Event{
		ID:       id,
		Title:    "Event " + id,
		Start:    start,
		End:      start.Add(dur),
		Priority: model.PriorityNone,
	}
}

func TestUpsertAssignsID(t *testing.T) {
	s := testStore(t)
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	saved, err := s.Upsert(testEvent("", base, time.Hour))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("Upsert did not assign an id")
	}
	if got, ok := s.Get(saved.ID); !ok || got.Title != saved.Title {
		t.Fatalf("Get(%q) = %+v, %v", saved.ID, got, ok)
	}
}

func TestUpsertReplacesByID(t *testing.T) {
	s := testStore(t)
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	if _, err := s.Upsert(testEvent("e1", base, time.Hour)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	edited := testEvent("e1", base.Add(time.Hour), 30*time.Minute)
	if _, err := s.Upsert(edited); err != nil {
		t.Fatalf("Upsert edit: %v", err)
	}

	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	got, _ := s.Get("e1")
	if !got.Start.Equal(edited.Start) {
		t.Errorf("stored start = %v, want %v", got.Start, edited.Start)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ev := testEvent("e1", base, time.Hour)
	ev.RecurringEventID = "series-1"
	if _, err := s.Upsert(ev); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Ids and series ids must survive a save/reload cycle unchanged;
	// idempotent re-expansion depends on it.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := s2.Get("e1")
	if !ok {
		t.Fatal("event lost across reopen")
	}
	if got.RecurringEventID != "series-1" {
		t.Errorf("series id = %q, want series-1", got.RecurringEventID)
	}
}

func TestReplaceSeriesRemovesStaleInstances(t *testing.T) {
	s := testStore(t)
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	old := make([]model.Event, 0, 4)
	for i := 0; i < 4; i++ {
		e := testEvent("", base.AddDate(0, 0, 7*i), time.Hour)
		e.ID = "series-1-" + e.Start.Format("20060102")
		e.RecurringEventID = "series-1"
		old = append(old, e)
	}
	if err := s.ReplaceSeries("series-1", old); err != nil {
		t.Fatalf("ReplaceSeries: %v", err)
	}

	other := testEvent("standalone", base.Add(48*time.Hour), time.Hour)
	if _, err := s.Upsert(other); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// Shrink the series to 2 instances; the stale 2 must vanish.
	if err := s.ReplaceSeries("series-1", old[:2]); err != nil {
		t.Fatalf("ReplaceSeries shrink: %v", err)
	}

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3 (2 series + 1 standalone)", s.Len())
	}
	if _, ok := s.Get("standalone"); !ok {
		t.Error("standalone event removed by series replace")
	}
	if _, ok := s.Get(old[3].ID); ok {
		t.Error("stale series instance survived the replace")
	}
}

func TestDeleteFollowing(t *testing.T) {
	s := testStore(t)
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	instances := make([]model.Event, 0, 4)
	for i := 0; i < 4; i++ {
		e := testEvent("", base.AddDate(0, 0, 7*i), time.Hour)
		e.ID = "s1-" + e.Start.Format("20060102")
		e.RecurringEventID = "s1"
		instances = append(instances, e)
	}
	if err := s.ReplaceSeries("s1", instances); err != nil {
		t.Fatalf("ReplaceSeries: %v", err)
	}

	removed, err := s.DeleteFollowing(instances[2].ID)
	if err != nil {
		t.Fatalf("DeleteFollowing: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2 (instance 2 and 3)", removed)
	}
	if _, ok := s.Get(instances[1].ID); !ok {
		t.Error("earlier instance removed by DeleteFollowing")
	}
	if _, ok := s.Get(instances[3].ID); ok {
		t.Error("later instance survived DeleteFollowing")
	}
}

func TestDeleteFollowingStandalone(t *testing.T) {
	s := testStore(t)
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	if _, err := s.Upsert(testEvent("e1", base, time.Hour)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	removed, err := s.DeleteFollowing("e1")
	if err != nil {
		t.Fatalf("DeleteFollowing: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestMarkAutoNotifiedMonotonic(t *testing.T) {
	s := testStore(t)
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	if _, err := s.Upsert(testEvent("e1", base, time.Hour)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.MarkAutoNotified("e1"); err != nil {
		t.Fatalf("MarkAutoNotified: %v", err)
	}
	if err := s.MarkAutoNotified("e1"); err != nil {
		t.Fatalf("second MarkAutoNotified: %v", err)
	}
	got, _ := s.Get("e1")
	if !got.AutoNotified {
		t.Error("AutoNotified not set")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := testStore(t)
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	if _, err := s.Upsert(testEvent("e1", base, time.Hour)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	snap := s.Snapshot()
	if _, err := s.Delete("e1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(snap) != 1 || snap[0].ID != "e1" {
		t.Error("snapshot mutated by a later delete")
	}
}
