package schedule

import (
	"testing"
	"time"

	"myplanner/internal/model"
)

func TestFindConflict(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	existing := []model.Event{
		mkEvent("e1", base.Add(-2*time.Hour), base.Add(-time.Hour)),
		mkEvent("e2", base.Add(30*time.Minute), base.Add(90*time.Minute)),
		mkEvent("e3", base.Add(45*time.Minute), base.Add(2*time.Hour)),
	}

	candidate := mkEvent("new", base, base.Add(time.Hour))
	got, ok := FindConflict(candidate, existing)
	if !ok {
		t.Fatal("expected a conflict")
	}
	// First match in iteration order wins, even though e3 also overlaps.
	if got.ID != "e2" {
		t.Errorf("conflicting event = %q, want e2", got.ID)
	}
}

func TestFindConflictIgnoresSelf(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	stored := mkEvent("e1", base, base.Add(time.Hour))

	// Re-saving the same event with edits must not conflict with its own
	// stored copy.
	edited := stored
	edited.End = base.Add(2 * time.Hour)

	if _, ok := FindConflict(edited, []model.Event{stored}); ok {
		t.Error("event conflicted with itself")
	}
}

func TestFindConflictNone(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	existing := []model.Event{
		mkEvent("e1", base, base.Add(time.Hour)),
	}
	candidate := mkEvent("new", base.Add(time.Hour), base.Add(2*time.Hour))

	if got, ok := FindConflict(candidate, existing); ok {
		t.Errorf("back-to-back events flagged as conflicting: %q", got.ID)
	}
}

func TestResolvePriorityWins(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	a := mkEvent("a", base, base.Add(time.Hour))
	a.Priority = model.PriorityHigh
	b := mkEvent("b", base.Add(30*time.Minute), base.Add(90*time.Minute))
	b.Priority = model.PriorityLow

	res := Resolve(a, b)
	if res.Kept.ID != "a" {
		t.Fatalf("kept = %q, want a", res.Kept.ID)
	}
	if res.Displaced.ID != "b" {
		t.Fatalf("displaced = %q, want b", res.Displaced.ID)
	}
	// Scenario from the drawing board: B {09:30-10:30, Low} moves to
	// {10:00-11:00} right after A {09:00-10:00, High}.
	if !res.NewStart.Equal(base.Add(time.Hour)) {
		t.Errorf("new start = %v, want %v", res.NewStart, base.Add(time.Hour))
	}
	if !res.NewEnd.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("new end = %v, want %v", res.NewEnd, base.Add(2*time.Hour))
	}

	// Lower-priority first argument: the high-priority event still stays.
	res = Resolve(b, a)
	if res.Kept.ID != "a" {
		t.Errorf("kept = %q, want a even as second argument", res.Kept.ID)
	}
}

func TestResolveTieKeepsFirstArgument(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	a := mkEvent("a", base, base.Add(time.Hour))
	a.Priority = model.PriorityMedium
	b := mkEvent("b", base.Add(30*time.Minute), base.Add(90*time.Minute))
	b.Priority = model.PriorityMedium

	res := Resolve(a, b)
	if res.Kept.ID != "a" {
		t.Errorf("tie must keep the first argument, kept = %q", res.Kept.ID)
	}
}

func TestResolveInvariants(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	a := mkEvent("a", base, base.Add(45*time.Minute))
	b := mkEvent("b", base.Add(15*time.Minute), base.Add(40*time.Minute))

	res := Resolve(a, b)

	if got := res.NewEnd.Sub(res.NewStart); got != b.Duration() {
		t.Errorf("displaced duration changed: %v, want %v", got, b.Duration())
	}

	moved := res.Displaced
	moved.Start = res.NewStart
	moved.End = res.NewEnd
	if Overlaps(res.Kept, moved) {
		t.Error("kept and displaced events still overlap after resolution")
	}
}

func TestValidateProposal(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	a := mkEvent("a", base, base.Add(time.Hour))
	a.Priority = model.PriorityHigh
	b := mkEvent("b", base.Add(30*time.Minute), base.Add(90*time.Minute))

	local := Resolve(a, b)

	tests := []struct {
		name     string
		targetID string
		newStart time.Time
		newEnd   time.Time
		wantOK   bool
	}{
		{
			name:     "matches local computation",
			targetID: "b",
			newStart: base.Add(time.Hour),
			newEnd:   base.Add(2 * time.Hour),
			wantOK:   true,
		},
		{
			name:     "later slot also fine",
			targetID: "b",
			newStart: base.Add(3 * time.Hour),
			newEnd:   base.Add(4 * time.Hour),
			wantOK:   true,
		},
		{
			name:     "wrong event",
			targetID: "a",
			newStart: base.Add(time.Hour),
			newEnd:   base.Add(2 * time.Hour),
			wantOK:   false,
		},
		{
			name:     "duration not preserved",
			targetID: "b",
			newStart: base.Add(time.Hour),
			newEnd:   base.Add(90 * time.Minute),
			wantOK:   false,
		},
		{
			name:     "still overlapping",
			targetID: "b",
			newStart: base.Add(30 * time.Minute),
			newEnd:   base.Add(90 * time.Minute),
			wantOK:   false,
		},
		{
			name:     "end before start",
			targetID: "b",
			newStart: base.Add(2 * time.Hour),
			newEnd:   base.Add(time.Hour),
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProposal(local, tt.targetID, tt.newStart, tt.newEnd)
			if (err == nil) != tt.wantOK {
				t.Errorf("ValidateProposal err = %v, wantOK %v", err, tt.wantOK)
			}
		})
	}
}
