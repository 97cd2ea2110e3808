package alert

import (
	"context"
	"sync"
	"time"

	appLog "myplanner/internal/log"
	"myplanner/internal/metrics"
	"myplanner/internal/model"
)

// PositionSource supplies position samples on demand. Implementations may
// fail or time out; the evaluator degrades by skipping location gating for
// that cycle.
type PositionSource interface {
	Current(ctx context.Context) (model.Coordinates, error)
}

// Alert is what the evaluator reports when an event becomes alertable.
// The sink owns notification delivery and the AutoNotified mutation; the
// evaluator itself never writes event state.
type Alert struct {
	Event model.Event

	// LocationGated is true when the alert passed the movement check
	// rather than firing as a plain time-based reminder.
	LocationGated bool

	// ContactAction is true when the event carries contact details, so
	// the sink can offer a "notify contact" action.
	ContactAction bool
}

// Sink receives one callback per alertable event per cycle.
type Sink func(Alert)

// Config holds the evaluator tuning knobs.
type Config struct {
	// Window is the lookahead before an event's start during which it is
	// eligible for alerting.
	Window time.Duration

	// MovementThresholdKm is the maximum distance between consecutive
	// position samples still considered stationary.
	MovementThresholdKm float64
}

// Evaluator periodically scans a snapshot of the event collection for
// alertable events. Events without a location fire as time-based
// reminders; location-bearing events fire only when the user has not
// moved since the previous cycle's recorded position.
type Evaluator struct {
	cfg       Config
	snapshot  func() []model.Event
	positions PositionSource
	sink      Sink

	// now is swappable for tests.
	now func() time.Time

	mu       sync.Mutex
	lastPos  *model.Coordinates
	inFlight bool
}

// NewEvaluator builds an evaluator over a snapshot function (typically
// store.Snapshot). positions may be nil; location-bearing events then
// never fire.
func NewEvaluator(cfg Config, snapshot func() []model.Event, positions PositionSource, sink Sink) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		snapshot:  snapshot,
		positions: positions,
		sink:      sink,
		now:       time.Now,
	}
}

// RunCycle performs one evaluation pass. It is stateless across cycles
// except for the last known position and the per-event AutoNotified flag
// carried by the events themselves.
func (ev *Evaluator) RunCycle(ctx context.Context) {
	metrics.AlertCycles.Inc()

	now := ev.now()
	threshold := now.Add(ev.cfg.Window)

	var reminders, proximity []model.Event
	for _, e := range ev.snapshot() {
		if !alertable(e, now, threshold) {
			continue
		}
		if e.Location == "" {
			reminders = append(reminders, e)
		} else {
			proximity = append(proximity, e)
		}
	}

	// Time-based reminders fire immediately, no movement check.
	for _, e := range reminders {
		metrics.AlertsFired.WithLabelValues("reminder").Inc()
		ev.sink(Alert{Event: e, ContactAction: e.HasContact()})
	}

	if len(proximity) == 0 {
		return
	}
	if ev.positions == nil {
		appLog.Debug("alert: no position source; skipping location-gated events", "count", len(proximity))
		return
	}

	// At most one position fetch in flight: a cycle that finds the
	// previous fetch still outstanding skips its location partition
	// instead of stacking requests.
	ev.mu.Lock()
	if ev.inFlight {
		ev.mu.Unlock()
		appLog.Debug("alert: position fetch still in flight; skipping cycle", "count", len(proximity))
		return
	}
	ev.inFlight = true
	ev.mu.Unlock()

	current, err := ev.positions.Current(ctx)

	ev.mu.Lock()
	ev.inFlight = false
	if err != nil {
		ev.mu.Unlock()
		metrics.PositionErrors.Inc()
		appLog.Warn("alert: position fetch failed; keeping last known position", "err", err)
		return
	}

	prev := ev.lastPos
	ev.lastPos = &current
	ev.mu.Unlock()

	if prev == nil {
		// Cold start: record the position, fire nothing. No false
		// positive on the first sample.
		appLog.Debug("alert: first position sample recorded")
		return
	}

	moved := HaversineKm(*prev, current)
	if moved >= ev.cfg.MovementThresholdKm {
		appLog.Debug("alert: movement above threshold; user is on the way",
			"moved_km", moved,
			"threshold_km", ev.cfg.MovementThresholdKm,
		)
		return
	}

	for _, e := range proximity {
		metrics.AlertsFired.WithLabelValues("proximity").Inc()
		ev.sink(Alert{Event: e, LocationGated: true, ContactAction: e.HasContact()})
	}
}

// alertable applies the selection predicate: priority High or Medium, not
// yet notified, opted in, and starting inside (now, threshold].
func alertable(e model.Event, now, threshold time.Time) bool {
	if e.Priority != model.PriorityHigh && e.Priority != model.PriorityMedium {
		return false
	}
	if e.AutoNotified || !e.ProximityAlertEnabled {
		return false
	}
	return e.Start.After(now) && !e.Start.After(threshold)
}
