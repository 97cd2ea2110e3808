package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"myplanner/internal/ics"
	appLog "myplanner/internal/log"
	"myplanner/internal/metrics"
	"myplanner/internal/model"
	"myplanner/internal/schedule"
	"myplanner/internal/store"
)

// conflictResponse is returned with 409 when a standalone save collides
// with a stored event. The candidate is NOT saved; the client ends the
// conflict with /api/events/resolve (accept or ignore) or by dropping the
// edit (cancel, no further call).
type conflictResponse struct {
	Error    string       `json:"error"`
	Event    model.Event  `json:"event"`
	Conflict model.Event  `json:"conflict"`
	Proposal proposalBody `json:"proposal"`
}

// proposalBody is the displacement offered to the client. Source is
// "suggested" when an external collaborator produced it and it survived
// validation, "local" otherwise.
type proposalBody struct {
	EventToUpdateID string    `json:"event_to_update_id"`
	KeptID          string    `json:"kept_id"`
	NewStart        time.Time `json:"new_start"`
	NewEnd          time.Time `json:"new_end"`
	Source          string    `json:"source"`
}

type saveResponse struct {
	Event    model.Event `json:"event"`
	SeriesID string      `json:"series_id,omitempty"`
	Replaced int         `json:"replaced_instances,omitempty"`
}

// handleSaveEvent creates or updates one event.
//
// Recurring templates are expanded and their series replaced wholesale,
// bypassing conflict prompts (one prompt per instance would make bulk
// saves unusable). Standalone saves run conflict detection and surface
// the first hit as 409 with a proposed displacement.
func (s *Server) handleSaveEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	if ev.Priority == "" {
		ev.Priority = model.PriorityNone
	}
	if err := model.Validate(ev); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if ev.IsRecurringTemplate() {
		s.saveSeries(w, r, ev)
		return
	}

	candidate := ev
	if candidate.ID == "" {
		candidate.ID = store.NewID()
	}

	if conflicting, ok := schedule.FindConflict(candidate, s.store.Snapshot()); ok {
		metrics.ConflictsDetected.Inc()
		s.respondConflict(w, r, candidate, conflicting)
		return
	}

	saved, err := s.store.Upsert(candidate)
	if err != nil {
		appLog.Error("save failed", err, "event_id", candidate.ID)
		writeError(w, http.StatusInternalServerError, "failed to persist event")
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Event: saved})
}

// saveSeries expands a recurring template and atomically replaces its
// series in the store.
func (s *Server) saveSeries(w http.ResponseWriter, _ *http.Request, tpl model.Event) {
	seriesID := tpl.RecurringEventID
	if seriesID == "" {
		seriesID = store.NewID()
	}

	instances, err := schedule.ExpandSeries(tpl, seriesID, schedule.ExpandConfig{Location: s.loc})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	metrics.SeriesExpansions.Inc()
	metrics.SeriesInstances.Observe(float64(len(instances)))

	if err := s.store.ReplaceSeries(seriesID, instances); err != nil {
		appLog.Error("series replace failed", err, "series_id", seriesID)
		writeError(w, http.StatusInternalServerError, "failed to persist series")
		return
	}

	appLog.Info("series saved", "series_id", seriesID, "instances", len(instances))
	writeJSON(w, http.StatusOK, saveResponse{Event: tpl, SeriesID: seriesID, Replaced: len(instances)})
}

// respondConflict computes the proposed displacement, preferring a
// validated external suggestion when a suggester is configured, and
// returns 409 without saving anything.
func (s *Server) respondConflict(w http.ResponseWriter, r *http.Request, candidate, conflicting model.Event) {
	local := schedule.Resolve(candidate, conflicting)

	proposal := proposalBody{
		EventToUpdateID: local.Displaced.ID,
		KeptID:          local.Kept.ID,
		NewStart:        local.NewStart,
		NewEnd:          local.NewEnd,
		Source:          "local",
	}

	if s.suggester != nil {
		sug, err := s.suggester.SuggestResolution(r.Context(), candidate, conflicting)
		if err != nil {
			appLog.Warn("suggestion collaborator failed; using local resolution", "err", err)
		} else if start, end, perr := sug.Times(); perr != nil {
			metrics.SuggestionsDiscarded.Inc()
			appLog.Warn("suggestion has unparsable times; using local resolution", "err", perr)
		} else if verr := schedule.ValidateProposal(local, sug.EventToUpdateID, start, end); verr != nil {
			// Invalid external proposals are dropped silently in favor of
			// the deterministic slot; a safe fallback always exists.
			metrics.SuggestionsDiscarded.Inc()
			appLog.Warn("suggestion violates invariants; using local resolution", "err", verr)
		} else {
			proposal.NewStart = start
			proposal.NewEnd = end
			proposal.Source = "suggested"
		}
	}

	writeJSON(w, http.StatusConflict, conflictResponse{
		Error:    "scheduling conflict",
		Event:    candidate,
		Conflict: conflicting,
		Proposal: proposal,
	})
}

// resolveRequest ends a previously reported conflict. Action "accept"
// applies the displacement and saves the candidate; "ignore" saves the
// candidate over the overlap. Cancel needs no request at all.
type resolveRequest struct {
	Action   string       `json:"action"`
	Event    model.Event  `json:"event"`
	Proposal proposalBody `json:"proposal"`
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid resolve payload")
		return
	}
	if err := model.Validate(req.Event); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	switch req.Action {
	case "ignore":
		saved, err := s.store.Upsert(req.Event)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to persist event")
			return
		}
		metrics.ConflictOutcomes.WithLabelValues("ignore").Inc()
		appLog.Info("conflict ignored; overlapping event saved", "event_id", saved.ID)
		writeJSON(w, http.StatusOK, saveResponse{Event: saved})

	case "accept":
		// When the stored event outranked the candidate, the proposal
		// targets the candidate itself; it may not be stored yet and the
		// kept event must not be touched.
		if req.Proposal.EventToUpdateID == req.Event.ID {
			s.acceptDisplacedCandidate(w, req)
			return
		}

		displaced, ok := s.store.Get(req.Proposal.EventToUpdateID)
		if !ok {
			writeError(w, http.StatusNotFound, "displaced event no longer exists")
			return
		}

		// Re-validate against the current state; the proposal may have
		// gone stale between detection and acceptance.
		local := schedule.Resolve(req.Event, displaced)
		newStart, newEnd := req.Proposal.NewStart, req.Proposal.NewEnd
		if err := schedule.ValidateProposal(local, req.Proposal.EventToUpdateID, newStart, newEnd); err != nil {
			metrics.SuggestionsDiscarded.Inc()
			appLog.Warn("stale or invalid proposal; applying local resolution", "err", err)
			newStart, newEnd = local.NewStart, local.NewEnd
		}

		displaced.Start = newStart
		displaced.End = newEnd
		if _, err := s.store.Upsert(displaced); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to move displaced event")
			return
		}
		saved, err := s.store.Upsert(req.Event)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to persist event")
			return
		}

		metrics.ConflictOutcomes.WithLabelValues("accept").Inc()
		appLog.Info("conflict resolved by displacement",
			"kept_id", saved.ID,
			"displaced_id", displaced.ID,
			"new_start", newStart.Format(time.RFC3339),
		)
		writeJSON(w, http.StatusOK, saveResponse{Event: saved})

	default:
		writeError(w, http.StatusBadRequest, "action must be accept or ignore")
	}
}

// acceptDisplacedCandidate applies an accepted displacement to the
// candidate itself and saves only the candidate; the higher-ranked stored
// event keeps its slot untouched.
func (s *Server) acceptDisplacedCandidate(w http.ResponseWriter, req resolveRequest) {
	candidate := req.Event
	newStart, newEnd := req.Proposal.NewStart, req.Proposal.NewEnd

	if kept, ok := s.store.Get(req.Proposal.KeptID); ok {
		local := schedule.Resolve(candidate, kept)
		if local.Displaced.ID == candidate.ID {
			if err := schedule.ValidateProposal(local, req.Proposal.EventToUpdateID, newStart, newEnd); err != nil {
				metrics.SuggestionsDiscarded.Inc()
				appLog.Warn("stale or invalid proposal; applying local resolution", "err", err)
				newStart, newEnd = local.NewStart, local.NewEnd
			}
		}
	}
	// A vanished kept event means the conflict is gone; the proposed slot
	// is still a fine place for the candidate, unless the proposal itself
	// is unusable.
	if newStart.IsZero() || newEnd.Before(newStart) {
		newStart, newEnd = candidate.Start, candidate.End
	}

	candidate.Start = newStart
	candidate.End = newEnd
	saved, err := s.store.Upsert(candidate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist event")
		return
	}

	metrics.ConflictOutcomes.WithLabelValues("accept").Inc()
	appLog.Info("conflict resolved by displacement",
		"kept_id", req.Proposal.KeptID,
		"displaced_id", saved.ID,
		"new_start", newStart.Format(time.RFC3339),
	)
	writeJSON(w, http.StatusOK, saveResponse{Event: saved})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events := s.store.Snapshot()

	q := r.URL.Query()
	from, hasFrom := parseTimeParam(q.Get("from"))
	to, hasTo := parseTimeParam(q.Get("to"))

	if hasFrom || hasTo {
		if !hasFrom {
			from = time.Time{}
		}
		if !hasTo {
			to = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		window := model.Event{Start: from, End: to}

		filtered := events[:0]
		for _, e := range events {
			if schedule.Overlaps(e, window) || (e.IsDeadline() && !e.Start.Before(from) && e.Start.Before(to)) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleBulkInsert accepts reviewed drafts (typically from the AI
// extraction flow) and stores them without conflict prompts.
func (s *Server) handleBulkInsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Events []model.Event `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid bulk payload")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "no events to add")
		return
	}
	for i := range req.Events {
		if req.Events[i].Priority == "" {
			req.Events[i].Priority = model.PriorityNone
		}
		if err := model.Validate(req.Events[i]); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	added, err := s.store.Insert(req.Events)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist events")
		return
	}
	appLog.Info("bulk insert", "count", len(added))
	writeJSON(w, http.StatusCreated, map[string]any{"events": added})
}

// handleDeleteEvent removes one event; scope=following also removes all
// later instances of the same series.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if r.URL.Query().Get("scope") == "following" {
		removed, err := s.store.DeleteFollowing(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to delete events")
			return
		}
		if removed == 0 {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
		return
	}

	ok, err := s.store.Delete(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": 1})
}

func (s *Server) handleExportICS(w http.ResponseWriter, _ *http.Request) {
	out := ics.Export(s.store.Snapshot(), time.Now(), s.cfg.Timezone)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="myplanner.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func parseTimeParam(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
