package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"myplanner/internal/model"
)

// Suggestion is the collaborator's proposed displacement for a conflict.
// Timestamps arrive as ISO-8601 strings; the proposal is untrusted input
// and is always validated against the local resolver's invariants before
// being applied.
type Suggestion struct {
	EventToUpdateID string `json:"eventToUpdateId"`
	NewStartTime    string `json:"new_start_time"`
	NewEndTime      string `json:"new_end_time"`
}

// Times parses the proposal's timestamps.
func (s Suggestion) Times() (start, end time.Time, err error) {
	start, err = time.Parse(time.RFC3339, s.NewStartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("suggest: bad new_start_time: %w", err)
	}
	end, err = time.Parse(time.RFC3339, s.NewEndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("suggest: bad new_end_time: %w", err)
	}
	return start, end, nil
}

// Suggester proposes a resolution for two conflicting events. Returning an
// error is non-fatal; callers fall back to the local computation.
type Suggester interface {
	SuggestResolution(ctx context.Context, eventToSave, conflicting model.Event) (Suggestion, error)
}

// HTTPSuggester calls an external suggestion service with both events and
// expects a Suggestion back. The service is an opaque collaborator; prompt
// content and response parsing live on its side of the wire.
type HTTPSuggester struct {
	client *http.Client
	url    string
}

// NewHTTPSuggester builds a client for the given endpoint.
func NewHTTPSuggester(url string, timeout time.Duration) *HTTPSuggester {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSuggester{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

type suggestRequest struct {
	EventToSave model.Event `json:"event_to_save"`
	Conflicting model.Event `json:"conflicting_event"`
}

// SuggestResolution posts the conflicting pair and decodes the proposal.
func (s *HTTPSuggester) SuggestResolution(ctx context.Context, eventToSave, conflicting model.Event) (Suggestion, error) {
	if s.url == "" {
		return Suggestion{}, errors.New("suggest: endpoint URL is empty")
	}

	body, err := json.Marshal(suggestRequest{
		EventToSave: eventToSave,
		Conflicting: conflicting,
	})
	if err != nil {
		return Suggestion{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Suggestion{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Suggestion{}, fmt.Errorf("suggest: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Suggestion{}, fmt.Errorf("suggest: unexpected status %s", resp.Status)
	}

	var out Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Suggestion{}, fmt.Errorf("suggest: decode response: %w", err)
	}
	if out.EventToUpdateID == "" {
		return Suggestion{}, errors.New("suggest: response missing eventToUpdateId")
	}
	return out, nil
}
