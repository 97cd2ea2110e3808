package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"myplanner/internal/model"
)

// HTTPSource fetches position samples from a JSON endpoint, typically a
// companion app on the user's phone. Response shape:
//
//	{"latitude": 52.52, "longitude": 13.405}
type HTTPSource struct {
	client *http.Client
	url    string
}

// NewHTTPSource builds a source for the given endpoint. A zero timeout
// defaults to 10 seconds, matching the cadence of the evaluator cycle.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Current requests one position sample.
func (s *HTTPSource) Current(ctx context.Context) (model.Coordinates, error) {
	if s.url == "" {
		return model.Coordinates{}, errors.New("position: source URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return model.Coordinates{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("position: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Coordinates{}, fmt.Errorf("position: unexpected status %s", resp.Status)
	}

	var coords model.Coordinates
	if err := json.NewDecoder(resp.Body).Decode(&coords); err != nil {
		return model.Coordinates{}, fmt.Errorf("position: decode response: %w", err)
	}

	if coords.Latitude < -90 || coords.Latitude > 90 || coords.Longitude < -180 || coords.Longitude > 180 {
		return model.Coordinates{}, fmt.Errorf("position: sample out of range: %+v", coords)
	}
	return coords, nil
}
