package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	appLog "myplanner/internal/log"
	"myplanner/internal/model"
)

// Store is the single-owner event collection. Save/delete operations are
// the only writers; the evaluator and HTTP readers take snapshots. It
// persists to a JSON file so ids and series ids survive restarts.
type Store struct {
	// HTTP handlers and cron callbacks touch the collection from separate
	// goroutines, so all access goes through mu.
	mu     sync.RWMutex
	path   string
	events []model.Event
}

// fileFormat is the on-disk shape of the collection.
type fileFormat struct {
	SavedAt time.Time     `json:"saved_at"`
	Events  []model.Event `json:"events"`
}

// Open loads the collection from path, starting empty when the file does
// not exist yet. The parent directory is created on first save.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: path is empty")
	}

	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Info("store: starting with empty collection", "path", path)
			return s, nil
		}
		return nil, err
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	s.events = f.Events

	appLog.Info("store: loaded collection", "path", path, "events", len(s.events))
	return s, nil
}

// Snapshot returns a copy of the collection in iteration order. Callers
// may hold it across their own operations without seeing later mutations.
func (s *Store) Snapshot() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Get returns the event with the given id.
func (s *Store) Get(id string) (model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(id)
}

func (s *Store) find(id string) (model.Event, bool) {
	for _, e := range s.events {
		if e.ID == id {
			return e, true
		}
	}
	return model.Event{}, false
}

// Len reports the current collection size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Upsert inserts the event, or replaces the stored event sharing its id.
// Events without an id are assigned a fresh one. The stored event is
// returned and the collection persisted.
func (s *Store) Upsert(e model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = NewID()
	}

	replaced := false
	for i := range s.events {
		if s.events[i].ID == e.ID {
			s.events[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		s.events = append(s.events, e)
	}

	return e, s.save()
}

// Insert appends several events at once (bulk draft intake), assigning
// ids where missing.
func (s *Store) Insert(events []model.Event) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.ID == "" {
			e.ID = NewID()
		}
		s.events = append(s.events, e)
		added = append(added, e)
	}
	return added, s.save()
}

// Delete removes the event with the given id, reporting whether it existed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id)
}

func (s *Store) deleteLocked(id string) (bool, error) {
	kept := s.events[:0]
	found := false
	for _, e := range s.events {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept

	if !found {
		return false, nil
	}
	return true, s.save()
}

// DeleteFollowing removes the event and, when it belongs to a series,
// every later instance of that series. Returns the number removed.
func (s *Store) DeleteFollowing(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.find(id)
	if !ok {
		return 0, nil
	}
	if target.RecurringEventID == "" {
		ok, err := s.deleteLocked(id)
		if ok {
			return 1, err
		}
		return 0, err
	}

	kept := s.events[:0]
	removed := 0
	for _, e := range s.events {
		if e.RecurringEventID == target.RecurringEventID && !e.Start.Before(target.Start) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return removed, s.save()
}

// ReplaceSeries atomically removes every stored instance carrying the
// series id and inserts the freshly expanded set. A shrinking rule leaves
// no orphaned stale occurrences behind.
func (s *Store) ReplaceSeries(seriesID string, instances []model.Event) error {
	if seriesID == "" {
		return errors.New("store: series id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	removed := 0
	for _, e := range s.events {
		if e.RecurringEventID == seriesID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.events = append(kept, instances...)

	appLog.Debug("store: series replaced",
		"series_id", seriesID,
		"removed", removed,
		"inserted", len(instances),
	)
	return s.save()
}

// MarkAutoNotified flags an instance as already alerted. The flag is
// monotonic: it is only ever set, never cleared.
func (s *Store) MarkAutoNotified(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID == id {
			if s.events[i].AutoNotified {
				return nil
			}
			s.events[i].AutoNotified = true
			return s.save()
		}
	}
	return nil
}

// save writes the collection atomically: temp file in the same directory,
// fsync, rename, with the previous file kept as a .bak. Caller holds mu.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	f := fileFormat{
		SavedAt: time.Now().UTC(),
		Events:  s.events,
	}
	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return err
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.path+".bak"); err != nil {
			appLog.Warn("store: backup failed", "err", err, "path", s.path)
		}
	}

	tmp, err := os.CreateTemp(dir, ".myplanner-events-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, s.path)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

// NewID returns a fresh random event or series id.
func NewID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Extremely unlikely; fall back to a time-derived id.
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(b[:])
}
