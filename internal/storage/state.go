package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"upsmon/internal/ups"
	logx "upsmon/pkg/logx"
)

// StateStore keeps the last known reading in memory and mirrors it to a JSON
// file. The poller is its only writer.
type StateStore struct {
	path string
	log  logx.Logger
	now  func() time.Time

	mu    sync.Mutex
	state ups.State
}

type StateOption func(*StateStore)

// WithStateClock overrides the clock used for last_update.
func WithStateClock(now func() time.Time) StateOption {
	return func(s *StateStore) {
		if now != nil {
			s.now = now
		}
	}
}

// OpenStateStore creates the store and loads whatever is on disk. It never
// fails: a missing or broken file starts an empty state.
func OpenStateStore(path string, log logx.Logger, opts ...StateOption) *StateStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &StateStore{path: path, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.Load()
	return s
}

func (s *StateStore) Path() string { return s.path }

// Load re-reads the state file, replacing the in-memory state.
func (s *StateStore) Load() ups.State {
	st, err := ReadState(s.path)
	switch {
	case errors.Is(err, ErrNoData):
		s.log.Debug("no state file yet", logx.String("path", s.path))
		st = ups.State{Reading: ups.Reading{}}
	case err != nil:
		s.log.Warn("state load failed; starting empty", logx.String("path", s.path), logx.Err(err))
		st = ups.State{Reading: ups.Reading{}}
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return s.Current()
}

// Current returns a copy of the in-memory state.
func (s *StateStore) Current() ups.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.state
	cp.Reading = s.state.Reading.Clone()
	return cp
}

// Update diffs next against the stored reading, merges it in, stamps
// last_update and persists. Write errors are logged only; the in-memory state
// is updated regardless.
func (s *StateStore) Update(next ups.Reading) ups.Delta {
	s.mu.Lock()
	delta := ups.Diff(s.state.Reading, next)
	s.state.Reading = ups.Merge(s.state.Reading, next)
	s.state.LastUpdate = s.now()
	snapshot := s.state
	s.mu.Unlock()

	for _, f := range delta.Fields() {
		c := delta[f]
		s.log.Info("change detected", logx.String("field", f.String()), logx.String("old", c.Old), logx.String("new", c.New))
	}

	if err := s.persist(snapshot); err != nil {
		s.log.Error("state save failed", logx.String("path", s.path), logx.Err(err))
	}
	return delta
}

func (s *StateStore) persist(st ups.State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, b, 0o644)
}

// ReadState reads a state file written by a StateStore. It returns ErrNoData
// when the file does not exist. Other processes (the notifier) use it for
// read-only access; a slightly stale result is acceptable.
func ReadState(path string) (ups.State, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ups.State{}, ErrNoData
	}
	if err != nil {
		return ups.State{}, err
	}
	var st ups.State
	if err := json.Unmarshal(b, &st); err != nil {
		return ups.State{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return st, nil
}
