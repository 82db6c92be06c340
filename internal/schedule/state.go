// Package schedule persists the iteration schedule record that decides when
// the next report is due.
package schedule

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cam3ron2/iteration-report/internal/atomicfile"
	"github.com/cam3ron2/iteration-report/internal/iteration"
)

var (
	// ErrNotFound reports a missing schedule file.
	ErrNotFound = errors.New("iteration schedule not found")
	// ErrConflict reports a compare-and-swap against a stale version.
	ErrConflict = errors.New("iteration schedule changed concurrently")
)

// State is the persisted schedule record. It is a hint for the scheduler;
// published artifacts stay the source of truth for what was reported.
type State struct {
	NextIterationEndDate string `yaml:"next_iteration_end_date" json:"next_iteration_end_date"`
	NextIterationName    string `yaml:"next_iteration_name" json:"next_iteration_name"`
	LastUpdated          string `yaml:"last_updated" json:"last_updated"`
	Version              int64  `yaml:"version" json:"version"`
}

// Validate checks the record fields.
func (s State) Validate() error {
	if strings.TrimSpace(s.NextIterationName) == "" {
		return fmt.Errorf("next_iteration_name is required")
	}
	if _, err := time.Parse(iteration.DateLayout, s.NextIterationEndDate); err != nil {
		return fmt.Errorf("next_iteration_end_date %q: %w", s.NextIterationEndDate, err)
	}
	return nil
}

// EndsAt returns the last second of the scheduled end date in loc.
func (s State) EndsAt(loc *time.Location) (time.Time, error) {
	return iteration.ParseBound(s.NextIterationEndDate, loc, true)
}

// Due reports whether now is at or past the end of the scheduled iteration.
func (s State) Due(now time.Time, loc *time.Location) (bool, error) {
	endsAt, err := s.EndsAt(loc)
	if err != nil {
		return false, fmt.Errorf("parse next_iteration_end_date: %w", err)
	}
	return !now.Before(endsAt), nil
}

// Advance rolls the record forward by one iteration of length days.
func (s State) Advance(lengthDays int) (State, error) {
	if lengthDays <= 0 {
		return State{}, fmt.Errorf("iteration length must be positive")
	}
	end, err := time.Parse(iteration.DateLayout, s.NextIterationEndDate)
	if err != nil {
		return State{}, fmt.Errorf("parse next_iteration_end_date: %w", err)
	}
	next := s
	next.NextIterationEndDate = end.AddDate(0, 0, lengthDays).Format(iteration.DateLayout)
	next.NextIterationName = iteration.NextName(s.NextIterationName)
	return next, nil
}

// FromWindow builds a record scheduling window. An unbounded window
// schedules an iteration of lengthDays ending lengthDays-1 days after now.
func FromWindow(window iteration.Window, now time.Time, loc *time.Location, lengthDays int) State {
	state := State{NextIterationName: window.Name}
	switch {
	case !window.End.IsZero():
		state.NextIterationEndDate = window.End.In(loc).Format(iteration.DateLayout)
	default:
		state.NextIterationEndDate = now.In(loc).AddDate(0, 0, max(lengthDays-1, 0)).Format(iteration.DateLayout)
	}
	if window.IsAllTime() || strings.TrimSpace(state.NextIterationName) == "" {
		state.NextIterationName = "Iteration 1"
	}
	return state
}

// Store reads and writes the schedule file. Writes go through
// CompareAndSwap so a stale writer never clobbers a newer record.
type Store struct {
	path string
	now  func() time.Time
	loc  *time.Location
	mu   sync.Mutex
}

// NewStore creates a store over path.
func NewStore(path string, loc *time.Location, now func() time.Time) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("schedule file path is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Store{path: path, now: now, loc: loc}, nil
}

// Path returns the schedule file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the record. A missing file returns ErrNotFound.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// LoadOrCreate reads the record, writing def as version 1 when the file is
// missing. The boolean reports whether the record was created.
func (s *Store) LoadOrCreate(def State) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err == nil {
		return state, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return State{}, false, err
	}
	def.Version = 0
	created, err := s.write(def)
	if err != nil {
		return State{}, false, err
	}
	return created, true, nil
}

// CompareAndSwap replaces the record with next when the stored version
// equals expectedVersion; a missing file counts as version 0. The written
// record gets the next version and a fresh last_updated.
func (s *Store) CompareAndSwap(expectedVersion int64, next State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	switch {
	case errors.Is(err, ErrNotFound):
		current = State{}
	case err != nil:
		return State{}, err
	}
	if current.Version != expectedVersion {
		return State{}, fmt.Errorf("%w: have version %d, expected %d", ErrConflict, current.Version, expectedVersion)
	}
	next.Version = current.Version
	return s.write(next)
}

func (s *Store) load() (State, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("read schedule file: %w", err)
	}

	var state State
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&state); err != nil {
		return State{}, fmt.Errorf("decode schedule file: %w", err)
	}
	if err := state.Validate(); err != nil {
		return State{}, fmt.Errorf("invalid schedule file: %w", err)
	}
	return state, nil
}

func (s *Store) write(state State) (State, error) {
	if err := state.Validate(); err != nil {
		return State{}, err
	}
	state.Version++
	state.LastUpdated = s.now().In(s.loc).Format(time.RFC3339)

	encoded, err := yaml.Marshal(state)
	if err != nil {
		return State{}, fmt.Errorf("encode schedule file: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, encoded, 0o644); err != nil {
		return State{}, fmt.Errorf("write schedule file: %w", err)
	}
	return state, nil
}
