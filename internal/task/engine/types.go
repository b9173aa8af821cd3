package engine

import (
	"context"
	"sync"
	"time"
)

// Config controls the task execution engine.
//
// The scheduler is trigger-only; execution settings belong here.
type Config struct {
	Enabled bool

	// DefaultTimeout is used when Task.Timeout is 0. 0 means no timeout.
	DefaultTimeout time.Duration

	HistorySize int
}

// RunState tracks whether a task is already in-flight.
// A task sharing a RunState with a running one is skipped, not queued.
type RunState struct {
	mu       sync.Mutex
	inflight int
}

func (s *RunState) tryAcquire() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

// Running reports whether a run holding this state is in flight.
func (s *RunState) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

type HistoryItem struct {
	ID       string
	Name     string
	Trigger  string
	Started  time.Time
	Duration time.Duration
	Affected int
	Error    string
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Trigger  string        `json:"trigger,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Affected int           `json:"affected"`
	Error    string        `json:"error,omitempty"`
}

// Task is one pass of a job. Run returns how many rows/entities it changed.
//
// Tasks sharing State never overlap; when State is nil the engine keeps one
// per Name.
type Task struct {
	ID      string
	Name    string
	Trigger string // "cron", "catchup", "manual"
	Timeout time.Duration
	Run     func(ctx context.Context) (int, error)
	State   *RunState
}

// Result is the outcome of a synchronous run.
type Result struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Affected int
	Err      error
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Enabled        bool
	Running        bool
	InFlight       int
	Started        uint64
	Skipped        uint64
	Failed         uint64
	DefaultTimeout time.Duration

	History []HistoryItem
}
