package fit

import (
	"sync"

	"github.com/YuminosukeSato/scifit/pkg/errors"
)

// Phase is the lifecycle stage of a Fit.
type Phase int

const (
	// Idle means Run has not been called yet.
	Idle Phase = iota
	Running
	Finished
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Progress is a snapshot of a Fit that may be read while it runs.
type Progress struct {
	Phase     Phase
	Iteration int
	// Cost is the cost function value after the last completed iteration.
	Cost float64
}

// stateManager tracks the phase and progress of a Fit in a thread-safe
// manner. Run is the only writer; Progress and Result may be called from
// other goroutines.
type stateManager struct {
	mu       sync.RWMutex
	progress Progress
	result   *Result
}

// begin moves to Running. A fit cannot run twice concurrently.
func (s *stateManager) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress.Phase == Running {
		return errors.NewRuntimeError("Fit.Run", "fit is already running", nil)
	}
	s.progress = Progress{Phase: Running}
	s.result = nil
	return nil
}

func (s *stateManager) update(iteration int, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Iteration = iteration
	s.progress.Cost = cost
}

// finish moves to Finished and keeps res, which may be nil when the run
// failed before the first iteration.
func (s *stateManager) finish(res *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Phase = Finished
	s.result = res
}

func (s *stateManager) snapshot() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// requireResult returns an error if no run has produced a result yet.
func (s *stateManager) requireResult() (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil, errors.NewRuntimeError("Fit.Result", "fit has not been run yet. Call Run() first", nil)
	}
	return s.result, nil
}
