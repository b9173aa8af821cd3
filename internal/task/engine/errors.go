package engine

import (
	"errors"
	"fmt"
)

var (
	ErrDisabled    = errors.New("task engine disabled")
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrOverlapSkip = errors.New("task skipped: previous run still in flight")
)

// PanicError is what a recovered task panic turns into.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// IsSkip reports whether err means the run never started because the task was
// already running.
func IsSkip(err error) bool { return errors.Is(err, ErrOverlapSkip) }
