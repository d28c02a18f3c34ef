package scheduler

import "errors"

// Scheduler-specific errors
var (
	ErrAlreadyRunning  = errors.New("scheduler is already running")
	ErrAlreadyStopped  = errors.New("scheduler is already stopped")
	ErrInvalidTickRate = errors.New("tick rate out of bounds")
)
