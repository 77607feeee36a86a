package scheduler

import "errors"

var (
	// ErrPoolNotRunning is returned when submitting to a stopped worker pool
	ErrPoolNotRunning = errors.New("worker pool is not running")

	// ErrTaskQueueFull is returned when the task queue is full
	ErrTaskQueueFull = errors.New("task queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
