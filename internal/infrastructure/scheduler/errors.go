package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when triggering a job on a
	// stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobNotFound is returned when a named job does not exist
	ErrJobNotFound = errors.New("scheduled job not found")

	// ErrInvalidConfig is returned when the job configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
