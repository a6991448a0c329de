package jobs

import (
	"context"
	"errors"
	"time"
)

// Task is a unit of best-effort background work such as writing a usage
// record. Tasks never report back to the request that scheduled them.
type Task struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Config configures a Dispatcher.
type Config struct {
	Name           string
	Concurrency    int
	QueueSize      int
	DefaultTimeout time.Duration
}

// DefaultConfig returns the settings used by the API server.
func DefaultConfig() Config {
	return Config{
		Name:           "background",
		Concurrency:    4,
		QueueSize:      256,
		DefaultTimeout: 2 * time.Second,
	}
}

var (
	// ErrQueueFull is returned by Submit when the backlog is at capacity.
	ErrQueueFull = errors.New("jobs: queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("jobs: dispatcher is stopped")
)
