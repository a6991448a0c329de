package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Dispatcher runs tasks on a fixed pool of goroutines. Failures and panics
// are logged and dropped.
type Dispatcher struct {
	config Config
	queue  chan Task

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	// accepted but unfinished tasks, guarded by pendingMu
	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int

	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// NewDispatcher creates a dispatcher and starts its workers
func NewDispatcher(config Config) *Dispatcher {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 2 * time.Second
	}

	d := &Dispatcher{
		config: config,
		queue:  make(chan Task, config.QueueSize),
	}
	d.idle = sync.NewCond(&d.pendingMu)

	for i := 0; i < config.Concurrency; i++ {
		d.wg.Add(1)
		go d.runWorker(i + 1)
	}

	log.Info().
		Str("dispatcher", config.Name).
		Int("workers", config.Concurrency).
		Msg("🚀 Background dispatcher started")
	return d
}

// Submit queues a task without blocking.
func (d *Dispatcher) Submit(task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.dropped.Add(1)
		return ErrStopped
	}

	d.track()
	select {
	case d.queue <- task:
		return nil
	default:
		d.untrack()
		d.dropped.Add(1)
		log.Warn().Str("dispatcher", d.config.Name).Str("task", task.Name).Msg("⚠️ Background queue full, task dropped")
		return ErrQueueFull
	}
}

// Go queues a named function with the default timeout.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	_ = d.Submit(Task{Name: name, Run: fn})
}

// Flush blocks until no accepted task is left. Tasks submitted while
// Flush waits extend the wait.
func (d *Dispatcher) Flush() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	for d.pending > 0 {
		d.idle.Wait()
	}
}

func (d *Dispatcher) track() {
	d.pendingMu.Lock()
	d.pending++
	d.pendingMu.Unlock()
}

func (d *Dispatcher) untrack() {
	d.pendingMu.Lock()
	d.pending--
	if d.pending == 0 {
		d.idle.Broadcast()
	}
	d.pendingMu.Unlock()
}

// Stop drains the queue and waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	log.Info().Str("dispatcher", d.config.Name).Msg("🛑 Stopping background dispatcher...")
	d.wg.Wait()
	log.Info().Str("dispatcher", d.config.Name).Msg("✅ Background dispatcher stopped")
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Dispatcher) runWorker(workerID int) {
	defer d.wg.Done()

	for task := range d.queue {
		d.execute(workerID, task)
	}
}

func (d *Dispatcher) execute(workerID int, task Task) {
	defer d.untrack()

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = d.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			log.Error().Int("worker", workerID).Str("task", task.Name).Interface("panic", r).Msg("❌ Background task panicked")
		}
	}()

	start := time.Now()
	if err := task.Run(ctx); err != nil {
		d.failed.Add(1)
		log.Warn().
			Err(err).
			Int("worker", workerID).
			Str("task", task.Name).
			Dur("duration", time.Since(start)).
			Msg("⚠️ Background task failed")
		return
	}

	d.completed.Add(1)
	log.Debug().Int("worker", workerID).Str("task", task.Name).Dur("duration", time.Since(start)).Msg("background task done")
}
