package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job is a scheduled unit of work. It receives a context bounded by the
// job's timeout.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	jobsMux sync.RWMutex
}

// New creates a scheduler. Expressions use the standard five fields;
// descriptors such as @monthly are accepted too.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		jobs: make(map[string]cron.EntryID),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.Names())).Msg("⏰ Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("✅ Scheduler stopped")
}

// Add schedules job under name, replacing any job with the same name.
func (s *Scheduler) Add(name, schedule string, timeout time.Duration, job Job) error {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.run(name, timeout, job)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	log.Info().Str("job", name).Str("schedule", schedule).Msg("   ✅ Scheduled job")
	return nil
}

// Remove unschedules a job
func (s *Scheduler) Remove(name string) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// Names returns the scheduled job names
func (s *Scheduler) Names() []string {
	s.jobsMux.RLock()
	defer s.jobsMux.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Next returns the next activation time of a job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.jobsMux.RLock()
	entryID, ok := s.jobs[name]
	s.jobsMux.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(entryID).Next, true
}

func (s *Scheduler) run(name string, timeout time.Duration, job Job) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", name).Interface("panic", r).Msg("❌ Scheduled job panicked")
		}
	}()

	start := time.Now()
	if err := job(ctx); err != nil {
		log.Error().Err(err).Str("job", name).Dur("duration", time.Since(start)).Msg("❌ Scheduled job failed")
		return
	}
	log.Info().Str("job", name).Dur("duration", time.Since(start)).Msg("✅ Scheduled job finished")
}
