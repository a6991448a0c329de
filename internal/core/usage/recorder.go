package usage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/jobs"
)

// Writer persists a usage record
type Writer interface {
	Save(ctx context.Context, rec Record) error
}

// Recorder writes usage records in the background. Recording never blocks
// or fails the request that produced it.
type Recorder struct {
	writer     Writer
	dispatcher *jobs.Dispatcher
	timeout    time.Duration
}

// NewRecorder creates a recorder that writes through the dispatcher
func NewRecorder(writer Writer, dispatcher *jobs.Dispatcher) *Recorder {
	return &Recorder{
		writer:     writer,
		dispatcher: dispatcher,
		timeout:    1500 * time.Millisecond,
	}
}

// RecordUsage queues one usage record.
func (r *Recorder) RecordUsage(rec Record) {
	if r == nil || r.writer == nil {
		return
	}

	err := r.dispatcher.Submit(jobs.Task{
		Name:    "usage:" + rec.Action,
		Timeout: r.timeout,
		Run: func(ctx context.Context) error {
			return r.writer.Save(ctx, rec)
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", rec.UserID).Str("action", rec.Action).Msg("⚠️ Usage record dropped")
	}
}
