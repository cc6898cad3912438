package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// EventWorker processes lifecycle event jobs from the River queue.
// For now it logs the event; future versions will dispatch email or push
// notifications to the requester and owner.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	slog.InfoContext(ctx, "processing request event",
		"event", job.Args.Event,
		"request_id", job.Args.RequestID,
		"request_kind", job.Args.RequestKind,
		"resource_id", job.Args.ResourceID,
		"status", job.Args.Status,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
