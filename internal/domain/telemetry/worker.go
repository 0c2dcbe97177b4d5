package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Worker processes telemetry tasks from the queue and writes them to the sink.
type Worker struct {
	sink Sink
}

// NewWorker creates a new telemetry worker.
func NewWorker(sink Sink) *Worker {
	return &Worker{sink: sink}
}

// ProcessTask stores one event. A returned error makes the queue retry.
func (w *Worker) ProcessTask(ctx context.Context, ev *Event) error {
	start := time.Now()

	if err := w.sink.Insert(ctx, ev); err != nil {
		slog.Error("telemetry event insert failed",
			"event_id", ev.ID,
			"action", ev.Action,
			"error", err,
			"duration", time.Since(start),
		)
		return fmt.Errorf("inserting telemetry event %s: %w", ev.ID, err)
	}

	slog.Info("telemetry event recorded",
		"event_id", ev.ID,
		"category", ev.Category,
		"action", ev.Action,
		"user_id", ev.UserID,
		"board_id", ev.BoardID,
		"duration", time.Since(start),
	)
	return nil
}
