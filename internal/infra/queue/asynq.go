package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"boardnotice/internal/domain/notice"
	"boardnotice/internal/domain/telemetry"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TelemetryQueue is the asynq queue telemetry tasks are sent to.
const TelemetryQueue = "telemetry"

// NewClient creates a new asynq client connected to Redis.
func NewClient(redisAddr, password string, db int) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
}

// NewServer creates a new asynq server connected to Redis.
func NewServer(redisAddr, password string, db int, concurrency int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				TelemetryQueue: 5, // priority weight
				"default":      1,
			},
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				// Exponential backoff: 30s, 60s, 120s, 240s, 480s
				return time.Duration(30*(1<<uint(n-1))) * time.Second
			},
		},
	)
}

// Enqueuer is the part of *asynq.Client the tracker uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueTrackEvent enqueues a telemetry event task.
func EnqueueTrackEvent(ctx context.Context, client Enqueuer, ev *telemetry.Event, maxRetry int) error {
	task, err := telemetry.NewTrackEventTask(ev)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	_, err = client.EnqueueContext(ctx, task,
		asynq.MaxRetry(maxRetry),
		asynq.Queue(TelemetryQueue),
		asynq.TaskID(ev.ID),
	)
	if err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}

	return nil
}

var _ notice.Tracker = (*Tracker)(nil)

// Tracker reports telemetry by enqueueing tasks for the worker.
// Enqueue failures are logged and dropped.
type Tracker struct {
	client   Enqueuer
	maxRetry int
	now      func() time.Time
}

// NewTracker creates a queue-backed tracker.
func NewTracker(client Enqueuer, maxRetry int) *Tracker {
	return &Tracker{
		client:   client,
		maxRetry: maxRetry,
		now:      time.Now,
	}
}

// TrackEvent enqueues the event without waiting for it to be stored.
func (t *Tracker) TrackEvent(ctx context.Context, category, action string, props map[string]string) {
	ev := telemetry.NewEvent(uuid.NewString(), category, action, props, t.now())

	if err := EnqueueTrackEvent(ctx, t.client, ev, t.maxRetry); err != nil {
		slog.Warn("dropping telemetry event",
			"action", action,
			"user_id", ev.UserID,
			"board_id", ev.BoardID,
			"error", err,
		)
	}
}
