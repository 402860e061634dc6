package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskClient is the part of *asynq.Client the enqueuer needs.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules dispatch tasks on asynq. Tasks are not retried by
// asynq itself; the dispatch retry policy owns that.
type Enqueuer struct {
	client TaskClient
	queue  string
}

func NewEnqueuer(client TaskClient, queueName string) *Enqueuer {
	if queueName == "" {
		queueName = "default"
	}
	return &Enqueuer{client: client, queue: queueName}
}

// TaskID names the task for one (content, instant) pair so that enqueueing
// the same attempt twice is a no-op.
func TaskID(contentID int64, at time.Time) string {
	return fmt.Sprintf("dispatch:%d:%d", contentID, at.Unix())
}

func (e *Enqueuer) EnqueueDispatch(ctx context.Context, contentID int64, at time.Time) error {
	payload, err := json.Marshal(DispatchContentPayload{ContentID: contentID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeDispatchContent, payload)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID(TaskID(contentID, at)),
		asynq.MaxRetry(0),
		asynq.Queue(e.queue),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("dispatch task scheduled", "content_id", contentID, "process_at", at)
	return nil
}
