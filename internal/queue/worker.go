package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (q *Queue) HandleDispatchTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchContentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	if payload.ContentID == 0 {
		return fmt.Errorf("%s payload has no content id: %w", task.Type(), asynq.SkipRetry)
	}

	outcome, err := q.ds.DispatchOne(ctx, payload.ContentID)
	if err != nil {
		return err
	}
	slog.Debug("dispatch task handled", "content_id", payload.ContentID, "outcome", outcome)
	return nil
}

// NewServeMux routes dispatch tasks to q.
func NewServeMux(q *Queue) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDispatchContent, q.HandleDispatchTask)
	return mux
}
