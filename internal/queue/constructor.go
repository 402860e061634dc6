package queue

import (
	"github.com/avataralabs/queuelabs-sub000/internal/service"
)

// Queue runs dispatch attempts delivered by the task queue.
type Queue struct {
	ds service.DispatchService
}

func NewQueue(ds service.DispatchService) *Queue {
	return &Queue{ds: ds}
}

const TaskTypeDispatchContent = "content:dispatch"

type DispatchContentPayload struct {
	ContentID int64 `json:"content_id"`
}
