package job

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/service"
	"github.com/robfig/cron"
)

// DispatchJob runs the periodic dispatch pass. A tick that fires while the
// previous pass is still running is dropped.
type DispatchJob struct {
	ds      service.DispatchService
	timeout time.Duration
	running atomic.Bool
}

func NewDispatchJob(ds service.DispatchService, timeout time.Duration) *DispatchJob {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &DispatchJob{ds: ds, timeout: timeout}
}

// Schedule registers the pass on c with a robfig/cron spec such as
// "@every 1m".
func (j *DispatchJob) Schedule(c *cron.Cron, spec string) error {
	return c.AddFunc(spec, j.RunDispatchPass)
}

func (j *DispatchJob) RunDispatchPass() {
	if !j.running.CompareAndSwap(false, true) {
		slog.Info("dispatch pass still running, skipping tick")
		return
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.ds.RunPass(ctx); err != nil {
		slog.Error("dispatch pass failed", "error", err)
	}
}
