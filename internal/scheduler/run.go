package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var ErrUnknownJob = errors.New("scheduler_unknown_job")

type jobRun struct {
	ID        string
	Job       string
	StartedAt time.Time

	mu        sync.Mutex
	processed int
	failed    int
}

func (r *jobRun) AddProcessed(n int) {
	r.mu.Lock()
	r.processed += n
	r.mu.Unlock()
}

func (r *jobRun) AddFailed(n int) {
	r.mu.Lock()
	r.failed += n
	r.mu.Unlock()
}

func (r *jobRun) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed, r.failed
}

type jobRunKey struct{}

// ensureJobRun returns the run carried by ctx, or starts a new one. owner is
// true when the caller started the run and must log its lifecycle.
func (s *Scheduler) ensureJobRun(ctx context.Context, name string) (context.Context, *jobRun, bool) {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && run != nil {
		return ctx, run, false
	}
	run := &jobRun{
		ID:        ulid.Make().String(),
		Job:       name,
		StartedAt: s.clock.Now(ctx),
	}
	return context.WithValue(ctx, jobRunKey{}, run), run, true
}

func (s *Scheduler) logJobStart(_ context.Context, run *jobRun) {
	s.log.Info("job started",
		zap.String("job", run.Job),
		zap.String("run_id", run.ID),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	processed, failed := run.counts()
	s.log.Info("job finished",
		zap.String("job", run.Job),
		zap.String("run_id", run.ID),
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Duration("duration", s.clock.Now(ctx).Sub(run.StartedAt)),
	)
}

func (s *Scheduler) logSchedulerError(_ context.Context, run *jobRun, event, job string, processed int, err error) {
	s.log.Error(event,
		zap.String("job", job),
		zap.String("run_id", run.ID),
		zap.Int("processed", processed),
		zap.Error(err),
	)
}
