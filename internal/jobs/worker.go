package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// WorkerPool polls the queue from a fixed set of goroutines and dispatches
// jobs to the handler registered for their type.
type WorkerPool struct {
	repo        *Repository
	handlers    map[string]Handler
	logger      *slog.Logger
	workerCount int
	poll        time.Duration
	stop        chan struct{}
	wg          sync.WaitGroup
}

// NewWorkerPool builds a pool. poll is the idle wait between queue checks;
// zero or negative falls back to 500ms.
func NewWorkerPool(repo *Repository, handlers map[string]Handler, logger *slog.Logger, workerCount int, poll time.Duration) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{repo: repo, handlers: handlers, logger: logger, workerCount: workerCount, poll: poll, stop: make(chan struct{})}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them
func (p *WorkerPool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Info("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Info("context canceled, worker exiting", "id", id)
			return
		default:
			job, err := p.repo.FetchNext(ctx)
			if err != nil {
				p.logger.Error("fetch job", "err", err)
				p.idle(ctx, time.Second)
				continue
			}
			if job == nil {
				// nothing to do
				p.idle(ctx, p.poll)
				continue
			}
			p.handle(ctx, job)
		}
	}
}

func (p *WorkerPool) handle(ctx context.Context, job *Job) {
	h, ok := p.handlers[job.Type]
	if !ok {
		job.Status = "failed"
		job.LastError = "no handler for job type"
		if err := p.repo.MoveToDeadLetter(ctx, job); err != nil {
			p.logger.Error("move to dead letter", "job_id", job.ID, "err", err)
		}
		p.logger.Warn("no handler for job", "job_id", job.ID, "type", job.Type)
		return
	}
	if err := h(ctx, job); err != nil {
		p.fail(ctx, job, err)
		return
	}
	job.Status = "done"
	job.LastError = ""
	if err := p.repo.UpdateJob(ctx, job); err != nil {
		p.logger.Error("mark job done", "job_id", job.ID, "err", err)
	}
}

func (p *WorkerPool) fail(ctx context.Context, job *Job, cause error) {
	job.Attempts++
	job.LastError = cause.Error()
	if job.Attempts >= job.MaxAttempts {
		job.Status = "failed"
		p.logger.Warn("job failed permanently", "job_id", job.ID, "type", job.Type, "attempts", job.Attempts, "err", ErrMaxAttempts)
		if err := p.repo.MoveToDeadLetter(ctx, job); err != nil {
			p.logger.Error("move to dead letter", "job_id", job.ID, "err", err)
		}
		return
	}
	t := time.Now().Add(BackoffDuration(job.Attempts))
	job.NextTryAt = &t
	job.Status = "retry"
	if err := p.repo.UpdateJob(ctx, job); err != nil {
		p.logger.Error("update job for retry", "job_id", job.ID, "err", err)
		return
	}
	p.logger.Info("job scheduled for retry", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts)
}

// idle waits for d but wakes early on stop or context cancel
func (p *WorkerPool) idle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.stop:
	case <-ctx.Done():
	case <-t.C:
	}
}

// Enqueue convenience helper that creates a job and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	j := &Job{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now()}
	return p.repo.Enqueue(ctx, j)
}
