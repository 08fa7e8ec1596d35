package queue

import (
	"context"
	"sync"
	"time"

	"video_clip_service/pkg/config"
	errprocess "video_clip_service/pkg/err"
	"video_clip_service/pkg/logger"

	"go.uber.org/zap"
)

// Handler processes one job. Returning nil acks the job; returning an
// error marked fatal (errprocess.Fatal) drops it; any other error sends
// it through the backoff retry path until attempts are exhausted.
type Handler func(ctx context.Context, job *Job) error

// Worker is a bounded consumer pool over one named queue.
type Worker struct {
	queue   *Queue
	name    string
	cfg     config.WorkerConfig
	handler Handler
	wg      sync.WaitGroup
}

// NewWorker builds a consumer pool for the named queue.
func NewWorker(q *Queue, name string, cfg config.WorkerConfig, handler Handler) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LeaseSeconds <= 0 {
		cfg.LeaseSeconds = 300
	}
	return &Worker{queue: q, name: name, cfg: cfg, handler: handler}
}

// Start launches the consumer goroutines plus one maintenance loop that
// promotes due retries and reclaims stalled jobs. It returns
// immediately; cancel ctx and call Wait for a drain.
func (w *Worker) Start(ctx context.Context) {
	logger.Log.Info("queue worker starting",
		zap.String("queue", w.name),
		zap.Int("concurrency", w.cfg.Concurrency),
	)

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.consume(ctx)
	}

	w.wg.Add(1)
	go w.maintain(ctx)
}

// Wait blocks until all consumer goroutines have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, raw, err := w.queue.dequeue(ctx, w.name, w.cfg.Lease(), time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Errorf("dequeue failed:", err, zap.String("queue", w.name))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.run(ctx, job, raw)
	}
}

func (w *Worker) run(ctx context.Context, job *Job, raw string) {
	jobCtx := ctx
	var cancel context.CancelFunc
	if w.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.Timeout())
		defer cancel()
	}

	err := w.handler(jobCtx, job)
	if err == nil {
		w.queue.remove(ctx, w.name, raw)
		logger.Log.Debug("job done",
			zap.String("queue", w.name),
			zap.String("job_id", job.ID),
		)
		return
	}

	if errprocess.IsFatal(err) || job.Attempts+1 >= w.cfg.MaxAttempts {
		w.queue.remove(ctx, w.name, raw)
		logger.Log.Errorf("job dropped:", err,
			zap.String("queue", w.name),
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts+1),
			zap.Bool("fatal", errprocess.IsFatal(err)),
		)
		return
	}

	delay := backoffDelay(w.cfg.Backoff(), job.Attempts)
	if rerr := w.queue.retryLater(ctx, job, raw, delay); rerr != nil {
		logger.Log.Errorf("job retry scheduling failed:", rerr,
			zap.String("queue", w.name),
			zap.String("job_id", job.ID),
		)
		return
	}
	logger.Log.Warn("job failed, retry scheduled",
		zap.String("queue", w.name),
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
}

func (w *Worker) maintain(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Processing entries without a lease, carried over one tick. An
	// orphan must be seen on two consecutive ticks before requeueing so
	// a pop still in flight toward its lease write is never swept.
	suspects := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.promoteDelayed(ctx, w.name); err != nil && ctx.Err() == nil {
				logger.Log.Errorf("promote delayed failed:", err, zap.String("queue", w.name))
			}
			n, err := w.queue.reclaimStalled(ctx, w.name)
			if err != nil && ctx.Err() == nil {
				logger.Log.Errorf("reclaim stalled failed:", err, zap.String("queue", w.name))
			}
			if n > 0 {
				logger.Log.Warn("reclaimed stalled jobs",
					zap.String("queue", w.name),
					zap.Int("count", n),
				)
			}
			suspects = w.sweepOrphans(ctx, suspects)
		}
	}
}

// sweepOrphans requeues processing entries that had no lease on the
// previous tick and still have none, and returns the fresh suspects for
// the next tick.
func (w *Worker) sweepOrphans(ctx context.Context, suspects map[string]struct{}) map[string]struct{} {
	orphans, err := w.queue.orphanedProcessing(ctx, w.name)
	if err != nil {
		if ctx.Err() == nil {
			logger.Log.Errorf("orphan scan failed:", err, zap.String("queue", w.name))
		}
		return suspects
	}

	next := make(map[string]struct{}, len(orphans))
	for _, raw := range orphans {
		if _, seen := suspects[raw]; !seen {
			next[raw] = struct{}{}
			continue
		}
		if err := w.queue.requeue(ctx, w.name, raw); err != nil {
			logger.Log.Errorf("orphan requeue failed:", err, zap.String("queue", w.name))
			next[raw] = struct{}{}
			continue
		}
		logger.Log.Warn("requeued orphaned job", zap.String("queue", w.name))
	}
	return next
}
