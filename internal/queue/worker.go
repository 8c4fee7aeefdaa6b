package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lexhaven/docintel/internal/resilience"
)

// Handler processes one claimed job. A nil return completes the job; an
// error requeues it with backoff until attempts are exhausted.
type Handler func(ctx context.Context, job *Job) error

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency" mapstructure:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// Worker polls the queue and dispatches jobs to registered handlers.
type Worker struct {
	queue    Queue
	handlers map[string]Handler
	kinds    []string
	cfg      WorkerConfig
	backoff  resilience.BackoffConfig
}

// NewWorker creates a worker pool over a queue.
func NewWorker(q Queue, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Worker{
		queue:    q,
		handlers: make(map[string]Handler),
		cfg:      cfg,
		backoff:  resilience.DefaultBackoff(),
	}
}

// Handle registers the handler for a job kind. Must be called before Run.
func (w *Worker) Handle(kind string, h Handler) {
	w.handlers[kind] = h
	w.kinds = append(w.kinds, kind)
}

// Run polls until ctx is cancelled. Each of the pool's goroutines claims
// and processes jobs independently; an empty queue costs one poll interval.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return eris.New("queue: worker has no handlers")
	}
	zap.L().Info("worker: starting",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Strings("kinds", w.kinds),
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	err := g.Wait()
	if eris.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		job, err := w.queue.Dequeue(ctx, w.kinds)
		if err != nil {
			zap.L().Error("worker: dequeue failed", zap.Error(err))
			job = nil
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.PollInterval):
				continue
			}
		}

		w.process(ctx, job)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	log := zap.L().With(
		zap.String("job_id", job.ID.String()),
		zap.String("kind", job.Kind),
		zap.Int("attempt", job.Attempts),
	)

	handler, ok := w.handlers[job.Kind]
	if !ok {
		// Unroutable jobs dead-letter immediately instead of burning retries.
		log.Error("worker: no handler for kind")
		job.Attempts = job.MaxAttempts
		if err := w.queue.Fail(ctx, job, eris.Errorf("no handler for kind %s", job.Kind), 0); err != nil {
			log.Error("worker: dead-letter failed", zap.Error(err))
		}
		return
	}

	start := time.Now()
	if err := handler(ctx, job); err != nil {
		retryIn := w.backoff.Delay(job.Attempts - 1)
		if failErr := w.queue.Fail(ctx, job, err, retryIn); failErr != nil {
			log.Error("worker: record failure failed", zap.Error(failErr))
			return
		}
		if job.Status == JobDead {
			log.Error("worker: job dead-lettered", zap.Error(err))
		} else {
			log.Warn("worker: job failed, will retry",
				zap.Error(err),
				zap.Duration("retry_in", retryIn),
			)
		}
		return
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		log.Error("worker: complete failed", zap.Error(err))
		return
	}
	log.Info("worker: job completed", zap.Duration("duration", time.Since(start)))
}
