package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redbtn-io/runstream/queue"
)

// QueueLimiter controls per-queue rate limiting and concurrency. The pool
// calls Acquire before executing a claimed job and Release afterwards.
type QueueLimiter interface {
	Acquire(queue string) bool
	Release(queue string)
}

// Pool manages a set of concurrent worker goroutines that poll the job
// queues and execute claimed jobs through the Executor.
type Pool struct {
	store        queue.Store
	executor     *Executor
	concurrency  int
	queues       []string
	pollInterval time.Duration
	limiter      QueueLimiter
	logger       *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of concurrent worker goroutines.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithQueues sets the queues the pool will poll.
func WithQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollInterval sets how often idle workers poll for new jobs.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithLimiter sets the per-queue rate/concurrency limiter.
func WithLimiter(l QueueLimiter) PoolOption {
	return func(p *Pool) { p.limiter = l }
}

// WithLogger sets the structured logger for the pool.
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a worker pool.
func NewPool(store queue.Store, executor *Executor, opts ...PoolOption) *Pool {
	p := &Pool{
		store:        store,
		executor:     executor,
		concurrency:  10,
		queues:       []string{queue.QueueGraphs, queue.QueueAutomations, queue.QueueBackground},
		pollInterval: time.Second,
		logger:       slog.Default(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.dequeueLoop()
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish, bounded
// by the context deadline.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
		return ctx.Err()
	}
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		jobs, err := p.store.DequeueJobs(context.Background(), p.queues, 1)
		if err != nil {
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}
		if len(jobs) == 0 {
			p.sleep()
			continue
		}

		j := jobs[0]

		if p.limiter != nil && !p.limiter.Acquire(j.Queue) {
			// Over the queue's limit. Return the job with a small delay.
			j.State = queue.StateDelayed
			j.RunAt = time.Now().UTC().Add(p.pollInterval)
			j.Attempts-- // the claim doesn't count as an attempt
			if requeueErr := p.store.RequeueJob(context.Background(), j); requeueErr != nil {
				p.logger.Error("failed to return rate-limited job",
					slog.String("job_id", j.ID),
					slog.String("error", requeueErr.Error()),
				)
			}
			p.sleep()
			continue
		}

		if execErr := p.executor.Execute(context.Background(), j); execErr != nil {
			p.logger.Debug("job execution failed",
				slog.String("job_id", j.ID),
				slog.String("type", string(j.Type)),
				slog.String("error", execErr.Error()),
			)
		}

		if p.limiter != nil {
			p.limiter.Release(j.Queue)
		}
	}
}

// sleep waits one poll interval or until the pool stops.
func (p *Pool) sleep() {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	select {
	case <-p.stopCh:
	case <-timer.C:
	}
}
