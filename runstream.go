package runstream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redbtn-io/runstream/backoff"
	"github.com/redbtn-io/runstream/queue"
	"github.com/redbtn-io/runstream/run"
	"github.com/redbtn-io/runstream/store"
	"github.com/redbtn-io/runstream/worker"
)

// Service wires the run manager, job submitter, and worker pool over one
// shared store. It is the embedding application's single entry point:
// register handlers, start, submit work, stop. The stream server is
// deliberately separate: it only needs the run manager and is typically
// deployed on different instances than the workers.
type Service struct {
	config   Config
	store    store.Store
	logger   *slog.Logger
	backoff  backoff.Strategy
	limiter  *queue.Limiter
	runs     *run.Manager
	jobs     *queue.Submitter
	registry *worker.Registry
	pool     *worker.Pool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore sets the backing store. Required.
func WithStore(s store.Store) ServiceOption {
	return func(svc *Service) { svc.store = s }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) ServiceOption {
	return func(svc *Service) { svc.config = cfg }
}

// WithLogger sets the structured logger for all subsystems.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(svc *Service) { svc.logger = l }
}

// WithBackoff sets the retry backoff strategy for failed jobs.
func WithBackoff(b backoff.Strategy) ServiceOption {
	return func(svc *Service) { svc.backoff = b }
}

// WithLimiter sets per-queue concurrency and rate limits.
func WithLimiter(l *queue.Limiter) ServiceOption {
	return func(svc *Service) { svc.limiter = l }
}

// New creates a Service. A store must be provided via WithStore.
func New(opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.store == nil {
		return nil, ErrNoStore
	}

	svc.runs = run.NewManager(svc.store, run.WithLogger(svc.logger))
	svc.jobs = queue.NewSubmitter(svc.store, queue.WithLogger(svc.logger))
	svc.registry = worker.NewRegistry()

	executor := worker.NewExecutor(svc.registry, svc.store, svc.backoff, svc.logger)
	poolOpts := []worker.PoolOption{
		worker.WithConcurrency(svc.config.Concurrency),
		worker.WithQueues(svc.config.Queues),
		worker.WithPollInterval(svc.config.PollInterval),
		worker.WithLogger(svc.logger),
	}
	if svc.limiter != nil {
		poolOpts = append(poolOpts, worker.WithLimiter(svc.limiter))
	}
	svc.pool = worker.NewPool(svc.store, executor, poolOpts...)

	return svc, nil
}

// Runs returns the run lifecycle manager.
func (s *Service) Runs() *run.Manager { return s.runs }

// Jobs returns the job submitter.
func (s *Service) Jobs() *queue.Submitter { return s.jobs }

// Registry returns the worker handler registry. Handlers must be
// registered before Start.
func (s *Service) Registry() *worker.Registry { return s.registry }

// Store returns the backing store.
func (s *Service) Store() store.Store { return s.store }

// Start verifies store connectivity and launches the worker pool.
func (s *Service) Start(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("runstream: store ping: %w", err)
	}
	if err := s.pool.Start(ctx); err != nil {
		return fmt.Errorf("runstream: start pool: %w", err)
	}
	s.logger.Info("service started")
	return nil
}

// Stop drains the worker pool and closes the store. The pool shutdown is
// bounded by the configured shutdown timeout unless ctx expires first.
func (s *Service) Stop(ctx context.Context) error {
	stopCtx := ctx
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	poolErr := s.pool.Stop(stopCtx)
	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close failed", slog.String("error", err.Error()))
	}
	if poolErr != nil {
		return fmt.Errorf("runstream: stop pool: %w", poolErr)
	}
	s.logger.Info("service stopped")
	return nil
}
