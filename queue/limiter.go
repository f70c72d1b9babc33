package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// LimitConfig defines per-queue behavior such as rate limiting and
// concurrency caps.
type LimitConfig struct {
	// Name is the queue identifier (must match the job.Queue field).
	Name string

	// MaxConcurrency limits how many jobs from this queue may run
	// simultaneously across the local worker pool. Zero means no
	// queue-specific limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained dequeues per second for this
	// queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst size. Defaults to 1 when
	// RateLimit is set but RateBurst is zero.
	RateBurst int
}

type limitState struct {
	config  LimitConfig
	limiter *rate.Limiter
	active  int
}

// Limiter controls per-queue rate limiting and concurrency for the worker
// pool. Queues without a configuration have no limits. Safe for concurrent
// use.
type Limiter struct {
	mu     sync.Mutex
	queues map[string]*limitState
}

// NewLimiter creates a Limiter with the given queue configurations.
func NewLimiter(configs ...LimitConfig) *Limiter {
	l := &Limiter{queues: make(map[string]*limitState, len(configs))}
	for _, cfg := range configs {
		l.queues[cfg.Name] = newLimitState(cfg)
	}
	return l
}

func newLimitState(cfg LimitConfig) *limitState {
	ls := &limitState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ls.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ls
}

// Acquire checks rate and concurrency limits for the queue. If the job may
// proceed it increments the active counter and returns true. The caller
// MUST call Release when the job completes.
func (l *Limiter) Acquire(queue string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ls := l.queues[queue]
	if ls == nil {
		return true
	}
	if ls.limiter != nil && !ls.limiter.Allow() {
		return false
	}
	if ls.config.MaxConcurrency > 0 && ls.active >= ls.config.MaxConcurrency {
		return false
	}
	ls.active++
	return true
}

// Release decrements the active job count for the queue.
func (l *Limiter) Release(queue string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ls := l.queues[queue]; ls != nil && ls.active > 0 {
		ls.active--
	}
}

// ActiveCount returns the current number of active jobs for a queue.
func (l *Limiter) ActiveCount(queue string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ls := l.queues[queue]; ls != nil {
		return ls.active
	}
	return 0
}
