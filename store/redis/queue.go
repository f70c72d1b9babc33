package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/redbtn-io/runstream"
	"github.com/redbtn-io/runstream/queue"
)

// jobScore computes a sorted-set score from priority and run-at time.
// Lower score = dequeued first, so lower priority values are served first
// and jobs with equal priority are FIFO by run-at.
func jobScore(priority int, runAt time.Time) float64 {
	return float64(priority) + float64(runAt.UnixMilli())/1e15
}

// EnqueueJob stores the job as a JSON value and adds it to the queue's
// Sorted Set. The job ID is the dedup key: a second enqueue with the same
// ID fails.
func (s *Store) EnqueueJob(ctx context.Context, j *queue.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("runstream/redis: marshal job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, jobKey(j.Queue, j.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("runstream/redis: enqueue job: %w", err)
	}
	if !ok {
		return runstream.ErrJobAlreadyExists
	}

	score := jobScore(j.Priority, j.RunAt)
	if err := s.client.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: score, Member: j.ID}).Err(); err != nil {
		return fmt.Errorf("runstream/redis: enqueue job zadd: %w", err)
	}
	return nil
}

// DequeueJobs atomically pops up to limit due jobs from the given queues in
// priority order and marks them active. Jobs whose run-at time has not
// arrived are pushed back with their original score.
func (s *Store) DequeueJobs(ctx context.Context, queues []string, limit int) ([]*queue.Job, error) {
	now := time.Now().UTC()
	var jobs []*queue.Job

	for _, q := range queues {
		if len(jobs) >= limit {
			break
		}
		remaining := limit - len(jobs)
		qk := queueKey(q)

		members, err := s.client.ZPopMin(ctx, qk, int64(remaining)).Result()
		if err != nil {
			return nil, fmt.Errorf("runstream/redis: dequeue zpopmin: %w", err)
		}

		for _, z := range members {
			jobID, ok := z.Member.(string)
			if !ok {
				continue
			}

			j, getErr := s.GetJob(ctx, q, jobID)
			if getErr != nil {
				if errors.Is(getErr, runstream.ErrJobNotFound) {
					continue // record expired out from under the queue
				}
				return nil, getErr
			}

			if j.RunAt.After(now) {
				// Not yet due. Push back with its original score.
				if err := s.client.ZAdd(ctx, qk, goredis.Z{Score: z.Score, Member: jobID}).Err(); err != nil {
					return nil, fmt.Errorf("runstream/redis: dequeue push back: %w", err)
				}
				continue
			}

			started := now
			j.State = queue.StateActive
			j.StartedAt = &started
			j.Attempts++
			if err := s.UpdateJob(ctx, j); err != nil {
				return nil, err
			}
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// GetJob retrieves a job by queue and ID.
func (s *Store) GetJob(ctx context.Context, q, jobID string) (*queue.Job, error) {
	data, err := s.client.Get(ctx, jobKey(q, jobID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, runstream.ErrJobNotFound
		}
		return nil, fmt.Errorf("runstream/redis: get job: %w", err)
	}

	var j queue.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("runstream/redis: unmarshal job: %w", err)
	}
	return &j, nil
}

// UpdateJob persists changes to an existing job. Reaching a final state
// arms the job's retention TTL: completed jobs expire sooner than failed
// or cancelled ones, which are kept for manual inspection.
func (s *Store) UpdateJob(ctx context.Context, j *queue.Job) error {
	j.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("runstream/redis: marshal job: %w", err)
	}

	ttl := s.retention(j)
	if err := s.client.Set(ctx, jobKey(j.Queue, j.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("runstream/redis: update job: %w", err)
	}
	return nil
}

// RequeueJob writes the job back and re-adds it to its queue's Sorted Set.
func (s *Store) RequeueJob(ctx context.Context, j *queue.Job) error {
	if err := s.UpdateJob(ctx, j); err != nil {
		return err
	}
	score := jobScore(j.Priority, j.RunAt)
	if err := s.client.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: score, Member: j.ID}).Err(); err != nil {
		return fmt.Errorf("runstream/redis: requeue job: %w", err)
	}
	return nil
}

// CancelJob removes a waiting or delayed job from its queue. The ZRem is
// the arbitration point: zero removals means a worker already claimed the
// job (or it finished), which is a defined no-op, not an error.
func (s *Store) CancelJob(ctx context.Context, q, jobID string) (bool, error) {
	removed, err := s.client.ZRem(ctx, queueKey(q), jobID).Result()
	if err != nil {
		return false, fmt.Errorf("runstream/redis: cancel job zrem: %w", err)
	}
	if removed == 0 {
		return false, nil
	}

	j, err := s.GetJob(ctx, q, jobID)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	j.State = queue.StateCancelled
	j.CompletedAt = &now
	if err := s.UpdateJob(ctx, j); err != nil {
		return false, err
	}
	return true, nil
}

// retention returns the TTL to apply to a job record for its state.
// Non-final jobs never expire; their queue membership keeps them alive.
func (s *Store) retention(j *queue.Job) time.Duration {
	switch j.State {
	case queue.StateCompleted:
		if j.KeepCompleted > 0 {
			return j.KeepCompleted
		}
		return time.Hour
	case queue.StateFailed, queue.StateCancelled:
		if j.KeepFailed > 0 {
			return j.KeepFailed
		}
		return 24 * time.Hour
	default:
		return 0
	}
}
