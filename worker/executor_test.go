package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redbtn-io/runstream/backoff"
	"github.com/redbtn-io/runstream/queue"
	"github.com/redbtn-io/runstream/store/memory"
	"github.com/redbtn-io/runstream/worker"
)

func claimJob(t *testing.T, st *memory.Store, j *queue.Job) *queue.Job {
	t.Helper()
	ctx := context.Background()
	if err := st.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	claimed, err := st.DequeueJobs(ctx, []string{j.Queue}, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("DequeueJobs = %v, %v", claimed, err)
	}
	return claimed[0]
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()

	registry := worker.NewRegistry()
	var got queue.BackgroundPayload
	worker.Register(registry, worker.NewDefinition(queue.TypeBackground,
		func(_ context.Context, _ *queue.Job, p queue.BackgroundPayload) error {
			got = p
			return nil
		}))

	exec := worker.NewExecutor(registry, st, nil, slog.Default())
	j := claimJob(t, st, &queue.Job{
		ID:      "j1",
		Type:    queue.TypeBackground,
		Queue:   queue.QueueBackground,
		Payload: []byte(`{"type":"cleanup","userId":"u1"}`),
		State:   queue.StateWaiting,
		RunAt:   time.Now().UTC(),
	})

	if err := exec.Execute(ctx, j); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Task != "cleanup" || got.UserID != "u1" {
		t.Fatalf("payload = %+v", got)
	}

	stored, err := st.GetJob(ctx, queue.QueueBackground, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.State != queue.StateCompleted || stored.CompletedAt == nil || stored.Progress != 1 {
		t.Fatalf("job = %+v", stored)
	}
}

func TestExecuteRetriesWithBackoff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()

	registry := worker.NewRegistry()
	worker.Register(registry, worker.NewDefinition(queue.TypeBackground,
		func(context.Context, *queue.Job, queue.BackgroundPayload) error {
			return errors.New("boom")
		}))

	exec := worker.NewExecutor(registry, st, backoff.NewConstant(time.Minute), slog.Default())
	j := claimJob(t, st, &queue.Job{
		ID:          "j1",
		Type:        queue.TypeBackground,
		Queue:       queue.QueueBackground,
		State:       queue.StateWaiting,
		RunAt:       time.Now().UTC(),
		MaxAttempts: 3,
	})

	before := time.Now().UTC()
	if err := exec.Execute(ctx, j); err == nil {
		t.Fatal("Execute should surface the handler error")
	}

	stored, err := st.GetJob(ctx, queue.QueueBackground, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.State != queue.StateDelayed {
		t.Fatalf("State = %q, want delayed", stored.State)
	}
	if stored.LastError != "boom" {
		t.Fatalf("LastError = %q", stored.LastError)
	}
	if stored.RunAt.Before(before.Add(59 * time.Second)) {
		t.Fatalf("RunAt = %v, want ~1m out", stored.RunAt)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()

	registry := worker.NewRegistry()
	worker.Register(registry, worker.NewDefinition(queue.TypeBackground,
		func(context.Context, *queue.Job, queue.BackgroundPayload) error {
			return errors.New("boom")
		}))

	exec := worker.NewExecutor(registry, st, nil, slog.Default())
	j := claimJob(t, st, &queue.Job{
		ID:          "j1",
		Type:        queue.TypeBackground,
		Queue:       queue.QueueBackground,
		State:       queue.StateWaiting,
		RunAt:       time.Now().UTC(),
		MaxAttempts: 1,
	})

	if err := exec.Execute(ctx, j); err == nil {
		t.Fatal("Execute should surface the handler error")
	}

	stored, err := st.GetJob(ctx, queue.QueueBackground, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.State != queue.StateFailed || stored.CompletedAt == nil {
		t.Fatalf("job = %+v", stored)
	}
}

func TestExecuteUnknownType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := memory.New()

	exec := worker.NewExecutor(worker.NewRegistry(), st, nil, slog.Default())
	j := claimJob(t, st, &queue.Job{
		ID:          "j1",
		Type:        queue.TypeGraph,
		Queue:       queue.QueueGraphs,
		State:       queue.StateWaiting,
		RunAt:       time.Now().UTC(),
		MaxAttempts: 1,
	})

	if err := exec.Execute(ctx, j); err == nil {
		t.Fatal("Execute should fail for unregistered type")
	}

	stored, err := st.GetJob(ctx, queue.QueueGraphs, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.State != queue.StateFailed {
		t.Fatalf("State = %q, want failed", stored.State)
	}
}
