package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redbtn-io/runstream"
	"github.com/redbtn-io/runstream/queue"
	"github.com/redbtn-io/runstream/run"
)

func TestStateLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	state := &run.State{RunID: "r1", UserID: "u1", Status: run.StatusQueued}
	if err := s.CreateState(ctx, state); err != nil {
		t.Fatalf("CreateState: %v", err)
	}
	if err := s.CreateState(ctx, state); !errors.Is(err, runstream.ErrRunAlreadyExists) {
		t.Fatalf("duplicate CreateState err = %v, want ErrRunAlreadyExists", err)
	}

	got, err := s.GetState(ctx, "r1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got.UserID != "u1" || got.Status != run.StatusQueued {
		t.Fatalf("GetState = %+v", got)
	}

	// Reads return copies, not aliases of the stored record.
	got.Status = run.StatusRunning
	again, err := s.GetState(ctx, "r1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if again.Status != run.StatusQueued {
		t.Fatalf("stored state mutated through a read copy")
	}

	got.Status = run.StatusCompleted
	if err := s.UpdateState(ctx, got); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	final, err := s.GetState(ctx, "r1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if final.Status != run.StatusCompleted {
		t.Fatalf("Status = %q, want completed", final.Status)
	}

	if _, err := s.GetState(ctx, "missing"); !errors.Is(err, runstream.ErrRunNotFound) {
		t.Fatalf("missing run err = %v, want ErrRunNotFound", err)
	}
}

func TestStateExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(WithStateTTL(time.Millisecond))

	if err := s.CreateState(ctx, &run.State{RunID: "r1"}); err != nil {
		t.Fatalf("CreateState: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := s.GetState(ctx, "r1"); !errors.Is(err, runstream.ErrRunNotFound) {
		t.Fatalf("expired run err = %v, want ErrRunNotFound", err)
	}
	if err := s.CreateState(ctx, &run.State{RunID: "r1"}); err != nil {
		t.Fatalf("CreateState after expiry: %v", err)
	}
}

func TestConversationIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	if _, err := s.ConversationRun(ctx, "c1"); !errors.Is(err, runstream.ErrNoActiveRun) {
		t.Fatalf("empty index err = %v, want ErrNoActiveRun", err)
	}
	if err := s.SetConversationRun(ctx, "c1", "r1"); err != nil {
		t.Fatalf("SetConversationRun: %v", err)
	}
	runID, err := s.ConversationRun(ctx, "c1")
	if err != nil {
		t.Fatalf("ConversationRun: %v", err)
	}
	if runID != "r1" {
		t.Fatalf("ConversationRun = %q, want r1", runID)
	}
}

func TestEventLogAppendAndRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	types := []run.EventType{run.EventRunQueued, run.EventRunStart, run.EventChunk, run.EventRunComplete}
	for _, typ := range types {
		if err := s.AppendEvent(ctx, "r1", run.NewEvent(typ, "r1")); err != nil {
			t.Fatalf("AppendEvent(%s): %v", typ, err)
		}
	}

	all, err := s.Events(ctx, "r1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(all) != len(types) {
		t.Fatalf("len(Events) = %d, want %d", len(all), len(types))
	}
	for i, evt := range all {
		if evt.Type != types[i] {
			t.Fatalf("event[%d].Type = %q, want %q", i, evt.Type, types[i])
		}
	}

	tail, err := s.EventsFrom(ctx, "r1", 2)
	if err != nil {
		t.Fatalf("EventsFrom: %v", err)
	}
	if len(tail) != 2 || tail[0].Type != run.EventChunk || tail[1].Type != run.EventRunComplete {
		t.Fatalf("EventsFrom(2) = %v", tail)
	}

	past, err := s.EventsFrom(ctx, "r1", 100)
	if err != nil || len(past) != 0 {
		t.Fatalf("EventsFrom past end = %v, %v", past, err)
	}

	n, err := s.EventCount(ctx, "r1")
	if err != nil || n != len(types) {
		t.Fatalf("EventCount = %d, %v", n, err)
	}

	empty, err := s.Events(ctx, "nope")
	if err != nil || len(empty) != 0 {
		t.Fatalf("Events for unknown run = %v, %v", empty, err)
	}
}

func TestPubSubFanOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	sub1, err := s.Subscribe(ctx, "r1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub2, err := s.Subscribe(ctx, "r1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	other, err := s.Subscribe(ctx, "r2")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer other.Close()

	if err := s.Publish(ctx, "r1", run.NewChunk("r1", "hello", false)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, sub := range []run.Subscription{sub1, sub2} {
		select {
		case evt := <-sub.C():
			if evt.Content != "hello" {
				t.Fatalf("sub%d got %+v", i+1, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub%d timed out", i+1)
		}
	}
	select {
	case evt := <-other.C():
		t.Fatalf("r2 subscriber received r1 event %+v", evt)
	default:
	}

	// Closing one subscription leaves the other working.
	sub1.Close()
	sub1.Close() // idempotent

	if err := s.Publish(ctx, "r1", run.NewChunk("r1", "again", false)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case evt := <-sub2.C():
		if evt.Content != "again" {
			t.Fatalf("sub2 got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("sub2 timed out after sub1 close")
	}
	sub2.Close()
}

func TestQueueOrderingAndDedup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	jobs := []*queue.Job{
		{ID: "low", Queue: "q", Priority: 5, RunAt: now, State: queue.StateWaiting},
		{ID: "high", Queue: "q", Priority: 0, RunAt: now.Add(time.Millisecond), State: queue.StateWaiting},
		{ID: "mid", Queue: "q", Priority: 2, RunAt: now, State: queue.StateWaiting},
	}
	for _, j := range jobs {
		if err := s.EnqueueJob(ctx, j); err != nil {
			t.Fatalf("EnqueueJob(%s): %v", j.ID, err)
		}
	}
	if err := s.EnqueueJob(ctx, jobs[0]); !errors.Is(err, runstream.ErrJobAlreadyExists) {
		t.Fatalf("duplicate enqueue err = %v, want ErrJobAlreadyExists", err)
	}

	time.Sleep(2 * time.Millisecond)
	claimed, err := s.DequeueJobs(ctx, []string{"q"}, 10)
	if err != nil {
		t.Fatalf("DequeueJobs: %v", err)
	}
	gotOrder := make([]string, 0, len(claimed))
	for _, j := range claimed {
		gotOrder = append(gotOrder, j.ID)
		if j.State != queue.StateActive || j.Attempts != 1 || j.StartedAt == nil {
			t.Fatalf("claimed job %s = %+v", j.ID, j)
		}
	}
	want := []string{"high", "mid", "low"}
	if len(gotOrder) != len(want) {
		t.Fatalf("claimed %d jobs, want %d", len(gotOrder), len(want))
	}
	for i := range want {
		if gotOrder[i] != want[i] {
			t.Fatalf("dequeue order = %v, want %v", gotOrder, want)
		}
	}

	// Nothing left.
	again, err := s.DequeueJobs(ctx, []string{"q"}, 10)
	if err != nil || len(again) != 0 {
		t.Fatalf("second dequeue = %v, %v", again, err)
	}
}

func TestQueueDelayedJobsNotDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	j := &queue.Job{
		ID:    "later",
		Queue: "q",
		State: queue.StateDelayed,
		RunAt: time.Now().UTC().Add(time.Hour),
	}
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.DequeueJobs(ctx, []string{"q"}, 10)
	if err != nil || len(claimed) != 0 {
		t.Fatalf("dequeued not-due job: %v, %v", claimed, err)
	}

	// Still cancellable while waiting.
	ok, err := s.CancelJob(ctx, "q", "later")
	if err != nil || !ok {
		t.Fatalf("CancelJob = %v, %v", ok, err)
	}
	got, err := s.GetJob(ctx, "q", "later")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != queue.StateCancelled || got.CompletedAt == nil {
		t.Fatalf("cancelled job = %+v", got)
	}
}

func TestCancelClaimedJobReturnsFalse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	j := &queue.Job{ID: "j1", Queue: "q", State: queue.StateWaiting, RunAt: time.Now().UTC()}
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.DequeueJobs(ctx, []string{"q"}, 1); err != nil {
		t.Fatalf("DequeueJobs: %v", err)
	}

	ok, err := s.CancelJob(ctx, "q", "j1")
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if ok {
		t.Fatal("cancelled an already-claimed job")
	}
}

func TestRequeueJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	j := &queue.Job{ID: "j1", Queue: "q", State: queue.StateWaiting, RunAt: time.Now().UTC(), MaxAttempts: 3}
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	claimed, err := s.DequeueJobs(ctx, []string{"q"}, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("DequeueJobs = %v, %v", claimed, err)
	}

	back := claimed[0]
	back.State = queue.StateDelayed
	back.RunAt = time.Now().UTC().Add(-time.Millisecond)
	if err := s.RequeueJob(ctx, back); err != nil {
		t.Fatalf("RequeueJob: %v", err)
	}

	claimed, err = s.DequeueJobs(ctx, []string{"q"}, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("dequeue after requeue = %v, %v", claimed, err)
	}
	if claimed[0].Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", claimed[0].Attempts)
	}
}
