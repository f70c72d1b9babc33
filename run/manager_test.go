package run_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redbtn-io/runstream"
	"github.com/redbtn-io/runstream/run"
	"github.com/redbtn-io/runstream/store/memory"
)

func newManager(t *testing.T) *run.Manager {
	t.Helper()
	return run.NewManager(memory.New())
}

func TestInitialize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager(t)

	state, err := m.Initialize(ctx, run.InitParams{
		RunID:          "r1",
		UserID:         "u1",
		GraphID:        "g1",
		GraphName:      "G",
		ConversationID: "c1",
		Input:          map[string]any{"msg": "hi"},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if state.Status != run.StatusQueued {
		t.Fatalf("Status = %q, want queued", state.Status)
	}
	if state.StartedAt == 0 {
		t.Fatal("StartedAt not set")
	}

	events, err := m.Events(ctx, "r1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].Type != run.EventRunQueued {
		t.Fatalf("log = %v, want single run_queued", events)
	}

	active, err := m.ActiveRun(ctx, "c1")
	if err != nil {
		t.Fatalf("ActiveRun: %v", err)
	}
	if active != "r1" {
		t.Fatalf("ActiveRun = %q, want r1", active)
	}
}

func TestInitializeGeneratesRunID(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	state, err := m.Initialize(context.Background(), run.InitParams{UserID: "u1"})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if state.RunID == "" {
		t.Fatal("RunID not generated")
	}
}

func TestInitializeDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager(t)

	if _, err := m.Initialize(ctx, run.InitParams{RunID: "r1"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := m.Initialize(ctx, run.InitParams{RunID: "r1"}); !errors.Is(err, runstream.ErrRunAlreadyExists) {
		t.Fatalf("duplicate Initialize err = %v, want ErrRunAlreadyExists", err)
	}
}

func TestGetIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager(t)

	if _, err := m.Initialize(ctx, run.InitParams{RunID: "r1", UserID: "u1"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	first, err := m.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for n := 0; n < 3; n++ {
		again, err := m.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if again.Status != first.Status || again.UserID != first.UserID || again.StartedAt != first.StartedAt {
			t.Fatalf("Get returned different state: %+v vs %+v", again, first)
		}
	}
}

func TestCancelBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status run.Status
		want   bool
	}{
		{run.StatusQueued, true},
		{run.StatusPending, true},
		{run.StatusRunning, false},
		{run.StatusCompleted, false},
		{run.StatusFailed, false},
		{run.StatusCancelled, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			m := newManager(t)

			state, err := m.Initialize(ctx, run.InitParams{RunID: "r1"})
			if err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			state.Status = tt.status
			if err := m.Update(ctx, state); err != nil {
				t.Fatalf("Update: %v", err)
			}

			got, err := m.Cancel(ctx, "r1")
			if err != nil {
				t.Fatalf("Cancel: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Cancel from %s = %v, want %v", tt.status, got, tt.want)
			}

			after, err := m.Get(ctx, "r1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if tt.want && after.Status != run.StatusCancelled {
				t.Fatalf("Status after cancel = %q, want cancelled", after.Status)
			}
			if !tt.want && after.Status != tt.status {
				t.Fatalf("failed cancel mutated status to %q", after.Status)
			}
		})
	}
}

func TestCancelMissingRun(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	if _, err := m.Cancel(context.Background(), "nope"); !errors.Is(err, runstream.ErrRunNotFound) {
		t.Fatalf("Cancel err = %v, want ErrRunNotFound", err)
	}
}

func TestEmitAppendsAndBroadcasts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager(t)

	sub, err := m.Subscribe(ctx, "r1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := m.Emit(ctx, "r1", run.NewChunk("r1", "hello", false)); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	n, err := m.EventCount(ctx, "r1")
	if err != nil || n != 1 {
		t.Fatalf("EventCount = %d, %v", n, err)
	}

	select {
	case evt := <-sub.C():
		if evt.Type != run.EventChunk || evt.Content != "hello" {
			t.Fatalf("broadcast = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast timed out")
	}
}

func TestSubscriberOrderMatchesAppendOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager(t)

	sub, err := m.Subscribe(ctx, "r1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	for i := 0; i < 10; i++ {
		evt := run.NewChunk("r1", "", false)
		evt.Progress = float64(i)
		if err := m.Emit(ctx, "r1", evt); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case evt := <-sub.C():
			if evt.Progress != float64(i) {
				t.Fatalf("event %d out of order: %+v", i, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}
