package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/redbtn-io/runstream"
	"github.com/redbtn-io/runstream/run"
)

// doneSentinel terminates a stream after a terminal event.
const doneSentinel = "[DONE]"

// handleStream serves one SSE connection through the replay → reconcile →
// live state machine. A run with no state yet is not an error: the client
// gets an empty init snapshot and the connection waits for events (the
// cold-start race where a client connects before Initialize lands).
func (s *Server) handleStream(c *gin.Context) {
	runID := c.Param("runId")
	ctx := c.Request.Context()

	state, err := s.runs.Get(ctx, runID)
	if err != nil && !errors.Is(err, runstream.ErrRunNotFound) {
		s.logger.Error("stream connect state read failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	identity := identityFrom(c)
	if state != nil && state.UserID != "" && identity != nil &&
		identity.Subject != state.UserID && !identity.HasScope("*") {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	cn := &streamConn{
		server:   s,
		runID:    runID,
		identity: identity,
		writer:   c.Writer,
		next:     resumeIndex(c) + 1,
	}
	cn.serve(ctx)
}

// resumeIndex extracts the last event index the client processed, from the
// standard Last-Event-ID header or a query fallback for clients that cannot
// set headers. Returns -1 on a cold connect.
func resumeIndex(c *gin.Context) int {
	raw := c.GetHeader("Last-Event-ID")
	if raw == "" {
		raw = c.Query("lastEventId")
	}
	if raw == "" {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// streamConn is the per-connection state: the next log index to deliver
// and the authenticated identity. Everything else is read through the
// server's run manager so concurrent connections to the same run never
// share position.
type streamConn struct {
	server   *Server
	runID    string
	identity *Identity
	writer   gin.ResponseWriter
	next     int

	// vetted records that ownership has been checked against an existing
	// state record. Stays false on a cold connect until the record appears.
	vetted bool
}

// allowed reports whether the connection's identity may read the run.
func (cn *streamConn) allowed(state *run.State) bool {
	if state.UserID == "" || cn.identity == nil {
		return true
	}
	return cn.identity.Subject == state.UserID || cn.identity.HasScope("*")
}

// serve runs the connection to completion. Delivery is log-driven: the
// live subscription and the keepalive ticker are both treated as wake-up
// signals to re-read the log from next onward, so buffered duplicates from
// the subscribe-before-read ordering collapse into empty reads instead of
// double-sends, and every delivered event carries its true log index.
func (cn *streamConn) serve(ctx context.Context) {
	s := cn.server

	cn.writer.Header().Set("Content-Type", "text/event-stream")
	cn.writer.Header().Set("Cache-Control", "no-cache")
	cn.writer.Header().Set("Connection", "keep-alive")
	cn.writer.Header().Set("X-Accel-Buffering", "no")
	cn.writeRetry(DefaultRetryMS)

	sub, err := s.runs.Subscribe(ctx, cn.runID)
	if err != nil {
		cn.fail("subscribe failed", err)
		return
	}
	defer sub.Close()

	// Snapshot state after subscribing so the init frame is as fresh as
	// the replay that follows it.
	state, err := s.runs.Get(ctx, cn.runID)
	if err != nil && !errors.Is(err, runstream.ErrRunNotFound) {
		cn.fail("state read failed", err)
		return
	}
	if state != nil {
		// The middleware's ownership check may have run against a record
		// that did not exist yet; re-apply it against the fresh snapshot.
		if !cn.allowed(state) {
			cn.deny()
			return
		}
		cn.vetted = true
	}
	if err := cn.writeEvent(-1, run.NewInit(state)); err != nil {
		return
	}

	if cn.next < 0 {
		cn.next = 0
	}

	terminal, err := cn.drain(ctx)
	if err != nil {
		cn.fail("event log read failed", err)
		return
	}
	if !terminal && state != nil && state.Status.Terminal() {
		// The client already holds the terminal event (resume past it)
		// but the run is over; short-circuit instead of going live.
		terminal = true
	}
	if terminal {
		cn.finish()
		return
	}

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				return
			}
		case <-ticker.C:
			if err := cn.writeComment("keepalive"); err != nil {
				return
			}
		}

		// A cold connect races Initialize: ownership could not be checked
		// until the state record exists, so settle it before delivering
		// anything that arrived on the wake-up.
		if !cn.vetted {
			st, err := s.runs.Get(ctx, cn.runID)
			switch {
			case err == nil:
				if !cn.allowed(st) {
					cn.deny()
					return
				}
				cn.vetted = true
			case !errors.Is(err, runstream.ErrRunNotFound):
				cn.fail("state read failed", err)
				return
			}
		}

		terminal, err := cn.drain(ctx)
		if err != nil {
			cn.fail("event log read failed", err)
			return
		}
		if terminal {
			cn.finish()
			return
		}
	}
}

// drain delivers every logged event from next onward and reports whether a
// terminal event was among them.
func (cn *streamConn) drain(ctx context.Context) (bool, error) {
	events, err := cn.server.runs.EventsFrom(ctx, cn.runID, cn.next)
	if err != nil {
		return false, err
	}
	for _, evt := range events {
		if err := cn.writeEvent(cn.next, evt); err != nil {
			return false, err
		}
		cn.next++
		if evt.Type.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

// writeEvent emits one id+data frame. A negative index omits the id, which
// keeps synthetic init/error frames out of the client's resume counter.
func (cn *streamConn) writeEvent(index int, evt *run.Event) error {
	frame := sse.Event{Data: evt}
	if index >= 0 {
		frame.Id = strconv.Itoa(index)
	}
	if err := sse.Encode(cn.writer, frame); err != nil {
		return err
	}
	cn.writer.Flush()
	return nil
}

// writeRetry emits a raw reconnect-delay directive.
func (cn *streamConn) writeRetry(ms int) {
	fmt.Fprintf(cn.writer, "retry: %d\n\n", ms)
	cn.writer.Flush()
}

// writeComment emits a no-op comment frame.
func (cn *streamConn) writeComment(text string) error {
	if _, err := fmt.Fprintf(cn.writer, ": %s\n\n", text); err != nil {
		return err
	}
	cn.writer.Flush()
	return nil
}

// finish tells the client to stop auto-reconnecting and ends the stream.
func (cn *streamConn) finish() {
	cn.writeRetry(StopRetryMS)
	if err := sse.Encode(cn.writer, sse.Event{Data: doneSentinel}); err != nil {
		return
	}
	cn.writer.Flush()
}

// deny terminates a stream whose identity turned out not to own the run
// once its state record appeared. The error event carries no run data.
func (cn *streamConn) deny() {
	cn.server.logger.Warn("stream ownership check failed",
		slog.String("run_id", cn.runID),
	)
	_ = cn.writeEvent(-1, run.NewStreamError(cn.runID, "forbidden"))
}

// fail surfaces a transient store or broker failure to the client as a
// synthetic error event and closes without the done sentinel, so the
// client's reconnect logic retries against unaffected server state.
func (cn *streamConn) fail(msg string, cause error) {
	cn.server.logger.Error("stream "+msg,
		slog.String("run_id", cn.runID),
		slog.String("error", cause.Error()),
	)
	_ = cn.writeEvent(-1, run.NewStreamError(cn.runID, msg))
}
