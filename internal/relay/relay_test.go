package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memSink struct {
	mu       sync.Mutex
	events   []string
	closed   bool
	writeErr error
}

func (s *memSink) Write(event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *memSink) countType(typ EventType) int {
	prefix := fmt.Sprintf("event: %s\n", typ)
	n := 0
	for _, ev := range s.snapshot() {
		if strings.HasPrefix(ev, prefix) {
			n++
		}
	}
	return n
}

func newTestRelay(upstream string, client *http.Client) (*Relay, *[]time.Duration) {
	r := New(Config{UpstreamURL: upstream}, client, zap.NewNop())
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestRunForwardsCompleteUpstreamEvents(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: briefing\ndata: {\"n\":1}\n\n")
		_, _ = fmt.Fprint(w, "event: briefing\ndata: {\"n\":2}\n\n")
	}))
	defer upstream.Close()

	r, _ := newTestRelay(upstream.URL, upstream.Client())
	sink := &memSink{}
	session := NewSession("s-1", 3)
	r.Run(context.Background(), session, sink)

	require.Equal(t, 1, sink.countType(EventConnecting))
	require.Equal(t, 1, sink.countType(EventConnected))
	require.Equal(t, 1, sink.countType(EventComplete))
	require.Zero(t, sink.countType(EventError))

	var forwarded []string
	for _, ev := range sink.snapshot() {
		if strings.HasPrefix(ev, "event: briefing\n") {
			forwarded = append(forwarded, ev)
		}
	}
	require.Equal(t, []string{
		"event: briefing\ndata: {\"n\":1}\n\n",
		"event: briefing\ndata: {\"n\":2}\n\n",
	}, forwarded)
	require.True(t, sink.closed)
	require.Zero(t, session.Attempt)
}

func TestRunSplitEventForwardsExactlyOnce(t *testing.T) {
	t.Parallel()

	payload := "event: x\ndata: {\"a\":1}\n\n"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, payload[:12])
		flusher.Flush()
		_, _ = fmt.Fprint(w, payload[12:])
		flusher.Flush()
	}))
	defer upstream.Close()

	r, _ := newTestRelay(upstream.URL, upstream.Client())
	sink := &memSink{}
	r.Run(context.Background(), NewSession("s-2", 3), sink)

	count := 0
	for _, ev := range sink.snapshot() {
		if ev == payload {
			count++
		}
		require.NotEqual(t, payload[:12], ev, "partial event must never be forwarded")
	}
	require.Equal(t, 1, count)
}

func TestRunRetriesWithBackoffThenCloses(t *testing.T) {
	t.Parallel()

	var connections atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		connections.Add(1)
		http.Error(w, "worker unavailable", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	r, slept := newTestRelay(upstream.URL, upstream.Client())
	sink := &memSink{}
	session := NewSession("s-3", 3)
	r.Run(context.Background(), session, sink)

	require.Equal(t, int32(3), connections.Load(), "no fourth connection may be attempted")
	require.Equal(t, 3, sink.countType(EventError))
	require.Equal(t, 3, sink.countType(EventRetrying))
	require.Zero(t, sink.countType(EventConnected))
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *slept)
	require.Equal(t, 3, session.Attempt)
	require.True(t, sink.closed)
}

func TestRunZeroRetriesClosesAfterFirstFailure(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer upstream.Close()

	r, slept := newTestRelay(upstream.URL, upstream.Client())
	sink := &memSink{}
	r.Run(context.Background(), NewSession("s-4", 0), sink)

	require.Equal(t, 1, sink.countType(EventError))
	require.Zero(t, sink.countType(EventRetrying))
	require.Empty(t, *slept)
	require.True(t, sink.closed)
}

func TestRunRecoversMidStreamThenCompletes(t *testing.T) {
	t.Parallel()

	var connections atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := connections.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		if n == 1 {
			// Drop mid-event so the partial is discarded with the stream.
			_, _ = fmt.Fprint(w, "event: a\ndata: 1\n\nevent: b\nda")
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
				}
			}
			return
		}
		_, _ = fmt.Fprint(w, "event: b\ndata: 2\n\n")
	}))
	defer upstream.Close()

	r, _ := newTestRelay(upstream.URL, upstream.Client())
	sink := &memSink{}
	session := NewSession("s-5", 3)
	r.Run(context.Background(), session, sink)

	require.Equal(t, int32(2), connections.Load())
	require.Equal(t, 1, sink.countType(EventError))
	require.Equal(t, 1, sink.countType(EventRetrying))
	require.Equal(t, 2, sink.countType(EventConnected))
	require.Equal(t, 1, sink.countType(EventComplete))
	require.Contains(t, sink.snapshot(), "event: a\ndata: 1\n\n")
	require.Contains(t, sink.snapshot(), "event: b\ndata: 2\n\n")
}

func TestRunSuppressesWritesAfterSinkFailure(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: x\ndata: 1\n\n")
	}))
	defer upstream.Close()

	r, _ := newTestRelay(upstream.URL, upstream.Client())
	sink := &memSink{writeErr: errors.New("client went away")}
	session := NewSession("s-6", 3)
	r.Run(context.Background(), session, sink)

	require.True(t, session.SinkClosed())
	require.Empty(t, sink.snapshot())
	require.False(t, sink.closed, "an externally dead sink is not re-closed")
}

func TestRunExternalCloseCancelsUpstream(t *testing.T) {
	t.Parallel()

	firstEvent := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: x\ndata: 1\n\n")
		flusher.Flush()
		close(firstEvent)
		<-req.Context().Done()
	}))
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, _ := newTestRelay(upstream.URL, upstream.Client())
	sink := &memSink{}
	session := NewSession("s-7", 3)

	done := make(chan struct{})
	go func() {
		r.Run(ctx, session, sink)
		close(done)
	}()

	<-firstEvent
	// Downstream disconnect: mark the sink and cancel the run context, the
	// same order the HTTP handler uses.
	session.CloseSink()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after external close")
	}
	require.Zero(t, sink.countType(EventComplete))
	require.Zero(t, sink.countType(EventRetrying))
}

func TestRunSinkCloseInterruptsBlockedRead(t *testing.T) {
	t.Parallel()

	connected := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher.Flush()
		close(connected)
		// Quiet upstream: no events until the client goes away.
		<-req.Context().Done()
	}))
	defer upstream.Close()

	r, _ := newTestRelay(upstream.URL, upstream.Client())
	sink := &memSink{}
	session := NewSession("s-8", 3)

	done := make(chan struct{})
	go func() {
		// A live context: only the sink latch may stop the run.
		r.Run(context.Background(), session, sink)
		close(done)
	}()

	<-connected
	session.CloseSink()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay stayed blocked on a quiet upstream after sink close")
	}
	require.Zero(t, sink.countType(EventComplete))
	require.Zero(t, sink.countType(EventRetrying))
	require.False(t, sink.closed, "relay must not close an externally closed sink")
}
