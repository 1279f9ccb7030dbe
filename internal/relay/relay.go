// Package relay proxies a long-lived server-sent-event feed from an upstream
// worker to a downstream sink with bounded reconnects and exact
// event-boundary preservation.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/metrics"
)

// State is the relay lifecycle position.
type State int

// Relay states. Closed is terminal and never reopens.
const (
	StateConnecting State = iota
	StateStreaming
	StateRetrying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateRetrying:
		return "retrying"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventType labels the control events the relay emits downstream.
type EventType string

// Downstream control event types.
const (
	EventConnecting EventType = "connecting"
	EventConnected  EventType = "connected"
	EventError      EventType = "error"
	EventRetrying   EventType = "retrying"
	EventComplete   EventType = "complete"
)

// Sink receives framed SSE events. Write is called with complete frames only.
type Sink interface {
	Write(event string) error
	Close() error
}

const (
	defaultConnectTimeout = 5 * time.Minute
	sessionPlaceholder    = "{session_id}"
	readBufferSize        = 4096
	errorBodySnippet      = 512
)

// Config controls the relay's upstream connection.
type Config struct {
	// UpstreamURL is the worker event endpoint. A {session_id} placeholder
	// is substituted; otherwise the session ID is appended as a query param.
	UpstreamURL string
	// ConnectTimeout is the overall ceiling for one connection attempt,
	// stream included.
	ConnectTimeout time.Duration
}

// Relay drives one Session through the state machine
// Connecting -> Streaming -> (Retrying -> Connecting)* -> Closed.
type Relay struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Relay. A nil client gets a dedicated streaming client with no
// client-level timeout; the per-attempt context carries the ceiling instead.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Relay {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		cfg:    cfg,
		client: client,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Run drives the session until Closed. Failures never escape to the caller;
// the only visible signal is the event sequence written to the sink. The sink
// is closed exactly once on every path.
func (r *Relay) Run(ctx context.Context, session *Session, sink Sink) {
	metrics.IncRelaySessions()
	defer metrics.DecRelaySessions()

	state := StateConnecting
	var delay time.Duration
	for state != StateClosed {
		if ctx.Err() != nil || session.SinkClosed() {
			break
		}
		switch state {
		case StateConnecting:
			state, delay = r.connect(ctx, session, sink)
		case StateRetrying:
			state = r.waitRetry(ctx, session, delay)
		default:
			state = StateClosed
		}
	}
	r.safeClose(session, sink)
	r.logger.Debug("relay session closed",
		zap.String("session_id", session.ID),
		zap.Int("attempts", session.Attempt),
	)
}

// connect opens one upstream attempt and, on success, streams until the
// upstream ends or fails. The returned delay is only meaningful for
// StateRetrying.
func (r *Relay) connect(ctx context.Context, session *Session, sink Sink) (State, time.Duration) {
	r.emit(session, sink, EventConnecting, map[string]any{
		"session_id": session.ID,
		"attempt":    session.Attempt,
	})

	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, r.upstreamURL(session.ID), nil)
	if err != nil {
		return r.failAttempt(session, sink, fmt.Sprintf("build request: %v", err), 0)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.client.Do(req)
	if err != nil {
		return r.failAttempt(session, sink, fmt.Sprintf("upstream connect: %v", err), 0)
	}
	if resp.Body == nil {
		return r.failAttempt(session, sink, "upstream response has no body", resp.StatusCode)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close upstream body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySnippet))
		return r.failAttempt(session, sink, strings.TrimSpace(string(snippet)), resp.StatusCode)
	}

	r.emit(session, sink, EventConnected, map[string]any{"session_id": session.ID})

	// The sink latch must interrupt a read blocked on a quiet upstream, not
	// just the loop's per-iteration check.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-stopWatch:
		}
	}()

	return r.stream(session, sink, resp.Body, cancel)
}

// stream forwards complete upstream events until EOF, a read error, or an
// external sink closure. The framer's partial buffer is never forwarded.
func (r *Relay) stream(session *Session, sink Sink, body io.Reader, cancelUpstream context.CancelFunc) (State, time.Duration) {
	framer := &Framer{}
	buf := make([]byte, readBufferSize)
	for {
		if session.SinkClosed() {
			// Downstream went away; cancel the upstream read instead of
			// letting it drain to completion.
			cancelUpstream()
			return StateClosed, 0
		}
		n, err := body.Read(buf)
		if n > 0 {
			for _, event := range framer.Push(buf[:n]) {
				r.forward(session, sink, event)
			}
		}
		if err == io.EOF {
			r.emit(session, sink, EventComplete, map[string]any{"session_id": session.ID})
			return StateClosed, 0
		}
		if err != nil {
			if session.SinkClosed() {
				return StateClosed, 0
			}
			return r.failAttempt(session, sink, fmt.Sprintf("upstream read: %v", err), 0)
		}
	}
}

// failAttempt emits the error event and decides between Retrying and Closed.
// The retry delay derives from the current attempt counter.
func (r *Relay) failAttempt(session *Session, sink Sink, detail string, status int) (State, time.Duration) {
	payload := map[string]any{"message": detail}
	if status != 0 {
		payload["status"] = status
	}
	r.emit(session, sink, EventError, payload)

	if session.SinkClosed() || session.Attempt >= session.MaxRetries {
		return StateClosed, 0
	}
	delay := Backoff(session.Attempt)
	r.emit(session, sink, EventRetrying, map[string]any{
		"attempt":  session.Attempt + 1,
		"delay_ms": delay.Milliseconds(),
	})
	return StateRetrying, delay
}

// waitRetry sleeps out the backoff and advances the attempt counter. Once the
// counter reaches MaxRetries the session closes instead of reconnecting.
func (r *Relay) waitRetry(ctx context.Context, session *Session, delay time.Duration) State {
	if err := r.sleep(ctx, delay); err != nil {
		return StateClosed
	}
	session.Attempt++
	metrics.ObserveRelayRetry()
	if session.Attempt >= session.MaxRetries {
		return StateClosed
	}
	return StateConnecting
}

// forward writes one complete upstream event through the write guard.
func (r *Relay) forward(session *Session, sink Sink, event string) {
	r.safeWrite(session, sink, event)
	metrics.ObserveRelayEvent("forwarded")
}

// emit frames and writes one control event.
func (r *Relay) emit(session *Session, sink Sink, typ EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("marshal relay event", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	r.safeWrite(session, sink, fmt.Sprintf("event: %s\ndata: %s\n\n", typ, data))
	metrics.ObserveRelayEvent(string(typ))
}

// safeWrite checks the sink flag before writing. A failing write means the
// downstream was torn down mid-flight: the flag is set and the error
// suppressed.
func (r *Relay) safeWrite(session *Session, sink Sink, event string) {
	if session.SinkClosed() {
		return
	}
	if err := sink.Write(event); err != nil {
		session.CloseSink()
		r.logger.Debug("sink write failed, marking closed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
}

// safeClose closes the sink at most once across both close paths.
func (r *Relay) safeClose(session *Session, sink Sink) {
	if !session.CloseSink() {
		return
	}
	if err := sink.Close(); err != nil {
		r.logger.Debug("sink close failed", zap.String("session_id", session.ID), zap.Error(err))
	}
}

func (r *Relay) upstreamURL(sessionID string) string {
	if strings.Contains(r.cfg.UpstreamURL, sessionPlaceholder) {
		return strings.ReplaceAll(r.cfg.UpstreamURL, sessionPlaceholder, sessionID)
	}
	sep := "?"
	if strings.Contains(r.cfg.UpstreamURL, "?") {
		sep = "&"
	}
	return r.cfg.UpstreamURL + sep + "session_id=" + sessionID
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
