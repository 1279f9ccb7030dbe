package relay

import "sync/atomic"

// Session tracks one relay invocation. Attempt and the sink-closed flag are
// the only mutable fields; sinkClosed is touched by both the relay loop and
// the external close signal and is the single authority on write legality.
type Session struct {
	ID         string
	Attempt    int
	MaxRetries int

	sinkClosed atomic.Bool
	done       chan struct{}
}

// NewSession builds a session with a zero attempt counter.
func NewSession(id string, maxRetries int) *Session {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Session{ID: id, MaxRetries: maxRetries, done: make(chan struct{})}
}

// CloseSink records the external close signal (downstream disconnected).
// It reports whether this call performed the transition.
func (s *Session) CloseSink() bool {
	if !s.sinkClosed.CompareAndSwap(false, true) {
		return false
	}
	if s.done != nil {
		close(s.done)
	}
	return true
}

// SinkClosed reports whether further writes to the sink are illegal.
func (s *Session) SinkClosed() bool {
	return s.sinkClosed.Load()
}

// Done is closed when the sink latch flips, so blocked reads can be
// interrupted without polling.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
