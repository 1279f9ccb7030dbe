package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/relay"
)

// streamSession handles GET /v1/stream/{session_id}. It upgrades the response
// to an SSE stream and proxies the upstream session through the relay until
// either side ends.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if s.relay == nil {
		writeError(w, http.StatusServiceUnavailable, "stream relay not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	session := relay.NewSession(sessionID, s.cfg.Relay.MaxRetries)
	sink := &httpSink{w: w, flusher: flusher}

	// A client disconnect must tear down the upstream read, not just this
	// handler.
	go func() {
		<-r.Context().Done()
		session.CloseSink()
	}()

	s.logger.Debug("stream session opened", zap.String("session_id", sessionID))
	s.relay.Run(r.Context(), session, sink)
}

// httpSink adapts the HTTP response into a relay.Sink, flushing after every
// event so frames reach the client immediately.
type httpSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *httpSink) Write(event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, event); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Close implements relay.Sink. The response closes with the handler.
func (s *httpSink) Close() error { return nil }
