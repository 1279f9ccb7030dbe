// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/archive"
	"github.com/briefdesk/harvester/internal/config"
	"github.com/briefdesk/harvester/internal/extract"
	"github.com/briefdesk/harvester/internal/metrics"
	"github.com/briefdesk/harvester/internal/publish"
	"github.com/briefdesk/harvester/internal/relay"
	"github.com/briefdesk/harvester/internal/scrape"
	"github.com/briefdesk/harvester/internal/source"
	"github.com/briefdesk/harvester/internal/store"
)

const scrapeRequestTimeout = 120 * time.Second

// Scraper runs one settle-all pass over the given sources.
type Scraper interface {
	ScrapeAll(ctx context.Context, sources []source.Source, maxPerSource int) scrape.Result
}

// StreamRelay proxies one upstream event stream into a sink.
type StreamRelay interface {
	Run(ctx context.Context, session *relay.Session, sink relay.Sink)
}

// HTMLFetcher retrieves the raw HTML of a single page.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
}

// Server wires HTTP handlers to the scrape pipeline and the stream relay.
type Server struct {
	router    chi.Router
	scraper   Scraper
	relay     StreamRelay
	sources   []source.Source
	articles  store.ArticleStore
	archiver  *archive.Archiver
	publisher publish.Publisher
	pages     HTMLFetcher
	extractor *extract.Engine
	cfg       config.Config
	logger    *zap.Logger
}

// Option customizes optional Server collaborators.
type Option func(*Server)

// WithArticleStore persists each run's articles.
func WithArticleStore(s store.ArticleStore) Option {
	return func(srv *Server) { srv.articles = s }
}

// WithArchiver snapshots each run into blob storage.
func WithArchiver(a *archive.Archiver) Option {
	return func(srv *Server) { srv.archiver = a }
}

// WithPublisher announces each run on the configured topic.
func WithPublisher(p publish.Publisher) Option {
	return func(srv *Server) { srv.publisher = p }
}

// WithExtractor enables on-demand article extraction for single pages.
func WithExtractor(pages HTMLFetcher, engine *extract.Engine) Option {
	return func(srv *Server) {
		srv.pages = pages
		srv.extractor = engine
	}
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	scraper Scraper,
	streamRelay StreamRelay,
	sources []source.Source,
	cfg config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		scraper: scraper,
		relay:   streamRelay,
		sources: sources,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// The stream route stays outside the timeout handler: SSE
		// connections are expected to outlive any request budget.
		r.With(timeoutMiddleware(scrapeRequestTimeout)).Post("/scrape", s.runScrape)
		r.With(timeoutMiddleware(scrapeRequestTimeout)).Get("/sources", s.listSources)
		r.With(timeoutMiddleware(scrapeRequestTimeout)).Post("/extract", s.extractPage)
		r.Get("/stream/{session_id}", s.streamSession)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.scraper == nil {
		writeError(w, http.StatusServiceUnavailable, "scrape pipeline not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
