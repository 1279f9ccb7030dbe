package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/source"
	"github.com/briefdesk/harvester/internal/store"
)

type scrapeRequest struct {
	// Sources restricts the run to the named catalog keys; empty means all.
	Sources []string `json:"sources"`
	// MaxPerSource overrides the configured per-source article cap.
	MaxPerSource *int `json:"max_per_source"`
}

// runScrape handles POST /v1/scrape. The body is optional; an empty body runs
// every configured source with the default cap. The response is the settled
// result plus the run ID, regardless of per-source failures.
func (s *Server) runScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	selected, err := s.selectSources(req.Sources)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxPerSource := s.cfg.Scrape.MaxPerSource
	if req.MaxPerSource != nil {
		if *req.MaxPerSource <= 0 {
			writeError(w, http.StatusBadRequest, "max_per_source must be > 0")
			return
		}
		maxPerSource = *req.MaxPerSource
	}

	startedAt := time.Now().UTC()
	result := s.scraper.ScrapeAll(r.Context(), selected, maxPerSource)

	runID := uuid.NewString()
	run := store.FlattenRun(runID, startedAt, result)
	s.settleRun(r.Context(), run)

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   runID,
		"data":     result.Data,
		"metadata": result.Metadata,
	})
}

// listSources handles GET /v1/sources.
func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	type sourceDTO struct {
		Key      string `json:"key"`
		Name     string `json:"name"`
		URL      string `json:"url"`
		Strategy string `json:"strategy"`
	}
	out := make([]sourceDTO, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, sourceDTO{
			Key:      src.Key(),
			Name:     src.Name,
			URL:      src.URL,
			Strategy: string(src.Strategy),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *Server) selectSources(keys []string) ([]source.Source, error) {
	if len(keys) == 0 {
		return s.sources, nil
	}
	byKey := make(map[string]source.Source, len(s.sources))
	for _, src := range s.sources {
		byKey[src.Key()] = src
	}
	out := make([]source.Source, 0, len(keys))
	for _, key := range keys {
		src, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", key)
		}
		out = append(out, src)
	}
	return out, nil
}

// settleRun fans the run out to the optional sinks. Sink failures are logged,
// never surfaced: the scrape result already settled.
func (s *Server) settleRun(ctx context.Context, run store.RunRecord) {
	if s.articles != nil {
		if err := s.articles.StoreRun(ctx, run); err != nil {
			s.logger.Error("store run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	if s.archiver != nil {
		if _, err := s.archiver.Archive(ctx, run); err != nil {
			s.logger.Error("archive run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		payload := map[string]any{
			"run_id":     run.ID,
			"started_at": run.StartedAt,
			"articles":   len(run.Articles),
			"errors":     run.ErrorCount,
		}
		if _, err := s.publisher.Publish(ctx, s.cfg.PubSub.TopicName, payload); err != nil {
			s.logger.Error("publish run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
}
