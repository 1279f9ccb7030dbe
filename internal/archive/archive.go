// Package archive snapshots settled scrape runs into blob storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/store"
)

// BlobStore abstracts the blob backend. PutObject persists the content under
// the given path and returns a backend URI for it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Config controls archive object naming.
type Config struct {
	Prefix      string
	ContentType string
}

// Archiver writes one JSON snapshot per run.
type Archiver struct {
	cfg    Config
	blobs  BlobStore
	logger *zap.Logger
}

// New wires an Archiver over a blob backend.
func New(cfg Config, blobs BlobStore, logger *zap.Logger) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "articles"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{cfg: cfg, blobs: blobs, logger: logger}
}

type runSnapshot struct {
	RunID        string          `json:"run_id"`
	StartedAt    time.Time       `json:"started_at"`
	SourceCount  int             `json:"source_count"`
	ErrorCount   int             `json:"error_count"`
	ProcessingMs int64           `json:"processing_time_ms"`
	Articles     json.RawMessage `json:"articles"`
}

// Archive serializes the run and persists it, returning the blob URI.
// Object paths partition by run start date.
func (a *Archiver) Archive(ctx context.Context, run store.RunRecord) (string, error) {
	if a.blobs == nil {
		return "", fmt.Errorf("no blob backend configured")
	}
	if run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	articles, err := json.Marshal(run.Articles)
	if err != nil {
		return "", fmt.Errorf("marshal articles: %w", err)
	}
	payload, err := json.Marshal(runSnapshot{
		RunID:        run.ID,
		StartedAt:    run.StartedAt,
		SourceCount:  run.SourceCount,
		ErrorCount:   run.ErrorCount,
		ProcessingMs: run.ProcessingMs,
		Articles:     articles,
	})
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	uri, err := a.blobs.PutObject(ctx, a.objectPath(run), a.cfg.ContentType, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("put snapshot: %w", err)
	}
	a.logger.Debug("run archived", zap.String("run_id", run.ID), zap.String("uri", uri))
	return uri, nil
}

func (a *Archiver) objectPath(run store.RunRecord) string {
	day := run.StartedAt.UTC().Format("2006/01/02")
	return path.Join(a.cfg.Prefix, day, fmt.Sprintf("run-%s.json", run.ID))
}
