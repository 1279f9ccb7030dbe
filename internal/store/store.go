// Package store defines persistence contracts for settled scrape runs.
package store

import (
	"context"
	"time"

	"github.com/briefdesk/harvester/internal/scrape"
)

// RunRecord is one settled scrape run, flattened for persistence.
type RunRecord struct {
	ID           string
	StartedAt    time.Time
	SourceCount  int
	ErrorCount   int
	ProcessingMs int64
	Articles     []scrape.Article
}

// ArticleStore persists settled scrape runs. Implementations must be safe for
// concurrent use.
type ArticleStore interface {
	StoreRun(ctx context.Context, run RunRecord) error
	Close()
}

// FlattenRun converts a coordinator result into a RunRecord. Articles keep
// source-key grouping order only within each source.
func FlattenRun(id string, startedAt time.Time, result scrape.Result) RunRecord {
	rec := RunRecord{
		ID:           id,
		StartedAt:    startedAt,
		SourceCount:  result.Metadata.TotalSources,
		ErrorCount:   len(result.Metadata.Errors),
		ProcessingMs: result.Metadata.ProcessingTimeMs,
	}
	for _, articles := range result.Data {
		rec.Articles = append(rec.Articles, articles...)
	}
	return rec
}
