// Package scrape implements the dual-strategy content-acquisition pipeline:
// a lightweight HTTP fetcher, a headless-browser fetcher, and a coordinator
// that fans out over configured sources and settles all results.
package scrape

import (
	"fmt"
	"time"

	"github.com/briefdesk/harvester/internal/source"
)

// Article is one extracted article preview. It is created once per matched
// element and never mutated afterwards; persistence is the caller's business.
type Article struct {
	Title     string        `json:"title"`
	Link      string        `json:"link"`
	Source    ArticleSource `json:"source"`
	Timestamp time.Time     `json:"timestamp"`
}

// ArticleSource records where and how an article preview was obtained.
type ArticleSource struct {
	Site     string          `json:"site"`
	Domain   string          `json:"domain"`
	Strategy source.Strategy `json:"strategy"`
}

// FetchResult is the per-source output of either fetcher.
type FetchResult struct {
	Articles       []Article
	ProcessingTime time.Duration
}

// RawArticle is the untyped {title, link} pair produced inside the browser
// page context or by DOM queries, before mapping and filtering.
type RawArticle struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// FetchError wraps HTTP/network/timeout failures from the static fetcher.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RenderError wraps browser launch/navigation/evaluation failures.
type RenderError struct {
	Source string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Source, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Result is the aggregate coordinator output. The call never fails for
// partial source failures; Errors carries whatever went wrong.
type Result struct {
	Data     map[string][]Article `json:"data"`
	Metadata Metadata             `json:"metadata"`
}

// Metadata summarizes one ScrapeAll run.
type Metadata struct {
	TotalSources     int      `json:"total_sources"`
	StaticSources    int      `json:"static_sources"`
	RenderedSources  int      `json:"rendered_sources"`
	TotalArticles    int      `json:"total_articles"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	Errors           []string `json:"errors"`
}
