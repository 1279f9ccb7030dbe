package scrape

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/metrics"
	"github.com/briefdesk/harvester/internal/source"
)

// Fetcher is the per-source fetch strategy contract.
type Fetcher interface {
	Fetch(ctx context.Context, src source.Source, maxArticles int) (FetchResult, error)
}

// Coordinator fans out over sources by strategy and settles all results.
type Coordinator struct {
	static   Fetcher
	rendered Fetcher
	logger   *zap.Logger
}

// NewCoordinator wires the two fetch strategies.
func NewCoordinator(static, rendered Fetcher, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{static: static, rendered: rendered, logger: logger}
}

type sourceOutcome struct {
	key      string
	articles []Article
	err      error
}

// ScrapeAll fetches every source concurrently, static and rendered alike,
// each rendered source owning an independent browser. A failing source is
// captured as a labeled error string and never cancels its siblings; the
// call itself always returns a Result.
func (c *Coordinator) ScrapeAll(ctx context.Context, sources []source.Source, maxPerSource int) Result {
	start := time.Now()
	meta := Metadata{TotalSources: len(sources), Errors: []string{}}
	for _, src := range sources {
		if src.Strategy == source.StrategyRendered {
			meta.RenderedSources++
		} else {
			meta.StaticSources++
		}
	}

	outcomes := make(chan sourceOutcome, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			outcomes <- c.fetchOne(ctx, src, maxPerSource)
		}(src)
	}
	wg.Wait()
	close(outcomes)

	data := make(map[string][]Article, len(sources))
	for outcome := range outcomes {
		if outcome.err != nil {
			meta.Errors = append(meta.Errors, outcome.err.Error())
			continue
		}
		data[outcome.key] = outcome.articles
		meta.TotalArticles += len(outcome.articles)
	}
	// Completion order is nondeterministic; keep the error list stable.
	sort.Strings(meta.Errors)

	meta.ProcessingTimeMs = time.Since(start).Milliseconds()
	c.logger.Info("scrape run settled",
		zap.Int("sources", meta.TotalSources),
		zap.Int("articles", meta.TotalArticles),
		zap.Int("errors", len(meta.Errors)),
		zap.Int64("took_ms", meta.ProcessingTimeMs),
	)
	return Result{Data: data, Metadata: meta}
}

func (c *Coordinator) fetchOne(ctx context.Context, src source.Source, maxPerSource int) sourceOutcome {
	fetcher := c.static
	if src.Strategy == source.StrategyRendered {
		fetcher = c.rendered
	}
	if fetcher == nil {
		err := fmt.Errorf("%s: no fetcher for strategy %s", src.Name, src.Strategy)
		metrics.ObserveScrapeError(src.Name)
		return sourceOutcome{key: src.Key(), err: err}
	}

	if src.Strategy == source.StrategyRendered {
		metrics.IncActiveRenders()
		defer metrics.DecActiveRenders()
	}

	result, err := fetcher.Fetch(ctx, src, maxPerSource)
	if err != nil {
		c.logger.Warn("source fetch failed", zap.String("source", src.Name), zap.Error(err))
		metrics.ObserveScrapeError(src.Name)
		return sourceOutcome{key: src.Key(), err: fmt.Errorf("%s: %w", src.Name, err)}
	}
	metrics.ObserveScrape(src.Name, string(src.Strategy), len(result.Articles), result.ProcessingTime)
	return sourceOutcome{key: src.Key(), articles: result.Articles}
}
