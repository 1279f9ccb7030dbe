package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/source"
)

// ExtractParams is the data crossing the browser-evaluation boundary. Only
// serializable values, never closures.
type ExtractParams struct {
	// Selector locates candidate link elements, already scoped to the
	// configured container.
	Selector string
	// TitleSelector optionally narrows the title inside each element.
	TitleSelector string
	// Max bounds how many raw pairs the page script returns; 0 means all.
	Max int
}

// Browser is one live headless-browser process.
type Browser interface {
	ExtractArticles(ctx context.Context, pageURL string, params ExtractParams) ([]RawArticle, error)
	Close(ctx context.Context) error
}

// BrowserLauncher creates browser processes. Each Fetch call owns exactly one.
type BrowserLauncher interface {
	Launch(ctx context.Context) (Browser, error)
}

// LauncherFunc adapts a function to BrowserLauncher.
type LauncherFunc func(ctx context.Context) (Browser, error)

// Launch implements BrowserLauncher.
func (f LauncherFunc) Launch(ctx context.Context) (Browser, error) { return f(ctx) }

// RenderedFetcher renders a source with an exclusive headless browser per
// call. The browser is closed on every exit path once launched.
type RenderedFetcher struct {
	launcher BrowserLauncher
	filter   *Filter
	logger   *zap.Logger
}

// NewRenderedFetcher wires the launcher and filter policy.
func NewRenderedFetcher(launcher BrowserLauncher, filter *Filter, logger *zap.Logger) *RenderedFetcher {
	if filter == nil {
		filter = NewFilter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderedFetcher{launcher: launcher, filter: filter, logger: logger}
}

// Fetch launches a browser, extracts raw pairs inside the page, and maps and
// filters them under the shared policy. Any failure is a RenderError.
func (f *RenderedFetcher) Fetch(ctx context.Context, src source.Source, maxArticles int) (FetchResult, error) {
	start := time.Now()
	if f.launcher == nil {
		return FetchResult{}, &RenderError{Source: src.Name, Err: fmt.Errorf("no browser launcher configured")}
	}

	browser, err := f.launcher.Launch(ctx)
	if err != nil {
		return FetchResult{}, &RenderError{Source: src.Name, Err: fmt.Errorf("launch browser: %w", err)}
	}
	defer func() {
		// Close must run regardless of which step failed; use a context that
		// survives cancellation of the fetch itself.
		if cerr := browser.Close(context.WithoutCancel(ctx)); cerr != nil {
			f.logger.Warn("browser close failed", zap.String("source", src.Name), zap.Error(cerr))
		}
	}()

	raw, err := browser.ExtractArticles(ctx, src.URL, ExtractParams{
		Selector:      linkSelector(src),
		TitleSelector: src.Selectors.Title,
		Max:           overscan(maxArticles),
	})
	if err != nil {
		return FetchResult{}, &RenderError{Source: src.Name, Err: err}
	}

	now := time.Now().UTC()
	articles := make([]Article, 0, maxArticles)
	for _, r := range raw {
		if maxArticles > 0 && len(articles) >= maxArticles {
			break
		}
		if article, ok := buildArticle(src, f.filter, r, now); ok {
			articles = append(articles, article)
		}
	}

	f.logger.Debug("rendered fetch complete",
		zap.String("source", src.Name),
		zap.Int("raw", len(raw)),
		zap.Int("articles", len(articles)),
		zap.Duration("took", time.Since(start)),
	)
	return FetchResult{Articles: articles, ProcessingTime: time.Since(start)}, nil
}

// overscan asks the page for more pairs than requested so that filtering
// rejects do not starve the result.
func overscan(maxArticles int) int {
	if maxArticles <= 0 {
		return 0
	}
	return maxArticles * 5
}
