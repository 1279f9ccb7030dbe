package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/briefdesk/harvester/internal/source"
)

const (
	defaultStaticTimeout = 10 * time.Second
	defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

// StaticConfig controls the HTTP-GET fetch strategy.
type StaticConfig struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	// DomainQPS caps request rate per target host; 0 disables limiting.
	DomainQPS float64
}

// StaticFetcher fetches a listing page with one HTTP GET and extracts article
// previews by DOM query. It never launches a browser.
type StaticFetcher struct {
	cfg            StaticConfig
	filter         *Filter
	logger         *zap.Logger
	base           *colly.Collector
	domainLimiters sync.Map
}

// NewStaticFetcher builds the fetcher with its base collector.
func NewStaticFetcher(cfg StaticConfig, filter *Filter, logger *zap.Logger) *StaticFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "en-US,en;q=0.9"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultStaticTimeout
	}
	if filter == nil {
		filter = NewFilter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.IgnoreRobotsTxt())
	// Clones share the base collector's visited-URL store; the harvester
	// re-fetches the same listing URLs every run, so revisits must be allowed.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	return &StaticFetcher{
		cfg:    cfg,
		filter: filter,
		logger: logger,
		base:   c,
	}
}

// Fetch performs the GET, parses the response, and maps matched elements to
// articles in DOM order up to maxArticles. HTTP failures are returned as a
// FetchError; there is no retry.
func (f *StaticFetcher) Fetch(ctx context.Context, src source.Source, maxArticles int) (FetchResult, error) {
	start := time.Now()
	if err := f.waitDomainBudget(ctx, src.Domain()); err != nil {
		return FetchResult{}, &FetchError{Source: src.Name, Err: err}
	}

	body, err := f.get(ctx, src.URL)
	if err != nil {
		return FetchResult{}, &FetchError{Source: src.Name, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return FetchResult{}, &FetchError{Source: src.Name, Err: fmt.Errorf("parse html: %w", err)}
	}

	articles := f.collect(doc, src, maxArticles)
	f.logger.Debug("static fetch complete",
		zap.String("source", src.Name),
		zap.Int("articles", len(articles)),
		zap.Duration("took", time.Since(start)),
	)
	return FetchResult{Articles: articles, ProcessingTime: time.Since(start)}, nil
}

// FetchHTML performs one GET against an arbitrary page and returns the raw
// HTML, under the same headers and domain budget as listing fetches.
func (f *StaticFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid page url %q", pageURL)
	}
	if err := f.waitDomainBudget(ctx, u.Hostname()); err != nil {
		return "", err
	}
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *StaticFetcher) get(ctx context.Context, pageURL string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := f.base.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", defaultAccept)
		r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", pageURL, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("response for %s: %w", pageURL, fetchErr)
		}
	}
	return body, nil
}

func (f *StaticFetcher) collect(doc *goquery.Document, src source.Source, maxArticles int) []Article {
	now := time.Now().UTC()
	out := make([]Article, 0, maxArticles)
	doc.Find(linkSelector(src)).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		raw := RawArticle{
			Title: elementTitle(el, src.Selectors.Title),
			Link:  elementHref(el),
		}
		if article, ok := buildArticle(src, f.filter, raw, now); ok {
			out = append(out, article)
		}
		return maxArticles <= 0 || len(out) < maxArticles
	})
	return out
}

// linkSelector scopes the link selector to the container when configured,
// defaulting to every anchor on the page.
func linkSelector(src source.Source) string {
	link := src.Selectors.Link
	if link == "" {
		link = "a[href]"
	}
	if src.Selectors.Container == "" {
		return link
	}
	return src.Selectors.Container + " " + link
}

func elementTitle(el *goquery.Selection, titleSelector string) string {
	if titleSelector != "" {
		if text := strings.TrimSpace(el.Find(titleSelector).First().Text()); text != "" {
			return text
		}
	}
	return strings.TrimSpace(el.Text())
}

func elementHref(el *goquery.Selection) string {
	if href, ok := el.Attr("href"); ok {
		return href
	}
	href, _ := el.Find("a[href]").First().Attr("href")
	return href
}

func (f *StaticFetcher) waitDomainBudget(ctx context.Context, host string) error {
	if f.cfg.DomainQPS <= 0 {
		return nil
	}
	val, _ := f.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(f.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait domain budget: %w", err)
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
