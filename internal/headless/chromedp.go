// Package headless implements the scrape.Browser contract with chromedp and
// headless Chrome. Every Launch starts an exclusive browser process.
package headless

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/scrape"
)

// Config controls browser startup and navigation behavior.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is the fixed pause after navigation that lets client-side
	// rendering populate the DOM before extraction runs.
	SettleDelay time.Duration
	// BlockAssets aborts image/stylesheet/font/media requests during loads.
	BlockAssets bool
}

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 2 * time.Second
)

// blockedResources are aborted by the request interceptor to speed up loads.
var blockedResources = map[network.ResourceType]struct{}{
	network.ResourceTypeImage:      {},
	network.ResourceTypeStylesheet: {},
	network.ResourceTypeFont:       {},
	network.ResourceTypeMedia:      {},
}

// Launcher starts Chrome processes for the rendered fetch strategy.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher builds a Launcher with defaults applied.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger}
}

// Launch starts a sandboxed minimal-resource Chrome and warms it up so the
// process exists before any navigation. The caller must Close the returned
// browser exactly once.
func (l *Launcher) Launch(ctx context.Context) (scrape.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch canceled: %w", err)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-zygote", true),
		chromedp.Flag("single-process", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &chromeBrowser{
		cfg:           l.cfg,
		logger:        l.logger,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type chromeBrowser struct {
	cfg           Config
	logger        *zap.Logger
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// ExtractArticles navigates to pageURL, waits for the DOM plus the settle
// delay, and evaluates a parameterized script that returns plain pairs.
func (b *chromeBrowser) ExtractArticles(ctx context.Context, pageURL string, params scrape.ExtractParams) ([]scrape.RawArticle, error) {
	taskCtx, cancelTask := context.WithTimeout(b.browserCtx, b.cfg.NavigationTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var raw []scrape.RawArticle
	actions := []chromedp.Action{
		b.userAgentAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.cfg.SettleDelay),
		chromedp.Evaluate(extractScript(params), &raw),
	}
	if b.cfg.BlockAssets {
		b.interceptRequests(taskCtx)
		actions = append([]chromedp.Action{fetch.Enable()}, actions...)
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	return raw, nil
}

// Close tears down the browser and allocator contexts, terminating the
// Chrome process.
func (b *chromeBrowser) Close(_ context.Context) error {
	b.browserCancel()
	b.allocCancel()
	return nil
}

func (b *chromeBrowser) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// interceptRequests aborts image/stylesheet/font/media requests. Interception
// decisions run on a separate goroutine with the target's executor, which is
// the documented chromedp pattern for fetch events.
func (b *chromeBrowser) interceptRequests(taskCtx context.Context) {
	chromedp.ListenTarget(taskCtx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(taskCtx)
			execCtx := cdp.WithExecutor(taskCtx, c.Target)
			if _, blocked := blockedResources[paused.ResourceType]; blocked {
				if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil {
					b.logger.Debug("abort request failed", zap.Error(err))
				}
				return
			}
			if err := fetch.ContinueRequest(paused.RequestID).Do(execCtx); err != nil {
				b.logger.Debug("continue request failed", zap.Error(err))
			}
		}()
	})
}

// extractScript builds the in-page extraction function. All inputs cross the
// boundary as literals; the page never sees a closure.
func extractScript(params scrape.ExtractParams) string {
	return fmt.Sprintf(`(function(selector, titleSelector, max) {
	var nodes = Array.prototype.slice.call(document.querySelectorAll(selector));
	if (max > 0) { nodes = nodes.slice(0, max); }
	return nodes.map(function(el) {
		var link = el.matches('a[href]') ? el : el.querySelector('a[href]');
		var titleEl = titleSelector ? (el.querySelector(titleSelector) || el) : el;
		return {
			title: (titleEl.innerText || titleEl.textContent || '').trim(),
			link: link ? link.href : ''
		};
	});
})(%s, %s, %d)`, strconv.Quote(params.Selector), strconv.Quote(params.TitleSelector), params.Max)
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
