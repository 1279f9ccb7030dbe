package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ErrNoContent indicates that no rule path cleared its minimum content length.
var ErrNoContent = errors.New("no extraction rule produced content")

// Minimum content lengths per fallback tier.
const (
	domainContentMin   = 100
	genericContentMin  = 200
	paragraphMin       = 50
	paragraphJoinedMin = 200
)

// genericNoise is stripped before the generic fallback runs.
var genericNoise = []string{
	"script", "style", "nav", "header", "footer", "aside",
	".ad", ".advertisement", ".related", ".sidebar",
}

// genericTitleSelectors are tried in order during generic extraction.
var genericTitleSelectors = []string{"h1", `[role="heading"]`, "title"}

// genericAuthorSelectors cover common author / byline markup.
var genericAuthorSelectors = []string{
	`[rel="author"]`, `[itemprop="author"]`, ".author", ".byline",
	".post-author", ".article-author",
}

// genericContentSelectors are candidate article containers, most specific first.
var genericContentSelectors = []string{
	`article [role="main"]`,
	"article",
	`[role="main"]`,
	".post-content", ".article-content", ".entry-content",
	".article-body", ".story-body",
	"main", "#content", "#main",
}

// Engine extracts structured article content from raw HTML. It is stateless
// after construction and safe for concurrent use.
type Engine struct {
	rules  map[string][]RuleConfig
	logger *zap.Logger
}

// NewEngine validates every rule config up front and returns an Engine.
func NewEngine(rules map[string][]RuleConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	normalized := make(map[string][]RuleConfig, len(rules))
	for domain, configs := range rules {
		key := normalizeDomain(domain)
		if key == "" {
			return nil, fmt.Errorf("empty domain in rule registry")
		}
		for i, cfg := range configs {
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("rules for %s[%d]: %w", domain, i, err)
			}
		}
		normalized[key] = append([]RuleConfig(nil), configs...)
	}
	return &Engine{rules: normalized, logger: logger}, nil
}

// Rules returns the configs registered for a domain, nil if none are known.
func (e *Engine) Rules(domain string) []RuleConfig {
	return e.rules[normalizeDomain(domain)]
}

// Extract runs the fallback chain: domain rule configs in order, then generic
// extraction, then plain paragraph concatenation. The first path whose content
// clears its length threshold wins; if none do, ErrNoContent is returned.
func (e *Engine) Extract(html, domain string) (Result, error) {
	for i, cfg := range e.Rules(domain) {
		res, ok, err := e.applyConfig(html, cfg)
		if err != nil {
			return Result{}, err
		}
		if ok {
			e.logger.Debug("domain rule matched",
				zap.String("domain", domain),
				zap.Int("config_index", i),
				zap.Int("content_len", len(res.Content)),
			)
			return res, nil
		}
	}

	doc, err := parseHTML(html)
	if err != nil {
		return Result{}, err
	}
	if res, ok := genericExtract(doc); ok {
		e.logger.Debug("generic extraction matched", zap.String("domain", domain))
		return res, nil
	}
	if res, ok := paragraphFallback(doc); ok {
		e.logger.Debug("paragraph fallback matched", zap.String("domain", domain))
		return res, nil
	}
	return Result{}, fmt.Errorf("extract %s: %w", domain, ErrNoContent)
}

// applyConfig runs one rule config against a fresh parse of the document.
// A fresh parse is required because noise removal mutates the DOM.
func (e *Engine) applyConfig(html string, cfg RuleConfig) (Result, bool, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return Result{}, false, err
	}
	removeAll(doc, cfg.Remove)

	content := ""
	for _, sel := range cfg.Content.Values() {
		text := cleanText(doc.Find(sel).First().Text())
		if len(text) > domainContentMin {
			content = text
			break
		}
	}
	if content == "" {
		return Result{}, false, nil
	}

	return Result{
		Title:           firstText(doc, cfg.Title.Values()),
		Author:          firstText(doc, cfg.Author.Values()),
		Content:         content,
		PublicationDate: firstText(doc, cfg.Date.Values()),
	}, true, nil
}

func genericExtract(doc *goquery.Document) (Result, bool) {
	removeAll(doc, genericNoise)

	content := ""
	for _, sel := range genericContentSelectors {
		text := cleanText(doc.Find(sel).First().Text())
		if len(text) > genericContentMin {
			content = text
			break
		}
	}
	if content == "" {
		return Result{}, false
	}
	return Result{
		Title:   firstText(doc, genericTitleSelectors),
		Author:  firstText(doc, genericAuthorSelectors),
		Content: content,
	}, true
}

// paragraphFallback concatenates every substantial <p> in document order.
func paragraphFallback(doc *goquery.Document) (Result, bool) {
	var paras []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := cleanText(sel.Text())
		if len(text) > paragraphMin {
			paras = append(paras, text)
		}
	})
	joined := strings.Join(paras, "\n\n")
	if len(joined) <= paragraphJoinedMin {
		return Result{}, false
	}
	return Result{
		Title:   firstText(doc, genericTitleSelectors),
		Content: joined,
	}, true
}

func parseHTML(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func removeAll(doc *goquery.Document, selectors []string) {
	for _, sel := range selectors {
		doc.Find(sel).Remove()
	}
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := cleanInline(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(domain, "www.")
}
