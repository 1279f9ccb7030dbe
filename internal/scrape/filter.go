package scrape

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/briefdesk/harvester/internal/source"
)

// Title bounds applied to every candidate article.
const (
	titleMinLen = 10
	titleMaxLen = 200
)

// defaultBlocklist rejects known non-article boilerplate by keyword.
var defaultBlocklist = []string{
	"subscribe",
	"newsletter",
	"sign up",
	"sign in",
	"log in",
	"advertisement",
	"sponsored",
	"cookie policy",
	"privacy policy",
	"terms of service",
}

var titleSpaceRuns = regexp.MustCompile(`\s+`)

// Filter applies the shared article-inclusion policy. Per-source exception
// lists are passed at call time so one Filter serves all sources.
type Filter struct {
	blocklist []string
}

// NewFilter builds a Filter from the default blocklist plus extra keywords.
func NewFilter(extra ...string) *Filter {
	blocklist := append([]string(nil), defaultBlocklist...)
	for _, kw := range extra {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			blocklist = append(blocklist, kw)
		}
	}
	return &Filter{blocklist: blocklist}
}

// Allow reports whether a title passes the length bounds and blocklist.
// Exceptions are substrings that bypass the blocklist for one source.
func (f *Filter) Allow(title string, exceptions []string) bool {
	title = strings.TrimSpace(title)
	// Bounds are in characters, not bytes; multibyte headlines count the
	// same as ASCII ones.
	if n := utf8.RuneCountInString(title); n < titleMinLen || n > titleMaxLen {
		return false
	}
	lower := strings.ToLower(title)
	for _, exc := range exceptions {
		exc = strings.ToLower(strings.TrimSpace(exc))
		if exc != "" && strings.Contains(lower, exc) {
			return true
		}
	}
	for _, kw := range f.blocklist {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}

// buildArticle maps one raw {title, link} pair into an Article, applying link
// resolution, the per-source link filter, and the title policy. The second
// return is false when the candidate is rejected.
func buildArticle(src source.Source, filter *Filter, raw RawArticle, now time.Time) (Article, bool) {
	title := cleanTitle(raw.Title)
	link := resolveLink(src, raw.Link)
	if link == "" {
		return Article{}, false
	}
	if lf := src.Selectors.LinkFilter; lf != "" && !strings.Contains(link, lf) {
		return Article{}, false
	}
	if !filter.Allow(title, src.AllowTitles) {
		return Article{}, false
	}
	return Article{
		Title: title,
		Link:  link,
		Source: ArticleSource{
			Site:     src.Name,
			Domain:   src.Domain(),
			Strategy: src.Strategy,
		},
		Timestamp: now,
	}, true
}

func cleanTitle(title string) string {
	return strings.TrimSpace(titleSpaceRuns.ReplaceAllString(title, " "))
}

// resolveLink absolutizes a candidate href against the source page URL.
// Links that do not parse or use a non-HTTP scheme resolve to "".
func resolveLink(src source.Source, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "javascript:") {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	base, err := url.Parse(src.URL)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
