package scrape

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/briefdesk/harvester/internal/source"
)

func TestFilterAllow(t *testing.T) {
	t.Parallel()

	f := NewFilter()
	cases := []struct {
		name       string
		title      string
		exceptions []string
		want       bool
	}{
		{name: "ordinary headline", title: "Go 1.25 released with new GC tuning", want: true},
		{name: "too short", title: "Go 1.25", want: false},
		{name: "too long", title: stringOfLen(201), want: false},
		{name: "exactly min length", title: stringOfLen(10), want: true},
		{name: "blocklisted keyword", title: "Subscribe to our weekly newsletter", want: false},
		{name: "blocklist is case-insensitive", title: "SPONSORED: the best laptops of 2026", want: false},
		{name: "exception bypasses blocklist", title: "Why sponsored content is eating the web", exceptions: []string{"sponsored content"}, want: true},
		{name: "exception must match", title: "Sign up for alerts today please", exceptions: []string{"breaking"}, want: false},
		{name: "surrounding whitespace trimmed", title: "   Tiny   ", want: false},
		{name: "short multibyte headline counts runes", title: "速報:円高進行", want: false},
		{name: "ten multibyte runes pass the minimum", title: "日本銀行が金利を引き上げた", want: true},
		{name: "long multibyte headline within rune bound", title: strings.Repeat("新", 180), want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, f.Allow(tc.title, tc.exceptions))
		})
	}
}

func TestNewFilterExtraKeywords(t *testing.T) {
	t.Parallel()

	f := NewFilter("GIVEAWAY", "  ")
	require.False(t, f.Allow("Huge giveaway: win a free phone", nil))
	require.True(t, f.Allow("Huge discount: phones are cheaper", nil))
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	src := source.Source{URL: "https://news.example.com/section/tech"}
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "absolute kept", raw: "https://news.example.com/2026/story", want: "https://news.example.com/2026/story"},
		{name: "root-relative resolved", raw: "/2026/story", want: "https://news.example.com/2026/story"},
		{name: "relative resolved against page path", raw: "story", want: "https://news.example.com/section/story"},
		{name: "fragment stripped", raw: "/2026/story#comments", want: "https://news.example.com/2026/story"},
		{name: "bare fragment rejected", raw: "#top", want: ""},
		{name: "javascript rejected", raw: "javascript:void(0)", want: ""},
		{name: "mailto rejected", raw: "mailto:tips@example.com", want: ""},
		{name: "empty rejected", raw: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, resolveLink(src, tc.raw))
		})
	}
}

func TestBuildArticle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	src := source.Source{
		Name:     "Example Tech",
		URL:      "https://news.example.com/",
		Strategy: source.StrategyStatic,
		Selectors: source.Selectors{
			Container:  "main",
			Title:      "h2",
			Link:       "a.story",
			LinkFilter: "/2026/",
		},
	}
	filter := NewFilter()

	article, ok := buildArticle(src, filter, RawArticle{
		Title: "  A   headline with   run-on spacing  ",
		Link:  "/2026/spacing-story",
	}, now)
	require.True(t, ok)
	require.Equal(t, "A headline with run-on spacing", article.Title)
	require.Equal(t, "https://news.example.com/2026/spacing-story", article.Link)
	require.Equal(t, "Example Tech", article.Source.Site)
	require.Equal(t, "news.example.com", article.Source.Domain)
	require.Equal(t, source.StrategyStatic, article.Source.Strategy)
	require.Equal(t, now, article.Timestamp)

	_, ok = buildArticle(src, filter, RawArticle{Title: "A headline outside the filter", Link: "/2025/old-story"}, now)
	require.False(t, ok, "link filter must reject non-matching links")

	_, ok = buildArticle(src, filter, RawArticle{Title: "A perfectly fine headline", Link: "#nav"}, now)
	require.False(t, ok, "unresolvable links must reject the candidate")
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
