package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/briefdesk/harvester/internal/extract"
)

type fakePageFetcher struct {
	html    string
	err     error
	lastURL string
}

func (f *fakePageFetcher) FetchHTML(_ context.Context, pageURL string) (string, error) {
	f.lastURL = pageURL
	if f.err != nil {
		return "", f.err
	}
	return f.html, nil
}

func articleHTML(paragraphs int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Fallback Title</title></head><body><article><h1>Launch Day</h1>")
	for i := 0; i < paragraphs; i++ {
		b.WriteString("<p>")
		b.WriteString(strings.Repeat(fmt.Sprintf("sentence %d runs on. ", i), 6))
		b.WriteString("</p>")
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

func newExtractServer(t *testing.T, pages HTMLFetcher) *httptest.Server {
	t.Helper()
	engine, err := extract.NewEngine(extract.DefaultRules(), nil)
	require.NoError(t, err)
	srv := NewServer(&fakeScraper{}, &fakeRelay{}, nil, testConfig(), nil,
		WithExtractor(pages, engine))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postExtract(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/extract", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestExtractPageReturnsContent(t *testing.T) {
	t.Parallel()

	pages := &fakePageFetcher{html: articleHTML(4)}
	ts := newExtractServer(t, pages)

	resp := postExtract(t, ts, `{"url":"https://news.example.com/2026/launch-day"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "https://news.example.com/2026/launch-day", pages.lastURL)

	var got extractResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "news.example.com", got.Domain)
	require.Equal(t, "Launch Day", got.Result.Title)
	require.Contains(t, got.Result.Content, "sentence 0 runs on.")
}

func TestExtractPageRejectsBadRequests(t *testing.T) {
	t.Parallel()

	ts := newExtractServer(t, &fakePageFetcher{html: articleHTML(4)})

	for name, body := range map[string]string{
		"malformed json": `{"url":`,
		"relative url":   `{"url":"/posts/1"}`,
		"bad scheme":     `{"url":"ftp://example.com/a"}`,
		"empty url":      `{"url":""}`,
	} {
		resp := postExtract(t, ts, body)
		require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "case %s", name)
	}
}

func TestExtractPageFetchFailure(t *testing.T) {
	t.Parallel()

	pages := &fakePageFetcher{err: fmt.Errorf("connection refused")}
	ts := newExtractServer(t, pages)

	resp := postExtract(t, ts, `{"url":"https://news.example.com/down"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestExtractPageNoContent(t *testing.T) {
	t.Parallel()

	pages := &fakePageFetcher{html: "<html><body><p>tiny</p></body></html>"}
	ts := newExtractServer(t, pages)

	resp := postExtract(t, ts, `{"url":"https://news.example.com/empty"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestExtractPageNotConfigured(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeScraper{}, &fakeRelay{}, nil, testConfig(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp := postExtract(t, ts, `{"url":"https://news.example.com/x"}`)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
