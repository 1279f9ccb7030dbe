package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validSource() Source {
	return Source{
		Name:     "Example News",
		URL:      "https://news.example.com/latest",
		Strategy: StrategyStatic,
		Selectors: Selectors{
			Container: ".stories",
			Title:     "h3",
			Link:      "a.story-link",
		},
	}
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "static", want: StrategyStatic},
		{in: "Rendered", want: StrategyRendered},
		{in: "puppeteer", want: StrategyRendered},
		{in: " PUPPETEER ", want: StrategyRendered},
		{in: "browser", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseStrategy(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestSourceValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validSource().Validate())

	broken := validSource()
	broken.Name = "  "
	require.Error(t, broken.Validate())

	broken = validSource()
	broken.URL = "not a url"
	require.Error(t, broken.Validate())

	broken = validSource()
	broken.URL = "ftp://news.example.com"
	require.Error(t, broken.Validate())

	broken = validSource()
	broken.Selectors.Link = ""
	require.Error(t, broken.Validate())

	broken = validSource()
	broken.Strategy = "puppeteer" // raw alias is only legal pre-parse
	require.Error(t, broken.Validate())
}

func TestSourceDerivedFields(t *testing.T) {
	t.Parallel()

	src := validSource()
	require.Equal(t, "example-news", src.Key())
	require.Equal(t, "news.example.com", src.Domain())
	require.Equal(t, "https://news.example.com", src.Origin())
}

func TestLoadValidatesEagerly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")

	good := `sources:
  - name: Example News
    url: https://news.example.com/latest
    method: static
    selectors:
      container: ".stories"
      title: "h3"
      link: "a.story-link"
  - name: Rendered Site
    url: https://app.example.com/feed
    method: puppeteer
    selectors:
      container: ".feed"
      title: ".headline"
      link: "a"
      link_filter: "/articles/"
    allow_titles:
      - "Newsletter Deep Dive"
`
	require.NoError(t, os.WriteFile(path, []byte(good), 0o600))

	sources, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, StrategyStatic, sources[0].Strategy)
	require.Equal(t, StrategyRendered, sources[1].Strategy)
	require.Equal(t, "/articles/", sources[1].Selectors.LinkFilter)
	require.Equal(t, []string{"Newsletter Deep Dive"}, sources[1].AllowTitles)

	// One descriptor missing its link selector fails the entire load.
	bad := `sources:
  - name: Broken
    url: https://broken.example.com
    method: static
    selectors:
      container: ".stories"
      title: "h3"
`
	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte(bad), 0o600))
	_, err = Load(badPath)
	require.Error(t, err)
}
