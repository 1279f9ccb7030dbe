// Package source defines scrape source descriptors and their registry.
package source

import (
	"fmt"
	"net/url"
	"strings"
)

// Strategy selects the fetch mechanism for a source.
type Strategy string

// Supported fetch strategies.
const (
	StrategyStatic   Strategy = "static"
	StrategyRendered Strategy = "rendered"
)

// ParseStrategy maps configuration values onto a Strategy. "puppeteer" is
// accepted as a legacy alias for rendered.
func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "static":
		return StrategyStatic, nil
	case "rendered", "puppeteer":
		return StrategyRendered, nil
	default:
		return "", fmt.Errorf("unknown fetch strategy %q", raw)
	}
}

// Selectors locate article links inside a source's listing page.
type Selectors struct {
	Container  string `mapstructure:"container" json:"container"`
	Title      string `mapstructure:"title" json:"title"`
	Link       string `mapstructure:"link" json:"link"`
	Image      string `mapstructure:"image" json:"image,omitempty"`
	LinkFilter string `mapstructure:"link_filter" json:"link_filter,omitempty"`
}

// Source describes one external site to scrape. Descriptors are validated at
// load time and never mutated by the pipeline.
type Source struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Strategy  Strategy  `json:"strategy"`
	Selectors Selectors `json:"selectors"`
	// AllowTitles lists title substrings exempt from the boilerplate blocklist.
	AllowTitles []string `json:"allow_titles,omitempty"`
}

// Validate rejects malformed descriptors before any scraping begins.
func (s Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source name is required")
	}
	parsed, err := url.Parse(s.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("source %s: url %q is not an absolute URL", s.Name, s.URL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("source %s: unsupported scheme %q", s.Name, parsed.Scheme)
	}
	switch s.Strategy {
	case StrategyStatic, StrategyRendered:
	default:
		return fmt.Errorf("source %s: invalid strategy %q", s.Name, s.Strategy)
	}
	if s.Selectors.Container == "" {
		return fmt.Errorf("source %s: selectors.container is required", s.Name)
	}
	if s.Selectors.Title == "" {
		return fmt.Errorf("source %s: selectors.title is required", s.Name)
	}
	if s.Selectors.Link == "" {
		return fmt.Errorf("source %s: selectors.link is required", s.Name)
	}
	return nil
}

// Key is the stable map key used for this source in coordinator output.
func (s Source) Key() string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s.Name), " ", "-"))
}

// Domain returns the lowercased hostname of the source URL, "" if unparseable.
func (s Source) Domain() string {
	parsed, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// Origin returns scheme://host for resolving relative article links.
func (s Source) Origin() string {
	parsed, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
