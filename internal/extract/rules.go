// Package extract turns raw article HTML into structured content using
// per-domain rule configs with a generic fallback chain.
package extract

import "fmt"

// RuleConfig describes how to pull structured fields out of one domain's
// article markup. Configs for a domain are tried in registration order.
type RuleConfig struct {
	Title   Selector `json:"title,omitempty" mapstructure:"title"`
	Author  Selector `json:"author,omitempty" mapstructure:"author"`
	Content Selector `json:"content" mapstructure:"content"`
	Date    Selector `json:"date,omitempty" mapstructure:"date"`
	// Remove lists noise selectors stripped before any extraction runs.
	Remove []string `json:"remove,omitempty" mapstructure:"remove"`
}

// Validate rejects configs that cannot possibly extract content.
func (c RuleConfig) Validate() error {
	if c.Content.IsEmpty() {
		return fmt.Errorf("rule config requires a content selector")
	}
	return nil
}

// Result holds the structured fields recovered from one article page.
// Content is the only required field.
type Result struct {
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	Content         string `json:"content"`
	PublicationDate string `json:"publication_date,omitempty"`
}

// DefaultRules returns the site-specific configs shipped with the service.
// Keys are bare registrable domains; lookups normalize a leading "www.".
func DefaultRules() map[string][]RuleConfig {
	return map[string][]RuleConfig{
		"theverge.com": {
			{
				Title:   NewSelector("h1"),
				Author:  NewSelector(`a[href^="/authors/"]`),
				Content: NewSelectorList(".duet--article--article-body-component", "article .c-entry-content"),
				Date:    NewSelector("time"),
				Remove:  []string{".duet--recirculation--related-list", "aside", "figure figcaption"},
			},
		},
		"techcrunch.com": {
			{
				Title:   NewSelector("h1.article-hero__title"),
				Author:  NewSelector(".article-hero__authors a"),
				Content: NewSelectorList(".entry-content", ".article-content"),
				Date:    NewSelector("time"),
				Remove:  []string{".ad-unit", ".embed-breakout", ".related-articles"},
			},
			{
				Title:   NewSelector("h1"),
				Content: NewSelector("article"),
				Remove:  []string{"script", "style"},
			},
		},
		"arstechnica.com": {
			{
				Title:   NewSelector("h1"),
				Author:  NewSelector(`a[rel="author"]`),
				Content: NewSelectorList(".article-content", "article .post-content"),
				Date:    NewSelector("time"),
				Remove:  []string{".ars-interlude", ".gallery", ".social-left"},
			},
		},
	}
}
