package source

import (
	"fmt"

	"github.com/spf13/viper"
)

// rawSource mirrors the on-disk descriptor shape, where the fetch strategy is
// spelled "method" and may use the legacy "puppeteer" value.
type rawSource struct {
	Name        string    `mapstructure:"name"`
	URL         string    `mapstructure:"url"`
	Method      string    `mapstructure:"method"`
	Selectors   Selectors `mapstructure:"selectors"`
	AllowTitles []string  `mapstructure:"allow_titles"`
}

// Load reads source descriptors from a YAML/JSON file and validates every
// entry eagerly; a single malformed descriptor fails the whole load.
func Load(path string) ([]Source, error) {
	if path == "" {
		return nil, fmt.Errorf("sources file path is required")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var raw []rawSource
	if err := v.UnmarshalKey("sources", &raw); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sources", path)
	}
	return fromRaw(raw)
}

// fromRaw converts and validates decoded descriptors.
func fromRaw(raw []rawSource) ([]Source, error) {
	out := make([]Source, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, r := range raw {
		strategy, err := ParseStrategy(r.Method)
		if err != nil {
			return nil, fmt.Errorf("sources[%d] (%s): %w", i, r.Name, err)
		}
		src := Source{
			Name:        r.Name,
			URL:         r.URL,
			Strategy:    strategy,
			Selectors:   r.Selectors,
			AllowTitles: append([]string(nil), r.AllowTitles...),
		}
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if _, dup := seen[src.Key()]; dup {
			return nil, fmt.Errorf("sources[%d]: duplicate source key %q", i, src.Key())
		}
		seen[src.Key()] = struct{}{}
		out = append(out, src)
	}
	return out, nil
}
