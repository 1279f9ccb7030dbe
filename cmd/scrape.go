package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/briefdesk/harvester/internal/app"
	"github.com/briefdesk/harvester/internal/source"
)

func newScrapeCmd() *cobra.Command {
	var (
		keys []string
		max  int
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape pass and print the result as JSON",
		Long: `Fetches every configured source once (or only the sources named with
--source), settles all results, and writes the aggregate JSON to stdout.
Per-source failures appear in the metadata without failing the command.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, keys, max)
		},
	}
	cmd.Flags().StringSliceVar(&keys, "source", nil, "source keys to scrape (default all)")
	cmd.Flags().IntVar(&max, "max", 0, "max articles per source (default from config)")
	return cmd
}

func runScrape(cmd *cobra.Command, keys []string, max int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer a.Close()

	sources := a.Sources
	if len(keys) > 0 {
		sources, err = filterSources(a.Sources, keys)
		if err != nil {
			return err
		}
	}
	if max <= 0 {
		max = cfg.Scrape.MaxPerSource
	}

	result := a.Coordinator.ScrapeAll(ctx, sources, max)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	cmd.Println(string(out))
	return nil
}

func filterSources(catalog []source.Source, keys []string) ([]source.Source, error) {
	byKey := make(map[string]source.Source, len(catalog))
	for _, src := range catalog {
		byKey[src.Key()] = src
	}
	out := make([]source.Source, 0, len(keys))
	for _, key := range keys {
		src, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", key)
		}
		out = append(out, src)
	}
	return out, nil
}
