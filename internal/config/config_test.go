package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  shutdown_seconds: 5
scrape:
  user_agent: harvester-agent
  timeout_seconds: 20
  max_per_source: 25
  domain_qps: 2.5
  extra_blocked_titles: ["flash sale"]
headless:
  enabled: true
  nav_timeout_seconds: 30
  settle_delay_ms: 500
relay:
  upstream_url: https://worker.example.com/stream/{session_id}
  max_retries: 5
  connect_timeout_seconds: 120
storage:
  backend: gcs
  gcs_bucket: bucket
  prefix: snapshots
  content_type: text/plain
pubsub:
  project_id: demo-project
  topic_name: articles
logging:
  development: false
  level: warn
sources_file: /etc/harvester/sources.yaml
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Scrape.UserAgent != "harvester-agent" || cfg.Scrape.MaxPerSource != 25 {
		t.Fatalf("expected scrape overrides to apply: %+v", cfg.Scrape)
	}
	if len(cfg.Scrape.ExtraBlockedTitles) != 1 || cfg.Scrape.ExtraBlockedTitles[0] != "flash sale" {
		t.Fatalf("expected extra blocked titles: %+v", cfg.Scrape.ExtraBlockedTitles)
	}
	if cfg.Relay.UpstreamURL != "https://worker.example.com/stream/{session_id}" || cfg.Relay.MaxRetries != 5 {
		t.Fatalf("expected relay overrides to apply: %+v", cfg.Relay)
	}
	if cfg.Storage.Backend != "gcs" || cfg.Storage.GCSBucket != "bucket" {
		t.Fatalf("expected storage overrides to apply: %+v", cfg.Storage)
	}
	if cfg.SourcesFile != "/etc/harvester/sources.yaml" {
		t.Fatalf("expected sources file override, got %q", cfg.SourcesFile)
	}
	if got := cfg.ScrapeTimeout(); got != 20*time.Second {
		t.Fatalf("expected scrape timeout 20s, got %v", got)
	}
	if got := cfg.SettleDelay(); got != 500*time.Millisecond {
		t.Fatalf("expected settle delay 500ms, got %v", got)
	}
	if got := cfg.RelayConnectTimeout(); got != 120*time.Second {
		t.Fatalf("expected relay connect timeout 120s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Scrape.MaxPerSource != 10 {
		t.Fatalf("expected default max per source 10, got %d", cfg.Scrape.MaxPerSource)
	}
	if cfg.Relay.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", cfg.Relay.MaxRetries)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("expected default storage backend memory, got %q", cfg.Storage.Backend)
	}
	if got := cfg.NavTimeout(); got != 45*time.Second {
		t.Fatalf("expected default nav timeout 45s, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Scrape:  ScrapeConfig{TimeoutSeconds: 10, MaxPerSource: 10},
		Storage: StorageConfig{Backend: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Scrape.TimeoutSeconds = 0
				return c
			}(),
			want: "scrape.timeout_seconds",
		},
		{
			name: "invalid max per source",
			cfg: func() Config {
				c := base
				c.Scrape.MaxPerSource = 0
				return c
			}(),
			want: "scrape.max_per_source",
		},
		{
			name: "headless missing nav timeout",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				return c
			}(),
			want: "headless.nav_timeout_seconds",
		},
		{
			name: "negative relay retries",
			cfg: func() Config {
				c := base
				c.Relay.MaxRetries = -1
				return c
			}(),
			want: "relay.max_retries",
		},
		{
			name: "unknown storage backend",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			}(),
			want: "storage.backend",
		},
		{
			name: "gcs missing bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "gcs"
				return c
			}(),
			want: "storage.gcs_bucket",
		},
		{
			name: "local missing dir",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "local"
				return c
			}(),
			want: "storage.local_dir",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
