// Package app initializes and holds the long-lived service graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/briefdesk/harvester/internal/api"
	"github.com/briefdesk/harvester/internal/archive"
	archivegcs "github.com/briefdesk/harvester/internal/archive/gcs"
	archivelocal "github.com/briefdesk/harvester/internal/archive/local"
	archivemem "github.com/briefdesk/harvester/internal/archive/memory"
	"github.com/briefdesk/harvester/internal/config"
	"github.com/briefdesk/harvester/internal/extract"
	"github.com/briefdesk/harvester/internal/headless"
	"github.com/briefdesk/harvester/internal/logging"
	"github.com/briefdesk/harvester/internal/publish"
	publishpubsub "github.com/briefdesk/harvester/internal/publish/pubsub"
	"github.com/briefdesk/harvester/internal/relay"
	"github.com/briefdesk/harvester/internal/scrape"
	"github.com/briefdesk/harvester/internal/source"
	"github.com/briefdesk/harvester/internal/store"
	storemem "github.com/briefdesk/harvester/internal/store/memory"
	storepg "github.com/briefdesk/harvester/internal/store/postgres"
)

// App owns every long-lived collaborator and knows how to shut them down.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Sources     []source.Source
	Coordinator *scrape.Coordinator
	Server      *api.Server

	articles     store.ArticleStore
	pubsubClient *pubsub.Client
	pubsubTopic  *pubsub.Topic
	gcsClient    *gcstorage.Client
}

// New builds the service graph from configuration, failing fast when any
// required collaborator cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	sources, err := source.Load(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	logger.Info("source catalog loaded",
		zap.String("path", cfg.SourcesFile),
		zap.Int("sources", len(sources)),
	)

	filter := scrape.NewFilter(cfg.Scrape.ExtraBlockedTitles...)
	static := scrape.NewStaticFetcher(scrape.StaticConfig{
		UserAgent:      cfg.Scrape.UserAgent,
		AcceptLanguage: cfg.Scrape.AcceptLanguage,
		Timeout:        cfg.ScrapeTimeout(),
		DomainQPS:      cfg.Scrape.DomainQPS,
	}, filter, logger)

	var launcher scrape.BrowserLauncher = headless.NoopLauncher{}
	if cfg.Headless.Enabled {
		launcher = headless.NewLauncher(headless.Config{
			UserAgent:         cfg.Scrape.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			SettleDelay:       cfg.SettleDelay(),
			BlockAssets:       cfg.Headless.BlockMediaAssets,
		}, logger)
	}
	rendered := scrape.NewRenderedFetcher(launcher, filter, logger)
	coordinator := scrape.NewCoordinator(static, rendered, logger)

	engine, err := extract.NewEngine(extract.DefaultRules(), logger)
	if err != nil {
		return nil, fmt.Errorf("init extraction engine: %w", err)
	}

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Sources:     sources,
		Coordinator: coordinator,
	}

	opts, err := a.buildSinks(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts = append(opts, api.WithExtractor(static, engine))

	var streamRelay api.StreamRelay
	if cfg.Relay.UpstreamURL != "" {
		streamRelay = relay.New(relay.Config{
			UpstreamURL:    cfg.Relay.UpstreamURL,
			ConnectTimeout: cfg.RelayConnectTimeout(),
		}, &http.Client{}, logger)
	} else {
		logger.Warn("relay.upstream_url not set, stream endpoint disabled")
	}

	a.Server = api.NewServer(coordinator, streamRelay, sources, cfg, logger, opts...)
	return a, nil
}

// buildSinks wires the optional persistence, archive, and notification sinks.
func (a *App) buildSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]api.Option, error) {
	var opts []api.Option

	if cfg.DB.DSN != "" {
		articles, err := storepg.NewArticleStore(ctx, storepg.ArticleStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
		})
		if err != nil {
			return nil, fmt.Errorf("init article store: %w", err)
		}
		a.articles = articles
	} else {
		logger.Info("db.dsn not set, storing runs in memory")
		a.articles = storemem.New()
	}
	opts = append(opts, api.WithArticleStore(a.articles))

	blobs, err := a.buildBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, api.WithArchiver(archive.New(archive.Config{
		Prefix:      cfg.Storage.Prefix,
		ContentType: cfg.Storage.ContentType,
	}, blobs, logger)))

	var publisher publish.Publisher = publish.Noop{}
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		a.pubsubClient = client
		a.pubsubTopic = client.Topic(cfg.PubSub.TopicName)
		publisher = publishpubsub.New(a.pubsubTopic)
	} else {
		logger.Info("pubsub not configured, run notifications disabled")
	}
	opts = append(opts, api.WithPublisher(publisher))

	return opts, nil
}

func (a *App) buildBlobStore(ctx context.Context, cfg config.Config) (archive.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return archivemem.NewBlobStore(), nil
	case "local":
		blobs, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return blobs, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.gcsClient = client
		blobs, err := archivegcs.New(client, archivegcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		return blobs, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Serve runs the HTTP server until ctx is canceled, then drains within the
// configured grace period.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownGrace())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.Logger.Info("http server drained")
	return nil
}

// Close releases every collaborator. Safe to call on a partially built App.
func (a *App) Close() {
	if a.articles != nil {
		a.articles.Close()
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("close gcs client", zap.Error(err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
