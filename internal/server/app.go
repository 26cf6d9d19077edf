// Package server builds the archiver's long-lived services and runs them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawl-archiver/internal/api"
	"github.com/JakeFAU/crawl-archiver/internal/archive"
	"github.com/JakeFAU/crawl-archiver/internal/auth"
	"github.com/JakeFAU/crawl-archiver/internal/clock"
	"github.com/JakeFAU/crawl-archiver/internal/config"
	"github.com/JakeFAU/crawl-archiver/internal/crawler"
	"github.com/JakeFAU/crawl-archiver/internal/firecrawl"
	"github.com/JakeFAU/crawl-archiver/internal/id"
	"github.com/JakeFAU/crawl-archiver/internal/janitor"
	"github.com/JakeFAU/crawl-archiver/internal/metrics"
	"github.com/JakeFAU/crawl-archiver/internal/orchestrator"
	gcppublisher "github.com/JakeFAU/crawl-archiver/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/crawl-archiver/internal/storage/gcs"
	localstorage "github.com/JakeFAU/crawl-archiver/internal/storage/local"
	memorystorage "github.com/JakeFAU/crawl-archiver/internal/storage/memory"
	"github.com/JakeFAU/crawl-archiver/internal/telemetry"
)

const (
	serviceName    = "crawl-archiver"
	serviceVersion = "1.0.0"
)

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	janitor      *janitor.Janitor
	store        crawler.ArchiveStore
	storage      *storage.Client
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	tracer       *sdktrace.TracerProvider
}

// Build creates the application's dependencies. Secrets must already have
// been checked with cfg.ValidateServer.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("archive_backend", cfg.Archive.Backend),
	)
	metrics.Init()

	var err error
	app.tracer, err = telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	app.store, err = setupStorage(ctx, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	clk := clock.System{}
	crawl, err := NewCrawler(cfg, clk, nil, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	builder := archive.NewBuilder(app.store, id.UUID{}, clk, archive.Config{
		TempDir:    cfg.Archive.TempDir,
		WriteIndex: cfg.Archive.WriteIndex,
	}, logger.Named("archive"))

	app.janitor, err = janitor.New(app.store, clk, janitor.Config{
		Retention: cfg.Archive.Retention,
		Interval:  cfg.Archive.SweepInterval,
	}, logger.Named("janitor"))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("janitor init failed: %w", err)
	}

	app.apiServer = api.NewServer(
		auth.NewGate(cfg.Auth.AdminPassword, logger.Named("auth")),
		crawl,
		builder,
		app.store,
		publisher,
		clk,
		api.Config{
			DefaultDepth:        cfg.Crawl.DefaultDepth,
			DefaultMaxPages:     cfg.Crawl.DefaultMaxPages,
			DeleteAfterDownload: cfg.Archive.DeleteAfterDownload,
		},
		logger.Named("api"),
	)
	return app, nil
}

// NewCrawler builds the Firecrawl client and the polling orchestrator on top
// of it. onProgress may be nil.
func NewCrawler(cfg config.Config, clk crawler.Clock, onProgress func(orchestrator.Progress), logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	client, err := firecrawl.New(firecrawl.Config{
		BaseURL:         cfg.Firecrawl.BaseURL,
		APIKey:          cfg.Firecrawl.APIKey,
		Timeout:         cfg.Firecrawl.RequestTimeout,
		OnlyMainContent: cfg.Firecrawl.OnlyMainContent,
		UserAgent:       cfg.Firecrawl.UserAgent,
	}, logger.Named("firecrawl"))
	if err != nil {
		return nil, fmt.Errorf("firecrawl client init failed: %w", err)
	}
	return orchestrator.New(client, clk, orchestrator.Config{
		PollInterval: cfg.Firecrawl.PollInterval,
		Timeout:      cfg.Firecrawl.CrawlTimeout,
		OnProgress:   onProgress,
	}, logger.Named("orchestrator")), nil
}

func setupStorage(ctx context.Context, app *App) (crawler.ArchiveStore, error) {
	switch app.cfg.Archive.Backend {
	case config.BackendGCS:
		app.logger.Info("using GCS archive store", zap.String("bucket", app.cfg.Archive.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: app.cfg.Archive.GCSBucket,
			Prefix: app.cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs archive store init failed: %w", err)
		}
		return store, nil
	case config.BackendLocal:
		app.logger.Info("using local archive store", zap.String("path", app.cfg.Archive.Dir))
		store, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("local archive store init failed: %w", err)
		}
		return store, nil
	default:
		app.logger.Warn("using in-memory archive store; archives are lost on restart")
		return memorystorage.NewArchiveStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" {
		app.logger.Info("no Pub/Sub topic configured, completion events disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.publisher = gcppublisher.New(client.Topic(app.cfg.PubSub.TopicName))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.publisher, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and sweeps expired archives until ctx is canceled or the
// listener fails, then shuts both down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.logger.Info("archive janitor started",
			zap.Duration("retention", a.cfg.Archive.Retention),
			zap.Duration("interval", a.cfg.Archive.SweepInterval),
		)
		a.janitor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close releases cloud clients. It is safe to call on a partially built App.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
