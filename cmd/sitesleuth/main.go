// Package main wires together the sitesleuth scan service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/sitesleuth/sitesleuth/internal/api"
	archivegcs "github.com/sitesleuth/sitesleuth/internal/archive/gcs"
	archivelocal "github.com/sitesleuth/sitesleuth/internal/archive/local"
	archivememory "github.com/sitesleuth/sitesleuth/internal/archive/memory"
	"github.com/sitesleuth/sitesleuth/internal/classifier"
	"github.com/sitesleuth/sitesleuth/internal/clock/system"
	"github.com/sitesleuth/sitesleuth/internal/config"
	"github.com/sitesleuth/sitesleuth/internal/crawler"
	collyfetcher "github.com/sitesleuth/sitesleuth/internal/fetcher/colly"
	"github.com/sitesleuth/sitesleuth/internal/id/uuid"
	"github.com/sitesleuth/sitesleuth/internal/logging"
	"github.com/sitesleuth/sitesleuth/internal/pipeline"
	memorypublisher "github.com/sitesleuth/sitesleuth/internal/publisher/memory"
	pubsubpublisher "github.com/sitesleuth/sitesleuth/internal/publisher/pubsub"
	"github.com/sitesleuth/sitesleuth/internal/scan"
	memorystore "github.com/sitesleuth/sitesleuth/internal/store/memory"
	postgresstore "github.com/sitesleuth/sitesleuth/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clock := system.New()
	idGen := uuid.New()

	store, closeStore, err := buildStore(ctx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	archive, closeArchive, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Scan.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	crawl := crawler.New(fetcher, crawler.Config{
		PageTimeout: cfg.PageTimeout(),
	}, logger.Named("crawler"))

	backends := make([]classifier.Backend, 0, len(cfg.Classifier.Backends))
	for _, b := range cfg.Classifier.Backends {
		backends = append(backends, classifier.NewOpenAIBackend(classifier.OpenAIConfig{
			Name:     b.Name,
			Endpoint: b.Endpoint,
			Model:    b.Model,
			APIKey:   b.APIKey,
			Timeout:  time.Duration(b.TimeoutSeconds) * time.Second,
		}))
	}
	gateway := classifier.New(backends, logger.Named("classifier"))

	pipe, err := pipeline.New(pipeline.Deps{
		Fetcher:    fetcher,
		Crawler:    crawl,
		Classifier: gateway,
		Store:      store,
		Archive:    archive,
		Publisher:  publisher,
		Clock:      clock,
		IDs:        idGen,
	}, pipeline.Config{
		DeepModePages:     cfg.Crawler.DeepMaxPages,
		UserAgent:         cfg.Scan.UserAgent,
		ScreenshotBaseURL: cfg.Scan.ScreenshotBaseURL,
		ArchivePrefix:     cfg.Scan.ArchivePrefix,
		EventTopic:        cfg.Scan.EventTopic,
	}, logger.Named("pipeline"))
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	apiCfg := api.Config{RequestTimeout: cfg.RequestTimeout()}
	if cfg.Auth.Enabled {
		apiCfg.APIKey = cfg.Auth.APIKey
	}
	apiServer := api.NewServer(pipe, apiCfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, clock scan.Clock, logger *zap.Logger) (scan.ResultStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured, using in-memory result store")
		return memorystore.New(clock), func() {}, nil
	}
	store, err := postgresstore.New(ctx, postgresstore.Config{
		DSN:             cfg.DB.DSN,
		Table:           cfg.DB.Table,
		MaxConns:        int32(cfg.DB.MaxConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMinutes) * time.Minute,
	}, clock)
	if err != nil {
		return nil, nil, fmt.Errorf("connect result store: %w", err)
	}
	return store, store.Close, nil
}

func buildArchive(ctx context.Context, cfg config.Config) (scan.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case "local":
		store, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, func() {}, nil
	case "gcs":
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := archivegcs.New(client, archivegcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return archivememory.NewBlobStore(), func() {}, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (scan.Publisher, func(), error) {
	if !cfg.PubSub.Enabled {
		return memorypublisher.New(), func() {}, nil
	}
	client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	return pubsubpublisher.New(client), func() { _ = client.Close() }, nil
}
