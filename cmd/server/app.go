package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campaign-insights/backend/internal/chart"
	"github.com/campaign-insights/backend/internal/config"
	"github.com/campaign-insights/backend/internal/dataset"
	"github.com/campaign-insights/backend/internal/llm"
	"github.com/campaign-insights/backend/internal/parser"
	"github.com/campaign-insights/backend/internal/query"
	"github.com/campaign-insights/backend/internal/session"
	"github.com/campaign-insights/backend/internal/storage"
	"github.com/campaign-insights/backend/internal/upload"
)

// app wires every component from configuration.
type app struct {
	cfg    *config.AppConfig
	logger *zap.Logger

	store     *storage.LocalStore
	artifacts *dataset.ArtifactStore
	sessions  *session.Manager
	uploads   *upload.Manager
	router    *query.Router

	redis redis.UniversalClient
}

func newApp(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, withLLM bool) (*app, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		return nil, fmt.Errorf("initialize upload storage: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	artifacts := dataset.NewArtifactStore(blobs, cfg.Storage.ArtifactName, cfg.Storage.DataDirectory)

	duckOpts := dataset.DuckOptions{
		Threads:     cfg.DuckDB.Threads,
		MemoryLimit: cfg.DuckDB.MemoryLimit,
		MaxQueries:  cfg.DuckDB.MaxQueries,
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		artifacts: artifacts,
	}

	leases, err := a.newLeaseManager(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	merger := dataset.NewMerger(parser.NewRegistry(), artifacts, logger, cfg.Upload.MaxConcurrentParses)
	a.sessions = session.NewManager(dataset.NewReader(artifacts, logger), duckOpts, logger)
	a.uploads = upload.NewManager(store, merger, a.sessions, leases, cfg.LeaseTTL(), logger)

	if withLLM {
		if a.router, err = newRouter(ctx, cfg, duckOpts, logger); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func newBlobStore(ctx context.Context, cfg config.StorageConfig) (storage.BlobStore, error) {
	if cfg.Backend != "s3" {
		blobs, err := storage.NewLocalBlobStore(cfg.RuntimeDirectory)
		if err != nil {
			return nil, fmt.Errorf("initialize artifact storage: %w", err)
		}
		return blobs, nil
	}

	client, err := storage.LoadS3Client(ctx, storage.S3Options{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		UsePathStyle:    cfg.S3.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return storage.NewS3BlobStore(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
}

func (a *app) newLeaseManager(ctx context.Context) (upload.WriteLeaseManager, error) {
	if a.cfg.Upload.LeaseBackend != "redis" {
		return upload.NewInMemoryWriteLeaseManager(), nil
	}

	rc := a.cfg.Upload.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", rc.Addr, err)
	}
	a.redis = client

	leases, err := upload.NewRedisWriteLeaseManager(client, rc.Prefix)
	if err != nil {
		return nil, err
	}
	a.logger.Info("using redis write lease", zap.String("addr", rc.Addr))
	return leases, nil
}

func newRouter(ctx context.Context, cfg *config.AppConfig, duckOpts dataset.DuckOptions, logger *zap.Logger) (*query.Router, error) {
	chatModel, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	completer := llm.NewChatCompleter(chatModel, cfg.LLMTimeout(), logger)

	selector := query.NewColumnSelector(completer, cfg.LLM.ColumnTemperature, logger)
	agent := query.NewTabularAgent(chatModel, selector, query.AgentOptions{
		MaxSteps:      cfg.LLM.MaxAgentSteps,
		SampleRows:    cfg.Query.SampleRows,
		MaxResultRows: cfg.Query.MaxResultRows,
		Temperature:   cfg.LLM.AgentTemperature,
		Timeout:       cfg.LLMTimeout(),
		DuckDB:        duckOpts,
	}, logger)

	generator := chart.NewGenerator(completer, chart.NewRenderer(cfg.Chart.Width, cfg.Chart.Height), chart.Options{
		Temperature: cfg.LLM.ChartTemperature,
		SampleRows:  cfg.Query.SampleRows,
		MaxPoints:   cfg.Chart.MaxPoints,
	}, logger)

	return query.NewRouter(query.NewKeywordClassifier(cfg.Query.VisualizationKeywords), agent, generator, logger), nil
}

// Close releases the dataset handle and external connections.
func (a *app) Close() {
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis client", zap.Error(err))
		}
	}
}
