package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"engine/internal/adapter/repo"
	"engine/internal/domain"
	"engine/internal/engine"
	"engine/internal/infra"
	"engine/internal/jobhandler"
	"engine/internal/provider/genai"
	"engine/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	if err := infra.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("worker: migrations failed")
	}

	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobStore(runner)
	ledger := repo.NewCreditLedger(runner)

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage init failed")
	}

	gen := genai.NewClient(genai.Options{
		APIKey:  cfg.ProviderAPIKey,
		BaseURL: cfg.ProviderBaseURL,
		Model:   cfg.ProviderModel,
		Logger:  &logger,
	})
	if cfg.ProviderAPIKey == "" {
		logger.Warn().Msg("worker: no provider api key, synthetic assets only")
	}

	executor := engine.NewExecutor(jobs, ledger, cfg.Worker, logger)
	costs := cfg.Worker.Costs
	for _, h := range []engine.Handler{
		jobhandler.NewImageHandler(gen, blobs, costs[domain.JobTypeImageGeneration]),
		jobhandler.NewVideoHandler(gen, blobs, costs[domain.JobTypeVideoGeneration]),
		jobhandler.NewSpeechHandler(gen, blobs, costs[domain.JobTypeAudioGeneration]),
		jobhandler.NewExportHandler(jobs),
		jobhandler.NewExportBundleHandler(blobs),
	} {
		if err := executor.Register(h); err != nil {
			logger.Fatal().Err(err).Msg("worker: handler registration failed")
		}
	}

	reaper, err := engine.NewReaper(jobs, cfg.Worker, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: reaper schedule invalid")
	}
	reaper.Start()
	defer reaper.Stop()

	if err := executor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: executor stopped")
	}
	logger.Info().Msg("worker stopped")
}

func newBlobStore(ctx context.Context, cfg *infra.Config) (storage.BlobStore, error) {
	if cfg.StorageBackend == "minio" {
		return storage.NewObjectStore(ctx, storage.MinIOOptions{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	}
	return storage.NewFileStore(cfg.StoragePath)
}
