package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tryon/internal/adapter/repo"
	"tryon/internal/infra"
	"tryon/internal/notify"
	"tryon/internal/persist"
	"tryon/internal/poller"
	"tryon/internal/providers/kie"
	"tryon/internal/queue"
	"tryon/internal/storage"
	"tryon/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	if cfg.AMQPURL == "" {
		logger.Fatal().Msg("worker: AMQP_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	provider, err := kie.NewClient(kie.Options{
		APIKey:         cfg.ProviderAPIKey,
		BaseURL:        cfg.ProviderBaseURL,
		UploadBaseURL:  cfg.ProviderUploadURL,
		Logger:         logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: provider client")
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: object storage")
	}

	tasks := repo.NewTaskRepository(runner)
	gallery := repo.NewGalleryRepository(runner)
	persister := persist.New(persist.Options{
		Store:   store,
		Gallery: gallery,
		Logger:  logger,
	})
	svc := worker.New(worker.Options{
		Tasks:     tasks,
		Gallery:   gallery,
		Poller:    poller.New(poller.Options{Source: provider, Logger: logger}),
		Persister: persister,
		Notifier:  notify.NewMailerSend(cfg.MailerSendAPIKey, cfg.MailFrom, cfg.MailFromName, logger),
		Logger:    logger,
	})

	consumer, err := queue.NewConsumer(cfg.AMQPURL, cfg.AMQPQueue, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: broker connection failed")
	}
	defer consumer.Close()

	logger.Info().Str("queue", cfg.AMQPQueue).Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")
	if err := consumer.Run(ctx, cfg.WorkerConcurrency, svc.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
		return
	}
	logger.Info().Msg("worker stopped")
}
