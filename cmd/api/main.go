package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"tryon/internal/adapter/repo"
	"tryon/internal/credits"
	"tryon/internal/http/handlers"
	httpapi "tryon/internal/http/httpapi"
	"tryon/internal/infra"
	"tryon/internal/infra/geoip"
	"tryon/internal/modelpolicy"
	"tryon/internal/notify"
	"tryon/internal/orchestrator"
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
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	profiles := repo.NewProfileRepository(runner)
	tasks := repo.NewTaskRepository(runner)
	gallery := repo.NewGalleryRepository(runner)

	catalog, err := modelpolicy.LoadCatalog(cfg.ModelPolicyFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load model policy")
	}

	provider, err := kie.NewClient(kie.Options{
		APIKey:         cfg.ProviderAPIKey,
		BaseURL:        cfg.ProviderBaseURL,
		UploadBaseURL:  cfg.ProviderUploadURL,
		Logger:         logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build provider client")
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open object storage")
	}

	ledger := credits.NewLedger(profiles, cfg.UnlimitedEmails, logger)
	generator := orchestrator.New(orchestrator.Options{
		Provider:            provider,
		Ledger:              ledger,
		Policies:            modelpolicy.NewResolver(catalog),
		Logger:              logger,
		ChargeSubmittedOnly: cfg.ChargeSubmittedOnly,
	})
	persister := persist.New(persist.Options{
		Store:   store,
		Gallery: gallery,
		Logger:  logger,
	})

	publisher, closePublisher := newPublisher(ctx, cfg, logger, func() *worker.Service {
		return worker.New(worker.Options{
			Tasks:     tasks,
			Gallery:   gallery,
			Poller:    poller.New(poller.Options{Source: provider, Logger: logger}),
			Persister: persister,
			Notifier:  notify.NewMailerSend(cfg.MailerSendAPIKey, cfg.MailFrom, cfg.MailFromName, logger),
			Logger:    logger,
		})
	})
	defer closePublisher()

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	app := &handlers.App{
		Config:    cfg,
		Logger:    logger,
		Generator: generator,
		Balances:  ledger,
		Tasks:     tasks,
		Gallery:   gallery,
		Status:    provider,
		Uploader:  provider,
		Uploads:   persister,
		Publisher: publisher,
		DB:        pool,
	}
	if resolver != nil {
		app.Country = resolver.CountryCode
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app), logger)
	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// newPublisher returns the RabbitMQ publisher when AMQP_URL is set. Without a
// broker the worker runs inside the API process.
func newPublisher(ctx context.Context, cfg *infra.Config, logger zerolog.Logger, build func() *worker.Service) (queue.Publisher, func()) {
	if cfg.AMQPURL != "" {
		pub, err := queue.NewRabbitPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect broker")
		}
		return pub, func() { _ = pub.Close() }
	}
	logger.Warn().Msg("AMQP_URL not set, processing tasks in-process")
	inline := queue.NewInlinePublisher(ctx, build().Handle, logger)
	return inline, func() {
		done := make(chan struct{})
		go func() {
			inline.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			logger.Warn().Msg("in-process tasks still running at exit")
		}
	}
}
