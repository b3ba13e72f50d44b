package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"berserk/internal/api"
	"berserk/internal/clock"
	"berserk/internal/config"
	"berserk/internal/database"
	"berserk/internal/domain"
	"berserk/internal/events"
	"berserk/internal/google"
	"berserk/internal/logging"
	"berserk/internal/metrics"
	"berserk/internal/notify"
	"berserk/internal/payment"
	"berserk/internal/repository"
	"berserk/internal/service"
	"berserk/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const draftTTL = 7 * 24 * time.Hour

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	backups := database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(&logger, "backup"))
	go backups.Start(ctx)

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	dedup, drafts := initStores(redisClient, &logger)

	sheetsService := initGoogleSheets(ctx, cfg, &logger)

	notifier := worker.NewNotificationWorker(db, db, redisClient, worker.RetryPolicy{
		MaxRetries:   cfg.Worker.MaxRetries,
		InitialDelay: cfg.Worker.BaseDelay,
		MaxDelay:     cfg.Worker.MaxDelay,
	}, worker.Options{
		QueueKey:      cfg.Worker.QueueKey,
		DeadLetterKey: cfg.Worker.DeadLetterKey,
		PollInterval:  cfg.Worker.PollInterval,
		BufferSize:    cfg.Worker.BufferSize,
	}, logging.Component(&logger, "notification-worker"))

	customer, studio := initNotifiers(cfg, &logger)
	var sheetsWriter domain.SheetsWriter
	if sheetsService != nil {
		sheetsWriter = sheetsService
	}
	for kind, h := range notify.Routes(customer, studio, sheetsWriter) {
		notifier.Route(kind, h)
	}

	bus := events.NewEventBus()
	if sheetsService != nil {
		service.SubscribeSheetSync(bus, notifier)
	}

	clk := clock.NewSystem()
	bookings := service.NewBookingService(
		db,
		payment.NewStripeGateway(cfg.Stripe),
		bus,
		service.NewIDGenerator(clk, nil),
		clk,
		cfg.Booking,
		cfg.Artists,
		logging.Component(&logger, "booking"),
	)
	webhooks := service.NewWebhookService(
		payment.NewVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance),
		db,
		dedup,
		notifier,
		bus,
		cfg.Dedup.TTL,
		logging.Component(&logger, "webhook"),
	)
	availability := service.NewAvailabilityService(cfg.Availability, clk, nil)

	deps := api.Deps{
		Bookings:     bookings,
		Webhooks:     webhooks,
		Availability: availability,
		Ledger:       db,
		Drafts:       drafts,
		Checks:       map[string]api.Check{"database": db.PingContext},
	}
	if sheetsService != nil {
		deps.Sheets = sheetsService
	}
	if redisClient != nil {
		deps.Checks["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
	}
	httpServer := api.NewHTTPServer(cfg.HTTP, cfg.Admin, deps, logging.Component(&logger, "http"))

	startMetrics(ctx, cfg, &logger)
	go notifier.Start(ctx)

	return serve(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		logger.Warn().Msg("redis address not set, dedup and drafts are process-local")
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		// Keep the client: the failover stores switch back once redis recovers.
		logger.Warn().Err(err).Msg("redis connection failed, starting on in-memory fallback")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func initStores(client *redis.Client, logger *zerolog.Logger) (domain.DedupStore, domain.DraftStore) {
	if client == nil {
		return repository.NewMemoryDedupStore(), repository.NewMemoryDraftStore()
	}
	storeLogger := logging.Component(logger, "store")
	dedup := repository.NewFailoverDedupStore(repository.NewRedisDedupStore(client), repository.NewMemoryDedupStore(), storeLogger)
	drafts := repository.NewFailoverDraftStore(repository.NewRedisDraftStore(client, draftTTL), repository.NewMemoryDraftStore(), storeLogger)
	return dedup, drafts
}

func initNotifiers(cfg *config.Config, logger *zerolog.Logger) (notify.CustomerNotifier, notify.StudioNotifier) {
	fallback := notify.NewLogNotifier(logging.Component(logger, "notify"))

	var customer notify.CustomerNotifier = fallback
	var studio notify.StudioFanout

	if cfg.SMTP.Host != "" {
		mailer, err := notify.NewMailer(cfg.SMTP, logging.Component(logger, "mailer"))
		if err != nil {
			logger.Warn().Err(err).Msg("smtp init failed, emails will only be logged")
		} else {
			customer = mailer
			studio = append(studio, mailer)
		}
	}

	if cfg.Telegram.BotToken != "" {
		bot, err := notify.NewTelegramBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without studio chat alerts")
		} else {
			studio = append(studio, notify.NewTelegramNotifier(bot, cfg.Telegram.ManagerChats, logging.Component(logger, "telegram")))
		}
	}

	if len(studio) == 0 {
		return customer, fallback
	}
	return customer, studio
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(
		ctx,
		cfg.Google.CredentialsFile,
		cfg.Google.BookingSpreadSheetID,
		cfg.Google.SheetName,
		logging.Component(logger, "sheets"),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	if err := sheetsService.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header check failed")
	}
	go sheetsService.StartCacheRefresh(ctx, 10*time.Minute)

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.HTTP.Port).Int("artists", len(cfg.Artists)).Msg("Booking API started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("Booking API stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
