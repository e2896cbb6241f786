package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/formcraft/formcraft-backend/internal/cache"
	"github.com/formcraft/formcraft-backend/internal/config"
	"github.com/formcraft/formcraft-backend/internal/database"
	"github.com/formcraft/formcraft-backend/internal/events"
	"github.com/formcraft/formcraft-backend/internal/handler"
	"github.com/formcraft/formcraft-backend/internal/logger"
	"github.com/formcraft/formcraft-backend/internal/media"
	"github.com/formcraft/formcraft-backend/internal/middleware"
	"github.com/formcraft/formcraft-backend/internal/repository"
	"github.com/formcraft/formcraft-backend/internal/router"
	"github.com/formcraft/formcraft-backend/internal/service"
	"github.com/formcraft/formcraft-backend/internal/validator"
	"github.com/formcraft/formcraft-backend/internal/worker"
)

type stores struct {
	forms     service.FormStore
	responses service.ResponseStore
	ping      handler.HealthCheck
	close     func()
}

func main() {
	cfg := config.Load()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("images", cfg.ImageStore).
		Msg("Starting FormCraft Backend")

	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	formCache := cache.New(rdb, cfg.FormCacheTTL)

	uploader, err := newUploader(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure image store")
	}

	bus, err := events.NewBus(events.Config{
		KafkaBrokers:  cfg.KafkaBrokers,
		Topic:         cfg.EventsTopic,
		ConsumerGroup: config.WorkerKey.ResponseFeedGroup,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start event bus")
	}

	formService := service.NewFormService(st.forms, st.responses, formCache, uploader, bus, service.FormOptions{
		MaxUploadBytes:    cfg.MaxUploadBytes,
		UploadConcurrency: cfg.UploadConcurrency,
	}, log)
	responseService := service.NewResponseService(st.responses, bus, log)
	exportService := service.NewExportService(formService, st.responses, log)

	checks := map[string]handler.HealthCheck{
		"store": st.ping,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	handlers := &router.Handlers{
		Form:     handler.NewFormHandler(formService, log),
		Response: handler.NewResponseHandler(responseService, exportService, log),
		WS:       handler.NewWSHandler(formService, formCache, log, cfg.AllowedOrigins),
		System:   handler.NewSystemHandler(checks, log),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	feedWorker := worker.NewResponseFeedWorker(bus, formCache, st.responses, log)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	workers.Go(func() { feedWorker.Start(workerCtx) })
	workers.Go(func() { limiter.Run(workerCtx) })

	r := router.SetupRouter(handlers, limiter, cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	workerCancel()
	workers.Wait()
	if err := bus.Close(); err != nil {
		log.Error().Err(err).Msg("Event bus close error")
	}

	log.Info().Msg("Shutdown complete")
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		db, err := database.NewMongoDatabase(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &stores{
			forms:     repository.NewMongoFormRepository(db),
			responses: repository.NewMongoResponseRepository(db),
			ping:      func(ctx context.Context) error { return db.Client().Ping(ctx, readpref.Primary()) },
			close:     func() { _ = db.Client().Disconnect(context.Background()) },
		}, nil
	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &stores{
			forms:     repository.NewFormRepository(pool),
			responses: repository.NewResponseRepository(pool),
			ping:      pool.Ping,
			close:     pool.Close,
		}, nil
	default:
		return nil, errors.New("unknown STORE_DRIVER " + cfg.StoreDriver)
	}
}

func newUploader(cfg *config.Config) (media.Uploader, error) {
	if cfg.ImageStore == config.ImageStoreCloudinary {
		c := cfg.Cloudinary
		return media.NewCloudinaryUploader(c.CloudName, c.APIKey, c.APISecret, c.Folder)
	}
	return media.NewLocalUploader(cfg.UploadDir, cfg.PublicBaseURL), nil
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
