package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/consultbook/consultbook/internal/config"
	"github.com/consultbook/consultbook/internal/domain/availability"
	"github.com/consultbook/consultbook/internal/domain/booking"
	"github.com/consultbook/consultbook/internal/platform/auth"
	"github.com/consultbook/consultbook/internal/platform/cache"
	"github.com/consultbook/consultbook/internal/platform/db"
	"github.com/consultbook/consultbook/internal/platform/events"
	"github.com/consultbook/consultbook/internal/platform/identity"
	"github.com/consultbook/consultbook/internal/platform/middleware"
	"github.com/consultbook/consultbook/internal/platform/videocall"
	"github.com/consultbook/consultbook/internal/platform/webhook"
)

const version = "0.1.0"

// services bundles everything the router exposes.
type services struct {
	availability *availability.Service
	bookings     *booking.Service
	users        identity.Provider
	pipeline     *webhook.Pipeline
}

// publisher is the event sink shared by the booking service and the pipeline.
type publisher interface {
	Publish(ctx context.Context, routingKey string, v any) error
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a bearer token are treated as the dev admin")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var checks []db.Check
	var availabilityOpts []availability.Option
	var queue videocall.Enqueuer

	if cfg.RedisURL != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		redisCache := cache.NewRedisCache(rdb, cfg.AvailabilityCacheTTL)
		availabilityOpts = append(availabilityOpts, availability.WithCache(redisCache))
		checks = append(checks, db.Check{Name: "redis", Run: redisCache.Ping})

		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url for queue: %w", err)
		}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		queue = client
		logger.Info().Msg("connected to redis")
	} else if cfg.AvailabilityCacheSize > 0 {
		availabilityOpts = append(availabilityOpts,
			availability.WithCache(cache.NewLRUCache(cfg.AvailabilityCacheSize, cfg.AvailabilityCacheTTL)))
	}

	var pub publisher = events.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		pub = amqpPub
		checks = append(checks, db.Check{Name: "rabbitmq", Run: amqpPub.Ping})
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("connected to rabbitmq")
	}

	svc, dispatcher := buildServices(cfg, logger, pool, pub, queue, availabilityOpts...)
	if dispatcher == nil {
		logger.Warn().Msg("VIDEO_API_URL not set: video calls will not be scheduled")
	}

	e := newRouter(cfg, logger, svc)
	e.GET("/health/db", db.HealthHandler(pool, checks...))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildServices wires the domain services. The returned dispatcher is nil when
// no video provider is configured.
func buildServices(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, pub publisher, queue videocall.Enqueuer, availabilityOpts ...availability.Option) (services, *videocall.Dispatcher) {
	users := identity.NewProviderPG(pool)
	directory := identity.NewDirectory(users)

	bookings := booking.NewService(
		booking.NewRepoPG(pool),
		booking.NewOfferingRepoPG(pool),
		booking.NewLedgerPG(pool),
		booking.NewTxRunnerPG(pool),
		pub,
		logger.With().Str("component", "booking").Logger(),
	)

	availabilityOpts = append(availabilityOpts,
		availability.WithSlotMinutes(cfg.SlotMinutes),
		availability.WithWindowDays(cfg.AvailableDatesWindowDays),
		availability.WithMaxWindowDays(cfg.AvailableDatesMaxDays),
		availability.WithLogger(logger.With().Str("component", "availability").Logger()),
	)
	avail := availability.NewService(availability.NewRepoPG(pool), bookingLookup{bookings: bookings}, directory, availabilityOpts...)

	pipelineOpts := []webhook.PipelineOption{
		webhook.WithSecret(cfg.PaymentWebhookSecret),
		webhook.WithVerification(cfg.PaymentWebhookVerify),
		webhook.WithEventPublisher(pub),
		webhook.WithMaxCallSeconds(cfg.VideoMaxCallSeconds),
		webhook.WithPipelineLogger(logger.With().Str("component", "payment_webhook").Logger()),
	}

	var dispatcher *videocall.Dispatcher
	if cfg.VideoAPIURL != "" {
		dispatcher = newDispatcher(cfg, logger, bookings, queue)
		pipelineOpts = append(pipelineOpts, webhook.WithCallDispatcher(dispatcher))
	}

	return services{
		availability: avail,
		bookings:     bookings,
		users:        users,
		pipeline:     webhook.NewPipeline(directory, bookings, pipelineOpts...),
	}, dispatcher
}

func newDispatcher(cfg *config.Config, logger zerolog.Logger, bookings *booking.Service, queue videocall.Enqueuer) *videocall.Dispatcher {
	client := videocall.NewClient(cfg.VideoAPIURL, cfg.VideoAPIKey, videocall.WithTimeout(cfg.VideoAPITimeout))
	return videocall.NewDispatcher(client, bookings, queue, cfg.VideoRetryMax,
		logger.With().Str("component", "videocall").Logger())
}

func newRouter(cfg *config.Config, logger zerolog.Logger, svc services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	timeout := middleware.RequestTimeout(cfg.RequestTimeout)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	// The payment provider authenticates with the event token, not a bearer token.
	webhook.NewHandler(svc.pipeline).RegisterRoutes(e, timeout)

	apiV1 := e.Group("/api/v1", timeout, authMiddleware(cfg))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	availability.NewHandler(svc.availability).RegisterRoutes(apiV1)
	booking.NewHandler(svc.bookings).RegisterRoutes(apiV1)
	identity.NewHandler(svc.users).RegisterRoutes(apiV1)

	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(jwtCfg)
	}
	return auth.JWTMiddleware(jwtCfg)
}

// runWorker processes queued video call retries until SIGINT or SIGTERM.
func runWorker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required to run the worker")
	}
	if cfg.VideoAPIURL == "" {
		return fmt.Errorf("VIDEO_API_URL is required to run the worker")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	bookings := booking.NewService(
		booking.NewRepoPG(pool),
		booking.NewOfferingRepoPG(pool),
		booking.NewLedgerPG(pool),
		booking.NewTxRunnerPG(pool),
		events.NewLogPublisher(logger),
		logger.With().Str("component", "booking").Logger(),
	)
	// Retries run inside the worker, so the dispatcher here never re-enqueues.
	dispatcher := newDispatcher(cfg, logger, bookings, nil)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{"default": 1},
		Logger:      asynqLogger{logger: logger.With().Str("component", "worker").Logger()},
	})

	mux := asynq.NewServeMux()
	dispatcher.Register(mux)

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("starting worker")
	return srv.Run(mux)
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

var _ asynq.Logger = asynqLogger{}

// bookingLookup feeds the availability service from the booking service.
type bookingLookup struct {
	bookings interface {
		BookedOn(ctx context.Context, consultantID uuid.UUID, date string) ([]*booking.Booking, error)
	}
}

func (l bookingLookup) ListBookedTimes(ctx context.Context, consultantID uuid.UUID, date string) ([]availability.BookedTime, error) {
	list, err := l.bookings.BookedOn(ctx, consultantID, date)
	if err != nil {
		return nil, err
	}
	out := make([]availability.BookedTime, 0, len(list))
	for _, b := range list {
		// Failed and refunded bookings release the slot as well as cancelled ones.
		out = append(out, availability.BookedTime{Time: b.Time, Cancelled: b.Status.FreesSlot()})
	}
	return out, nil
}
