package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/LinhDev610/LilaShop/pkg/database"
	"github.com/LinhDev610/LilaShop/pkg/health"
	pkgkafka "github.com/LinhDev610/LilaShop/pkg/kafka"
	"github.com/LinhDev610/LilaShop/pkg/middleware"
	"github.com/LinhDev610/LilaShop/pkg/tracing"

	"github.com/LinhDev610/LilaShop/internal/config"
	"github.com/LinhDev610/LilaShop/internal/event"
	handler "github.com/LinhDev610/LilaShop/internal/handler/http"
	"github.com/LinhDev610/LilaShop/internal/media"
	"github.com/LinhDev610/LilaShop/internal/repository/postgres"
	"github.com/LinhDev610/LilaShop/internal/service"
)

// App wires together all dependencies and runs the promotion service.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	pool            *pgxpool.Pool
	redisClient     *redis.Client
	producer        *pkgkafka.Producer
	consumer        *pkgkafka.Consumer
	sweeper         *service.Sweeper
	httpServer      *http.Server
	tracingShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Tracing (no-op when disabled).
	tracingShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:  "promotion-service",
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   1.0,
		Enabled:      cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	database.RegisterPoolMetrics(pool, "promotion")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	// Redis backs the consumer's event deduplication.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("port", cfg.RedisPort),
	)

	// Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Campaign image store.
	mediaStore, err := media.NewStore(cfg.MediaDir, logger)
	if err != nil {
		return nil, fmt.Errorf("init media store: %w", err)
	}

	// Build the dependency graph.
	now := time.Now

	promotionRepo := postgres.NewPromotionRepository(pool)
	voucherRepo := postgres.NewVoucherRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	categoryRepo := postgres.NewCategoryRepository(pool)
	archiveRepo := postgres.NewArchiveRepository(pool)

	eventProducer := event.NewProducer(producer, logger)
	scopeResolver := service.NewScopeResolver(categoryRepo, productRepo)
	conflictDetector := service.NewConflictDetector(promotionRepo, productRepo, categoryRepo)
	cascader := service.NewPricingCascader(promotionRepo, productRepo, categoryRepo, logger, now)

	// One lock map for the services and the sweeper, so a sweep flip and a
	// manual transition of the same campaign serialize.
	campaignLocks := service.NewKeyLock()

	promotionService := service.NewPromotionService(
		promotionRepo, scopeResolver, conflictDetector, cascader,
		mediaStore, eventProducer, campaignLocks, logger, now,
	)
	voucherService := service.NewVoucherService(voucherRepo, scopeResolver, mediaStore, eventProducer, campaignLocks, logger, now)

	sweeper := service.NewSweeper(
		promotionRepo, voucherRepo, archiveRepo, cascader,
		eventProducer, campaignLocks, logger, cfg.SweepInterval, now,
	)

	// Catalog event consumer with Redis-backed deduplication.
	idempotencyStore := pkgkafka.NewRedisIdempotencyStore(redisClient, "promotion", 24*time.Hour)
	consumer := event.NewProductConsumer(cfg.KafkaBrokers, idempotencyStore, cascader, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	// HTTP router.
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.CORSAllowedOrigins
	corsConfig.Environment = cfg.Environment

	router := handler.NewRouter(promotionService, voucherService, healthHandler, corsConfig, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		pool:            pool,
		redisClient:     redisClient,
		producer:        producer,
		consumer:        consumer,
		sweeper:         sweeper,
		httpServer:      httpServer,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Run starts the HTTP server, the sweeper, and the catalog event consumer. It
// blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go a.sweeper.Run(ctx)

	go func() {
		if err := a.consumer.Start(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("kafka consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.consumer.Close(); err != nil {
		a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := a.redisClient.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	a.pool.Close()

	if err := a.tracingShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
