package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"economy-api/internal/config"
	"economy-api/internal/controller"
	"economy-api/internal/engine"
	"economy-api/internal/external"
	"economy-api/internal/middleware"
	"economy-api/internal/models"
	"economy-api/internal/monitoring"
	"economy-api/internal/repository"
	"economy-api/internal/service"
	"economy-api/internal/storage"
	"economy-api/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)

	ctx := context.Background()
	deps, err := initializeDependencies(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize dependencies: %v", err)
	}
	defer deps.cleanup()

	deps.auctionEngine.Start()

	server := setupHTTPServer(cfg, deps, appLogger)
	go handleShutdown(server, deps, cfg, appLogger)

	appLogger.WithField("port", cfg.Server.Port).Info("Starting economy API server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

type dependencies struct {
	store         storage.Store
	publisher     external.EventPublisher
	ledger        service.CoinLedger
	auctionEngine engine.AuctionEngine
	metrics       monitoring.MetricsService
	healthChecker monitoring.HealthChecker
}

func (d *dependencies) cleanup() {
	if d.auctionEngine != nil {
		d.auctionEngine.Stop()
	}
	if d.publisher != nil {
		d.publisher.Close()
	}
	if d.store != nil {
		d.store.Close()
	}
}

func initializeDependencies(ctx context.Context, cfg *config.Config, appLogger *logrus.Logger) (*dependencies, error) {
	deps := &dependencies{}

	deps.metrics = monitoring.NewPrometheusMetrics()
	deps.healthChecker = monitoring.NewHealthChecker(version)

	store, err := storage.NewRedisStore(ctx, &storage.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConnections,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	deps.store = store
	deps.healthChecker.RegisterCheck("redis", &monitoring.StorageChecker{Store: store})

	if cfg.RabbitMQ.Enabled {
		publisher, err := external.NewEventPublisher(&external.EventPublisherConfig{
			URL:           cfg.RabbitMQ.URL,
			RetryAttempts: cfg.RabbitMQ.RetryAttempts,
			RetryDelay:    cfg.RabbitMQ.RetryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		deps.publisher = publisher
	} else {
		deps.publisher = external.NoopEventPublisher{}
	}

	accountRepo := repository.NewAccountRepository(store)
	auctionRepo := repository.NewAuctionRepository(store, cfg.Economy.TerminalRetention)
	lockManager := repository.NewTradeLockManager(store, appLogger)
	inventory := external.NewInventoryService(store)

	models.SetMinIncrementRate(cfg.Economy.MinIncrementRate)

	deps.ledger = service.NewCoinLedger(accountRepo, deps.metrics, deps.publisher, appLogger)
	deps.auctionEngine = engine.NewAuctionEngine(
		auctionRepo, deps.ledger, lockManager, inventory,
		deps.publisher, deps.metrics, appLogger,
		engine.Config{
			FeeRate:         cfg.Economy.FeeRate,
			DefaultDuration: cfg.Economy.DefaultAuctionTime,
			MaxDuration:     cfg.Economy.MaxAuctionTime,
			SweepInterval:   cfg.Economy.SweepInterval,
		},
	)

	go reportSystemMetrics(deps.metrics, cfg.Monitoring.MetricsInterval)

	return deps, nil
}

func setupHTTPServer(cfg *config.Config, deps *dependencies, appLogger *logrus.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.SetTrustedProxies(cfg.Server.TrustedProxies)

	router.Use(requestid.New())
	router.Use(middleware.Recovery(appLogger))
	router.Use(middleware.RequestLogger(appLogger, deps.metrics, 2*time.Second))
	router.Use(cors.Default())

	if cfg.Monitoring.EnableHealthCheck {
		router.GET(cfg.Monitoring.HealthCheckPath, func(ctx *gin.Context) {
			status := deps.healthChecker.CheckHealth(ctx.Request.Context())
			code := http.StatusOK
			if status.Status == "unhealthy" {
				code = http.StatusServiceUnavailable
			}
			ctx.JSON(code, status)
		})
	}
	if cfg.Monitoring.EnableMetrics {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	controller.NewCoinController(deps.ledger, cfg.Economy.InitialGrant).RegisterRoutes(api)
	controller.NewAuctionController(deps.auctionEngine).RegisterRoutes(api)

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func handleShutdown(server *http.Server, deps *dependencies, cfg *config.Config, appLogger *logrus.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.WithError(err).Error("Forced shutdown")
	}
}

func reportSystemMetrics(metrics monitoring.MetricsService, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		metrics.RecordSystemMetrics()
	}
}
