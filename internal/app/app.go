package app

import (
	"context"
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/healmart/server/internal/module/order"
	"github.com/healmart/server/internal/module/payment"
	sharedcache "github.com/healmart/server/internal/shared/cache"
	"github.com/healmart/server/internal/shared/config"
	"github.com/healmart/server/internal/shared/database"
	"github.com/healmart/server/internal/shared/events"
	"github.com/healmart/server/internal/shared/logger"
	"github.com/healmart/server/internal/shared/metrics"
	"github.com/healmart/server/internal/shared/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App wires the payment platform together: storage, gateway registry,
// reconciliation engine, and the HTTP surface.
type App struct {
	config    *config.Config
	db        *gorm.DB
	redis     redis.UniversalClient
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	metrics   *metrics.Metrics

	eventBus *events.Bus

	registry       *payment.Registry
	paymentService *payment.Service
	paymentHandler *payment.Handler
	webhookHandler *payment.WebhookHandler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    log,
		zapLogger: zapLog,
		metrics:   metrics.New("healmart"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := app.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis is optional; without it terminal statuses are read from the
	// database every time.
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis connection failed, continuing without cache", logger.Err(err))
		} else {
			app.redis = redisClient
		}
	}

	if err := app.initPaymentModule(); err != nil {
		return nil, fmt.Errorf("init payment module: %w", err)
	}

	app.router = app.setupRouter()
	return app, nil
}

func (a *App) migrate() error {
	if err := order.Migrate(a.db); err != nil {
		return err
	}
	return payment.Migrate(a.db)
}

func (a *App) initPaymentModule() error {
	a.eventBus = events.NewBus(a.zapLogger)

	orderStore := order.NewStore(a.db)
	repo := payment.NewRepository(a.db, orderStore)

	registry, err := payment.BuildRegistry(
		context.Background(), repo, a.config.Payment.GatewayTimeout, a.metrics, a.logger)
	if err != nil {
		return err
	}
	a.registry = registry

	engine := payment.NewEngine(repo, a.eventBus, a.metrics, a.logger)
	poller := payment.NewPoller(
		registry, engine, a.config.Payment.PollRetries, a.config.Payment.PollBackoff, a.logger)
	ingestor := payment.NewIngestor(registry, repo, engine, a.metrics, a.logger)

	if a.redis != nil {
		a.eventBus.Register(payment.NewCacheInvalidator(a.redis))
	}

	a.paymentService = payment.NewService(
		repo, orderStore, registry, engine, poller, a.redis, &a.config.Payment, a.logger)
	a.paymentHandler = payment.NewHandler(a.paymentService)
	a.webhookHandler = payment.NewWebhookHandler(ingestor, a.logger)
	return nil
}

func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	operatorAuth := middleware.RequireOperator(a.config.Auth.JWTSecret)
	a.paymentHandler.RegisterRoutes(api, operatorAuth)
	a.webhookHandler.RegisterRoutes(api)

	return r
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases application resources.
func (a *App) Stop() {
	if a.redis != nil {
		if err := sharedcache.Close(a.redis); err != nil {
			a.logger.Warn("close redis", logger.Err(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("close database", logger.Err(err))
		}
	}
	_ = a.zapLogger.Sync()
}
