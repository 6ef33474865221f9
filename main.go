package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gozmanthefirst/ahianeo/config"
	"github.com/gozmanthefirst/ahianeo/controllers"
	"github.com/gozmanthefirst/ahianeo/database"
	"github.com/gozmanthefirst/ahianeo/kafka"
	"github.com/gozmanthefirst/ahianeo/logger"
	"github.com/gozmanthefirst/ahianeo/middleware"
	"github.com/gozmanthefirst/ahianeo/repository"
	"github.com/gozmanthefirst/ahianeo/routes"
	"github.com/gozmanthefirst/ahianeo/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		zapLogger.Info("Redis webhook dedup enabled", zap.String("addr", cfg.RedisAddr))
	}

	var producer kafka.ProducerAPI
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		defer p.Close()
		producer = p
		zapLogger.Info("Kafka order events enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.OrderEventsTopic),
		)
	}

	orderRepo := repository.NewGormOrderRepository(db)
	cartRepo := repository.NewGormCartRepository(db)
	stripeSvc := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	checkoutSvc := services.NewCheckoutService(
		orderRepo, cartRepo, stripeSvc, producer,
		cfg.FrontendURL, cfg.StripePublishableKey, zapLogger,
	)
	orderSvc := services.NewOrderService(orderRepo, zapLogger)
	webhookSvc := services.NewWebhookService(orderRepo, stripeSvc, redisClient, producer, zapLogger)

	orderController := controllers.NewOrderController(checkoutSvc, orderSvc, zapLogger)
	webhookController := controllers.NewWebhookController(webhookSvc, zapLogger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.RequestLogger(zapLogger), middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.Register(r, orderController, webhookController, cfg.JWTSecret)

	zapLogger.Info("Server starting", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		zapLogger.Fatal("Server exited", zap.Error(err))
	}
}
