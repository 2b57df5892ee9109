package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"dryclean/internal/auth"
	"dryclean/internal/catalog"
	catalog_api "dryclean/internal/catalog/api"
	catalog_db "dryclean/internal/catalog/db"
	"dryclean/internal/config"
	"dryclean/internal/database/migrations"
	"dryclean/internal/logger"
	"dryclean/internal/models"
	"dryclean/internal/notify"
	"dryclean/internal/order"
	order_api "dryclean/internal/order/api"
	order_db "dryclean/internal/order/db"
	"dryclean/internal/order/qr"
	rediswrap "dryclean/internal/order/redis"
	"dryclean/internal/payment"
	payment_api "dryclean/internal/payment/api"
	"dryclean/internal/payment/gateway"
	"dryclean/internal/payment/storage"
	"dryclean/internal/pricing"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		if err = sqldb.Ping(); err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Addr))
	return client
}

func buildNotifier(cfg config.KafkaConfig, log *logger.Logger) notify.Notifier {
	if !cfg.Enabled || cfg.MockMode {
		log.Info("KAFKA", "Kafka disabled, notification events will be logged only")
		return &notify.LogNotifier{Logger: log}
	}

	if err := notify.EnsureTopicsExist(cfg.Brokers, []string{cfg.NotificationTopic}, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	log.Info("KAFKA", fmt.Sprintf("Kafka notifier initialized for topic %s", cfg.NotificationTopic))
	return notify.NewKafkaNotifier(cfg.Brokers, cfg.NotificationTopic, cfg.PublishTimeout, log)
}

func buildGateways(cfg *config.Config, log *logger.Logger) gateway.Registry {
	registry := gateway.Registry{}

	if cfg.Stripe.SecretKey != "" {
		stripeGW, err := gateway.NewStripeGateway(cfg.Stripe.SecretKey, log)
		if err != nil {
			log.Fatal("PAYMENT", fmt.Sprintf("Failed to initialize Stripe gateway: %v", err))
		}
		registry[models.MethodStripe] = stripeGW
		log.Info("PAYMENT", "Stripe gateway registered")
	}

	if cfg.Razorpay.KeyID != "" && cfg.Razorpay.KeySecret != "" {
		razorpayGW, err := gateway.NewRazorpayGateway(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret,
			cfg.Razorpay.WebhookSecret, cfg.Razorpay.BaseURL, log)
		if err != nil {
			log.Fatal("PAYMENT", fmt.Sprintf("Failed to initialize Razorpay gateway: %v", err))
		}
		registry[models.MethodRazorpay] = razorpayGW
		log.Info("PAYMENT", "Razorpay gateway registered")
	}

	// Cash on delivery has no gateway leg, it is settled by staff.
	return registry
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting dryclean service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("CONFIG", "JWT_SECRET not set")
	}

	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	migrator := migrations.NewRunner(bunDB, os.Getenv("MIGRATIONS_DIR"), log)
	if err := migrator.MigrateUp(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}
	defer migrator.Close()

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	// Payment storage shares the bun connection pool but speaks raw SQL.
	paymentStore, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to initialize payment storage: %v", err))
	}

	notifier := buildNotifier(cfg.Kafka, log)
	gateways := buildGateways(cfg, log)

	catalogDB := &catalog_db.DB{Bun: bunDB}
	orderDB := &order_db.DB{Bun: bunDB}

	pricingEngine := pricing.NewEngine(catalogDB)
	catalogService := catalog.NewCatalogService(catalogDB, log)
	orderService := order.NewOrderService(
		orderDB,
		rediswrap.NewLock(redisClient, cfg.Redis.OrderLockTTL),
		notifier,
		pricingEngine,
		qr.NewGenerator(cfg.Auth.JWTSecret),
		log,
	)
	paymentService := payment.NewPaymentService(paymentStore, gateways, orderDB, notifier, log)

	var razorpayVerifier payment.RazorpayVerifier
	if gw, ok := gateways[models.MethodRazorpay]; ok {
		razorpayVerifier = gw.(*gateway.RazorpayGateway)
	}

	catalogHandler := &catalog_api.Handler{Catalog: catalogService, Pricing: pricingEngine}
	orderHandler := &order_api.Handler{Orders: orderService}
	paymentHandler := &payment_api.Handler{
		Payments: paymentService,
		Webhooks: &payment.WebhookHandler{
			Payments:            paymentService,
			StripeWebhookSecret: cfg.Stripe.WebhookSecret,
			Razorpay:            razorpayVerifier,
		},
		Razorpay: razorpayVerifier,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		// Gateway callbacks authenticate with signatures, not JWTs.
		paymentHandler.RegisterWebhookRoutes(r)

		// Catalog browsing and estimates are public.
		catalogHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.Auth.JWTSecret))

			orderHandler.RegisterRoutes(r)
			paymentHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireStaff)

				catalogHandler.RegisterAdminRoutes(r)
				orderHandler.RegisterStaffRoutes(r)
				paymentHandler.RegisterStaffRoutes(r)
			})
		})
	})
	log.Info("ROUTER", "Routes registered under /api/v1")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Dryclean service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Dryclean service shutdown complete")
	}

	if closer, ok := notifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Error closing notifier: %v", err))
		}
	}
}
