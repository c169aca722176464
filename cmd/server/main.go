package main

import (
	"context" // context package is needed for Redis operations
	"log"     // log package is needed for logging

	"studycollab/internal/api"        // Custom package for API handlers
	"studycollab/internal/config"     // Custom package for configuration
	"studycollab/internal/middleware" // Custom package for middleware
	"studycollab/internal/mpesa"      // M-Pesa gateway client
	"studycollab/internal/payment"    // Payment core components

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Setup Data Source Name (DSN) and connect to the database
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Wire the payment core: gateway client, store, entitlements, engine,
	// poller and initiation service
	gateway := mpesa.NewClient(
		cfg.MpesaBaseURL,           // Gateway base URL
		cfg.MpesaShortcode,         // Merchant shortcode
		cfg.MpesaPasskey,           // Shared passkey
		cfg.MpesaConsumerKey,       // OAuth consumer key
		cfg.MpesaConsumerSecret,    // OAuth consumer secret
		cfg.MpesaCallbackURL,       // Webhook URL
		cfg.MpesaHTTPTimeout,       // Gateway call timeout
		cfg.MpesaTokenSafetyMargin, // Token expiry safety margin
	)
	store := payment.NewStore(db)                                                     // Transaction store
	entitlements := payment.NewEntitlements(db)                                       // Prompt quota applier
	engine := payment.NewEngine(store, gateway, entitlements)                         // Reconciliation engine
	poller := payment.NewPoller(store, engine, cfg.PollInterval, cfg.PollMaxAttempts) // Bounded status poller
	service := payment.NewService(store, gateway, cfg.MpesaMinAmount)                 // Push initiation service

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Auth routes
	r.POST("/user", api.RegisterHandler(db))            // Registration endpoint
	r.GET("/user", api.LoginHandler(db, cfg.JWTSecret)) // Login endpoint

	// Provider-facing webhook; unauthenticated, always acknowledges
	r.POST("/mpesa/callback", api.MpesaCallbackHandler(engine, redisClient))

	// Payment routes (protected by JWT)
	paymentGroup := r.Group("/payments")
	paymentGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	paymentGroup.GET("/plans", api.PlansHandler())                                                    // Plan catalog endpoint
	paymentGroup.POST("/initiate", api.InitiatePaymentHandler(service))                               // Push initiation endpoint
	paymentGroup.GET("/:checkout_id/status", api.PaymentStatusHandler(store, redisClient))            // Status endpoint
	paymentGroup.POST("/:checkout_id/confirm", api.ConfirmPaymentHandler(store, poller, redisClient)) // Bounded poll endpoint

	// AI quota routes (protected by JWT)
	aiGroup := r.Group("/ai")
	aiGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	aiGroup.GET("/quota", api.QuotaHandler(db, redisClient))    // Quota endpoint
	aiGroup.POST("/use", api.UsePromptHandler(db, redisClient)) // Prompt consumption endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.AdminOnlyMiddleware(db))
	adminGroup.GET("/payments", api.ListPaymentsHandler(store, redisClient))       // Payment listing endpoint
	adminGroup.GET("/payments/stats", api.PaymentStatsHandler(store, redisClient)) // Revenue stats endpoint

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
