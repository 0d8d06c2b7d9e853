package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/referly/backend/internal/account"
	"github.com/referly/backend/internal/cache"
	"github.com/referly/backend/internal/config"
	"github.com/referly/backend/internal/database"
	"github.com/referly/backend/internal/handlers"
	"github.com/referly/backend/internal/jobs"
	"github.com/referly/backend/internal/referral"
	"github.com/referly/backend/internal/routes"
	"github.com/referly/backend/internal/services/email"
	"github.com/referly/backend/internal/verify"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.LoadConfig()

	// Initialize database
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Initialize stores and response cache
	userStore := database.NewUserStore(db)
	tokenStore := database.NewTokenStore(db)
	responseCache := cache.NewResponseCache(redisClient)

	// Initialize services
	referralService := referral.NewService(userStore, responseCache)

	var verifier account.EmailVerifier
	if cfg.Hunter.APIKey != "" {
		verifier = verify.NewHunterVerifier(cfg.Hunter.APIKey)
	}

	var identity account.IdentityProvider
	if cfg.Google.ClientID != "" {
		identity = verify.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	}

	accountService := account.NewService(
		userStore,
		tokenStore,
		referralService,
		email.NewEmailService(),
		verifier,
		identity,
	)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(accountService)
	referralHandler := handlers.NewReferralHandler(referralService, responseCache)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	// Register routes
	routes.RegisterRoutes(router, authHandler, referralHandler)

	// Start background cleanup of expired reset tokens
	cleanupJob := jobs.NewTokenCleanupJob(tokenStore)
	if err := cleanupJob.Start(); err != nil {
		log.Fatalf("Failed to start token cleanup job: %v", err)
	}

	// Start server
	srv := startServer(router, cfg.Server)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cleanupJob.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exiting")
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, serverConfig config.ServerConfig) *http.Server {
	srv := &http.Server{
		Addr:         ":" + serverConfig.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(serverConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(serverConfig.WriteTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", serverConfig.Port)
	return srv
}
