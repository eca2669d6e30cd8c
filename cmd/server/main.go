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

	"github.com/joho/godotenv"
	"github.com/trueloggs/timesync/internal/config"
	"github.com/trueloggs/timesync/internal/database"
	"github.com/trueloggs/timesync/internal/handlers"
	"github.com/trueloggs/timesync/internal/repositories"
	"github.com/trueloggs/timesync/internal/services"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	if err := database.InitCloudSchema(ctx, postgresPool); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	// Repositories
	accountRepo := repositories.NewPostgresAccountRepository(postgresPool)
	projectRepo := repositories.NewPostgresProjectRepository(postgresPool)
	timeEntryRepo := repositories.NewPostgresTimeEntryRepository(postgresPool)
	invoiceRepo := repositories.NewPostgresInvoiceRepository(postgresPool)
	settingsRepo := repositories.NewPostgresSettingsRepository(postgresPool)
	recentTaskRepo := repositories.NewPostgresRecentTaskRepository(postgresPool)
	statusCache := repositories.NewRedisStatusCache(redisClient, cfg.StatusCacheTTL)

	// Services
	authService := services.NewAuthService(accountRepo, cfg.JWTSecret, cfg.JWTExpiry)
	syncService := services.NewSyncService(projectRepo, timeEntryRepo, invoiceRepo, settingsRepo, recentTaskRepo, statusCache)

	router := handlers.NewRouter(authService, syncService)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
