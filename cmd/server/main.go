package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stridecoach/coach-app/internal/api"
	"stridecoach/coach-app/internal/config"
	"stridecoach/coach-app/internal/generator"
	"stridecoach/coach-app/internal/logging"
	"stridecoach/coach-app/internal/notification"
	"stridecoach/coach-app/internal/repository/mongo"
	"stridecoach/coach-app/internal/scheduler"
	"stridecoach/coach-app/internal/service"
	"stridecoach/coach-app/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @title Coach App API
// @version 1.0
// @description Weekly training plan delivery and progression service.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	logger := logging.NewLogger(cfg.Logging)
	defer logger.Sync() //nolint:errcheck
	logger.Info("starting coach-app server")

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		logger.Fatal("could not connect to MongoDB", zap.Error(err))
	}
	defer func() {
		logger.Info("disconnecting MongoDB")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			logger.Error("failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	logger.Info("database connection established", zap.String("db", cfg.Database.Name))

	// --- Ensure Indexes ---
	go func() { // Run index creation concurrently/in background
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureUserIndexes(ctx, appDB.Collection("users"))
		mongo.EnsureScheduleIndexes(ctx, appDB.Collection("delivery_schedules"))
		mongo.EnsurePlanIndexes(ctx, appDB.Collection("weekly_plans"))
		logger.Info("index creation process completed")
	}()

	// --- Initialize Plan Archive ---
	var archive storage.PlanArchive = storage.NoopArchive{}
	if cfg.Archive.Enabled {
		archive, err = storage.NewS3Archive(storage.S3Config{
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			BucketName:      cfg.Archive.BucketName,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize S3 plan archive", zap.Error(err))
		}
		logger.Info("S3 plan archive enabled", zap.String("bucket", cfg.Archive.BucketName))
	}

	// --- Initialize Generator ---
	planGen := generator.Disabled()
	if cfg.Generator.Enabled {
		planGen = generator.NewOpenAIGenerator(generator.Config{
			APIKey:  cfg.Generator.APIKey,
			BaseURL: cfg.Generator.BaseURL,
			Model:   cfg.Generator.Model,
			Timeout: cfg.Generator.Timeout,
		}, logger)
		logger.Info("external plan generator enabled", zap.String("model", cfg.Generator.Model))
	} else {
		logger.Info("external plan generator disabled, deliveries use fallback synthesis")
	}

	// --- Initialize Repositories ---
	userRepo := mongo.NewMongoUserRepository(appDB)
	scheduleRepo := mongo.NewMongoScheduleRepository(appDB)
	planRepo := mongo.NewMongoPlanRepository(appDB)

	// --- Initialize Services ---
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	pipeline := service.NewGenerationPipeline(planGen, logger)
	engine := service.NewDeliveryEngine(
		scheduleRepo,
		planRepo,
		pipeline,
		notification.NewLogNotifier(logger),
		archive,
		logger,
		service.EngineConfig{
			RetryAttempts:     cfg.Delivery.RetryAttempts,
			RetryBackoff:      cfg.Delivery.RetryBackoff,
			OverdueWindowFrom: cfg.Delivery.OverdueWindowFrom,
			OverdueWindowTo:   cfg.Delivery.OverdueWindowTo,
			OverdueBatchLimit: cfg.Delivery.OverdueBatchLimit,
			OverdueItemDelay:  cfg.Delivery.OverdueItemDelay,
		},
	)
	scheduleService := service.NewScheduleService(scheduleRepo, planRepo, engine, logger)

	// --- Background Queue & Scheduler ---
	queue := service.NewDispatchQueue(engine, cfg.Delivery.QueueWorkers, cfg.Delivery.QueueBuffer, logger)
	engine.SetBackgroundQueue(queue)
	queue.Start()
	defer queue.Stop()

	cron := scheduler.NewScheduler(engine, cfg.Delivery, logger)
	if err := cron.Start(); err != nil {
		logger.Fatal("failed to start delivery scheduler", zap.Error(err))
	}
	defer cron.Stop()

	// --- Initialize Gin Engine ---
	// gin.SetMode(gin.ReleaseMode) // Uncomment for production
	router := gin.Default() // Includes Logger and Recovery middleware

	// --- Setup Routes ---
	api.SetupRoutes(router, cfg.JWT.Secret, authService, engine, scheduleService)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("server starting", zap.String("address", cfg.Server.Address))

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("ListenAndServe error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
