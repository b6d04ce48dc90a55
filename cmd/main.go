package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/notesnap/notesnap-backend/internal/db"
	"github.com/notesnap/notesnap-backend/internal/handlers"
	"github.com/notesnap/notesnap-backend/internal/middleware"
	"github.com/notesnap/notesnap-backend/internal/observability"
	"github.com/notesnap/notesnap-backend/internal/ocr"
	"github.com/notesnap/notesnap-backend/internal/platform/envutil"
	"github.com/notesnap/notesnap-backend/internal/platform/gcp"
	"github.com/notesnap/notesnap-backend/internal/platform/gemini"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
	"github.com/notesnap/notesnap-backend/internal/repos"
	"github.com/notesnap/notesnap-backend/internal/server"
	"github.com/notesnap/notesnap-backend/internal/services"
)

func main() {
	// Logger
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "notesnap-backend",
		Environment: envutil.Str("APP_ENV", "development"),
		Version:     envutil.Str("APP_VERSION", "dev"),
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOTel(ctx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	userRecordRepo := repos.NewUserRecordRepo(thePG, log)

	// Platform clients
	log.Info("Setting up platform clients from main...")
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Error("Could not init BucketService", "error", err)
		os.Exit(1)
	}
	defer bucketService.Close()
	docOCR, err := gcp.NewDocumentOCR(log)
	if err != nil {
		log.Error("Could not init DocumentOCR", "error", err)
		os.Exit(1)
	}
	defer docOCR.Close()
	imgOCR, err := gcp.NewImageOCR(log)
	if err != nil {
		log.Error("Could not init ImageOCR", "error", err)
		os.Exit(1)
	}
	defer imgOCR.Close()
	geminiClient, err := gemini.New(log)
	if err != nil {
		log.Error("Could not init Gemini client", "error", err)
		os.Exit(1)
	}
	defer geminiClient.Close()

	// Services
	log.Info("Setting up services from main...")
	extractor := ocr.NewExtractor(log, docOCR, imgOCR)
	studySetService := services.NewStudySetService(thePG, log, userRecordRepo)
	userService := services.NewUserService(thePG, log, userRecordRepo)
	generationService := services.NewGenerationService(log, bucketService, extractor, geminiClient, studySetService)

	// Handlers
	log.Info("Setting up handlers from main...")
	generationHandler := handlers.NewGenerationHandler(log, generationService)
	studySetHandler := handlers.NewStudySetHandler(log, studySetService)
	preferencesHandler := handlers.NewPreferencesHandler(log, userService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log)

	// Router
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:     authMiddleware,
		GenerationHandler:  generationHandler,
		StudySetHandler:    studySetHandler,
		PreferencesHandler: preferencesHandler,
	})

	port := envutil.Str("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
