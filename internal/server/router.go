package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/notesnap/notesnap-backend/internal/handlers"
	"github.com/notesnap/notesnap-backend/internal/middleware"
	"github.com/notesnap/notesnap-backend/internal/platform/envutil"
)

type RouterConfig struct {
	AuthMiddleware     *middleware.AuthMiddleware
	GenerationHandler  *handlers.GenerationHandler
	StudySetHandler    *handlers.StudySetHandler
	PreferencesHandler *handlers.PreferencesHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("notesnap-backend"))

	// Cors
	origins := strings.Split(envutil.Str("CORS_ALLOW_ORIGINS", "http://localhost:3000"), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	// Generation
	api.POST("/generate", cfg.GenerationHandler.Generate)
	// Study sets
	api.GET("/studysets", cfg.StudySetHandler.GetHistory)
	api.PATCH("/flashcard-sets/:id", cfg.StudySetHandler.UpdateFlashcardSet)
	api.POST("/flashcard-sets/:id/session", cfg.StudySetHandler.ApplySession)
	api.DELETE("/flashcard-sets/:id", cfg.StudySetHandler.DeleteFlashcardSet)
	api.PATCH("/quizzes/:id", cfg.StudySetHandler.UpdateQuiz)
	api.POST("/quizzes/:id/submit", cfg.StudySetHandler.SubmitQuiz)
	api.DELETE("/quizzes/:id", cfg.StudySetHandler.DeleteQuiz)
	// Preferences
	api.GET("/preferences", cfg.PreferencesHandler.Get)
	api.PUT("/preferences", cfg.PreferencesHandler.Update)

	return router
}
