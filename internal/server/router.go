package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/medcase/medcase-backend/internal/handlers"
	"github.com/medcase/medcase-backend/internal/middleware"
	"github.com/medcase/medcase-backend/internal/pkg/logger"
	"github.com/medcase/medcase-backend/internal/utils"
)

type RouterConfig struct {
	Log             *logger.Logger
	StudyHandler    *handlers.StudyHandler
	SRSHandler      *handlers.SRSHandler
	TaxonomyHandler *handlers.TaxonomyHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", cfg.Log)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(origins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", middleware.LearnerHeader},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("medcase-backend"))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)

	// Learner-scoped
	api := router.Group("/api")
	api.Use(middleware.RequireLearner(cfg.Log))
	{
		// Study sessions
		api.GET("/study/session", cfg.StudyHandler.GetSession)
		api.POST("/study/session", cfg.StudyHandler.CreateSession)
		api.POST("/study/session/advance", cfg.StudyHandler.AdvanceSession)
		api.POST("/study/session/abandon", cfg.StudyHandler.AbandonSession)
		api.GET("/study/review-list", cfg.StudyHandler.ReviewList)
		api.GET("/study/availability-map", cfg.StudyHandler.AvailabilityMap)
		api.POST("/study/stats", cfg.StudyHandler.Stats)
		// Scheduling
		api.POST("/srs/attempts", cfg.SRSHandler.RecordAttempt)
		api.GET("/cases/:id/progress", cfg.SRSHandler.CaseProgress)
		api.POST("/study/schedule", cfg.SRSHandler.Schedule)
		api.PATCH("/study/notes", cfg.SRSHandler.UpdateNotes)
		// Taxonomy
		api.GET("/taxonomy/tree", cfg.TaxonomyHandler.Tree)
		api.POST("/taxonomy/paths", cfg.TaxonomyHandler.UpsertPath)
		api.GET("/taxonomy/tags/:slug/path", cfg.TaxonomyHandler.TagPath)
	}

	return router
}
