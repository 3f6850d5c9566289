package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/varuny677/RequirementGath-feature2.1/internal/handlers"
)

type RouterConfig struct {
	AnalysisHandler *handlers.AnalysisHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		questionnaire := api.Group("/questionnaire")
		questionnaire.POST("/analyze", cfg.AnalysisHandler.StartAnalysis)
		questionnaire.GET("/progress/:workflow_id", cfg.AnalysisHandler.GetProgress)
		questionnaire.POST("/cancel/:workflow_id", cfg.AnalysisHandler.CancelAnalysis)
		questionnaire.GET("/sections", cfg.AnalysisHandler.ListSections)
		questionnaire.GET("/results/:run_id", cfg.AnalysisHandler.GetResults)
		questionnaire.GET("/runs", cfg.AnalysisHandler.ListRuns)
	}

	return router
}
