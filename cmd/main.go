package main

import (
	"fmt"
	"os"

	"github.com/varuny677/RequirementGath-feature2.1/internal/db"
	"github.com/varuny677/RequirementGath-feature2.1/internal/handlers"
	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
	"github.com/varuny677/RequirementGath-feature2.1/internal/repos"
	"github.com/varuny677/RequirementGath-feature2.1/internal/server"
	"github.com/varuny677/RequirementGath-feature2.1/internal/services"
	"github.com/varuny677/RequirementGath-feature2.1/internal/temporalx"
	"github.com/varuny677/RequirementGath-feature2.1/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	analysisRunRepo := repos.NewAnalysisRunRepo(thePG, log)

	// Questionnaire catalog
	questionsPath := utils.GetEnv("QUESTIONS_PATH", "questions.json", log)
	catalog, err := questionnaire.Load(questionsPath)
	if err != nil {
		log.Error("Could not load questionnaire catalog", "path", questionsPath, "error", err)
		os.Exit(1)
	}
	log.Info("Loaded questionnaire catalog", "sections", len(catalog.Sections))

	// Progress notifier (optional: progress polling degrades to workflow queries)
	progressNotifier, err := services.NewRedisProgressNotifier(log)
	if err != nil {
		log.Warn("Could not init progress notifier", "error", err)
		progressNotifier = nil
	}

	// Temporal
	temporalConfig := temporalx.LoadConfig()
	temporalClient, err := temporalx.NewClient(log)
	if err != nil {
		log.Error("Could not init Temporal client", "error", err)
		os.Exit(1)
	}
	// NewClient returns a nil client when TEMPORAL_ADDRESS is unset; the API
	// cannot serve without one.
	if temporalClient == nil {
		log.Error("Temporal not configured: TEMPORAL_ADDRESS is required")
		os.Exit(1)
	}
	defer temporalClient.Close()

	// Handlers
	log.Info("Setting up handlers from main...")
	analysisHandler := handlers.NewAnalysisHandler(log, temporalClient, temporalConfig, catalog, analysisRunRepo, progressNotifier)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AnalysisHandler: analysisHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
