package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/varuny677/RequirementGath-feature2.1/internal/contextstore"
	"github.com/varuny677/RequirementGath-feature2.1/internal/db"
	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
	"github.com/varuny677/RequirementGath-feature2.1/internal/repos"
	"github.com/varuny677/RequirementGath-feature2.1/internal/services"
	"github.com/varuny677/RequirementGath-feature2.1/internal/temporalx"
	"github.com/varuny677/RequirementGath-feature2.1/internal/temporalx/analysisrun"
	"github.com/varuny677/RequirementGath-feature2.1/internal/temporalx/temporalworker"
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
	analysisRunRepo := repos.NewAnalysisRunRepo(thePG, log)

	// Questionnaire catalog
	questionsPath := utils.GetEnv("QUESTIONS_PATH", "questions.json", log)
	catalog, err := questionnaire.Load(questionsPath)
	if err != nil {
		log.Error("Could not load questionnaire catalog", "path", questionsPath, "error", err)
		os.Exit(1)
	}
	log.Info("Loaded questionnaire catalog", "sections", len(catalog.Sections))

	// Services
	topics, err := services.NewTopicHints(log)
	if err != nil {
		log.Warn("Could not load topic hints, using defaults", "error", err)
	}
	ragClient, err := services.NewRAGClient(log, topics)
	if err != nil {
		log.Warn("Could not init RAG client, predictions will run without retrieval", "error", err)
		ragClient = nil
	}
	geminiClient, err := services.NewGeminiClient(log)
	if err != nil {
		log.Error("Could not init Gemini client", "error", err)
		os.Exit(1)
	}
	progressNotifier, err := services.NewRedisProgressNotifier(log)
	if err != nil {
		log.Warn("Could not init progress notifier", "error", err)
		progressNotifier = nil
	}

	// Run context store
	contexts := contextstore.NewStore(contextstore.DefaultConfig(), log)

	// Temporal
	temporalClient, err := temporalx.NewClient(log)
	if err != nil {
		log.Error("Could not init Temporal client", "error", err)
		os.Exit(1)
	}
	// NewClient returns a nil client when TEMPORAL_ADDRESS is unset; the
	// worker has nothing to poll without one.
	if temporalClient == nil {
		log.Error("Temporal not configured: TEMPORAL_ADDRESS is required")
		os.Exit(1)
	}
	defer temporalClient.Close()

	acts := &analysisrun.Activities{
		Log:       log,
		Catalog:   catalog,
		RAG:       ragClient,
		Predictor: geminiClient,
		Contexts:  contexts,
		Runs:      analysisRunRepo,
		Progress:  progressNotifier,
	}
	runner, err := temporalworker.NewRunner(log, temporalClient, acts)
	if err != nil {
		log.Error("Could not init Temporal worker", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if progressNotifier != nil {
			_ = progressNotifier.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("Worker exited", "error", err)
		os.Exit(1)
	}
	log.Info("Worker shut down")
}
