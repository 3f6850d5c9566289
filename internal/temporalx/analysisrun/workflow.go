package analysisrun

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
	"github.com/varuny677/RequirementGath-feature2.1/internal/services"
)

// QuestionnaireWorkflow walks every section of the run sequentially,
// accumulating predictions and a compressed decision context across
// sections. A section failure contributes zero predictions and the run
// continues; only a failed result save fails the run.
func QuestionnaireWorkflow(ctx workflow.Context, input AnalysisInput) (*RunResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting questionnaire analysis", "run_id", input.RunID, "sections", len(input.SectionIDs))

	if input.RunID == "" {
		return nil, fmt.Errorf("analysisrun: missing run_id")
	}
	if len(input.SectionIDs) == 0 {
		return nil, fmt.Errorf("analysisrun: no sections to process")
	}
	maxWaves := input.MaxWaves
	if maxWaves <= 0 {
		maxWaves = DefaultMaxWaves
	}

	progress := Progress{
		TotalSections: len(input.SectionIDs),
		Status:        "running",
	}
	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (Progress, error) {
		return progress, nil
	}); err != nil {
		return nil, err
	}

	cancelCh := workflow.GetSignalChannel(ctx, SignalCancel)
	cancelled := false
	drainCancel := func() {
		var sig struct{}
		for cancelCh.ReceiveAsync(&sig) {
			cancelled = true
		}
	}

	result := &RunResult{
		RunID:         input.RunID,
		SessionID:     input.SessionID,
		Predictions:   map[string]questionnaire.AnswerValue{},
		Reasoning:     map[string]string{},
		RetrievalMeta: map[string]RetrievalMeta{},
	}
	accumulatedContext := ""

	for i, sectionID := range input.SectionIDs {
		drainCancel()
		if cancelled {
			logger.Info("Analysis cancelled by user", "run_id", input.RunID)
			progress.Status = "cancelled"
			break
		}

		logger.Info("Processing section", "section_id", sectionID, "position", i+1, "total", len(input.SectionIDs))
		progress.CurrentSection = sectionID
		sendProgress(ctx, input.RunID, fmt.Sprintf("Processing %s", sectionID), progress)

		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID:               fmt.Sprintf("%s-section-%s", workflow.GetInfo(ctx).WorkflowExecution.ID, sectionID),
			WorkflowExecutionTimeout: 10 * time.Minute,
		})

		var sectionResult SectionResult
		err := workflow.ExecuteChildWorkflow(childCtx, SectionWorkflowName, SectionInput{
			RunID:           input.RunID,
			SectionID:       sectionID,
			Company:         input.Company,
			Config:          input.Config,
			PreviousContext: accumulatedContext,
			MaxWaves:        maxWaves,
		}).Get(ctx, &sectionResult)
		if err != nil {
			logger.Error("Section failed; continuing with remaining sections", "section_id", sectionID, "error", err)
			progress.SectionsCompleted++
			continue
		}

		for qid, answer := range sectionResult.Predictions {
			result.Predictions[qid] = answer
		}
		for qid, reason := range sectionResult.Reasoning {
			result.Reasoning[qid] = reason
		}
		result.RetrievalMeta[sectionID] = sectionResult.RetrievalMeta
		accumulatedContext = sectionResult.UpdatedContext

		progress.SectionsCompleted++
		progress.PredictionsMade += len(sectionResult.Predictions)
		logger.Info("Section completed", "section_id", sectionID, "predictions", len(sectionResult.Predictions), "waves", sectionResult.WavesExecuted)
	}

	// A signal landing after the final section has no boundary left to act
	// on; a run that processed every section completes.
	if progress.Status != "cancelled" {
		progress.Status = "completed"
	}

	result.Status = progress.Status
	result.TotalPredictions = len(result.Predictions)
	result.SectionsProcessed = progress.SectionsCompleted
	result.FinalContext = accumulatedContext

	saveCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
	})
	if err := workflow.ExecuteActivity(saveCtx, ActivitySaveResults, SaveResultsRequest{
		RunID:             input.RunID,
		SessionID:         input.SessionID,
		WorkflowID:        workflow.GetInfo(ctx).WorkflowExecution.ID,
		CompanyName:       input.Company.CompanyName,
		Status:            result.Status,
		Predictions:       result.Predictions,
		Reasoning:         result.Reasoning,
		RetrievalMeta:     result.RetrievalMeta,
		FinalContext:      result.FinalContext,
		SectionsProcessed: result.SectionsProcessed,
	}).Get(ctx, nil); err != nil {
		return nil, fmt.Errorf("save results: %w", err)
	}

	// The run context is no longer needed once results are durable.
	discardCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
	})
	_ = workflow.ExecuteActivity(discardCtx, ActivityDiscardRunContext, input.RunID).Get(ctx, nil)

	sendProgress(ctx, input.RunID, "Analysis complete", progress)

	logger.Info("Questionnaire analysis finished",
		"run_id", input.RunID,
		"status", result.Status,
		"predictions", result.TotalPredictions,
		"sections", result.SectionsProcessed,
	)
	return result, nil
}

// sendProgress is best-effort: a notifier outage never affects the run.
func sendProgress(ctx workflow.Context, runID, message string, progress Progress) {
	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	err := workflow.ExecuteActivity(actCtx, ActivitySendProgressUpdate, services.ProgressUpdate{
		RunID:   runID,
		Message: message,
		Current: progress.SectionsCompleted,
		Total:   progress.TotalSections,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Progress update failed", "error", err)
	}
}

// SectionWorkflow resolves one section: parse its structure, retrieve
// document chunks once, then predict in waves until no new questions are
// revealed or the wave ceiling is hit.
func SectionWorkflow(ctx workflow.Context, input SectionInput) (*SectionResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting section analysis", "section_id", input.SectionID)

	maxWaves := input.MaxWaves
	if maxWaves <= 0 {
		maxWaves = DefaultMaxWaves
	}

	parseCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
	})
	var structure SectionStructure
	if err := workflow.ExecuteActivity(parseCtx, ActivityParseSectionStructure, input.SectionID).Get(ctx, &structure); err != nil {
		return nil, fmt.Errorf("parse section structure: %w", err)
	}
	logger.Info("Parsed section",
		"section_id", input.SectionID,
		"questions", len(structure.AllQuestions),
		"roots", len(structure.RootQuestions),
		"top_k", structure.RetrievalBudget,
	)

	byID := make(map[string]questionnaire.Question, len(structure.AllQuestions))
	for _, q := range structure.AllQuestions {
		byID[q.ID] = q
	}

	// One retrieval per section; every wave reuses the cached chunks.
	// Retrieval problems degrade to prediction without document context.
	retrieveCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 45 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var retrieval services.RetrievalResult
	retrieveErr := workflow.ExecuteActivity(retrieveCtx, ActivityRetrieveSectionChunks, services.SectionRetrievalRequest{
		SectionTitle:    structure.Title,
		Questions:       structure.AllQuestions,
		Company:         input.Company,
		Config:          input.Config,
		PreviousContext: input.PreviousContext,
		TopK:            structure.RetrievalBudget,
	}).Get(ctx, &retrieval)

	meta := RetrievalMeta{}
	var chunks []services.RAGChunk
	switch {
	case retrieveErr != nil:
		logger.Warn("Chunk retrieval failed; proceeding without document context", "error", retrieveErr)
		meta.Error = retrieveErr.Error()
	case !retrieval.Success:
		logger.Warn("Chunk retrieval unsuccessful; proceeding without document context", "error", retrieval.Error)
		meta.Error = retrieval.Error
	default:
		chunks = retrieval.Chunks
		meta = RetrievalMeta{
			TotalChunks:   len(retrieval.Chunks),
			RetrievalTime: retrieval.RetrievalTime,
			Sources:       retrieval.Sources,
		}
	}

	result := &SectionResult{
		SectionID:     input.SectionID,
		Title:         structure.Title,
		Predictions:   map[string]questionnaire.AnswerValue{},
		Reasoning:     map[string]string{},
		Confidence:    map[string]string{},
		RetrievalMeta: meta,
	}

	predictCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
	})
	resolveCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
	})
	appendCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
	})

	pending := structure.RootQuestions
	for wave := 1; len(pending) > 0 && wave <= maxWaves; wave++ {
		logger.Info("Processing wave", "section_id", input.SectionID, "wave", wave, "questions", len(pending))
		result.WavesExecuted = wave

		var batch services.BatchPrediction
		if err := workflow.ExecuteActivity(predictCtx, ActivityPredictQuestionBatch, services.BatchPredictionRequest{
			Questions:           pending,
			Chunks:              chunks,
			Company:             input.Company,
			Config:              input.Config,
			PreviousContext:     input.PreviousContext,
			PreviousPredictions: result.Predictions,
		}).Get(ctx, &batch); err != nil {
			return nil, fmt.Errorf("predict wave %d: %w", wave, err)
		}

		for qid, answer := range batch.Predictions {
			result.Predictions[qid] = answer
		}
		for qid, reason := range batch.Reasoning {
			result.Reasoning[qid] = reason
		}
		for qid, conf := range batch.Confidence {
			result.Confidence[qid] = conf
		}

		if err := workflow.ExecuteActivity(appendCtx, ActivityAppendWaveContext, AppendWaveRequest{
			RunID:       input.RunID,
			SectionID:   input.SectionID,
			Predictions: batch.Predictions,
			Reasoning:   batch.Reasoning,
			Confidence:  batch.Confidence,
		}).Get(ctx, nil); err != nil {
			return nil, fmt.Errorf("append wave context: %w", err)
		}

		var revealedIDs []string
		if err := workflow.ExecuteActivity(resolveCtx, ActivityResolveNextQuestions, ResolveRequest{
			SectionID:   input.SectionID,
			Predictions: batch.Predictions,
		}).Get(ctx, &revealedIDs); err != nil {
			return nil, fmt.Errorf("resolve next questions: %w", err)
		}

		// Already-answered ids stay answered; ids outside the section are
		// skipped. revealedIDs arrive sorted, so this is deterministic.
		pending = pending[:0]
		for _, qid := range revealedIDs {
			if _, done := result.Predictions[qid]; done {
				continue
			}
			q, ok := byID[qid]
			if !ok {
				continue
			}
			pending = append(pending, q)
		}
		if len(pending) == 0 {
			logger.Info("No new questions revealed", "section_id", input.SectionID, "waves", wave)
		}
	}
	if len(pending) > 0 {
		logger.Warn("Wave ceiling reached; section may have unanswered questions",
			"section_id", input.SectionID,
			"max_waves", maxWaves,
			"pending", len(pending),
		)
	}

	finalizeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
	})
	if err := workflow.ExecuteActivity(finalizeCtx, ActivityFinalizeSectionContext, FinalizeSectionRequest{
		RunID:     input.RunID,
		SectionID: input.SectionID,
	}).Get(ctx, &result.UpdatedContext); err != nil {
		return nil, fmt.Errorf("finalize section context: %w", err)
	}

	logger.Info("Section analysis finished",
		"section_id", input.SectionID,
		"predictions", len(result.Predictions),
		"waves", result.WavesExecuted,
	)
	return result, nil
}
