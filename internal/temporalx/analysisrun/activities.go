package analysisrun

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/varuny677/RequirementGath-feature2.1/internal/contextstore"
	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
	"github.com/varuny677/RequirementGath-feature2.1/internal/repos"
	"github.com/varuny677/RequirementGath-feature2.1/internal/services"
	"github.com/varuny677/RequirementGath-feature2.1/internal/types"
)

// Activities carries the worker-side dependencies for questionnaire
// analysis. Nil optional collaborators (RAG, Progress) degrade rather than
// fail.
type Activities struct {
	Log       *logger.Logger
	Catalog   *questionnaire.Catalog
	RAG       services.RAGClient
	Predictor services.Predictor
	Contexts  *contextstore.Store
	Runs      repos.AnalysisRunRepo
	Progress  services.ProgressNotifier
}

func (a *Activities) ParseSectionStructure(ctx context.Context, sectionID string) (*SectionStructure, error) {
	if a == nil || a.Catalog == nil {
		return nil, fmt.Errorf("analysisrun: catalog not configured")
	}
	sec, ok := a.Catalog.Section(sectionID)
	if !ok {
		return nil, fmt.Errorf("analysisrun: unknown section %q", sectionID)
	}

	structure := &SectionStructure{
		SectionID:       sec.ID,
		Title:           sec.Title,
		AllQuestions:    sec.Questions,
		RootQuestions:   sec.RootQuestions(),
		Complexity:      sec.Complexity,
		RetrievalBudget: sec.RetrievalBudget,
	}
	if a.Log != nil {
		a.Log.Info("Parsed section structure",
			"section_id", sec.ID,
			"questions", len(structure.AllQuestions),
			"roots", len(structure.RootQuestions),
			"complexity", sec.Complexity,
		)
	}
	return structure, nil
}

// RetrieveSectionChunks never returns an error for retrieval problems; the
// result's Success flag tells the workflow to degrade.
func (a *Activities) RetrieveSectionChunks(ctx context.Context, req services.SectionRetrievalRequest) (*services.RetrievalResult, error) {
	if a == nil || a.RAG == nil {
		return &services.RetrievalResult{Success: false, Error: "retrieval not configured"}, nil
	}
	return a.RAG.RetrieveForSection(ctx, req), nil
}

func (a *Activities) PredictQuestionBatch(ctx context.Context, req services.BatchPredictionRequest) (*services.BatchPrediction, error) {
	if a == nil || a.Predictor == nil {
		return nil, fmt.Errorf("analysisrun: predictor not configured")
	}
	return a.Predictor.PredictBatch(ctx, req)
}

func (a *Activities) ResolveNextQuestions(ctx context.Context, req ResolveRequest) ([]string, error) {
	if a == nil || a.Catalog == nil {
		return nil, fmt.Errorf("analysisrun: catalog not configured")
	}
	sec, ok := a.Catalog.Section(req.SectionID)
	if !ok {
		return nil, fmt.Errorf("analysisrun: unknown section %q", req.SectionID)
	}
	resolver := questionnaire.NewResolver(sec.Questions, a.Log)
	return resolver.ProcessWave(req.Predictions), nil
}

func (a *Activities) AppendWaveContext(ctx context.Context, req AppendWaveRequest) error {
	if a == nil || a.Contexts == nil {
		return fmt.Errorf("analysisrun: context store not configured")
	}

	var questionText func(string) string
	if a.Catalog != nil {
		if sec, ok := a.Catalog.Section(req.SectionID); ok {
			questionText = func(qid string) string {
				if q, found := sec.QuestionByID(qid); found {
					return q.Text
				}
				return ""
			}
		}
	}

	records := make([]contextstore.DecisionRecord, 0, len(req.Predictions))
	for _, qid := range sortedKeys(req.Predictions) {
		record := contextstore.DecisionRecord{
			QuestionID: qid,
			Answer:     req.Predictions[qid],
			Reasoning:  req.Reasoning[qid],
			Confidence: req.Confidence[qid],
			SectionID:  req.SectionID,
			Timestamp:  time.Now().UTC(),
		}
		if questionText != nil {
			record.QuestionText = questionText(qid)
		}
		records = append(records, record)
	}

	a.Contexts.GetOrCreate(req.RunID).AppendWave(req.SectionID, records)
	return nil
}

func (a *Activities) FinalizeSectionContext(ctx context.Context, req FinalizeSectionRequest) (string, error) {
	if a == nil || a.Contexts == nil {
		return "", fmt.Errorf("analysisrun: context store not configured")
	}
	rendered := a.Contexts.GetOrCreate(req.RunID).FinalizeSection()
	if a.Log != nil {
		a.Log.Info("Finalized section context", "run_id", req.RunID, "section_id", req.SectionID, "chars", len(rendered))
	}
	return rendered, nil
}

// SendProgressUpdate is best-effort: notifier errors are logged, never
// returned.
func (a *Activities) SendProgressUpdate(ctx context.Context, update services.ProgressUpdate) error {
	if a == nil || a.Progress == nil {
		return nil
	}
	if err := a.Progress.Publish(ctx, update); err != nil {
		if a.Log != nil {
			a.Log.Warn("Progress publish failed", "run_id", update.RunID, "error", err)
		}
	}
	return nil
}

func (a *Activities) SaveResults(ctx context.Context, req SaveResultsRequest) error {
	if a == nil || a.Runs == nil {
		return fmt.Errorf("analysisrun: run repo not configured")
	}

	predictions, err := json.Marshal(req.Predictions)
	if err != nil {
		return fmt.Errorf("marshal predictions: %w", err)
	}
	reasoning, err := json.Marshal(req.Reasoning)
	if err != nil {
		return fmt.Errorf("marshal reasoning: %w", err)
	}
	retrievalMeta, err := json.Marshal(req.RetrievalMeta)
	if err != nil {
		return fmt.Errorf("marshal retrieval meta: %w", err)
	}

	now := time.Now().UTC()
	existing, err := a.Runs.GetByRunID(ctx, nil, req.RunID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	if existing == nil {
		_, err = a.Runs.Create(ctx, nil, []*types.AnalysisRun{{
			ID:                uuid.New(),
			RunID:             req.RunID,
			SessionID:         req.SessionID,
			WorkflowID:        req.WorkflowID,
			Status:            req.Status,
			CompanyName:       req.CompanyName,
			Predictions:       datatypes.JSON(predictions),
			Reasoning:         datatypes.JSON(reasoning),
			RetrievalMeta:     datatypes.JSON(retrievalMeta),
			FinalContext:      req.FinalContext,
			TotalPredictions:  len(req.Predictions),
			SectionsProcessed: req.SectionsProcessed,
			CompletedAt:       &now,
		}})
		if err != nil {
			return fmt.Errorf("create run: %w", err)
		}
	} else {
		if err := a.Runs.UpdateFields(ctx, nil, req.RunID, map[string]interface{}{
			"status":             req.Status,
			"predictions":        datatypes.JSON(predictions),
			"reasoning":          datatypes.JSON(reasoning),
			"retrieval_meta":     datatypes.JSON(retrievalMeta),
			"final_context":      req.FinalContext,
			"total_predictions":  len(req.Predictions),
			"sections_processed": req.SectionsProcessed,
			"completed_at":       now,
		}); err != nil {
			return fmt.Errorf("update run: %w", err)
		}
	}

	if a.Log != nil {
		a.Log.Info("Saved analysis results",
			"run_id", req.RunID,
			"status", req.Status,
			"predictions", len(req.Predictions),
			"sections", req.SectionsProcessed,
		)
	}
	return nil
}

func (a *Activities) DiscardRunContext(ctx context.Context, runID string) error {
	if a == nil || a.Contexts == nil {
		return nil
	}
	if a.Log != nil {
		stats := a.Contexts.GetOrCreate(runID).Stats()
		a.Log.Info("Discarding run context",
			"run_id", runID,
			"decisions", stats.TotalDecisions,
			"high_confidence", stats.HighConfidence,
			"low_confidence", stats.LowConfidence,
		)
	}
	a.Contexts.Discard(runID)
	return nil
}

func sortedKeys(m map[string]questionnaire.AnswerValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
