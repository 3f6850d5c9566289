package analysisrun

import (
	"context"
	"testing"
	"time"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
	"gorm.io/gorm"

	"github.com/varuny677/RequirementGath-feature2.1/internal/contextstore"
	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
	"github.com/varuny677/RequirementGath-feature2.1/internal/services"
	"github.com/varuny677/RequirementGath-feature2.1/internal/types"
)

// Two sections: SEC1 has three roots with Q1 revealing two more questions,
// SEC2 contains a reveal cycle between Q7 and Q8 reachable from the root Q6.
const workflowCatalogJSON = `{"questions": [
	{"id": "SEC1", "type": "section", "title": "NETWORK REQUIREMENTS"},
	{"id": "Q1", "type": "single", "question": "Do you require hybrid connectivity?",
		"options": [{"label": "Yes", "next": ["Q4", "Q5"]}, {"label": "No"}]},
	{"id": "Q2", "type": "single", "question": "How many VPCs do you expect?",
		"options": [{"label": "1-5"}, {"label": "6-20"}]},
	{"id": "Q3", "type": "input", "question": "Which regions are in scope?"},
	{"id": "Q4", "type": "input", "question": "Describe the on-prem network."},
	{"id": "Q5", "type": "input", "question": "What bandwidth does the link need?"},
	{"id": "SEC2", "type": "section", "title": "DISASTER RECOVERY"},
	{"id": "Q6", "type": "single", "question": "Is disaster recovery required?",
		"options": [{"label": "Yes", "next": ["Q7"]}, {"label": "No"}]},
	{"id": "Q7", "type": "input", "question": "What is the target RTO?", "next": ["Q8"]},
	{"id": "Q8", "type": "input", "question": "What is the target RPO?", "next": ["Q7"]}
]}`

type stubRAG struct {
	result *services.RetrievalResult
}

func (s *stubRAG) CheckHealth(ctx context.Context) bool { return true }
func (s *stubRAG) RetrieveChunks(ctx context.Context, query string, topK int) *services.RetrievalResult {
	return s.result
}
func (s *stubRAG) RetrieveForSection(ctx context.Context, req services.SectionRetrievalRequest) *services.RetrievalResult {
	return s.result
}

// stubPredictor answers every question with its first option (or free text)
// and fails the whole batch when it contains failQuestionID.
type stubPredictor struct {
	failQuestionID string
}

func (p *stubPredictor) PredictBatch(ctx context.Context, req services.BatchPredictionRequest) (*services.BatchPrediction, error) {
	out := &services.BatchPrediction{
		Predictions: map[string]questionnaire.AnswerValue{},
		Reasoning:   map[string]string{},
		Confidence:  map[string]string{},
	}
	for _, q := range req.Questions {
		if p.failQuestionID != "" && q.ID == p.failQuestionID {
			return nil, sdktemporal.NewNonRetryableApplicationError("model rejected the request", "PredictionFailed", nil)
		}
		if len(q.Options) > 0 {
			out.Predictions[q.ID] = questionnaire.SingleAnswer(q.Options[0].Label)
		} else {
			out.Predictions[q.ID] = questionnaire.FreeTextAnswer("stub answer")
		}
		out.Reasoning[q.ID] = "stub reasoning"
		out.Confidence[q.ID] = "high"
	}
	return out, nil
}

type memRunRepo struct {
	runs map[string]*types.AnalysisRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: map[string]*types.AnalysisRun{}}
}

func (r *memRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.AnalysisRun) ([]*types.AnalysisRun, error) {
	for _, run := range runs {
		r.runs[run.RunID] = run
	}
	return runs, nil
}

func (r *memRunRepo) GetByRunID(ctx context.Context, tx *gorm.DB, runID string) (*types.AnalysisRun, error) {
	return r.runs[runID], nil
}

func (r *memRunRepo) ListBySessionID(ctx context.Context, tx *gorm.DB, sessionID string) ([]*types.AnalysisRun, error) {
	var out []*types.AnalysisRun
	for _, run := range r.runs {
		if run.SessionID == sessionID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *memRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, runID string, updates map[string]interface{}) error {
	run, ok := r.runs[runID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if status, ok := updates["status"].(string); ok {
		run.Status = status
	}
	return nil
}

type memNotifier struct {
	updates []services.ProgressUpdate
}

func (n *memNotifier) Publish(ctx context.Context, update services.ProgressUpdate) error {
	n.updates = append(n.updates, update)
	return nil
}

func (n *memNotifier) Latest(ctx context.Context, runID string) (*services.ProgressUpdate, error) {
	for i := len(n.updates) - 1; i >= 0; i-- {
		if n.updates[i].RunID == runID {
			return &n.updates[i], nil
		}
	}
	return nil, nil
}

func (n *memNotifier) Close() error { return nil }

func newTestActivities(t *testing.T) (*Activities, *memRunRepo, *memNotifier) {
	t.Helper()
	catalog, err := questionnaire.Parse([]byte(workflowCatalogJSON))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	repo := newMemRunRepo()
	notifier := &memNotifier{}
	acts := &Activities{
		Catalog: catalog,
		RAG: &stubRAG{result: &services.RetrievalResult{
			Success:       true,
			Chunks:        []services.RAGChunk{{Content: "landing zone guidance", Source: "lz-guide.pdf", Similarity: 0.9}},
			Sources:       []string{"lz-guide.pdf"},
			TotalChunks:   1,
			RetrievalTime: 0.2,
		}},
		Predictor: &stubPredictor{},
		Contexts:  contextstore.NewStore(contextstore.DefaultConfig(), nil),
		Runs:      repo,
		Progress:  notifier,
	}
	return acts, repo, notifier
}

func newTestEnv(t *testing.T, acts *Activities) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(QuestionnaireWorkflow, workflow.RegisterOptions{Name: QuestionnaireWorkflowName})
	env.RegisterWorkflowWithOptions(SectionWorkflow, workflow.RegisterOptions{Name: SectionWorkflowName})
	env.RegisterActivityWithOptions(acts.ParseSectionStructure, activity.RegisterOptions{Name: ActivityParseSectionStructure})
	env.RegisterActivityWithOptions(acts.RetrieveSectionChunks, activity.RegisterOptions{Name: ActivityRetrieveSectionChunks})
	env.RegisterActivityWithOptions(acts.PredictQuestionBatch, activity.RegisterOptions{Name: ActivityPredictQuestionBatch})
	env.RegisterActivityWithOptions(acts.ResolveNextQuestions, activity.RegisterOptions{Name: ActivityResolveNextQuestions})
	env.RegisterActivityWithOptions(acts.AppendWaveContext, activity.RegisterOptions{Name: ActivityAppendWaveContext})
	env.RegisterActivityWithOptions(acts.FinalizeSectionContext, activity.RegisterOptions{Name: ActivityFinalizeSectionContext})
	env.RegisterActivityWithOptions(acts.SendProgressUpdate, activity.RegisterOptions{Name: ActivitySendProgressUpdate})
	env.RegisterActivityWithOptions(acts.SaveResults, activity.RegisterOptions{Name: ActivitySaveResults})
	env.RegisterActivityWithOptions(acts.DiscardRunContext, activity.RegisterOptions{Name: ActivityDiscardRunContext})
	return env
}

func TestSectionWorkflowWaveProgression(t *testing.T) {
	acts, _, _ := newTestActivities(t)
	env := newTestEnv(t, acts)

	env.ExecuteWorkflow(SectionWorkflowName, SectionInput{
		RunID:     "run-1",
		SectionID: "SEC1",
		Company:   services.CompanyProfile{CompanyName: "Acme Corp"},
	})
	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var result SectionResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	// Wave 1 answers the three roots, wave 2 the two questions Q1 reveals,
	// and a third wave is never scheduled because nothing new appears.
	if result.WavesExecuted != 2 {
		t.Fatalf("WavesExecuted = %d, want 2", result.WavesExecuted)
	}
	if len(result.Predictions) != 5 {
		t.Fatalf("predictions = %d, want 5", len(result.Predictions))
	}
	for _, qid := range []string{"Q1", "Q2", "Q3", "Q4", "Q5"} {
		if _, ok := result.Predictions[qid]; !ok {
			t.Errorf("missing prediction for %s", qid)
		}
	}
	if result.Predictions["Q1"].String() != "Yes" {
		t.Errorf("Q1 answer = %q, want Yes", result.Predictions["Q1"].String())
	}
	if result.RetrievalMeta.TotalChunks != 1 {
		t.Errorf("TotalChunks = %d, want 1", result.RetrievalMeta.TotalChunks)
	}
	if result.UpdatedContext == "" {
		t.Error("expected a non-empty updated context")
	}
}

func TestSectionWorkflowCycleTerminates(t *testing.T) {
	acts, _, _ := newTestActivities(t)
	env := newTestEnv(t, acts)

	env.ExecuteWorkflow(SectionWorkflowName, SectionInput{
		RunID:     "run-1",
		SectionID: "SEC2",
	})
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var result SectionResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	// Q6 -> Q7 -> Q8 -> Q7 stops because Q7 is already answered.
	if result.WavesExecuted != 3 {
		t.Fatalf("WavesExecuted = %d, want 3", result.WavesExecuted)
	}
	if len(result.Predictions) != 3 {
		t.Fatalf("predictions = %d, want 3", len(result.Predictions))
	}
}

func TestSectionWorkflowWaveCeiling(t *testing.T) {
	acts, _, _ := newTestActivities(t)
	env := newTestEnv(t, acts)

	env.ExecuteWorkflow(SectionWorkflowName, SectionInput{
		RunID:     "run-1",
		SectionID: "SEC2",
		MaxWaves:  1,
	})
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var result SectionResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.WavesExecuted != 1 {
		t.Fatalf("WavesExecuted = %d, want 1", result.WavesExecuted)
	}
	if len(result.Predictions) != 1 {
		t.Fatalf("predictions = %d, want only the root wave", len(result.Predictions))
	}
}

func TestSectionWorkflowRetrievalDegrades(t *testing.T) {
	acts, _, _ := newTestActivities(t)
	acts.RAG = &stubRAG{result: &services.RetrievalResult{Success: false, Error: "rag service unavailable"}}
	env := newTestEnv(t, acts)

	env.ExecuteWorkflow(SectionWorkflowName, SectionInput{
		RunID:     "run-1",
		SectionID: "SEC1",
	})
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var result SectionResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.RetrievalMeta.Error != "rag service unavailable" {
		t.Errorf("meta error = %q, want the retrieval failure recorded", result.RetrievalMeta.Error)
	}
	if result.RetrievalMeta.TotalChunks != 0 {
		t.Errorf("TotalChunks = %d, want 0", result.RetrievalMeta.TotalChunks)
	}
	if len(result.Predictions) != 5 {
		t.Fatalf("predictions = %d, want 5 despite retrieval failure", len(result.Predictions))
	}
}

func TestQuestionnaireWorkflowRunsAllSections(t *testing.T) {
	acts, repo, notifier := newTestActivities(t)
	env := newTestEnv(t, acts)

	env.ExecuteWorkflow(QuestionnaireWorkflowName, AnalysisInput{
		RunID:      "run-1",
		SessionID:  "session-1",
		SectionIDs: []string{"SEC1", "SEC2"},
		Company:    services.CompanyProfile{CompanyName: "Acme Corp"},
	})
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var result RunResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("status = %q, want completed", result.Status)
	}
	if result.TotalPredictions != 8 {
		t.Fatalf("TotalPredictions = %d, want 8", result.TotalPredictions)
	}
	if result.SectionsProcessed != 2 {
		t.Fatalf("SectionsProcessed = %d, want 2", result.SectionsProcessed)
	}
	for _, sectionID := range []string{"SEC1", "SEC2"} {
		if _, ok := result.RetrievalMeta[sectionID]; !ok {
			t.Errorf("missing retrieval meta for %s", sectionID)
		}
	}
	if result.FinalContext == "" {
		t.Error("expected accumulated context after both sections")
	}

	saved := repo.runs["run-1"]
	if saved == nil {
		t.Fatal("run was not persisted")
	}
	if saved.Status != "completed" {
		t.Errorf("persisted status = %q, want completed", saved.Status)
	}
	if saved.TotalPredictions != 8 {
		t.Errorf("persisted TotalPredictions = %d, want 8", saved.TotalPredictions)
	}

	if len(notifier.updates) == 0 {
		t.Fatal("expected progress updates")
	}
	last := notifier.updates[len(notifier.updates)-1]
	if last.Message != "Analysis complete" {
		t.Errorf("last progress message = %q", last.Message)
	}

	resp, err := env.QueryWorkflow(QueryProgress)
	if err != nil {
		t.Fatalf("query progress: %v", err)
	}
	var progress Progress
	if err := resp.Get(&progress); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if progress.Status != "completed" || progress.SectionsCompleted != 2 {
		t.Errorf("progress = %+v, want completed with 2 sections", progress)
	}
}

func TestQuestionnaireWorkflowToleratesSectionFailure(t *testing.T) {
	acts, repo, _ := newTestActivities(t)
	acts.Predictor = &stubPredictor{failQuestionID: "Q1"}
	env := newTestEnv(t, acts)

	env.ExecuteWorkflow(QuestionnaireWorkflowName, AnalysisInput{
		RunID:      "run-1",
		SessionID:  "session-1",
		SectionIDs: []string{"SEC1", "SEC2"},
	})
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var result RunResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("status = %q, want completed despite SEC1 failing", result.Status)
	}
	if result.SectionsProcessed != 2 {
		t.Fatalf("SectionsProcessed = %d, want 2", result.SectionsProcessed)
	}
	if result.TotalPredictions != 3 {
		t.Fatalf("TotalPredictions = %d, want only SEC2's 3", result.TotalPredictions)
	}
	if _, ok := result.RetrievalMeta["SEC1"]; ok {
		t.Error("failed section should not contribute retrieval meta")
	}
	if repo.runs["run-1"] == nil {
		t.Fatal("run was not persisted")
	}
}

func TestQuestionnaireWorkflowCancelSignal(t *testing.T) {
	acts, repo, _ := newTestActivities(t)
	env := newTestEnv(t, acts)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancel, nil)
	}, time.Millisecond)

	env.ExecuteWorkflow(QuestionnaireWorkflowName, AnalysisInput{
		RunID:      "run-1",
		SessionID:  "session-1",
		SectionIDs: []string{"SEC1", "SEC2"},
	})
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var result RunResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.Status != "cancelled" {
		t.Fatalf("status = %q, want cancelled", result.Status)
	}
	if result.SectionsProcessed != 1 {
		t.Fatalf("SectionsProcessed = %d, want 1 (cancel lands at the section boundary)", result.SectionsProcessed)
	}
	if result.TotalPredictions != 5 {
		t.Fatalf("TotalPredictions = %d, want SEC1's 5", result.TotalPredictions)
	}

	saved := repo.runs["run-1"]
	if saved == nil {
		t.Fatal("cancelled run should still be persisted")
	}
	if saved.Status != "cancelled" {
		t.Errorf("persisted status = %q, want cancelled", saved.Status)
	}
}

func TestQuestionnaireWorkflowLateCancelCompletes(t *testing.T) {
	acts, repo, _ := newTestActivities(t)
	env := newTestEnv(t, acts)

	// The signal lands while the only section is in flight; with no section
	// boundary left to act on, the run still completes.
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancel, nil)
	}, time.Millisecond)

	env.ExecuteWorkflow(QuestionnaireWorkflowName, AnalysisInput{
		RunID:      "run-1",
		SessionID:  "session-1",
		SectionIDs: []string{"SEC1"},
	})
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var result RunResult
	if err := env.GetWorkflowResult(&result); err != nil {
		t.Fatalf("get result: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("status = %q, want completed for a run that processed every section", result.Status)
	}
	if result.SectionsProcessed != 1 {
		t.Fatalf("SectionsProcessed = %d, want 1", result.SectionsProcessed)
	}
	if result.TotalPredictions != 5 {
		t.Fatalf("TotalPredictions = %d, want 5", result.TotalPredictions)
	}
	saved := repo.runs["run-1"]
	if saved == nil || saved.Status != "completed" {
		t.Fatalf("persisted run = %+v, want status completed", saved)
	}
}

func TestQuestionnaireWorkflowRejectsEmptyInput(t *testing.T) {
	acts, _, _ := newTestActivities(t)

	env := newTestEnv(t, acts)
	env.ExecuteWorkflow(QuestionnaireWorkflowName, AnalysisInput{RunID: "run-1"})
	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("expected an error for a run with no sections")
	}

	env = newTestEnv(t, acts)
	env.ExecuteWorkflow(QuestionnaireWorkflowName, AnalysisInput{SectionIDs: []string{"SEC1"}})
	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("expected an error for a run with no run id")
	}
}
