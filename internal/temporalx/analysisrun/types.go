// Package analysisrun holds the questionnaire analysis workflows: a parent
// run that walks sections sequentially and a child workflow that resolves
// each section wave by wave.
package analysisrun

import (
	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
	"github.com/varuny677/RequirementGath-feature2.1/internal/services"
)

const (
	QuestionnaireWorkflowName = "questionnaire_analysis"
	SectionWorkflowName       = "section_analysis"

	SignalCancel  = "cancel_analysis"
	QueryProgress = "current_progress"

	ActivityParseSectionStructure  = "parse_section_structure"
	ActivityRetrieveSectionChunks  = "retrieve_section_chunks"
	ActivityPredictQuestionBatch   = "predict_question_batch"
	ActivityResolveNextQuestions   = "resolve_next_questions"
	ActivityAppendWaveContext      = "append_wave_context"
	ActivityFinalizeSectionContext = "finalize_section_context"
	ActivitySendProgressUpdate     = "send_progress_update"
	ActivitySaveResults            = "save_results"
	ActivityDiscardRunContext      = "discard_run_context"

	// DefaultMaxWaves bounds wave iterations per section so a cyclic reveal
	// graph cannot spin forever.
	DefaultMaxWaves = 5
)

// AnalysisInput starts a questionnaire analysis run.
type AnalysisInput struct {
	RunID      string                  `json:"run_id"`
	SessionID  string                  `json:"session_id"`
	SectionIDs []string                `json:"section_ids"`
	Company    services.CompanyProfile `json:"company"`
	Config     services.IntakeConfig   `json:"config"`
	MaxWaves   int                     `json:"max_waves,omitempty"`
}

// SectionInput starts the child workflow for one section.
type SectionInput struct {
	RunID           string                  `json:"run_id"`
	SectionID       string                  `json:"section_id"`
	Company         services.CompanyProfile `json:"company"`
	Config          services.IntakeConfig   `json:"config"`
	PreviousContext string                  `json:"previous_context"`
	MaxWaves        int                     `json:"max_waves"`
}

// SectionStructure is the parsed shape of one section.
type SectionStructure struct {
	SectionID       string                    `json:"section_id"`
	Title           string                    `json:"title"`
	AllQuestions    []questionnaire.Question  `json:"all_questions"`
	RootQuestions   []questionnaire.Question  `json:"root_questions"`
	Complexity      questionnaire.Complexity  `json:"complexity"`
	RetrievalBudget int                       `json:"retrieval_budget"`
}

// ResolveRequest asks which questions a wave's answers reveal.
type ResolveRequest struct {
	SectionID   string                               `json:"section_id"`
	Predictions map[string]questionnaire.AnswerValue `json:"predictions"`
}

// AppendWaveRequest records one wave's decisions into the run context.
type AppendWaveRequest struct {
	RunID       string                               `json:"run_id"`
	SectionID   string                               `json:"section_id"`
	Predictions map[string]questionnaire.AnswerValue `json:"predictions"`
	Reasoning   map[string]string                    `json:"reasoning"`
	Confidence  map[string]string                    `json:"confidence"`
}

// FinalizeSectionRequest closes out a section's context and returns the
// re-rendered run-wide context string.
type FinalizeSectionRequest struct {
	RunID     string `json:"run_id"`
	SectionID string `json:"section_id"`
}

// RetrievalMeta summarizes one section's chunk retrieval.
type RetrievalMeta struct {
	TotalChunks   int      `json:"total_chunks"`
	RetrievalTime float64  `json:"retrieval_time"`
	Sources       []string `json:"sources,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// SectionResult is the child workflow's output.
type SectionResult struct {
	SectionID      string                               `json:"section_id"`
	Title          string                               `json:"title"`
	Predictions    map[string]questionnaire.AnswerValue `json:"predictions"`
	Reasoning      map[string]string                    `json:"reasoning"`
	Confidence     map[string]string                    `json:"confidence"`
	RetrievalMeta  RetrievalMeta                        `json:"retrieval_meta"`
	UpdatedContext string                               `json:"updated_context"`
	WavesExecuted  int                                  `json:"waves_executed"`
}

// Progress is the parent workflow's queryable state.
type Progress struct {
	SectionsCompleted int    `json:"sections_completed"`
	TotalSections     int    `json:"total_sections"`
	PredictionsMade   int    `json:"predictions_made"`
	CurrentSection    string `json:"current_section"`
	Status            string `json:"status"`
}

// SaveResultsRequest persists the run's final output.
type SaveResultsRequest struct {
	RunID             string                               `json:"run_id"`
	SessionID         string                               `json:"session_id"`
	WorkflowID        string                               `json:"workflow_id"`
	CompanyName       string                               `json:"company_name"`
	Status            string                               `json:"status"`
	Predictions       map[string]questionnaire.AnswerValue `json:"predictions"`
	Reasoning         map[string]string                    `json:"reasoning"`
	RetrievalMeta     map[string]RetrievalMeta             `json:"retrieval_meta"`
	FinalContext      string                               `json:"final_context"`
	SectionsProcessed int                                  `json:"sections_processed"`
}

// RunResult is the parent workflow's final output.
type RunResult struct {
	RunID             string                               `json:"run_id"`
	SessionID         string                               `json:"session_id"`
	Status            string                               `json:"status"`
	TotalPredictions  int                                  `json:"total_predictions"`
	SectionsProcessed int                                  `json:"sections_processed"`
	Predictions       map[string]questionnaire.AnswerValue `json:"predictions"`
	Reasoning         map[string]string                    `json:"reasoning"`
	RetrievalMeta     map[string]RetrievalMeta             `json:"retrieval_meta"`
	FinalContext      string                               `json:"final_context"`
}
