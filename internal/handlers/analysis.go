package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
	"github.com/varuny677/RequirementGath-feature2.1/internal/repos"
	"github.com/varuny677/RequirementGath-feature2.1/internal/services"
	"github.com/varuny677/RequirementGath-feature2.1/internal/temporalx"
	"github.com/varuny677/RequirementGath-feature2.1/internal/temporalx/analysisrun"
)

// AnalysisHandler exposes the control surface for questionnaire analysis
// runs: start, progress, cancel, and stored results.
type AnalysisHandler struct {
	log      *logger.Logger
	temporal temporalsdkclient.Client
	tcfg     temporalx.Config
	catalog  *questionnaire.Catalog
	runs     repos.AnalysisRunRepo
	progress services.ProgressNotifier
}

func NewAnalysisHandler(
	log *logger.Logger,
	temporal temporalsdkclient.Client,
	tcfg temporalx.Config,
	catalog *questionnaire.Catalog,
	runs repos.AnalysisRunRepo,
	progress services.ProgressNotifier,
) *AnalysisHandler {
	return &AnalysisHandler{
		log:      log.With("component", "AnalysisHandler"),
		temporal: temporal,
		tcfg:     tcfg,
		catalog:  catalog,
		runs:     runs,
		progress: progress,
	}
}

// temporalReady rejects workflow-backed requests with 503 when no Temporal
// client was wired in, instead of panicking on a nil interface.
func (h *AnalysisHandler) temporalReady(c *gin.Context) bool {
	if h.temporal == nil {
		RespondError(c, http.StatusServiceUnavailable, "temporal_unavailable", errors.New("temporal client is not configured"))
		return false
	}
	return true
}

type StartAnalysisRequest struct {
	SessionID  string                  `json:"session_id"`
	Company    services.CompanyProfile `json:"company"`
	Config     services.IntakeConfig   `json:"config"`
	SectionIDs []string                `json:"section_ids"`
	MaxWaves   int                     `json:"max_waves"`
}

// POST /api/questionnaire/analyze
func (h *AnalysisHandler) StartAnalysis(c *gin.Context) {
	if !h.temporalReady(c) {
		return
	}
	var req StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Company.CompanyName == "" {
		RespondError(c, http.StatusBadRequest, "missing_company_name", errors.New("company.company_name is required"))
		return
	}
	sectionIDs := req.SectionIDs
	if len(sectionIDs) == 0 {
		sectionIDs = h.catalog.SectionIDs()
	}
	for _, id := range sectionIDs {
		if _, ok := h.catalog.Section(id); !ok {
			RespondError(c, http.StatusBadRequest, "unknown_section", errors.New("unknown section id: "+id))
			return
		}
	}

	runID := uuid.New().String()
	workflowID := "analysis-" + runID
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                h.tcfg.TaskQueue,
		WorkflowExecutionTimeout: 2 * time.Hour,
	}
	input := analysisrun.AnalysisInput{
		RunID:      runID,
		SessionID:  req.SessionID,
		SectionIDs: sectionIDs,
		Company:    req.Company,
		Config:     req.Config,
		MaxWaves:   req.MaxWaves,
	}
	we, err := h.temporal.ExecuteWorkflow(c.Request.Context(), opts, analysisrun.QuestionnaireWorkflowName, input)
	if err != nil {
		h.log.Error("Failed to start analysis workflow", "run_id", runID, "error", err)
		RespondError(c, http.StatusInternalServerError, "workflow_start_failed", err)
		return
	}
	h.log.Info("Started analysis workflow",
		"run_id", runID,
		"workflow_id", we.GetID(),
		"sections", len(sectionIDs))

	RespondOK(c, gin.H{
		"run_id":      runID,
		"workflow_id": we.GetID(),
		"session_id":  req.SessionID,
		"sections":    sectionIDs,
		"status":      "running",
	})
}

// GET /api/questionnaire/progress/:workflow_id
func (h *AnalysisHandler) GetProgress(c *gin.Context) {
	if !h.temporalReady(c) {
		return
	}
	workflowID := c.Param("workflow_id")
	resp, err := h.temporal.QueryWorkflow(c.Request.Context(), workflowID, "", analysisrun.QueryProgress)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			RespondError(c, http.StatusNotFound, "workflow_not_found", err)
			return
		}
		// The query can fail transiently while the workflow is replaying;
		// fall back to the last published snapshot when one exists.
		if h.progress != nil {
			if latest, lerr := h.progress.Latest(c.Request.Context(), runIDFromWorkflowID(workflowID)); lerr == nil && latest != nil {
				RespondOK(c, gin.H{"workflow_id": workflowID, "progress": latest, "source": "notifier"})
				return
			}
		}
		RespondError(c, http.StatusBadRequest, "progress_query_failed", err)
		return
	}
	var progress analysisrun.Progress
	if err := resp.Get(&progress); err != nil {
		RespondError(c, http.StatusInternalServerError, "progress_decode_failed", err)
		return
	}

	RespondOK(c, gin.H{"workflow_id": workflowID, "progress": progress})
}

// POST /api/questionnaire/cancel/:workflow_id
func (h *AnalysisHandler) CancelAnalysis(c *gin.Context) {
	if !h.temporalReady(c) {
		return
	}
	workflowID := c.Param("workflow_id")
	err := h.temporal.SignalWorkflow(c.Request.Context(), workflowID, "", analysisrun.SignalCancel, nil)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			RespondError(c, http.StatusNotFound, "workflow_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "cancel_failed", err)
		return
	}
	h.log.Info("Cancellation requested", "workflow_id", workflowID)

	RespondOK(c, gin.H{"workflow_id": workflowID, "status": "cancelling"})
}

// GET /api/questionnaire/sections
func (h *AnalysisHandler) ListSections(c *gin.Context) {
	type sectionSummary struct {
		ID              string                         `json:"id"`
		Title           string                         `json:"title"`
		QuestionCount   int                            `json:"question_count"`
		RootCount       int                            `json:"root_count"`
		Complexity      questionnaire.Complexity       `json:"complexity"`
		RetrievalBudget int                            `json:"retrieval_budget"`
		Validation      questionnaire.ValidationReport `json:"validation"`
	}
	ids := h.catalog.SectionIDs()
	sections := make([]sectionSummary, 0, len(ids))
	for _, id := range ids {
		sec, ok := h.catalog.Section(id)
		if !ok {
			continue
		}
		report := questionnaire.NewResolver(sec.Questions, h.log).ValidateStructure()
		sections = append(sections, sectionSummary{
			ID:              sec.ID,
			Title:           sec.Title,
			QuestionCount:   len(sec.Questions),
			RootCount:       len(sec.RootIDs),
			Complexity:      sec.Complexity,
			RetrievalBudget: sec.RetrievalBudget,
			Validation:      report,
		})
	}

	RespondOK(c, gin.H{"sections": sections})
}

// GET /api/questionnaire/results/:run_id
func (h *AnalysisHandler) GetResults(c *gin.Context) {
	runID := c.Param("run_id")
	run, err := h.runs.GetByRunID(c.Request.Context(), nil, runID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "results_lookup_failed", err)
		return
	}
	if run == nil {
		RespondError(c, http.StatusNotFound, "run_not_found", errors.New("no analysis run with id "+runID))
		return
	}

	RespondOK(c, gin.H{"run": run})
}

// GET /api/questionnaire/runs?session_id=...
func (h *AnalysisHandler) ListRuns(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		RespondError(c, http.StatusBadRequest, "missing_session_id", errors.New("session_id query parameter is required"))
		return
	}
	runs, err := h.runs.ListBySessionID(c.Request.Context(), nil, sessionID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "runs_lookup_failed", err)
		return
	}

	RespondOK(c, gin.H{"runs": runs})
}

func runIDFromWorkflowID(workflowID string) string {
	const prefix = "analysis-"
	if len(workflowID) > len(prefix) && workflowID[:len(prefix)] == prefix {
		return workflowID[len(prefix):]
	}
	return workflowID
}
