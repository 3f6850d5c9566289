package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
	"github.com/varuny677/RequirementGath-feature2.1/internal/temporalx"
)

const handlerCatalogJSON = `{"questions": [
	{"id": "SEC1", "type": "section", "title": "NETWORK REQUIREMENTS"},
	{"id": "Q1", "type": "single", "question": "Do you require hybrid connectivity?",
		"options": [{"label": "Yes", "next": ["Q2"]}, {"label": "No"}]},
	{"id": "Q2", "type": "input", "question": "Describe the on-prem network."}
]}`

func newHandlerWithoutTemporal(t *testing.T) *AnalysisHandler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	catalog, err := questionnaire.Parse([]byte(handlerCatalogJSON))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	return NewAnalysisHandler(log, nil, temporalx.Config{TaskQueue: "questionnaire-analysis"}, catalog, nil, nil)
}

func testContext(t *testing.T, method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	return c, rec
}

func assertTemporalUnavailable(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var envelope ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "temporal_unavailable" {
		t.Fatalf("error code = %q, want temporal_unavailable", envelope.Error.Code)
	}
}

// Workflow-backed endpoints must reject cleanly when no Temporal client is
// wired in, not panic on a nil interface.
func TestWorkflowEndpointsRejectMissingTemporalClient(t *testing.T) {
	h := newHandlerWithoutTemporal(t)

	c, rec := testContext(t, http.MethodPost, "/api/questionnaire/analyze",
		`{"session_id": "session-1", "company": {"company_name": "Acme Corp"}}`)
	h.StartAnalysis(c)
	assertTemporalUnavailable(t, rec)

	c, rec = testContext(t, http.MethodGet, "/api/questionnaire/progress/analysis-run-1", "")
	c.Params = gin.Params{{Key: "workflow_id", Value: "analysis-run-1"}}
	h.GetProgress(c)
	assertTemporalUnavailable(t, rec)

	c, rec = testContext(t, http.MethodPost, "/api/questionnaire/cancel/analysis-run-1", "")
	c.Params = gin.Params{{Key: "workflow_id", Value: "analysis-run-1"}}
	h.CancelAnalysis(c)
	assertTemporalUnavailable(t, rec)
}

// Catalog-only endpoints stay up without a Temporal client.
func TestListSectionsWorksWithoutTemporalClient(t *testing.T) {
	h := newHandlerWithoutTemporal(t)

	c, rec := testContext(t, http.MethodGet, "/api/questionnaire/sections", "")
	h.ListSections(c)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var payload struct {
		Sections []struct {
			ID            string `json:"id"`
			QuestionCount int    `json:"question_count"`
		} `json:"sections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode sections: %v", err)
	}
	if len(payload.Sections) != 1 || payload.Sections[0].ID != "SEC1" {
		t.Fatalf("sections = %+v, want SEC1 only", payload.Sections)
	}
	if payload.Sections[0].QuestionCount != 2 {
		t.Fatalf("question count = %d, want 2", payload.Sections[0].QuestionCount)
	}
}
