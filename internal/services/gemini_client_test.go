package services

import (
	"strings"
	"testing"

	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
)

func batchQuestions() []questionnaire.Question {
	return []questionnaire.Question{
		{
			ID:   "CL_Q1",
			Text: "Which compliance standards apply?",
			Type: questionnaire.TypeMulti,
			Options: []questionnaire.Option{
				{Label: "PCI-DSS"}, {Label: "HIPAA"}, {Label: "GDPR"},
			},
		},
		{
			ID:   "CL_Q2",
			Text: "What is your audit retention period?",
			Type: questionnaire.TypeInput,
		},
	}
}

func TestBuildBatchPredictionPrompt(t *testing.T) {
	req := BatchPredictionRequest{
		Questions: batchQuestions(),
		Chunks:    []RAGChunk{{Content: "retention guidance", Source: "audit.pdf"}},
		Company: CompanyProfile{
			CompanyName: "Acme Corp",
			Sector:      "Healthcare",
			Compliance:  []string{"HIPAA"},
		},
		Config: IntakeConfig{
			CloudProvider: "AWS",
			Environments:  []string{"prod"},
		},
		PreviousContext: "prior sections summary",
		PreviousPredictions: map[string]questionnaire.AnswerValue{
			"BS_Q1": questionnaire.SingleAnswer("6-20"),
		},
	}

	prompt := buildBatchPredictionPrompt(req)
	for _, want := range []string{
		"expert AWS cloud architect",
		"- Name: Acme Corp",
		"- Industry Compliance: HIPAA",
		"- Environments: prod",
		"prior sections summary",
		"- BS_Q1: 6-20",
		"[Document 1: audit.pdf]\nretention guidance",
		"1. [CL_Q1] Which compliance standards apply?",
		"Type: multi",
		"2. [CL_Q2] What is your audit retention period?",
		"Return ONLY valid JSON",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildBatchPredictionPromptCapsOptions(t *testing.T) {
	var options []questionnaire.Option
	for _, label := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		options = append(options, questionnaire.Option{Label: label})
	}
	req := BatchPredictionRequest{
		Questions: []questionnaire.Question{
			{ID: "Q1", Text: "Pick one", Type: questionnaire.TypeSingle, Options: options},
		},
	}

	prompt := buildBatchPredictionPrompt(req)
	if !strings.Contains(prompt, "... and 2 more options") {
		t.Errorf("options not capped:\n%s", prompt)
	}
	if strings.Contains(prompt, "- k") {
		t.Errorf("capped option leaked into prompt")
	}
}

func TestParseBatchPredictionResponse(t *testing.T) {
	text := `{
		"predictions": {"CL_Q1": ["PCI-DSS", "HIPAA"], "CL_Q2": "7 years"},
		"reasoning": {"CL_Q1": "healthcare payments", "CL_Q2": "regulatory minimum"},
		"confidence": {"CL_Q1": "high", "CL_Q2": "medium"}
	}`

	result := ParseBatchPredictionResponse(text, batchQuestions())
	if result.ParseError != "" {
		t.Fatalf("unexpected parse error: %s", result.ParseError)
	}
	multi := result.Predictions["CL_Q1"]
	if multi.Kind != questionnaire.AnswerMulti || len(multi.Items) != 2 {
		t.Fatalf("CL_Q1 = %+v", multi)
	}
	if result.Predictions["CL_Q2"].Text != "7 years" {
		t.Fatalf("CL_Q2 = %+v", result.Predictions["CL_Q2"])
	}
	if result.Confidence["CL_Q1"] != "high" {
		t.Errorf("confidence = %q", result.Confidence["CL_Q1"])
	}
}

func TestParseBatchPredictionResponseStripsFences(t *testing.T) {
	text := "```json\n{\"predictions\": {\"CL_Q1\": \"GDPR\", \"CL_Q2\": \"5 years\"}}\n```"

	result := ParseBatchPredictionResponse(text, batchQuestions())
	if result.ParseError != "" {
		t.Fatalf("unexpected parse error: %s", result.ParseError)
	}
	if result.Predictions["CL_Q1"].Text != "GDPR" {
		t.Fatalf("CL_Q1 = %+v", result.Predictions["CL_Q1"])
	}
	// Confidence omitted by model defaults to medium.
	if result.Confidence["CL_Q1"] != "medium" {
		t.Errorf("confidence = %q, want medium", result.Confidence["CL_Q1"])
	}
}

func TestParseBatchPredictionResponseFillsGaps(t *testing.T) {
	text := `{"predictions": {"CL_Q1": "PCI-DSS"}}`

	result := ParseBatchPredictionResponse(text, batchQuestions())
	got, ok := result.Predictions["CL_Q2"]
	if !ok {
		t.Fatal("missing question must get a fallback prediction")
	}
	if got.Kind != questionnaire.AnswerFreeText || got.Text != "" {
		t.Fatalf("fallback for input question = %+v", got)
	}
	if result.Confidence["CL_Q2"] != "low" {
		t.Errorf("fallback confidence = %q, want low", result.Confidence["CL_Q2"])
	}
}

func TestParseBatchPredictionResponseInvalidJSON(t *testing.T) {
	result := ParseBatchPredictionResponse("I cannot answer that.", batchQuestions())
	if result.ParseError == "" {
		t.Fatal("expected a parse error")
	}
	// Every question gets a fallback: first option label or empty text.
	if result.Predictions["CL_Q1"].Text != "PCI-DSS" {
		t.Fatalf("CL_Q1 fallback = %+v", result.Predictions["CL_Q1"])
	}
	if result.Predictions["CL_Q2"].Text != "" {
		t.Fatalf("CL_Q2 fallback = %+v", result.Predictions["CL_Q2"])
	}
	for _, qid := range []string{"CL_Q1", "CL_Q2"} {
		if result.Confidence[qid] != "low" {
			t.Errorf("confidence[%s] = %q, want low", qid, result.Confidence[qid])
		}
	}
}
