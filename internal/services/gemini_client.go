package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
)

// BatchPredictionRequest asks the model to answer every question in a wave
// using cached section chunks.
type BatchPredictionRequest struct {
	Questions           []questionnaire.Question
	Chunks              []RAGChunk
	Company             CompanyProfile
	Config              IntakeConfig
	PreviousContext     string
	PreviousPredictions map[string]questionnaire.AnswerValue
}

// BatchPrediction maps question ids to answers, reasoning, and confidence.
// Every requested question id is present; fallback answers carry low
// confidence.
type BatchPrediction struct {
	Predictions map[string]questionnaire.AnswerValue `json:"predictions"`
	Reasoning   map[string]string                    `json:"reasoning"`
	Confidence  map[string]string                    `json:"confidence"`
	ParseError  string                               `json:"parse_error,omitempty"`
}

type Predictor interface {
	PredictBatch(ctx context.Context, req BatchPredictionRequest) (*BatchPrediction, error)
}

type geminiClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	maxRetries int
}

func NewGeminiClient(log *logger.Logger) (Predictor, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY")
	}

	baseURL := os.Getenv("GEMINI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.0-flash"
	}

	timeoutSec := 120
	if v := os.Getenv("GEMINI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 3
	if v := os.Getenv("GEMINI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &geminiClient{
		log:        log.With("service", "GeminiClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *geminiClient) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &serviceHTTPError{Service: "gemini", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *geminiClient) generate(ctx context.Context, prompt string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.3,
			TopP:            0.95,
			MaxOutputTokens: 4096,
		},
	}

	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, req)
		if err == nil {
			var out geminiResponse
			if uErr := json.Unmarshal(raw, &out); uErr != nil {
				return "", fmt.Errorf("gemini decode error: %w; raw=%s", uErr, string(raw))
			}
			var text strings.Builder
			for _, cand := range out.Candidates {
				for _, part := range cand.Content.Parts {
					text.WriteString(part.Text)
				}
			}
			if text.Len() == 0 {
				return "", fmt.Errorf("no candidate text in gemini response")
			}
			return text.String(), nil
		}

		if !isRetryableErr(err) {
			return "", err
		}
		if attempt == c.maxRetries {
			return "", err
		}

		sleepFor := backoff
		if resp != nil {
			ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
			if ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("Gemini request retrying",
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return "", fmt.Errorf("unreachable retry loop")
}

func (c *geminiClient) PredictBatch(ctx context.Context, req BatchPredictionRequest) (*BatchPrediction, error) {
	if len(req.Questions) == 0 {
		return &BatchPrediction{
			Predictions: map[string]questionnaire.AnswerValue{},
			Reasoning:   map[string]string{},
			Confidence:  map[string]string{},
		}, nil
	}

	c.log.Info("Predicting question batch", "questions", len(req.Questions))

	prompt := buildBatchPredictionPrompt(req)
	text, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	result := ParseBatchPredictionResponse(text, req.Questions)
	if result.ParseError != "" {
		c.log.Warn("Falling back to default predictions", "error", result.ParseError)
	}
	c.log.Info("Parsed predictions", "count", len(result.Predictions))
	return result, nil
}

const (
	promptOptionLimit  = 10
	promptContextLimit = 2000
)

func buildBatchPredictionPrompt(req BatchPredictionRequest) string {
	cloud := req.Config.Cloud()

	companyParts := []string{
		"- Name: " + orUnknown(req.Company.CompanyName),
		"- Sector: " + orUnknown(req.Company.Sector),
		"- Cloud Provider: " + cloud,
	}
	if req.Company.SubSector != "" {
		companyParts = append(companyParts, "- Sub-Sector: "+req.Company.SubSector)
	}
	if req.Company.Description != "" {
		companyParts = append(companyParts, "- Description: "+req.Company.Description)
	}
	if req.Company.CountryOfOrigin != "" {
		companyParts = append(companyParts, "- Country of Origin: "+req.Company.CountryOfOrigin)
	}
	if req.Company.Size != "" {
		companyParts = append(companyParts, "- Size: "+req.Company.Size)
	}
	if req.Company.Revenue != "" {
		companyParts = append(companyParts, "- Revenue: "+req.Company.Revenue)
	}
	if req.Company.GlobalPresence != "" {
		companyParts = append(companyParts, "- Global Presence: "+req.Company.GlobalPresence)
	}
	if len(req.Company.OperatingCountries) > 0 {
		countries := req.Company.OperatingCountries
		suffix := ""
		if len(countries) > 10 {
			suffix = fmt.Sprintf(" (and %d more)", len(countries)-10)
			countries = countries[:10]
		}
		companyParts = append(companyParts, "- Operating Countries: "+strings.Join(countries, ", ")+suffix)
	}
	if len(req.Company.Compliance) > 0 {
		companyParts = append(companyParts, "- Industry Compliance: "+strings.Join(req.Company.Compliance, ", "))
	}

	var configParts []string
	if req.Config.SubSector != "" {
		configParts = append(configParts, "- Sub-Sector: "+req.Config.SubSector)
	}
	if len(req.Config.ComplianceStandards) > 0 {
		configParts = append(configParts, "- Compliance Standards: "+strings.Join(req.Config.ComplianceStandards, ", "))
	}
	if len(req.Config.Environments) > 0 {
		configParts = append(configParts, "- Environments: "+strings.Join(req.Config.Environments, ", "))
	}
	if len(req.Config.BusinessUnits) > 0 {
		configParts = append(configParts, "- Business Units: "+strings.Join(req.Config.BusinessUnits, ", "))
	}
	if len(req.Config.Regions) > 0 {
		configParts = append(configParts, "- Regions: "+strings.Join(req.Config.Regions, ", "))
	}
	if req.Config.DataResidency != "" {
		configParts = append(configParts, "- Data Residency: "+req.Config.DataResidency)
	}
	configSection := "None provided"
	if len(configParts) > 0 {
		configSection = strings.Join(configParts, "\n")
	}

	var questionBlocks []string
	for i, q := range req.Questions {
		block := fmt.Sprintf("%d. [%s] %s\n   Type: %s", i+1, q.ID, q.Text, q.Type)
		if len(q.Options) > 0 {
			shown := q.Options
			extra := 0
			if len(shown) > promptOptionLimit {
				extra = len(shown) - promptOptionLimit
				shown = shown[:promptOptionLimit]
			}
			for _, opt := range shown {
				block += "\n   - " + opt.Label
			}
			if extra > 0 {
				block += fmt.Sprintf("\n   ... and %d more options", extra)
			}
		}
		questionBlocks = append(questionBlocks, block)
	}

	prevIDs := make([]string, 0, len(req.PreviousPredictions))
	for qid := range req.PreviousPredictions {
		prevIDs = append(prevIDs, qid)
	}
	sort.Strings(prevIDs)
	prevLines := make([]string, 0, len(prevIDs))
	for _, qid := range prevIDs {
		prevLines = append(prevLines, fmt.Sprintf("- %s: %s", qid, req.PreviousPredictions[qid].String()))
	}
	prevSection := "None"
	if len(prevLines) > 0 {
		prevSection = strings.Join(prevLines, "\n")
	}

	previousContext := req.PreviousContext
	if len(previousContext) > promptContextLimit {
		previousContext = previousContext[len(previousContext)-promptContextLimit:]
	}
	if previousContext == "" {
		previousContext = "None"
	}

	ragContext := FormatChunksAsContext(req.Chunks, true)
	if ragContext == "" {
		ragContext = "No documentation available - use best practices knowledge"
	}

	return fmt.Sprintf(`You are an expert %s cloud architect analyzing requirements for a Landing Zone design.

Company Information:
%s

User Configuration (From intake form):
%s

Previous Context:
%s

Previous Predictions in Current Section:
%s

Reference Documentation:
%s

Questions to Answer:
%s

Instructions:
1. For EACH question, predict the most appropriate answer based on:
   - Company information (sector, size, typical needs)
   - Reference documentation provided above
   - %s best practices
   - Previous context and predictions

2. For single-choice questions: Select ONE option that best fits
3. For multi-choice questions: Select ALL relevant options (return as list)
4. For input questions: Provide a reasonable value/text

5. Provide reasoning for EACH prediction explaining why this choice makes sense

6. Return your response in this EXACT JSON format:
{
  "predictions": {
    "QUESTION_ID": "answer" or ["answer1", "answer2"],
    ...
  },
  "reasoning": {
    "QUESTION_ID": "Explanation for this choice based on company context and best practices",
    ...
  },
  "confidence": {
    "QUESTION_ID": "high" or "medium" or "low",
    ...
  }
}

IMPORTANT:
- Return ONLY valid JSON, no markdown code blocks
- Include ALL question IDs in your response
- Use exact option labels from the questions
- Be consistent with %s best practices`,
		cloud,
		strings.Join(companyParts, "\n"),
		configSection,
		previousContext,
		prevSection,
		ragContext,
		strings.Join(questionBlocks, "\n\n"),
		cloud,
		cloud,
	)
}

// stripCodeFences removes markdown code block markers the model sometimes
// wraps around JSON output.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	var kept []string
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ParseBatchPredictionResponse parses the model's JSON reply and guarantees a
// prediction for every requested question. Missing or unparseable answers are
// filled with the first option label (or empty text) at low confidence.
func ParseBatchPredictionResponse(text string, questions []questionnaire.Question) *BatchPrediction {
	var parsed struct {
		Predictions map[string]questionnaire.AnswerValue `json:"predictions"`
		Reasoning   map[string]string                    `json:"reasoning"`
		Confidence  map[string]string                    `json:"confidence"`
	}

	result := &BatchPrediction{
		Predictions: map[string]questionnaire.AnswerValue{},
		Reasoning:   map[string]string{},
		Confidence:  map[string]string{},
	}

	cleaned := stripCodeFences(text)
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		result.ParseError = fmt.Sprintf("JSON parse error: %v", err)
		for _, q := range questions {
			result.Predictions[q.ID] = fallbackAnswer(q)
			result.Reasoning[q.ID] = "Error parsing model response - using default"
			result.Confidence[q.ID] = "low"
		}
		return result
	}

	if parsed.Predictions != nil {
		result.Predictions = parsed.Predictions
	}
	if parsed.Reasoning != nil {
		result.Reasoning = parsed.Reasoning
	}
	if parsed.Confidence != nil {
		result.Confidence = parsed.Confidence
	}

	for _, q := range questions {
		answer, ok := result.Predictions[q.ID]
		if ok && answer.Kind != questionnaire.AnswerInvalid {
			if _, has := result.Confidence[q.ID]; !has {
				result.Confidence[q.ID] = "medium"
			}
			continue
		}
		result.Predictions[q.ID] = fallbackAnswer(q)
		result.Reasoning[q.ID] = "Default answer - model did not provide a prediction"
		result.Confidence[q.ID] = "low"
	}
	return result
}

func fallbackAnswer(q questionnaire.Question) questionnaire.AnswerValue {
	if len(q.Options) > 0 {
		return questionnaire.SingleAnswer(q.Options[0].Label)
	}
	return questionnaire.FreeTextAnswer("")
}
