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

// RAGChunk is one retrieved document fragment.
type RAGChunk struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
}

// RetrievalResult carries chunks plus retrieval metadata. Failures are
// encoded in the result rather than returned as errors so callers can
// degrade to prediction without document context.
type RetrievalResult struct {
	Success       bool       `json:"success"`
	Chunks        []RAGChunk `json:"chunks"`
	Sources       []string   `json:"sources"`
	Query         string     `json:"query"`
	TotalChunks   int        `json:"total_chunks"`
	RetrievalTime float64    `json:"retrieval_time"`
	Error         string     `json:"error,omitempty"`
}

// SectionRetrievalRequest asks for chunks covering a whole section in one
// retrieval call.
type SectionRetrievalRequest struct {
	SectionTitle    string
	Questions       []questionnaire.Question
	Company         CompanyProfile
	Config          IntakeConfig
	PreviousContext string
	TopK            int
}

type RAGClient interface {
	CheckHealth(ctx context.Context) bool
	RetrieveChunks(ctx context.Context, query string, topK int) *RetrievalResult
	RetrieveForSection(ctx context.Context, req SectionRetrievalRequest) *RetrievalResult
}

type ragClient struct {
	log        *logger.Logger
	baseURL    string
	topics     *TopicHints
	httpClient *http.Client
}

func NewRAGClient(log *logger.Logger, topics *TopicHints) (RAGClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("RAG_BASE_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing RAG_BASE_URL")
	}

	timeoutSec := 30
	if v := os.Getenv("RAG_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	if topics == nil {
		topics = &TopicHints{byTitle: defaultTopicHints()}
	}

	return &ragClient{
		log:        log.With("service", "RAGClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		topics:     topics,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type ragHealthResponse struct {
	Status string `json:"status"`
}

func (c *ragClient) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("RAG health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health ragHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

type ragRetrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type ragRetrieveResponse struct {
	Chunks      []RAGChunk `json:"chunks"`
	TotalChunks int        `json:"total_chunks"`
	Error       string     `json:"error"`
}

// RetrieveChunks queries the retrieval API once, retrying a single time on
// timeout. All failures come back as an unsuccessful result.
func (c *ragClient) RetrieveChunks(ctx context.Context, query string, topK int) *RetrievalResult {
	if !c.CheckHealth(ctx) {
		c.log.Warn("RAG API unhealthy, skipping retrieval")
		return &RetrievalResult{Success: false, Query: query, Error: "RAG API is not running or unhealthy"}
	}

	start := time.Now()
	result, err := c.retrieveOnce(ctx, query, topK)
	if err != nil && isTimeoutErr(err) && ctx.Err() == nil {
		c.log.Info("Retrying RAG retrieval after timeout", "query_len", len(query))
		result, err = c.retrieveOnce(ctx, query, topK)
	}
	if err != nil {
		c.log.Error("RAG retrieval failed", "error", err)
		return &RetrievalResult{Success: false, Query: query, Error: err.Error()}
	}
	if result.Error != "" {
		c.log.Error("RAG API returned error", "error", result.Error)
		return &RetrievalResult{Success: false, Query: query, Error: result.Error}
	}

	elapsed := time.Since(start).Seconds()
	total := result.TotalChunks
	if total == 0 {
		total = len(result.Chunks)
	}
	c.log.Info("Retrieved chunks", "count", len(result.Chunks), "elapsed_s", elapsed)

	return &RetrievalResult{
		Success:       true,
		Chunks:        result.Chunks,
		Sources:       ExtractSources(result.Chunks),
		Query:         query,
		TotalChunks:   total,
		RetrievalTime: elapsed,
	}
}

func (c *ragClient) retrieveOnce(ctx context.Context, query string, topK int) (*ragRetrieveResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ragRetrieveRequest{Query: query, TopK: topK}); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/retrieve", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &serviceHTTPError{Service: "rag", StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out ragRetrieveResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("rag decode error: %w; raw=%s", err, string(raw))
	}
	return &out, nil
}

// RetrieveForSection builds one comprehensive query covering every question
// in the section and retrieves chunks for it in a single call.
func (c *ragClient) RetrieveForSection(ctx context.Context, req SectionRetrievalRequest) *RetrievalResult {
	topK := req.TopK
	if topK <= 0 {
		topK = 15
	}
	query := c.buildSectionQuery(req)

	c.log.Info("Retrieving section chunks",
		"section", req.SectionTitle,
		"questions", len(req.Questions),
		"top_k", topK,
	)
	return c.RetrieveChunks(ctx, query, topK)
}

const (
	sectionQueryOptionLimit  = 5
	sectionQueryContextLimit = 500
)

func (c *ragClient) buildSectionQuery(req SectionRetrievalRequest) string {
	cloud := req.Config.Cloud()

	companyLine := fmt.Sprintf("%s | Sector: %s | Cloud: %s", orUnknown(req.Company.CompanyName), orUnknown(req.Company.Sector), cloud)
	if req.Company.CountryOfOrigin != "" {
		companyLine += " | Origin: " + req.Company.CountryOfOrigin
	}

	var configParts []string
	if len(req.Config.ComplianceStandards) > 0 {
		configParts = append(configParts, "Compliance: "+strings.Join(req.Config.ComplianceStandards, ", "))
	}
	if len(req.Config.Environments) > 0 {
		configParts = append(configParts, "Environments: "+strings.Join(req.Config.Environments, ", "))
	}
	if len(req.Config.Regions) > 0 {
		configParts = append(configParts, "Regions: "+strings.Join(req.Config.Regions, ", "))
	}
	configSection := ""
	if len(configParts) > 0 {
		configSection = "\nConfiguration: " + strings.Join(configParts, " | ")
	}

	var questionLines []string
	for i, q := range req.Questions {
		line := fmt.Sprintf("%d. %s", i+1, q.Text)
		if len(q.Options) > 0 {
			labels := make([]string, 0, sectionQueryOptionLimit)
			for _, opt := range q.Options {
				if len(labels) == sectionQueryOptionLimit {
					break
				}
				labels = append(labels, opt.Label)
			}
			optionsStr := strings.Join(labels, ", ")
			if len(q.Options) > sectionQueryOptionLimit {
				optionsStr += ", ..."
			}
			line += "\n   Options: " + optionsStr
		}
		questionLines = append(questionLines, line)
	}

	contextSection := ""
	if req.PreviousContext != "" {
		preview := req.PreviousContext
		if len(preview) > sectionQueryContextLimit {
			preview = preview[len(preview)-sectionQueryContextLimit:]
		}
		contextSection = "\n\nContext from previous sections:\n" + preview
	}

	topics := c.topics.ForSection(req.SectionTitle, cloud)
	topicLines := make([]string, len(topics))
	for i, topic := range topics {
		topicLines[i] = "- " + topic
	}

	return fmt.Sprintf(`Section: %s
Company: %s%s

Questions to answer:
%s%s

Retrieve %s Landing Zone best practices covering:
%s`,
		req.SectionTitle,
		companyLine,
		configSection,
		strings.Join(questionLines, "\n"),
		contextSection,
		cloud,
		strings.Join(topicLines, "\n"),
	)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// FormatChunksAsContext renders chunks into the document-context block used
// in prediction prompts.
func FormatChunksAsContext(chunks []RAGChunk, includeSources bool) string {
	if len(chunks) == 0 {
		return ""
	}
	formatted := make([]string, len(chunks))
	for i, chunk := range chunks {
		source := chunk.Source
		if source == "" {
			source = "unknown"
		}
		header := fmt.Sprintf("[Document %d]", i+1)
		if includeSources {
			header = fmt.Sprintf("[Document %d: %s]", i+1, source)
		}
		formatted[i] = header + "\n" + chunk.Content
	}
	return strings.Join(formatted, "\n\n---\n\n")
}

// ExtractSources returns the sorted unique source names across chunks.
func ExtractSources(chunks []RAGChunk) []string {
	seen := make(map[string]struct{})
	for _, chunk := range chunks {
		if chunk.Source != "" {
			seen[chunk.Source] = struct{}{}
		}
	}
	sources := make([]string, 0, len(seen))
	for source := range seen {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}
