// Package contextstore keeps the bounded decision history a questionnaire run
// carries across sections. Prior decisions are rendered with a two-tier
// policy: the most recent sections in full detail, older ones as one-line
// summaries, with a harder single-tier fallback once the character budget is
// exceeded.
package contextstore

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
)

// Config carries the compressor's tuning knobs.
type Config struct {
	// CharBudget bounds the rendered run context before the single-tier
	// fallback kicks in.
	CharBudget int
	// RecentDetailSections is how many trailing sections render in full detail.
	RecentDetailSections int
	// ReasoningDetailMax drops rationale lines at or above this length.
	ReasoningDetailMax int
	// SummaryDecisionMax is how many decisions a one-line summary shows.
	SummaryDecisionMax int
	// SummaryMultiMax collapses larger multi-selects to "N items selected".
	SummaryMultiMax int
}

func DefaultConfig() Config {
	return Config{
		CharBudget:           3000,
		RecentDetailSections: 2,
		ReasoningDetailMax:   200,
		SummaryDecisionMax:   3,
		SummaryMultiMax:      3,
	}
}

// DecisionRecord is one answered question. Records are appended once and
// never mutated afterwards.
type DecisionRecord struct {
	QuestionID   string                    `json:"question_id"`
	QuestionText string                    `json:"question_text"`
	Answer       questionnaire.AnswerValue `json:"answer"`
	Reasoning    string                    `json:"reasoning"`
	Confidence   string                    `json:"confidence"`
	SectionID    string                    `json:"section_id"`
	Timestamp    time.Time                 `json:"timestamp"`
}

type sectionHistory struct {
	ID        string
	Title     string
	Decisions []DecisionRecord
	Summary   string
}

// RunContext is the decision history for a single run id. It is exclusively
// owned and mutated by the wave orchestrator for that run; it must never be
// shared across run ids or mutated concurrently.
type RunContext struct {
	runID    string
	cfg      Config
	log      *logger.Logger
	sections []sectionHistory
	current  *sectionHistory
	rendered string
}

func NewRunContext(runID string, cfg Config, log *logger.Logger) *RunContext {
	if cfg.CharBudget <= 0 {
		cfg = DefaultConfig()
	}
	if log != nil {
		log = log.With("component", "RunContext", "run_id", runID)
	}
	return &RunContext{runID: runID, cfg: cfg, log: log}
}

// StartSection begins tracking a new in-progress section.
func (rc *RunContext) StartSection(sectionID, title string) {
	rc.current = &sectionHistory{ID: sectionID, Title: title}
	if rc.log != nil {
		rc.log.Info("Started section context", "section_id", sectionID, "title", title)
	}
}

// AppendWave merges one wave's decisions into the in-progress section. The
// rendered context is unaffected until FinalizeSection. Re-appending an
// already-recorded question id is a no-op.
func (rc *RunContext) AppendWave(sectionID string, records []DecisionRecord) {
	if rc.current == nil || rc.current.ID != sectionID {
		rc.StartSection(sectionID, "")
	}
	seen := make(map[string]struct{}, len(rc.current.Decisions))
	for _, d := range rc.current.Decisions {
		seen[d.QuestionID] = struct{}{}
	}
	for _, rec := range records {
		if _, ok := seen[rec.QuestionID]; ok {
			continue
		}
		seen[rec.QuestionID] = struct{}{}
		rec.SectionID = sectionID
		rc.current.Decisions = append(rc.current.Decisions, rec)
	}
}

// FinalizeSection summarizes and stores the in-progress section, then
// re-renders and returns the run-wide context string.
func (rc *RunContext) FinalizeSection() string {
	if rc.current != nil {
		rc.current.Summary = rc.summarizeSection(*rc.current)
		rc.sections = append(rc.sections, *rc.current)
		if rc.log != nil {
			rc.log.Info("Finalized section context", "section_id", rc.current.ID, "decisions", len(rc.current.Decisions))
		}
		rc.current = nil
	}
	rc.rendered = rc.render()
	return rc.rendered
}

// Rendered returns the context string as of the last FinalizeSection.
func (rc *RunContext) Rendered() string { return rc.rendered }

// ContextForRetrieval returns a tail of the rendered context bounded to
// maxChars, for collaborators with a tighter limit than the run-wide budget.
func (rc *RunContext) ContextForRetrieval(maxChars int) string {
	return TailContext(rc.rendered, maxChars)
}

// TailContext suffix-truncates a context string to at most maxChars. The cut
// advances to the next rune boundary so the result is always valid UTF-8.
func TailContext(context string, maxChars int) string {
	if maxChars <= 0 || len(context) <= maxChars {
		return context
	}
	cut := len(context) - maxChars
	for cut < len(context) && !utf8.RuneStart(context[cut]) {
		cut++
	}
	return context[cut:]
}

func (rc *RunContext) render() string {
	if len(rc.sections) == 0 {
		return ""
	}

	cut := len(rc.sections) - rc.cfg.RecentDetailSections
	if cut < 0 {
		cut = 0
	}
	older := rc.sections[:cut]
	recent := rc.sections[cut:]

	var parts []string
	if len(recent) > 0 {
		parts = append(parts, "[RECENT SECTIONS - Full Detail]")
		for _, sec := range recent {
			parts = append(parts, rc.formatSectionDetail(sec))
		}
	}
	if len(older) > 0 {
		parts = append(parts, "\n[OLDER SECTIONS - Summarized]")
		for _, sec := range older {
			parts = append(parts, "- "+sec.Summary)
		}
	}

	full := strings.Join(parts, "\n\n")
	if len(full) > rc.cfg.CharBudget {
		full = rc.compress()
	}
	return full
}

// compress is the single-tier fallback: only the most recent section keeps
// full detail, everything older collapses to its summary line.
func (rc *RunContext) compress() string {
	last := rc.sections[len(rc.sections)-1]

	var parts []string
	if len(rc.sections) > 1 {
		var summaries []string
		for _, sec := range rc.sections[:len(rc.sections)-1] {
			summaries = append(summaries, "- "+sec.Summary)
		}
		parts = append(parts, "[PREVIOUS SECTIONS]", strings.Join(summaries, "\n"))
	}
	parts = append(parts, "\n[CURRENT SECTION - Detail]", rc.formatSectionDetail(last))
	return strings.Join(parts, "\n\n")
}

func (rc *RunContext) formatSectionDetail(sec sectionHistory) string {
	parts := []string{"Section: " + sec.ID}
	for _, d := range sec.Decisions {
		parts = append(parts, fmt.Sprintf("- %s: %s", d.QuestionID, d.Answer.String()))
		if d.Reasoning != "" && len(d.Reasoning) < rc.cfg.ReasoningDetailMax {
			parts = append(parts, "  Reasoning: "+d.Reasoning)
		}
	}
	return strings.Join(parts, "\n")
}

func (rc *RunContext) summarizeSection(sec sectionHistory) string {
	var decisions []string
	for _, d := range sec.Decisions {
		if d.Answer.Kind == questionnaire.AnswerMulti && len(d.Answer.Items) > rc.cfg.SummaryMultiMax {
			decisions = append(decisions, fmt.Sprintf("%d items selected", len(d.Answer.Items)))
		} else {
			decisions = append(decisions, d.Answer.String())
		}
	}

	max := rc.cfg.SummaryDecisionMax
	summary := decisions
	if len(decisions) > max {
		summary = decisions[:max]
	}
	line := strings.Join(summary, "; ")
	if len(decisions) > max {
		line += fmt.Sprintf(" (+ %d more)", len(decisions)-max)
	}
	return sec.ID + ": " + line
}

// Stats counts the run's decisions by confidence level.
type Stats struct {
	TotalDecisions   int `json:"total_decisions"`
	HighConfidence   int `json:"high_confidence"`
	MediumConfidence int `json:"medium_confidence"`
	LowConfidence    int `json:"low_confidence"`
}

func (rc *RunContext) Stats() Stats {
	var stats Stats
	count := func(records []DecisionRecord) {
		for _, d := range records {
			stats.TotalDecisions++
			switch d.Confidence {
			case "high":
				stats.HighConfidence++
			case "low":
				stats.LowConfidence++
			default:
				stats.MediumConfidence++
			}
		}
	}
	for _, sec := range rc.sections {
		count(sec.Decisions)
	}
	if rc.current != nil {
		count(rc.current.Decisions)
	}
	return stats
}
