package contextstore

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/varuny677/RequirementGath-feature2.1/internal/questionnaire"
)

func record(qid, answer, reasoning, confidence string) DecisionRecord {
	return DecisionRecord{
		QuestionID:   qid,
		QuestionText: "What about " + qid + "?",
		Answer:       questionnaire.SingleAnswer(answer),
		Reasoning:    reasoning,
		Confidence:   confidence,
	}
}

func TestRunContextTwoTierRendering(t *testing.T) {
	rc := NewRunContext("run-1", DefaultConfig(), nil)

	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("SEC_%d", i)
		rc.StartSection(id, "Section "+id)
		rc.AppendWave(id, []DecisionRecord{
			record(fmt.Sprintf("Q%d_1", i), "Yes", "short rationale", "high"),
			record(fmt.Sprintf("Q%d_2", i), "No", "", "medium"),
		})
		rc.FinalizeSection()
	}

	out := rc.Rendered()
	if !strings.Contains(out, "[RECENT SECTIONS - Full Detail]") {
		t.Fatalf("missing detail header in:\n%s", out)
	}
	if !strings.Contains(out, "[OLDER SECTIONS - Summarized]") {
		t.Fatalf("missing summary header in:\n%s", out)
	}

	// Last two sections fully detailed, first two only as summary lines.
	for _, qid := range []string{"Q3_1", "Q4_1"} {
		if !strings.Contains(out, "- "+qid+": Yes") {
			t.Errorf("expected detail line for %s in:\n%s", qid, out)
		}
	}
	for _, qid := range []string{"Q1_1", "Q2_1"} {
		if strings.Contains(out, "- "+qid+": Yes") {
			t.Errorf("did not expect detail line for %s in:\n%s", qid, out)
		}
	}
	for _, sec := range []string{"SEC_1: ", "SEC_2: "} {
		if !strings.Contains(out, "- "+sec) {
			t.Errorf("expected summary line for %s in:\n%s", sec, out)
		}
	}
}

func TestRunContextReasoningLengthGate(t *testing.T) {
	rc := NewRunContext("run-2", DefaultConfig(), nil)
	long := strings.Repeat("x", 250)

	rc.StartSection("SEC_1", "One")
	rc.AppendWave("SEC_1", []DecisionRecord{
		record("Q1", "Yes", "fits the budget", "high"),
		record("Q2", "No", long, "low"),
	})
	out := rc.FinalizeSection()

	if !strings.Contains(out, "Reasoning: fits the budget") {
		t.Errorf("short reasoning should render in:\n%s", out)
	}
	if strings.Contains(out, long) {
		t.Errorf("long reasoning should be dropped from:\n%s", out)
	}
}

func TestRunContextSingleTierFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CharBudget = 400
	rc := NewRunContext("run-3", cfg, nil)

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("SEC_%d", i)
		rc.StartSection(id, id)
		var recs []DecisionRecord
		for j := 1; j <= 5; j++ {
			recs = append(recs, record(fmt.Sprintf("Q%d_%d", i, j), "Option value", "a reasonably long rationale string", "medium"))
		}
		rc.AppendWave(id, recs)
		rc.FinalizeSection()
	}

	out := rc.Rendered()
	if !strings.Contains(out, "[CURRENT SECTION - Detail]") {
		t.Fatalf("expected compressed rendering in:\n%s", out)
	}
	if strings.Contains(out, "[RECENT SECTIONS - Full Detail]") {
		t.Fatalf("two-tier rendering should be replaced in:\n%s", out)
	}
	// Only the last section keeps per-question detail.
	if !strings.Contains(out, "Q3_1") {
		t.Errorf("most recent section should stay detailed in:\n%s", out)
	}
	if strings.Contains(out, "- Q1_1:") || strings.Contains(out, "- Q2_1:") {
		t.Errorf("older sections should collapse to summaries in:\n%s", out)
	}
}

func TestSummaryCollapsesLargeMultiSelect(t *testing.T) {
	rc := NewRunContext("run-4", DefaultConfig(), nil)

	rc.StartSection("SEC_1", "One")
	rc.AppendWave("SEC_1", []DecisionRecord{
		{QuestionID: "Q1", Answer: questionnaire.MultiAnswer([]string{"A", "B", "C", "D", "E"}), Confidence: "high"},
		record("Q2", "Yes", "", "high"),
		record("Q3", "No", "", "high"),
		record("Q4", "Maybe", "", "high"),
	})
	rc.FinalizeSection()

	// Push SEC_1 out of the detail window.
	for i := 2; i <= 3; i++ {
		id := fmt.Sprintf("SEC_%d", i)
		rc.StartSection(id, id)
		rc.AppendWave(id, []DecisionRecord{record(fmt.Sprintf("Q%d", i*10), "Yes", "", "high")})
		rc.FinalizeSection()
	}

	out := rc.Rendered()
	if !strings.Contains(out, "5 items selected") {
		t.Errorf("large multi-select should collapse in:\n%s", out)
	}
	if !strings.Contains(out, "(+ 1 more)") {
		t.Errorf("summary should note overflow decisions in:\n%s", out)
	}
}

func TestContextForRetrievalTailTruncation(t *testing.T) {
	rc := NewRunContext("run-5", DefaultConfig(), nil)
	rc.StartSection("SEC_1", "One")
	rc.AppendWave("SEC_1", []DecisionRecord{record("Q1", strings.Repeat("z", 300), "", "high")})
	rc.FinalizeSection()

	full := rc.Rendered()
	got := rc.ContextForRetrieval(100)
	if len(got) != 100 {
		t.Fatalf("len(got) = %d, want 100", len(got))
	}
	if !strings.HasSuffix(full, got) {
		t.Fatalf("truncation must keep the suffix")
	}
	if rc.ContextForRetrieval(0) != full {
		t.Fatalf("non-positive limit should return the full context")
	}
}

func TestTailContextRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 50)
	got := TailContext(s, 25)
	if !utf8.ValidString(got) {
		t.Fatalf("tail is not valid UTF-8: %q", got)
	}
	if len(got) > 25 {
		t.Fatalf("len(got) = %d, want <= 25", len(got))
	}
	if want := strings.Repeat("é", 12); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !strings.HasSuffix(s, got) {
		t.Fatalf("truncation must keep the suffix")
	}
}

func TestAppendWaveIgnoresDuplicateQuestions(t *testing.T) {
	rc := NewRunContext("run-6", DefaultConfig(), nil)
	rc.StartSection("SEC_1", "One")
	rc.AppendWave("SEC_1", []DecisionRecord{record("Q1", "Yes", "", "high")})
	rc.AppendWave("SEC_1", []DecisionRecord{record("Q1", "No", "", "low"), record("Q2", "No", "", "low")})
	rc.FinalizeSection()

	stats := rc.Stats()
	if stats.TotalDecisions != 2 {
		t.Fatalf("TotalDecisions = %d, want 2", stats.TotalDecisions)
	}
	if !strings.Contains(rc.Rendered(), "- Q1: Yes") {
		t.Fatalf("first write should win:\n%s", rc.Rendered())
	}
}

func TestStoreIsolatesRuns(t *testing.T) {
	s := NewStore(DefaultConfig(), nil)

	a := s.GetOrCreate("run-a")
	b := s.GetOrCreate("run-b")
	if a == b {
		t.Fatal("distinct run ids must not share a context")
	}
	if s.GetOrCreate("run-a") != a {
		t.Fatal("same run id must return the same context")
	}

	a.StartSection("SEC_1", "One")
	a.AppendWave("SEC_1", []DecisionRecord{record("Q1", "Yes", "", "high")})
	a.FinalizeSection()
	if b.Rendered() != "" {
		t.Fatalf("run-b context should be untouched, got %q", b.Rendered())
	}

	s.Discard("run-a")
	if s.GetOrCreate("run-a") == a {
		t.Fatal("discard should drop the old context")
	}
	if got := len(s.ActiveRuns()); got != 2 {
		t.Fatalf("ActiveRuns = %d, want 2", got)
	}
}

func TestStatsCountsConfidence(t *testing.T) {
	rc := NewRunContext("run-7", DefaultConfig(), nil)
	rc.StartSection("SEC_1", "One")
	rc.AppendWave("SEC_1", []DecisionRecord{
		record("Q1", "a", "", "high"),
		record("Q2", "b", "", "medium"),
		record("Q3", "c", "", "low"),
		record("Q4", "d", "", "high"),
	})

	stats := rc.Stats()
	if stats.TotalDecisions != 4 || stats.HighConfidence != 2 || stats.MediumConfidence != 1 || stats.LowConfidence != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
