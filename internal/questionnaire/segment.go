package questionnaire

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedGraph marks a questionnaire whose flat question list cannot be
// segmented. It aborts a run before any section is processed.
var ErrMalformedGraph = errors.New("malformed question graph")

// Segment partitions the ordered question list into sections. A header
// question (type "section") starts a section; every following non-header
// question belongs to it until the next header or the end of the list.
func Segment(questions []Question) ([]Section, error) {
	var sections []Section
	var current *Section

	for _, q := range questions {
		if q.Type == TypeSection {
			if current != nil {
				sections = append(sections, finalizeSection(*current))
			}
			current = &Section{ID: q.ID, Title: q.Title}
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("%w: question %q precedes the first section header", ErrMalformedGraph, q.ID)
		}
		current.Questions = append(current.Questions, q)
	}
	if current != nil {
		sections = append(sections, finalizeSection(*current))
	}
	return sections, nil
}

func finalizeSection(sec Section) Section {
	sec.RootIDs = findRootQuestions(sec.Questions)
	sec.Complexity = classifyComplexity(sec.Questions)
	sec.RetrievalBudget = ComputeRetrievalBudget(len(sec.Questions), sec.Complexity)
	return sec
}

// findRootQuestions returns the ids of questions no reveal edge points at.
// Roots are visible immediately; everything else is conditionally revealed.
func findRootQuestions(questions []Question) []string {
	referenced := make(map[string]struct{})
	for _, q := range questions {
		for _, id := range q.Next {
			referenced[id] = struct{}{}
		}
		for _, opt := range q.Options {
			for _, id := range opt.Next {
				referenced[id] = struct{}{}
			}
		}
	}

	var roots []string
	for _, q := range questions {
		if _, ok := referenced[q.ID]; !ok {
			roots = append(roots, q.ID)
		}
	}
	return roots
}

// classifyComplexity is a coarse heuristic separating simple sections from
// branchy ones. It is not a cost model.
func classifyComplexity(questions []Question) Complexity {
	n := len(questions)
	conditionals := 0
	maxDegree := 0

	for _, q := range questions {
		if q.HasRevealEdges() {
			conditionals++
		}
		if d := q.maxOutDegree(); d > maxDegree {
			maxDegree = d
		}
	}

	switch {
	case n <= 2:
		return ComplexityLow
	case n <= 6:
		if conditionals > 3 || maxDegree > 3 {
			return ComplexityHigh
		}
		return ComplexityMedium
	default:
		if conditionals > 5 || maxDegree > 4 {
			return ComplexityHigh
		}
		return ComplexityMedium
	}
}

const (
	retrievalChunksPerQuestion = 3
	retrievalBudgetMin         = 5
	retrievalBudgetMax         = 20
)

// ComputeRetrievalBudget scales the per-section retrieval size with question
// count and complexity, clamped to the retrieval API's [5,20] bounds.
func ComputeRetrievalBudget(numQuestions int, complexity Complexity) int {
	multiplier := 1.0
	switch complexity {
	case ComplexityLow:
		multiplier = 0.8
	case ComplexityHigh:
		multiplier = 1.5
	}

	budget := int(math.Round(float64(retrievalChunksPerQuestion) * float64(numQuestions) * multiplier))
	if budget < retrievalBudgetMin {
		return retrievalBudgetMin
	}
	if budget > retrievalBudgetMax {
		return retrievalBudgetMax
	}
	return budget
}
