package questionnaire

import (
	"fmt"
	"sort"
)

// OrphanEdge is a reveal edge whose target id does not exist in the section.
type OrphanEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ValidationStats summarizes a section's reveal structure.
type ValidationStats struct {
	TotalQuestions            int `json:"total_questions"`
	QuestionsWithConditionals int `json:"questions_with_conditionals"`
	MaxWaveDepth              int `json:"max_wave_depth"`
}

// ValidationReport is the result of section-build-time structure validation.
type ValidationReport struct {
	Valid    bool            `json:"valid"`
	Warnings []string        `json:"warnings"`
	Errors   []string        `json:"errors"`
	Stats    ValidationStats `json:"stats"`
}

const (
	colorWhite = iota
	colorGray
	colorBlack
)

// DetectCycles reports every question id that sits on a reveal-edge cycle.
// The traversal is an explicit iterative DFS with a recursion stack; edges to
// ids outside the section are ignored here (FindOrphanEdges reports those).
func (r *Resolver) DetectCycles() []string {
	edges := r.DependencyEdges()
	color := make(map[string]int, len(r.questions))
	onCycle := make(map[string]struct{})

	type frame struct {
		id   string
		next int
	}

	for _, start := range r.questions {
		if color[start.ID] != colorWhite {
			continue
		}
		stack := []frame{{id: start.ID}}
		color[start.ID] = colorGray

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			adj := edges[f.id]
			if f.next < len(adj) {
				neighbor := adj[f.next]
				f.next++
				if _, exists := r.byID[neighbor]; !exists {
					continue
				}
				switch color[neighbor] {
				case colorWhite:
					color[neighbor] = colorGray
					stack = append(stack, frame{id: neighbor})
				case colorGray:
					// Everything from the neighbor's frame to the top of the
					// stack is on the detected cycle.
					marking := false
					for _, fr := range stack {
						if fr.id == neighbor {
							marking = true
						}
						if marking {
							onCycle[fr.id] = struct{}{}
						}
					}
				}
			} else {
				color[f.id] = colorBlack
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := make([]string, 0, len(onCycle))
	for id := range onCycle {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FindOrphanEdges returns reveal edges pointing at ids absent from the section.
func (r *Resolver) FindOrphanEdges() []OrphanEdge {
	var orphans []OrphanEdge
	edges := r.DependencyEdges()
	for _, q := range r.questions {
		for _, target := range edges[q.ID] {
			if _, ok := r.byID[target]; !ok {
				orphans = append(orphans, OrphanEdge{From: q.ID, To: target})
			}
		}
	}
	return orphans
}

// MaxWaveDepth computes the longest acyclic path through the reveal-edge
// graph, counting nodes. It is diagnostic only; the orchestrator bounds waves
// with a hard ceiling regardless.
func (r *Resolver) MaxWaveDepth() int {
	edges := r.DependencyEdges()
	maxDepth := 0

	type frame struct {
		id   string
		next int
	}

	for _, start := range r.questions {
		stack := []frame{{id: start.ID}}
		onPath := map[string]struct{}{start.ID: {}}
		if maxDepth < 1 {
			maxDepth = 1
		}

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			adj := edges[f.id]
			descended := false
			for f.next < len(adj) {
				neighbor := adj[f.next]
				f.next++
				if _, ok := onPath[neighbor]; ok {
					continue
				}
				if _, ok := r.byID[neighbor]; !ok {
					continue
				}
				onPath[neighbor] = struct{}{}
				stack = append(stack, frame{id: neighbor})
				if len(stack) > maxDepth {
					maxDepth = len(stack)
				}
				descended = true
				break
			}
			if !descended {
				delete(onPath, f.id)
				stack = stack[:len(stack)-1]
			}
		}
	}
	return maxDepth
}

// ValidateStructure runs the build-time checks for a section's sub-graph.
// Cycles are errors; orphan edges are warnings.
func (r *Resolver) ValidateStructure() ValidationReport {
	report := ValidationReport{Warnings: []string{}, Errors: []string{}}

	for _, id := range r.DetectCycles() {
		report.Errors = append(report.Errors, fmt.Sprintf("circular dependency detected involving question %q", id))
	}
	for _, orphan := range r.FindOrphanEdges() {
		report.Warnings = append(report.Warnings, fmt.Sprintf("question %q references non-existent question %q", orphan.From, orphan.To))
	}

	conditionals := 0
	for _, q := range r.questions {
		if q.HasRevealEdges() {
			conditionals++
		}
	}

	report.Valid = len(report.Errors) == 0
	report.Stats = ValidationStats{
		TotalQuestions:            len(r.questions),
		QuestionsWithConditionals: conditionals,
		MaxWaveDepth:              r.MaxWaveDepth(),
	}
	return report
}
