package questionnaire

import (
	"sort"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
)

// Resolver answers the "which questions does this answer reveal" question for
// one section's sub-graph. It is cheap to build and holds no mutable state.
type Resolver struct {
	log       *logger.Logger
	questions []Question
	byID      map[string]Question
}

func NewResolver(sectionQuestions []Question, log *logger.Logger) *Resolver {
	byID := make(map[string]Question, len(sectionQuestions))
	for _, q := range sectionQuestions {
		byID[q.ID] = q
	}
	if log != nil {
		log = log.With("component", "Resolver")
	}
	return &Resolver{log: log, questions: sectionQuestions, byID: byID}
}

// ResolveNext returns the question ids revealed by answering questionID with
// answer, deduplicated in first-seen order. Unknown question ids are a logged
// no-op: predictions for stale questions must not halt a run.
func (r *Resolver) ResolveNext(questionID string, answer AnswerValue) []string {
	question, ok := r.byID[questionID]
	if !ok {
		if r.log != nil {
			r.log.Warn("Question not found in section, skipping reveal resolution", "question_id", questionID)
		}
		return nil
	}

	var next []string

	// Input-type questions reveal unconditionally through a direct edge list.
	next = append(next, question.Next...)

	if len(question.Options) > 0 {
		switch question.Type {
		case TypeSingle:
			next = append(next, r.resolveSingleChoice(question, answer)...)
		case TypeMulti:
			next = append(next, r.resolveMultiChoice(question, answer)...)
		}
	}

	return dedupePreservingOrder(next)
}

func (r *Resolver) resolveSingleChoice(question Question, answer AnswerValue) []string {
	label := ""
	switch answer.Kind {
	case AnswerSingle, AnswerFreeText:
		label = answer.Text
	default:
		if r.log != nil {
			r.log.Warn("Invalid answer shape for single choice", "question_id", question.ID, "error", ErrInvalidAnswerShape)
		}
		return nil
	}

	// First match wins; the scan stops at the matching option either way.
	for _, opt := range question.Options {
		if opt.Label == label {
			return opt.Next
		}
	}
	return nil
}

func (r *Resolver) resolveMultiChoice(question Question, answer AnswerValue) []string {
	selected := make(map[string]struct{})
	switch answer.Kind {
	case AnswerSingle, AnswerFreeText:
		// A bare value on a multi question is a singleton selection.
		selected[answer.Text] = struct{}{}
	case AnswerMulti:
		for _, label := range answer.Items {
			selected[label] = struct{}{}
		}
	default:
		if r.log != nil {
			r.log.Warn("Invalid answer shape for multi choice", "question_id", question.ID, "error", ErrInvalidAnswerShape)
		}
		return nil
	}

	var next []string
	for _, opt := range question.Options {
		if _, ok := selected[opt.Label]; ok {
			next = append(next, opt.Next...)
		}
	}
	return next
}

// ProcessWave unions ResolveNext over every prediction of a wave. The output
// is a set: duplicate targets collapse, and the result is sorted so it does
// not depend on map iteration order.
func (r *Resolver) ProcessWave(predictions map[string]AnswerValue) []string {
	revealed := make(map[string]struct{})
	for questionID, answer := range predictions {
		for _, id := range r.ResolveNext(questionID, answer) {
			revealed[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(revealed))
	for id := range revealed {
		out = append(out, id)
	}
	sort.Strings(out)

	if r.log != nil {
		r.log.Debug("Wave processed", "predictions", len(predictions), "revealed", len(out))
	}
	return out
}

// DependencyEdges maps every question id to the ids it can reveal, across all
// of its direct and option-level edges, deduplicated in first-seen order.
func (r *Resolver) DependencyEdges() map[string][]string {
	edges := make(map[string][]string, len(r.questions))
	for _, q := range r.questions {
		var next []string
		next = append(next, q.Next...)
		for _, opt := range q.Options {
			next = append(next, opt.Next...)
		}
		edges[q.ID] = dedupePreservingOrder(next)
	}
	return edges
}

func dedupePreservingOrder(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
