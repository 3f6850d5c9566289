package questionnaire

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type QuestionType string

const (
	TypeSingle  QuestionType = "single"
	TypeMulti   QuestionType = "multi"
	TypeInput   QuestionType = "input"
	TypeSection QuestionType = "section"
)

// Option is one selectable choice on a single/multi question. Next lists the
// question ids revealed when this option is part of the answer.
type Option struct {
	Label string   `json:"label"`
	Next  []string `json:"next,omitempty"`
}

// Question mirrors one entry of the questionnaire JSON. Section headers use
// Type "section" and carry a Title; they never carry options or reveal edges.
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"question,omitempty"`
	Title   string       `json:"title,omitempty"`
	Type    QuestionType `json:"type"`
	Options []Option     `json:"options,omitempty"`
	Next    []string     `json:"next,omitempty"`
}

// HasRevealEdges reports whether the question can reveal other questions,
// either directly (input type) or through any of its options.
func (q Question) HasRevealEdges() bool {
	if len(q.Next) > 0 {
		return true
	}
	for _, opt := range q.Options {
		if len(opt.Next) > 0 {
			return true
		}
	}
	return false
}

// maxOutDegree is the largest single reveal-edge list on the question.
func (q Question) maxOutDegree() int {
	max := len(q.Next)
	for _, opt := range q.Options {
		if len(opt.Next) > max {
			max = len(opt.Next)
		}
	}
	return max
}

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Section is a contiguous run of questions headed by a section marker.
// Sections are immutable once segmented from a catalog snapshot.
type Section struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Questions       []Question `json:"questions"`
	RootIDs         []string   `json:"root_ids"`
	Complexity      Complexity `json:"complexity"`
	RetrievalBudget int        `json:"retrieval_budget"`
}

// QuestionByID looks a question up within the section.
func (s Section) QuestionByID(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// RootQuestions returns the full question objects for the section's roots.
func (s Section) RootQuestions() []Question {
	roots := make([]Question, 0, len(s.RootIDs))
	rootSet := make(map[string]struct{}, len(s.RootIDs))
	for _, id := range s.RootIDs {
		rootSet[id] = struct{}{}
	}
	for _, q := range s.Questions {
		if _, ok := rootSet[q.ID]; ok {
			roots = append(roots, q)
		}
	}
	return roots
}

// Graph is the immutable lookup structure over a questionnaire snapshot.
type Graph struct {
	byID      map[string]Question
	bySection map[string][]Question
}

func NewGraph(sections []Section) *Graph {
	g := &Graph{
		byID:      make(map[string]Question),
		bySection: make(map[string][]Question),
	}
	for _, sec := range sections {
		qs := make([]Question, len(sec.Questions))
		copy(qs, sec.Questions)
		g.bySection[sec.ID] = qs
		for _, q := range sec.Questions {
			g.byID[q.ID] = q
		}
	}
	return g
}

func (g *Graph) QuestionByID(id string) (Question, bool) {
	q, ok := g.byID[id]
	return q, ok
}

// QuestionsInSection returns the section's questions in document order.
// The returned slice is a copy; callers may not mutate graph state.
func (g *Graph) QuestionsInSection(sectionID string) []Question {
	qs, ok := g.bySection[sectionID]
	if !ok {
		return nil
	}
	out := make([]Question, len(qs))
	copy(out, qs)
	return out
}

// Catalog bundles the segmented sections with their lookup graph.
type Catalog struct {
	Sections []Section
	graph    *Graph
}

func (c *Catalog) Graph() *Graph { return c.graph }

func (c *Catalog) Section(id string) (Section, bool) {
	for _, s := range c.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

func (c *Catalog) SectionIDs() []string {
	ids := make([]string, 0, len(c.Sections))
	for _, s := range c.Sections {
		ids = append(ids, s.ID)
	}
	return ids
}

type questionsFile struct {
	Questions []Question `json:"questions"`
}

// Parse segments a raw questionnaire JSON document into a catalog.
func Parse(data []byte) (*Catalog, error) {
	var file questionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse questions json: %w", err)
	}
	sections, err := Segment(file.Questions)
	if err != nil {
		return nil, err
	}
	return &Catalog{Sections: sections, graph: NewGraph(sections)}, nil
}

// Load reads and segments a questionnaire JSON file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions file %s: %w", path, err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", strings.TrimSpace(path), err)
	}
	return catalog, nil
}
