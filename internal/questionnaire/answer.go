package questionnaire

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidAnswerShape marks answers the resolver cannot interpret for the
// question type it was given. Callers log it and treat the reveal set as empty.
var ErrInvalidAnswerShape = errors.New("invalid answer shape")

type AnswerKind int

const (
	AnswerInvalid AnswerKind = iota
	AnswerSingle
	AnswerMulti
	AnswerFreeText
)

// AnswerValue is the tagged variant for a predicted answer: a single option
// label, a list of labels for multi-choice, or free text for input questions.
// The zero value is AnswerInvalid.
type AnswerValue struct {
	Kind  AnswerKind
	Text  string
	Items []string
}

func SingleAnswer(label string) AnswerValue {
	return AnswerValue{Kind: AnswerSingle, Text: label}
}

func MultiAnswer(labels []string) AnswerValue {
	return AnswerValue{Kind: AnswerMulti, Items: labels}
}

func FreeTextAnswer(text string) AnswerValue {
	return AnswerValue{Kind: AnswerFreeText, Text: text}
}

// Labels normalizes the answer to a set of option labels. A bare single value
// becomes a singleton set. Invalid answers yield nil.
func (a AnswerValue) Labels() []string {
	switch a.Kind {
	case AnswerSingle, AnswerFreeText:
		return []string{a.Text}
	case AnswerMulti:
		return a.Items
	default:
		return nil
	}
}

// String renders the answer the way context and summaries display it.
func (a AnswerValue) String() string {
	switch a.Kind {
	case AnswerSingle, AnswerFreeText:
		return a.Text
	case AnswerMulti:
		return strings.Join(a.Items, ", ")
	default:
		return ""
	}
}

func (a AnswerValue) IsZero() bool { return a.Kind == AnswerInvalid && a.Text == "" && len(a.Items) == 0 }

// MarshalJSON keeps the wire shape of the original questionnaire payloads:
// a string for single/free-text answers, an array for multi answers.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerMulti:
		items := a.Items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	default:
		return json.Marshal(a.Text)
	}
}

// UnmarshalJSON accepts the dynamic shapes the prediction collaborator may
// emit: a bare string, a list of strings, or a {"value": "..."} wrapper.
// Anything else decodes to AnswerInvalid rather than failing the payload.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = SingleAnswer(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = MultiAnswer(list)
		return nil
	}

	var wrapped struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Value != nil {
		*a = SingleAnswer(*wrapped.Value)
		return nil
	}

	*a = AnswerValue{Kind: AnswerInvalid}
	return nil
}
