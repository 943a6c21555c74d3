// Package tui renders the directions of waiting processes in a terminal and
// turns answers into process actions.
package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/iho/goimport/internal/domain"
)

// Kind of a question.
type Kind int

const (
	KindChoice Kind = iota
	KindText
)

// Option is one choice of a question.
type Option struct {
	Label string
	Value any
}

// Question is an input element of a UI description.
type Question struct {
	Name    string
	Label   string
	Kind    Kind
	Options []Option
	Default any
	// Hints are suggested values of a text question.
	Hints []string
}

const (
	configurePrefix = "configure."
	answerPrefix    = "answer."
)

// Collect returns the questions of an element in display order. Case
// elements contribute the branch selected by the answers given so far, or by
// the default of their condition.
func Collect(el *domain.Element, values map[string]any) []Question {
	var out []Question
	defaults := map[string]any{}
	collect(el, values, defaults, &out)
	return out
}

func collect(el *domain.Element, values, defaults map[string]any, out *[]Question) {
	if el == nil {
		return
	}
	if q, ok := question(el); ok {
		*out = append(*out, q)
		if q.Default != nil {
			defaults[q.Name] = q.Default
		}
	}
	for _, child := range el.Elements {
		collect(child, values, defaults, out)
	}
	if el.Type == domain.ElementCase {
		v, ok := values[el.Condition]
		if !ok {
			v = defaults[el.Condition]
		}
		if branch, ok := el.Cases[fmt.Sprint(v)]; ok {
			collect(branch, values, defaults, out)
		}
	}
}

func question(el *domain.Element) (Question, bool) {
	q := Question{Name: el.Name, Label: el.Label, Default: el.DefaultValue}
	switch el.Type {
	case domain.ElementYesNo, domain.ElementBoolean:
		q.Kind = KindChoice
		q.Options = []Option{{Label: "Yes", Value: true}, {Label: "No", Value: false}}
	case domain.ElementRadio:
		q.Kind = KindChoice
		q.Options = radioOptions(el.Options)
	case domain.ElementTags:
		q.Kind = KindChoice
		for _, tag := range tagOptions(el.Options) {
			q.Options = append(q.Options, Option{Label: tag, Value: tag})
		}
	case domain.ElementText:
		q.Kind = KindText
	case domain.ElementAccount:
		q.Kind = KindText
		q.Hints = el.Preferred
	default:
		return Question{}, false
	}
	return q, el.Name != ""
}

func radioOptions(options any) []Option {
	m, ok := options.(map[string]any)
	if !ok {
		return nil
	}
	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	out := make([]Option, len(labels))
	for i, label := range labels {
		out[i] = Option{Label: label, Value: m[label]}
	}
	return out
}

func tagOptions(options any) []string {
	switch x := options.(type) {
	case []string:
		return x
	case []any:
		tags := make([]string, 0, len(x))
		for _, v := range x {
			tags = append(tags, fmt.Sprint(v))
		}
		return tags
	}
	return nil
}

// NeedsRuleEditor reports whether the element can only be answered by
// editing the rules of the process.
func NeedsRuleEditor(el *domain.Element) bool {
	return el.Find(domain.ElementRuleEditor, "") != nil
}

// WantsRetry reports whether the element only offers a retry.
func WantsRetry(el *domain.Element) bool {
	if len(Collect(el, nil)) > 0 {
		return false
	}
	var retry bool
	el.Walk(func(e *domain.Element) {
		if e.Type == domain.ElementButton && e.Label == "Retry" {
			retry = true
		}
	})
	return retry
}

// Actions turns answers keyed by element name into process actions.
// Settings come before segment answers. Names of purely local elements,
// like the grouping switches, are dropped.
func Actions(values map[string]any) ([]*domain.ImportAction, error) {
	configure := map[string]any{}
	answer := map[domain.SegmentID]map[string]any{}
	for name, v := range values {
		switch {
		case strings.HasPrefix(name, configurePrefix):
			key := strings.TrimPrefix(name, configurePrefix)
			if key == "" {
				return nil, fmt.Errorf("%w: empty setting name", domain.ErrInvalidArgument)
			}
			configure[key] = v
		case strings.HasPrefix(name, answerPrefix):
			segment, variable, ok := strings.Cut(strings.TrimPrefix(name, answerPrefix), ".")
			if !ok || variable == "" {
				return nil, fmt.Errorf("%w: answer %q needs a segment and a variable", domain.ErrInvalidArgument, name)
			}
			if answer[domain.SegmentID(segment)] == nil {
				answer[domain.SegmentID(segment)] = map[string]any{}
			}
			answer[domain.SegmentID(segment)][variable] = v
		}
	}
	var actions []*domain.ImportAction
	if len(configure) > 0 {
		actions = append(actions, &domain.ImportAction{Configure: configure})
	}
	if len(answer) > 0 {
		actions = append(actions, &domain.ImportAction{Answer: answer})
	}
	return actions, nil
}

// ParseAssignments parses name=value pairs. Values are read as JSON when
// possible and kept as text otherwise.
func ParseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: expected name=value, got %q", domain.ErrInvalidArgument, pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[name] = v
	}
	return out, nil
}
