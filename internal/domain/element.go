package domain

// ElementType names a UI element kind of the interactive-query vocabulary.
type ElementType string

const (
	ElementFlat         ElementType = "flat"
	ElementBox          ElementType = "box"
	ElementHTML         ElementType = "html"
	ElementMessage      ElementType = "message"
	ElementButton       ElementType = "button"
	ElementYesNo        ElementType = "yesno"
	ElementBoolean      ElementType = "boolean"
	ElementRadio        ElementType = "radio"
	ElementTags         ElementType = "tags"
	ElementText         ElementType = "text"
	ElementAccount      ElementType = "account"
	ElementCase         ElementType = "case"
	ElementTextFileLine ElementType = "textFileLine"
	ElementRuleEditor   ElementType = "ruleEditor"
)

// Message severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeveritySuccess = "success"
)

// Element describes a piece of UI to be rendered and answered externally.
type Element struct {
	Type ElementType `json:"type"`
	Name string      `json:"name,omitempty"`

	Label    string `json:"label,omitempty"`
	Text     string `json:"text,omitempty"`
	HTML     string `json:"html,omitempty"`
	Severity string `json:"severity,omitempty"`

	Elements  []*Element          `json:"elements,omitempty"`
	Condition string              `json:"condition,omitempty"`
	Cases     map[string]*Element `json:"cases,omitempty"`

	// Options is a label to value map for radio, a tag list for tags and
	// import options for the rule editor.
	Options      any            `json:"options,omitempty"`
	Single       bool           `json:"single,omitempty"`
	DefaultValue any            `json:"defaultValue,omitempty"`
	Preferred    []string       `json:"preferred,omitempty"`
	Filter       map[string]any `json:"filter,omitempty"`

	Line        *TextFileLine   `json:"line,omitempty"`
	Lines       []*TextFileLine `json:"lines,omitempty"`
	Config      ProcessConfig   `json:"config,omitempty"`
	CashAccount string          `json:"cashAccount,omitempty"`

	Actions map[string]*ElementAction `json:"actions,omitempty"`
}

// ElementAction is triggered by the UI, typically posting the answers back.
type ElementAction struct {
	Type            string `json:"type"`
	URL             string `json:"url"`
	ObjectWrapLevel *int   `json:"objectWrapLevel,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	SuccessMessage  string `json:"successMessage,omitempty"`
}

// Walk calls fn for the element and all of its descendants, depth first.
func (e *Element) Walk(fn func(*Element)) {
	if e == nil {
		return
	}
	fn(e)
	for _, child := range e.Elements {
		child.Walk(fn)
	}
	for _, c := range e.Cases {
		c.Walk(fn)
	}
}

// Find returns the first element in the tree with the given type and name.
// An empty name matches any name.
func (e *Element) Find(typ ElementType, name string) *Element {
	var found *Element
	e.Walk(func(el *Element) {
		if found == nil && el.Type == typ && (name == "" || el.Name == name) {
			found = el
		}
	})
	return found
}

// UIQuery is a rule-level question description. Exactly one of Ask, ChooseTag
// or Text is expected. A query with only a Name refers to a previously defined one.
type UIQuery struct {
	Name      string         `json:"name,omitempty"`
	Label     string         `json:"label,omitempty"`
	Ask       map[string]any `json:"ask,omitempty"`
	ChooseTag []string       `json:"chooseTag,omitempty"`
	Text      bool           `json:"text,omitempty"`
}

// IsReference reports whether the query only names a cached query.
func (q *UIQuery) IsReference() bool {
	return q.Name != "" && q.Label == "" && q.Ask == nil && q.ChooseTag == nil && !q.Text
}
