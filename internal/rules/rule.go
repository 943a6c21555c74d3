package rules

import (
	"encoding/json"
	"fmt"

	"github.com/iho/goimport/internal/domain"
)

// RuleOptions tune how a matching rule is applied.
type RuleOptions struct {
	SingleMatch bool `json:"singleMatch,omitempty"`
}

// RuleResult maps transfer fields to expressions.
type RuleResult map[string]any

// Results is one or more rule results. It reads both a single object and a list.
type Results []RuleResult

func (r *Results) UnmarshalJSON(data []byte) error {
	var list []RuleResult
	if err := json.Unmarshal(data, &list); err == nil {
		*r = list
		return nil
	}
	var single RuleResult
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("rule result must be an object or a list of objects: %w", err)
	}
	if single == nil {
		*r = nil
		return nil
	}
	*r = Results{single}
	return nil
}

// Rule matches import lines with Filter and turns them into transfers with Result.
type Rule struct {
	Name      string                     `json:"name"`
	Filter    string                     `json:"filter"`
	Comment   string                     `json:"comment,omitempty"`
	Options   RuleOptions                `json:"options"`
	Questions map[string]*domain.UIQuery `json:"questions,omitempty"`
	Result    Results                    `json:"result"`
	Examples  []*domain.TextFileLine     `json:"examples,omitempty"`
}

// Validate checks the parts every rule needs.
func (r *Rule) Validate() error {
	if r.Filter == "" {
		return fmt.Errorf("%w: rule %q has no filter", domain.ErrBadState, r.Name)
	}
	return nil
}

// LoadRules decodes the rule list of a configuration.
func LoadRules(config domain.ProcessConfig) ([]*Rule, error) {
	var rules []*Rule
	if err := config.Decode(domain.ConfigRules, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// LoadQuestions decodes the named questions shared by all rules.
func LoadQuestions(config domain.ProcessConfig) ([]*domain.UIQuery, error) {
	var questions []*domain.UIQuery
	if err := config.Decode(domain.ConfigQuestions, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}
