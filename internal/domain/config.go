package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Well known configuration keys.
const (
	ConfigLanguage          = "language"
	ConfigCurrency          = "currency"
	ConfigRules             = "rules"
	ConfigQuestions         = "questions"
	ConfigAnswers           = "answers"
	ConfigCashAccount       = "cashAccount"
	ConfigAllowShortSelling = "allowShortSelling"
	ConfigRecordDeposits    = "recordDeposits"
	ConfigRecordWithdrawals = "recordWithdrawals"
	ConfigAllowIdenticalTx  = "allowIdenticalTx"
	ConfigFirstDate         = "firstDate"
	ConfigHandlers          = "handlers"
)

// GlobalAnswers is the segment id holding answers shared by all segments.
const GlobalAnswers SegmentID = ""

// ProcessConfig is the free-form configuration of a process. It holds settings,
// account numbers, rules and answers collected from the user.
type ProcessConfig map[string]any

// Clone returns a deep copy. Values are normalized to their JSON form.
func (c ProcessConfig) Clone() ProcessConfig {
	if c == nil {
		return ProcessConfig{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		out := make(ProcessConfig, len(c))
		for k, v := range c {
			out[k] = v
		}
		return out
	}
	out := ProcessConfig{}
	if err := json.Unmarshal(data, &out); err != nil {
		return ProcessConfig{}
	}
	return out
}

// Assign overwrites top level keys with the given values.
func (c ProcessConfig) Assign(values map[string]any) {
	for k, v := range values {
		c[k] = v
	}
}

// Has reports whether the key is set to a non-null value.
func (c ProcessConfig) Has(key string) bool {
	v, ok := c[key]
	return ok && v != nil
}

// String returns the value as a string. Numbers are formatted without exponent.
func (c ProcessConfig) String(key string) string {
	s, _ := scalarString(c[key])
	return s
}

// Bool returns a boolean setting and whether it was set at all.
func (c ProcessConfig) Bool(key string) (bool, bool) {
	switch v := c[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}

func (c ProcessConfig) Language() string {
	if lang := c.String(ConfigLanguage); lang != "" {
		return lang
	}
	return "en"
}

func (c ProcessConfig) Currency() string {
	return c.String(ConfigCurrency)
}

// Decode converts the value of the key into out through its JSON form.
func (c ProcessConfig) Decode(key string, out any) error {
	v, ok := c[key]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: cannot encode configuration %q: %v", ErrBadState, key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: cannot decode configuration %q: %v", ErrBadState, key, err)
	}
	return nil
}

// Account returns the account number configured for an address.
// Query objects are not account numbers and report false.
func (c ProcessConfig) Account(addr AccountAddress) (string, bool) {
	s, ok := scalarString(c[addr.ConfigKey()])
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Answers returns the collected answers per segment.
func (c ProcessConfig) Answers() map[SegmentID]map[string]any {
	out := map[SegmentID]map[string]any{}
	raw, ok := c[ConfigAnswers].(map[string]any)
	if !ok {
		if typed, ok := c[ConfigAnswers].(map[SegmentID]map[string]any); ok {
			return typed
		}
		return out
	}
	for seg, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out[SegmentID(seg)] = m
		}
	}
	return out
}

// SegmentAnswer returns an answer given for a segment.
func (c ProcessConfig) SegmentAnswer(segment SegmentID, variable string) (any, bool) {
	answers := c.Answers()[segment]
	if answers == nil {
		return nil, false
	}
	v, ok := answers[variable]
	return v, ok
}

// MergeAnswers stores answers per segment, keeping earlier answers of other variables.
func (c ProcessConfig) MergeAnswers(answer map[SegmentID]map[string]any) {
	raw, ok := c[ConfigAnswers].(map[string]any)
	if !ok {
		raw = map[string]any{}
		for seg, vars := range c.Answers() {
			raw[string(seg)] = vars
		}
	}
	for seg, vars := range answer {
		current, ok := raw[string(seg)].(map[string]any)
		if !ok {
			current = map[string]any{}
		}
		for k, v := range vars {
			current[k] = v
		}
		raw[string(seg)] = current
	}
	c[ConfigAnswers] = raw
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case json.Number:
		return x.String(), true
	}
	return "", false
}

// Merge copies values into the configuration. Nested objects are merged
// key by key, other values replace the existing ones.
func (c ProcessConfig) Merge(values map[string]any) {
	mergeMaps(c, values)
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		in, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		out, ok := dst[k].(map[string]any)
		if !ok {
			out = map[string]any{}
			dst[k] = out
		}
		mergeMaps(out, in)
	}
}
