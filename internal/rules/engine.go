// Package rules evaluates import rule expressions against line variables.
//
// Expressions are a small language: arithmetic, comparisons of numbers and
// strings, string concatenation with `+`, `and`/`or`/`not`, ternaries, member
// access, one-based indexing, array literals and a fixed table of functions.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Variables are the named values visible to an expression.
type Variables map[string]any

// With returns a copy of the variables extended with more.
func (v Variables) With(more map[string]any) Variables {
	out := make(Variables, len(v)+len(more))
	for k, x := range v {
		out[k] = x
	}
	for k, x := range more {
		out[k] = x
	}
	return out
}

// RuleParsingError is a failure to parse or evaluate an expression.
type RuleParsingError struct {
	Message    string
	Expression string
	Variables  Variables
}

func (e *RuleParsingError) Error() string {
	return e.Message
}

// IsRuleParsingError returns the parsing error carried by err, if any.
func IsRuleParsingError(err error) (*RuleParsingError, bool) {
	var perr *RuleParsingError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

// Engine evaluates expressions. Parsed expressions are cached.
type Engine struct {
	logger zerolog.Logger
	quiet  bool

	mu    sync.RWMutex
	cache map[string]node
}

// NewEngine creates an engine. A quiet engine does not warn about unparseable numbers.
func NewEngine(logger zerolog.Logger, quiet bool) *Engine {
	return &Engine{
		logger: logger.With().Str("component", "rules").Logger(),
		quiet:  quiet,
		cache:  make(map[string]node),
	}
}

func (e *Engine) compile(expr string) (node, error) {
	e.mu.RLock()
	n, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return n, nil
	}
	n, err := parse(expr)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[expr] = n
	e.mu.Unlock()
	return n, nil
}

// Eval evaluates a single expression.
func (e *Engine) Eval(expr string, vars Variables) (any, error) {
	n, err := e.compile(expr)
	if err != nil {
		return nil, &RuleParsingError{Message: err.Error(), Expression: expr, Variables: vars}
	}
	ev := &evaluator{engine: e, vars: vars}
	v, err := ev.eval(n)
	if err != nil {
		return nil, &RuleParsingError{Message: err.Error(), Expression: expr, Variables: vars}
	}
	return v, nil
}

// EvalValue evaluates strings as expressions and walks into maps and lists.
// Other values are returned as they are.
func (e *Engine) EvalValue(value any, vars Variables) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return e.Eval(v, vars)
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			r, err := e.EvalValue(x, vars)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, x := range v {
			r, err := e.EvalValue(x, vars)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	}
	return value, nil
}

// EvalBool evaluates an expression for its truth value.
func (e *Engine) EvalBool(expr string, vars Variables) (bool, error) {
	v, err := e.Eval(expr, vars)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Format renders a value for messages.
func Format(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
