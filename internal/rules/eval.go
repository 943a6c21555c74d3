package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

func (undefinedValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Undefined is the value of a missing variable or the `undefined` literal.
var Undefined = undefinedValue{}

// IsUndefined reports whether v is the undefined value.
func IsUndefined(v any) bool {
	_, ok := v.(undefinedValue)
	return ok
}

type evaluator struct {
	engine *Engine
	vars   Variables
}

func (ev *evaluator) eval(n node) (any, error) {
	switch n := n.(type) {
	case *literalNode:
		return n.value, nil
	case *identNode:
		v, ok := ev.vars[n.name]
		if !ok {
			if _, isFn := functions[n.name]; isFn {
				return nil, fmt.Errorf("function %s used without arguments", n.name)
			}
			return nil, fmt.Errorf("undefined symbol %s", n.name)
		}
		return normalize(v), nil
	case *arrayNode:
		out := make([]any, 0, len(n.elems))
		for _, e := range n.elems {
			v, err := ev.eval(e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *unaryNode:
		x, err := ev.eval(n.x)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case "!":
			return !Truthy(x), nil
		case "-":
			f, err := toNumber(x)
			if err != nil {
				return nil, err
			}
			return -f, nil
		default:
			return toNumber(x)
		}
	case *logicalNode:
		l, err := ev.eval(n.l)
		if err != nil {
			return nil, err
		}
		if n.and && !Truthy(l) {
			return false, nil
		}
		if !n.and && Truthy(l) {
			return true, nil
		}
		r, err := ev.eval(n.r)
		if err != nil {
			return nil, err
		}
		return Truthy(r), nil
	case *ternaryNode:
		c, err := ev.eval(n.cond)
		if err != nil {
			return nil, err
		}
		if Truthy(c) {
			return ev.eval(n.then)
		}
		return ev.eval(n.els)
	case *binaryNode:
		l, err := ev.eval(n.l)
		if err != nil {
			return nil, err
		}
		r, err := ev.eval(n.r)
		if err != nil {
			return nil, err
		}
		return binary(n.op, l, r)
	case *memberNode:
		x, err := ev.eval(n.x)
		if err != nil {
			return nil, err
		}
		return property(x, n.name)
	case *indexNode:
		x, err := ev.eval(n.x)
		if err != nil {
			return nil, err
		}
		idx, err := ev.eval(n.index)
		if err != nil {
			return nil, err
		}
		if s, ok := idx.(string); ok {
			return property(x, s)
		}
		i, err := toNumber(idx)
		if err != nil {
			return nil, err
		}
		return element(x, int(i))
	case *callNode:
		fn, ok := functions[n.name]
		if !ok {
			return nil, fmt.Errorf("undefined function %s", n.name)
		}
		args := make([]any, 0, len(n.args))
		for _, a := range n.args {
			v, err := ev.eval(a)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return fn(ev, args)
	}
	return nil, fmt.Errorf("unknown expression node %T", n)
}

func binary(op string, l, r any) (any, error) {
	switch op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "<", "<=", ">", ">=":
		c, err := compare(l, r)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		}
		return c >= 0, nil
	case "+":
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok && rok {
			return ls + rs, nil
		}
		if lok || rok {
			return nil, fmt.Errorf("unexpected type of argument in function add (expected: number or string, actual: %s, %s)", typeName(l), typeName(r))
		}
	}
	a, err := toNumber(l)
	if err != nil {
		return nil, err
	}
	b, err := toNumber(r)
	if err != nil {
		return nil, err
	}
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		return a / b, nil
	case "%":
		return math.Mod(a, b), nil
	case "^":
		return math.Pow(a, b), nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func equal(l, r any) bool {
	lnil := l == nil || IsUndefined(l)
	rnil := r == nil || IsUndefined(r)
	if lnil || rnil {
		return lnil && rnil
	}
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		return ls == rs
	}
	if lok || rok {
		a, err1 := toNumber(l)
		b, err2 := toNumber(r)
		return err1 == nil && err2 == nil && a == b
	}
	if isNumeric(l) && isNumeric(r) {
		a, _ := toNumber(l)
		b, _ := toNumber(r)
		return a == b
	}
	return reflect.DeepEqual(l, r)
}

func compare(l, r any) (int, error) {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		return strings.Compare(ls, rs), nil
	}
	a, err := toNumber(l)
	if err != nil {
		return 0, err
	}
	b, err := toNumber(r)
	if err != nil {
		return 0, err
	}
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	}
	return 0, nil
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32, bool, decimal.Decimal, json.Number:
		return true
	}
	return false
}

func toNumber(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, nil
	case decimal.Decimal:
		f, _ := x.Float64()
		return f, nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to a number", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unexpected type of argument (expected: number, actual: %s)", typeName(v))
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case undefinedValue:
		return "undefined"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "Array"
	case map[string]any:
		return "Object"
	}
	if isNumeric(v) {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

// Truthy follows the usual scripting notion of truth.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil, undefinedValue:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	if isNumeric(v) {
		f, _ := toNumber(v)
		return f != 0
	}
	return true
}

// Str formats a value the way string interpolation does.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case undefinedValue:
		return "undefined"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatNumber(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if e == nil || IsUndefined(e) {
				continue
			}
			parts[i] = Str(e)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	}
	if isNumeric(v) {
		f, _ := toNumber(v)
		return formatNumber(f)
	}
	return fmt.Sprint(v)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// normalize converts typed Go containers into the generic forms the evaluator walks.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64, undefinedValue, []any, map[string]any:
		return v
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case decimal.Decimal:
		f, _ := x.Float64()
		return f
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = iter.Value().Interface()
			}
			return out
		}
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Struct, reflect.Ptr:
		data, err := json.Marshal(v)
		if err == nil {
			var out any
			if json.Unmarshal(data, &out) == nil {
				return out
			}
		}
	}
	return v
}

func property(x any, name string) (any, error) {
	m, ok := normalize(x).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot read property %s of %s", name, typeName(x))
	}
	v, ok := m[name]
	if !ok {
		return Undefined, nil
	}
	return normalize(v), nil
}

// element indexes arrays one-based.
func element(x any, i int) (any, error) {
	switch arr := normalize(x).(type) {
	case []any:
		if i < 1 || i > len(arr) {
			return nil, fmt.Errorf("index out of range (%d not in 1..%d)", i, len(arr))
		}
		return normalize(arr[i-1]), nil
	case string:
		rs := []rune(arr)
		if i < 1 || i > len(rs) {
			return nil, fmt.Errorf("index out of range (%d not in 1..%d)", i, len(rs))
		}
		return string(rs[i-1]), nil
	}
	return nil, fmt.Errorf("cannot index %s", typeName(x))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
