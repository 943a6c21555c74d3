package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/iho/goimport/internal/domain"
)

type function func(ev *evaluator, args []any) (any, error)

var functions map[string]function

func init() {
	functions = map[string]function{
		"$":          fnColumn,
		"abs":        fnMath(math.Abs),
		"capitalize": fnString(capitalize),
		"cents":      fnCents,
		"chosen":     fnChosen,
		"clean":      fnString(clean),
		"concat":     fnConcat,
		"contains":   fnContains,
		"d":          fnDebug,
		"has":        fnHas,
		"isCurrency": fnIsCurrency,
		"join":       fnJoin,
		"lower":      fnString(strings.ToLower),
		"max":        fnMinMax(math.Max),
		"min":        fnMinMax(math.Min),
		"num":        fnNum,
		"par":        fnPar,
		"rates":      fnRates,
		"regex":      fnRegex,
		"round":      fnMath(func(f float64) float64 { return math.Floor(f + 0.5) }),
		"str":        fnStr,
		"sum":        fnSum,
		"times":      fnTimes,
		"ucfirst":    fnString(ucfirst),
	}
}

func arity(name string, args []any, minArgs, maxArgs int) error {
	if len(args) < minArgs || (maxArgs >= 0 && len(args) > maxArgs) {
		return fmt.Errorf("wrong number of arguments in function %s (%d given)", name, len(args))
	}
	return nil
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// fnColumn reads a variable that may not exist or has an awkward name.
func fnColumn(ev *evaluator, args []any) (any, error) {
	if err := arity("$", args, 1, 2); err != nil {
		return nil, err
	}
	if v, ok := ev.vars[Str(args[0])]; ok {
		return normalize(v), nil
	}
	return arg(args, 1), nil
}

func fnString(fn func(string) string) function {
	return func(_ *evaluator, args []any) (any, error) {
		if err := arity("string function", args, 1, 1); err != nil {
			return nil, err
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("expected a string but got %s", typeName(args[0]))
		}
		return fn(s), nil
	}
}

func fnMath(fn func(float64) float64) function {
	return func(_ *evaluator, args []any) (any, error) {
		if err := arity("math function", args, 1, 1); err != nil {
			return nil, err
		}
		f, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		return fn(f), nil
	}
}

func fnMinMax(fn func(a, b float64) float64) function {
	return func(_ *evaluator, args []any) (any, error) {
		if err := arity("min/max", args, 1, -1); err != nil {
			return nil, err
		}
		values := args
		if arr, ok := args[0].([]any); ok && len(args) == 1 {
			values = arr
		}
		var out float64
		for i, v := range values {
			f, err := toNumber(v)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				out = f
				continue
			}
			out = fn(out, f)
		}
		return out, nil
	}
}

func ucfirst(s string) string {
	rs := []rune(s)
	if len(rs) == 0 {
		return s
	}
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

func capitalize(s string) string {
	words := strings.Split(strings.ToLower(s), " ")
	for i, w := range words {
		words[i] = ucfirst(w)
	}
	return strings.Join(words, " ")
}

var (
	spaces       = regexp.MustCompile(`\s+`)
	edgeSpaces   = regexp.MustCompile(`^\s+|\s+$`)
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
	regexFlagSet = "ims"
)

// clean trims every line, squeezes inner spaces and drops empty lines.
func clean(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = edgeSpaces.ReplaceAllString(spaces.ReplaceAllString(line, " "), "")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func fnCents(_ *evaluator, args []any) (any, error) {
	if err := arity("cents", args, 1, 1); err != nil {
		return nil, err
	}
	f, ok := args[0].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid argument %s for cents()", Str(args[0]))
	}
	return math.Floor(f*100 + 0.5), nil
}

func fnChosen(ev *evaluator, args []any) (any, error) {
	if err := arity("chosen", args, 1, 1); err != nil {
		return nil, err
	}
	variable := Str(args[0])
	answer, ok := ev.vars[variable]
	if !ok {
		return nil, fmt.Errorf("a variable '%s' is not defined", variable)
	}
	rule, ok := ev.vars["rule"]
	if !ok {
		return nil, fmt.Errorf("a variable 'rule' is not defined")
	}
	questions, _ := property(rule, "questions")
	question, _ := property(questions, variable)
	if IsUndefined(question) || question == nil {
		return nil, fmt.Errorf("cannot find variable '%s' from questions of the rule", variable)
	}
	askValue, _ := property(question, "ask")
	ask, ok := askValue.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot reverse map question when looking for chosen '%s'", variable)
	}
	var matches []string
	for _, label := range sortedKeys(ask) {
		if equal(normalize(ask[label]), normalize(answer)) {
			matches = append(matches, label)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("unable to find any matches for answer %s of question '%s'", Str(answer), variable)
	}
	return strings.Join(matches, ", "), nil
}

func fnConcat(_ *evaluator, args []any) (any, error) {
	if err := arity("concat", args, 1, 3); err != nil {
		return nil, err
	}
	list, ok := normalize(args[0]).([]any)
	if !ok {
		return nil, fmt.Errorf("invalid argument %s for concat()", Str(args[0]))
	}
	field := ""
	if f, ok := arg(args, 1).(string); ok {
		field = f
	}
	sep := "\n"
	if s, ok := arg(args, 2).(string); ok && s != "" {
		sep = s
	}
	var parts []string
	for _, v := range list {
		if field != "" {
			v, _ = property(v, field)
		}
		if Truthy(v) {
			parts = append(parts, Str(v))
		}
	}
	return strings.Join(parts, sep), nil
}

func fnContains(_ *evaluator, args []any) (any, error) {
	if err := arity("contains", args, 2, 2); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("expected a string but got %s", typeName(args[0]))
	}
	return strings.Contains(s, Str(args[1])), nil
}

// fnDebug logs its arguments and returns the last one.
func fnDebug(ev *evaluator, args []any) (any, error) {
	ev.engine.logger.Debug().Interface("args", args).Msg("rule debug")
	if len(args) == 0 {
		return Undefined, nil
	}
	return args[len(args)-1], nil
}

func fnHas(_ *evaluator, args []any) (any, error) {
	if err := arity("has", args, 2, 2); err != nil {
		return nil, err
	}
	list, ok := normalize(args[0]).([]any)
	if !ok {
		return nil, fmt.Errorf("invalid argument %s for has()", Str(args[0]))
	}
	for _, e := range list {
		if equal(normalize(e), args[1]) {
			return true, nil
		}
	}
	return false, nil
}

func fnIsCurrency(_ *evaluator, args []any) (any, error) {
	if err := arity("isCurrency", args, 1, 1); err != nil {
		return nil, err
	}
	return domain.IsCurrency(Str(args[0])), nil
}

func fnJoin(_ *evaluator, args []any) (any, error) {
	var parts []string
	for _, a := range args {
		if a == nil || IsUndefined(a) {
			continue
		}
		if s := strings.TrimSpace(Str(a)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}

func fnNum(ev *evaluator, args []any) (any, error) {
	if err := arity("num", args, 1, 1); err != nil {
		return nil, err
	}
	return ev.num(args[0]), nil
}

func (ev *evaluator) num(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	f, ok := domain.ParseNumber(Str(v))
	if !ok {
		if !ev.engine.quiet {
			ev.engine.logger.Warn().Str("value", Str(v)).Msg("unable to parse number")
		}
		return math.NaN()
	}
	return f
}

func fnPar(_ *evaluator, args []any) (any, error) {
	var parts []string
	for _, a := range args {
		if a == nil || IsUndefined(a) || a == false {
			continue
		}
		if s := strings.TrimSpace(Str(a)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " (" + strings.Join(parts, ", ") + ")", nil
}

func fnRates(ev *evaluator, args []any) (any, error) {
	out := map[string]any{}
	for i := 0; i < len(args); i += 2 {
		out[Str(args[i])] = ev.num(arg(args, i+1))
	}
	return out, nil
}

// fnRegex returns the match groups, or a boolean when the pattern has none.
func fnRegex(_ *evaluator, args []any) (any, error) {
	if err := arity("regex", args, 2, 3); err != nil {
		return nil, err
	}
	pattern := Str(args[0])
	if flags, ok := arg(args, 2).(string); ok {
		var inline []rune
		for _, f := range flags {
			if strings.ContainsRune(regexFlagSet, f) {
				inline = append(inline, f)
			}
		}
		if len(inline) > 0 {
			pattern = "(?" + string(inline) + ")" + pattern
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %v", Str(args[0]), err)
	}
	subject := Str(args[1])
	idx := re.FindStringSubmatchIndex(subject)
	if idx == nil {
		return false, nil
	}
	var groups []any
	for i := 1; 2*i+1 < len(idx); i++ {
		if idx[2*i] < 0 {
			break
		}
		groups = append(groups, subject[idx[2*i]:idx[2*i+1]])
	}
	if len(groups) == 0 {
		return true, nil
	}
	return groups, nil
}

func fnStr(_ *evaluator, args []any) (any, error) {
	return Str(arg(args, 0)), nil
}

func parseLeadingInt(v any) (float64, bool) {
	m := leadingInt.FindString(strings.TrimSpace(Str(v)))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(n), true
}

func fnSum(_ *evaluator, args []any) (any, error) {
	if err := arity("sum", args, 1, 2); err != nil {
		return nil, err
	}
	list, ok := normalize(args[0]).([]any)
	if !ok {
		return nil, fmt.Errorf("invalid argument %s for sum()", Str(args[0]))
	}
	field, _ := arg(args, 1).(string)
	var total float64
	for _, v := range list {
		if field != "" {
			v, _ = property(v, field)
		}
		if !Truthy(v) {
			continue
		}
		if n, ok := parseLeadingInt(v); ok {
			total += n
		}
	}
	return total, nil
}

func fnTimes(_ *evaluator, args []any) (any, error) {
	if err := arity("times", args, 1, 2); err != nil {
		return nil, err
	}
	count := args[0]
	if count == nil || IsUndefined(count) {
		return "", nil
	}
	if f, ok := count.(float64); ok && f == 0 {
		return "", nil
	}
	n, ok := parseLeadingInt(count)
	if !ok {
		return "NaN x " + Str(arg(args, 1)), nil
	}
	return formatNumber(n) + " x " + Str(arg(args, 1)), nil
}
