package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/rules"
)

// RulesVersion is exposed to rule expressions as `version`.
const RulesVersion = 2

// Classifier turns the lines of a segment into asset transfers using the
// rules of the process configuration.
type Classifier struct {
	engine    *rules.Engine
	ui        *UI
	connector Connector
	options   Options
	logger    zerolog.Logger
}

func NewClassifier(engine *rules.Engine, ui *UI, connector Connector, options Options, logger zerolog.Logger) *Classifier {
	return &Classifier{
		engine:    engine,
		ui:        ui,
		connector: connector,
		options:   options,
		logger:    logger.With().Str("component", "classifier").Logger(),
	}
}

// Run starts a classification run. Named questions defined during the run can
// be referenced by later rules of the same run.
func (c *Classifier) Run() *ClassificationRun {
	return &ClassificationRun{classifier: c, questions: map[string]*domain.UIQuery{}}
}

// ClassificationRun holds the state shared by the segments of one classification.
type ClassificationRun struct {
	classifier *Classifier
	questions  map[string]*domain.UIQuery
}

func (r *ClassificationRun) cachedQuery(q *domain.UIQuery) (*domain.UIQuery, error) {
	if q == nil || q.Name == "" {
		return q, nil
	}
	if q.IsReference() {
		cached, ok := r.questions[q.Name]
		if !ok {
			return nil, fmt.Errorf("%w: cannot use a reference to question '%s' before it is defined", domain.ErrBadState, q.Name)
		}
		return cached, nil
	}
	r.questions[q.Name] = q
	return q, nil
}

// answers returns the answers to rule questions, asking the missing ones.
func (r *ClassificationRun) answers(ctx context.Context, segment domain.SegmentID, lines []*domain.TextFileLine, questions map[string]*domain.UIQuery, config domain.ProcessConfig) (map[string]any, error) {
	ui := r.classifier.ui
	language := config.Language()
	given := config.Answers()[segment]
	results := map[string]any{}
	var missing []*domain.Element

	variables := make([]string, 0, len(questions))
	for v := range questions {
		variables = append(variables, v)
	}
	sort.Strings(variables)

	for _, variable := range variables {
		query, err := r.cachedQuery(questions[variable])
		if err != nil {
			return nil, err
		}
		if v, ok := given[variable]; ok {
			results[variable] = v
			continue
		}
		el, err := ui.ParseQuery(ctx, fmt.Sprintf("answer.%s.%s", segment, variable), query, language)
		if err != nil {
			return nil, err
		}
		missing = append(missing, el)
	}
	if len(missing) > 0 {
		elements := append([]*domain.Element{ui.DescribeLines(ctx, lines, language)}, missing...)
		elements = append(elements, ui.Submit(ctx, "Continue", 2, language))
		return nil, domain.AskUI(flat(elements...))
	}
	return results, nil
}

func (c *Classifier) lineValues(line *domain.TextFileLine) map[string]any {
	numeric := map[string]bool{}
	for _, name := range c.options.NumericFields {
		numeric[name] = true
	}
	out := make(map[string]any, len(line.Columns))
	for k, v := range line.Columns {
		if numeric[k] {
			if f, ok := domain.ParseNumber(v); ok {
				out[k] = f
				continue
			}
		}
		out[k] = v
	}
	return out
}

// ClassifyLines classifies one segment.
func (r *ClassificationRun) ClassifyLines(ctx context.Context, lines []*domain.TextFileLine, config domain.ProcessConfig, segment *domain.ImportSegment) (*domain.TransactionDescription, error) {
	c := r.classifier
	config = config.Clone()
	logger := c.logger.With().Str("segment", string(segment.ID)).Logger()

	questions, err := rules.LoadQuestions(config)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		if _, err := r.cachedQuery(q); err != nil {
			return nil, err
		}
	}

	if explicit, err := c.explicitResult(ctx, segment, config); explicit != nil || err != nil {
		return explicit, err
	}

	ruleList, err := rules.LoadRules(config)
	if err != nil {
		return nil, err
	}

	result, err := r.classify(ctx, lines, config, segment, ruleList, logger)
	if err != nil {
		if perr, ok := rules.IsRuleParsingError(err); ok {
			return nil, c.askRetry(ctx, perr, config.Language(), logger)
		}
		return nil, err
	}
	return result, nil
}

func (r *ClassificationRun) classify(ctx context.Context, lines []*domain.TextFileLine, config domain.ProcessConfig, segment *domain.ImportSegment, ruleList []*rules.Rule, logger zerolog.Logger) (*domain.TransactionDescription, error) {
	c := r.classifier
	lineValues := make([]map[string]any, len(lines))
	for i, line := range lines {
		lineValues[i] = c.lineValues(line)
	}

	var transfers []*domain.AssetTransfer
	matched := false
	for i, line := range lines {
		lineHasMatch := false
		for _, rule := range ruleList {
			if err := rule.Validate(); err != nil {
				return nil, err
			}
			vars := rules.Variables(lineValues[i]).With(map[string]any{
				"lines":      lineValues,
				"config":     config,
				"rule":       rule,
				"options":    rule.Options,
				"text":       line.Text,
				"lineNumber": float64(line.Line),
				"version":    float64(RulesVersion),
			})
			ok, err := c.engine.EvalBool(rule.Filter, vars)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			logger.Debug().Str("rule", rule.Name).Str("filter", rule.Filter).Int("line", line.Line).Msg("rule matches")
			matched = true
			lineHasMatch = true
			if rule.Result == nil {
				return nil, fmt.Errorf("%w: the rule %q has no result section", domain.ErrBadState, rule.Name)
			}
			answers := map[string]any{}
			if len(rule.Questions) > 0 {
				if answers, err = r.answers(ctx, segment.ID, lines, rule.Questions, config); err != nil {
					return nil, err
				}
				resolved := make(map[string]*domain.UIQuery, len(rule.Questions))
				for k, q := range rule.Questions {
					if resolved[k], err = r.cachedQuery(q); err != nil {
						return nil, err
					}
				}
				copied := *rule
				copied.Questions = resolved
				vars["rule"] = &copied
			}
			parsed, err := c.parseResults(rule, vars.With(answers), logger)
			if err != nil {
				return nil, err
			}
			transfers = append(transfers, parsed...)
			if rule.Options.SingleMatch {
				return c.postProcess(ctx, segment, domain.NewTransactionDescription(transfers...))
			}
			break
		}
		if !lineHasMatch {
			return nil, c.ui.AskRuleEditor(ctx, lines, config, c.options)
		}
	}
	if len(transfers) > 0 {
		return c.postProcess(ctx, segment, domain.NewTransactionDescription(transfers...))
	}
	data, _ := json.Marshal(lines)
	if matched {
		return nil, fmt.Errorf("%w: found matches but the result list is empty for %s", domain.ErrBadState, data)
	}
	return nil, fmt.Errorf("%w: could not find rules matching %s", domain.ErrBadState, data)
}

func (c *Classifier) explicitResult(ctx context.Context, segment *domain.ImportSegment, config domain.ProcessConfig) (*domain.TransactionDescription, error) {
	answers := config.Answers()[segment.ID]
	if answers == nil || segment.ID == "" {
		return nil, nil
	}
	if raw, ok := answers["transfers"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: explicit transfers of segment %s must be a list", domain.ErrBadState, segment.ID)
		}
		transfers := make([]*domain.AssetTransfer, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: invalid explicit transfer %v in segment %s", domain.ErrBadState, item, segment.ID)
			}
			t, err := transferFromValues(m)
			if err != nil {
				return nil, err
			}
			transfers = append(transfers, t)
		}
		return c.postProcess(ctx, segment, domain.NewTransactionDescription(transfers...))
	}
	if rules.Truthy(answers["skip"]) {
		desc := domain.NewTransactionDescription()
		desc.Transactions = []*domain.Transaction{{
			Date:            segment.Time,
			SegmentID:       segment.ID,
			Entries:         []domain.TransactionLine{},
			ExecutionResult: domain.ExecutionSkipped,
		}}
		return desc, nil
	}
	return nil, nil
}

func (c *Classifier) parseResults(rule *rules.Rule, vars rules.Variables, logger zerolog.Logger) ([]*domain.AssetTransfer, error) {
	var transfers []*domain.AssetTransfer
	for i, result := range rule.Result {
		values := make(map[string]any, len(result))
		for _, name := range sortedResultFields(result) {
			v, err := c.engine.EvalValue(result[name], vars)
			if err != nil {
				return nil, err
			}
			values[name] = v
		}
		if cond, ok := values["if"]; ok {
			if s, isString := cond.(string); isString {
				var err error
				if cond, err = c.engine.Eval(s, vars); err != nil {
					return nil, err
				}
			}
			if !rules.Truthy(cond) {
				logger.Debug().Str("rule", rule.Name).Int("result", i).Msg("dropped due to condition")
				continue
			}
		}
		t, err := transferFromValues(values)
		if err != nil {
			logger.Error().Str("rule", rule.Name).Interface("result", values).Msg("failing rule result")
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, nil
}

func sortedResultFields(r rules.RuleResult) []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (c *Classifier) askRetry(ctx context.Context, perr *rules.RuleParsingError, language string, logger zerolog.Logger) error {
	ev := logger.Error().Str("expression", perr.Expression).Str("error", perr.Message)
	if text, ok := perr.Variables["text"]; ok {
		ev = ev.Interface("line", text).Interface("lineNumber", perr.Variables["lineNumber"])
	}
	if rule, ok := perr.Variables["rule"].(*rules.Rule); ok {
		ev = ev.Str("rule", rule.Name)
	}
	ev.Msg("parsing error in rule expression")

	msg := c.ui.t(ctx, "Parsing error in expression `{expr}`: {message}", language)
	msg = strings.Replace(msg, "{expr}", perr.Expression, 1)
	msg = strings.Replace(msg, "{message}", perr.Message, 1)
	return c.ui.AskRetry(ctx, msg, language)
}

var vatReasons = map[domain.TransferReason]bool{
	domain.ReasonDividend: true,
	domain.ReasonIncome:   true,
	domain.ReasonExpense:  true,
}

// postProcess adds VAT legs for income and expenses in a single currency.
func (c *Classifier) postProcess(ctx context.Context, segment *domain.ImportSegment, result *domain.TransactionDescription) (*domain.TransactionDescription, error) {
	currencies := map[string]bool{}
	for _, t := range result.Transfers {
		if vatReasons[t.Reason] && t.Type == domain.TypeCurrency {
			currencies[t.Asset] = true
		}
	}
	if len(currencies) > 1 {
		return nil, fmt.Errorf("%w: not yet able to sort out VAT for multiple different currencies in %s", domain.ErrSystemError, describe(result.Transfers))
	}
	if len(currencies) == 0 {
		return result, nil
	}
	var currency string
	for k := range currencies {
		currency = k
	}

	var vatTransfers []*domain.AssetTransfer
	for _, t := range result.Transfers {
		var vatPct, vatValue *decimal.Decimal
		if t.Data != nil && t.Data.VAT != nil {
			vatPct = t.Data.VAT
		} else {
			pct, err := c.connector.VAT(ctx, segment.Time, t, currency)
			if err != nil {
				return nil, err
			}
			vatPct = pct
		}
		if t.Data != nil {
			vatValue = t.Data.VATValue
		}
		hasPct := vatPct != nil && !vatPct.IsZero()
		hasValue := vatValue != nil && !vatValue.IsZero()
		if !(hasPct || hasValue) || t.Amount == nil || t.Amount.IsZero() {
			continue
		}
		oldAmount := domain.Cents(*t.Amount)
		var newAmount int64
		if vatValue != nil {
			newAmount = oldAmount - domain.Cents(*vatValue)
		} else {
			divisor := decimal.NewFromInt(1).Add(vatPct.Div(decimal.NewFromInt(100)))
			newAmount = domain.RoundHalfUp(t.Amount.Mul(decimal.NewFromInt(100)).Div(divisor))
		}
		t.SetAmount(domain.FromCents(newAmount))
		vat := oldAmount - newAmount
		asset := "VAT_FROM_SALES"
		if vat > 0 {
			asset = "VAT_FROM_PURCHASES"
		}
		vatAmount := domain.FromCents(vat)
		entry := &domain.AssetTransfer{
			Reason: domain.ReasonTax,
			Type:   domain.TypeStatement,
			Asset:  asset,
			Amount: &vatAmount,
			Data:   &domain.TransferData{Currency: currency},
		}
		if t.Tags != nil {
			entry.Tags = append([]string{}, t.Tags...)
		}
		vatTransfers = append(vatTransfers, entry)
	}
	result.Transfers = append(result.Transfers, vatTransfers...)
	return result, nil
}

func describe(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// transferFromValues builds a transfer from evaluated rule result fields.
func transferFromValues(values map[string]any) (*domain.AssetTransfer, error) {
	incomplete := func() error {
		return fmt.Errorf("%w: asset transfer %s is incomplete", domain.ErrBadState, describe(values))
	}
	if !rules.Truthy(values["reason"]) || !rules.Truthy(values["type"]) || !rules.Truthy(values["asset"]) {
		return nil, incomplete()
	}
	t := &domain.AssetTransfer{
		Reason: domain.TransferReason(rules.Str(values["reason"])),
		Type:   domain.AssetType(rules.Str(values["type"])),
		Asset:  rules.Str(values["asset"]),
	}
	if t.Asset == "undefined" || t.Asset == "null" {
		return nil, incomplete()
	}

	if raw, ok := values["data"]; ok && raw != nil && !rules.IsUndefined(raw) {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid data in %s: %v", domain.ErrBadState, describe(values), err)
		}
		data := &domain.TransferData{}
		if err := json.Unmarshal(encoded, data); err != nil {
			return nil, fmt.Errorf("%w: invalid data in %s: %v", domain.ErrBadState, describe(values), err)
		}
		t.Data = data
	}

	raw, ok := values["amount"]
	if !ok || rules.IsUndefined(raw) {
		if t.Data == nil || t.Data.Currency == "" || t.Data.CurrencyValue == nil {
			return nil, fmt.Errorf("%w: invalid transfer amount undefined in %s, use null to denote an amount to be calculated", domain.ErrBadState, describe(values))
		}
	} else if raw != nil {
		amount, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid amount in %s: %v", domain.ErrBadState, describe(values), err)
		}
		t.Amount = &amount
	}

	if raw, ok := values["value"]; ok && raw != nil && !rules.IsUndefined(raw) {
		v, err := toDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid value in %s: %v", domain.ErrBadState, describe(values), err)
		}
		t.SetValue(domain.RoundHalfUp(v))
	}
	if raw, ok := values["text"]; ok && rules.Truthy(raw) {
		t.Text = rules.Str(raw)
	}
	tags, err := bundleTags(values["tags"])
	if err != nil {
		return nil, err
	}
	t.Tags = tags
	return t, nil
}

// bundleTags accepts a tag list, a `[A][B]` string or an object whose
// truthy keys are the tags.
func bundleTags(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if rules.Truthy(x) {
				out = append(out, rules.Str(x))
			}
		}
		return out, nil
	case []string:
		return v, nil
	case map[string]any:
		out := make([]string, 0, len(v))
		for k, x := range v {
			if rules.Truthy(x) {
				out = append(out, k)
			}
		}
		sort.Strings(out)
		return out, nil
	case string:
		tags, rest := domain.ExtractTags(v)
		if rest != "" {
			return nil, fmt.Errorf("%w: invalid tags %q", domain.ErrBadState, v)
		}
		if tags == nil {
			tags = []string{}
		}
		return tags, nil
	}
	if rules.IsUndefined(raw) {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: invalid tags %s", domain.ErrBadState, describe(raw))
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case float64:
		if x != x {
			return decimal.Zero, errors.New("not a number")
		}
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case decimal.Decimal:
		return x, nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		f, ok := domain.ParseNumber(x)
		if !ok {
			return decimal.Zero, fmt.Errorf("cannot parse number %q", x)
		}
		return decimal.NewFromFloat(f), nil
	}
	return decimal.Zero, fmt.Errorf("unexpected amount %v", v)
}
