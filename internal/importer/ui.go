package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iho/goimport/internal/domain"
)

// UI builds the questions asked when the import lacks information.
// Methods named Ask* return a *domain.AskUIError.
type UI struct {
	connector  Connector
	translator *Translator
	logger     zerolog.Logger
}

func NewUI(connector Connector, translator *Translator, logger zerolog.Logger) *UI {
	return &UI{connector: connector, translator: translator, logger: logger}
}

func (ui *UI) t(ctx context.Context, text, language string) string {
	return ui.translator.Translate(ctx, text, language)
}

func wrapLevel(n int) *int {
	return &n
}

// Submit returns a button posting the answers.
func (ui *UI) Submit(ctx context.Context, label string, objectWrapLevel int, language string) *domain.Element {
	errorMessage := ui.t(ctx, "Saving failed", language)
	successMessage := ui.t(ctx, "Saved successfully", language)
	if label == "Retry" {
		errorMessage = ui.t(ctx, "Retry failed", language)
		successMessage = ui.t(ctx, "Retried successfully", language)
	}
	return &domain.Element{
		Type:  domain.ElementButton,
		Label: label,
		Actions: map[string]*domain.ElementAction{
			"onClick": {
				Type:            "post",
				URL:             "",
				ObjectWrapLevel: wrapLevel(objectWrapLevel),
				ErrorMessage:    errorMessage,
				SuccessMessage:  successMessage,
			},
		},
	}
}

func (ui *UI) Message(text, severity string) *domain.Element {
	return &domain.Element{Type: domain.ElementMessage, Severity: severity, Text: text}
}

func flat(elements ...*domain.Element) *domain.Element {
	return &domain.Element{Type: domain.ElementFlat, Elements: elements}
}

// ConfigOrAsk returns a configured value or asks it with the element.
func (ui *UI) ConfigOrAsk(ctx context.Context, config domain.ProcessConfig, variable string, element *domain.Element) (any, error) {
	if config.Has(variable) {
		return config[variable], nil
	}
	return nil, domain.AskUI(flat(element, ui.Submit(ctx, "Continue", 1, config.Language())))
}

// Boolean returns a yes/no setting, asking it when not yet configured.
func (ui *UI) Boolean(ctx context.Context, config domain.ProcessConfig, variable, description string) (bool, error) {
	v, err := ui.ConfigOrAsk(ctx, config, variable, &domain.Element{
		Type:    domain.ElementYesNo,
		Name:    "configure." + variable,
		Label:   ui.t(ctx, description, config.Language()),
		Actions: map[string]*domain.ElementAction{},
	})
	if err != nil {
		return false, err
	}
	if b, ok := config.Bool(variable); ok {
		return b, nil
	}
	switch x := v.(type) {
	case float64:
		return x != 0, nil
	case string:
		return x != "", nil
	}
	return true, nil
}

// CashAccount returns the contra account used by the rule editor.
func (ui *UI) CashAccount(ctx context.Context, config domain.ProcessConfig) (string, error) {
	_, err := ui.ConfigOrAsk(ctx, config, domain.ConfigCashAccount, &domain.Element{
		Type:    domain.ElementAccount,
		Name:    "configure." + domain.ConfigCashAccount,
		Label:   ui.t(ctx, "Select contra account for imported transactions, i.e. cash account.", config.Language()),
		Filter:  map[string]any{"type": "ASSET"},
		Actions: map[string]*domain.ElementAction{},
	})
	if err != nil {
		return "", err
	}
	return config.String(domain.ConfigCashAccount), nil
}

// AskedRenaming returns the answer telling whether an asset has been renamed.
func (ui *UI) AskedRenaming(ctx context.Context, config domain.ProcessConfig, segment *domain.ImportSegment, typ domain.AssetType, asset string) (bool, error) {
	variable := fmt.Sprintf("hasBeenRenamed.%s.%s", typ, asset)
	v, ok := config.SegmentAnswer(segment.ID, variable)
	if !ok || v == nil {
		return false, domain.AskUI(ui.Message(fmt.Sprintf(
			"Asset renaming question not implemented (avoid error for now by setting answer '%s' for segment '%s').",
			variable, segment.ID), domain.SeverityError))
	}
	b, _ := v.(bool)
	return b, nil
}

// AccountLabel describes an account address for a human.
func (ui *UI) AccountLabel(ctx context.Context, addr domain.AccountAddress, language string) string {
	text := ui.t(ctx, fmt.Sprintf("account-%s-%s", addr.Reason(), addr.Type()), language)
	name := addr.Asset()
	if addr.Type() == domain.TypeStatement {
		switch addr.Reason() {
		case domain.ReasonIncome, domain.ReasonExpense, domain.ReasonTax:
			name = ui.t(ctx, fmt.Sprintf("%s-%s", addr.Reason(), addr.Asset()), language)
		}
	}
	return strings.Replace(text, "{asset}", name, 1)
}

// AccountFilter restricts the account selector by account type.
func AccountFilter(addr domain.AccountAddress) map[string]any {
	switch addr.Reason() {
	case "debt":
		return map[string]any{"type": []any{"ASSET", "LIABILITY"}}
	case domain.ReasonDeposit, domain.ReasonTrade, domain.ReasonWithdrawal:
		return map[string]any{"type": "ASSET"}
	case domain.ReasonFee:
		return map[string]any{"type": "EXPENSE"}
	}
	return nil
}

// Account returns a selector for the account of an address. Without a default
// the connector is asked for candidates.
func (ui *UI) Account(ctx context.Context, config domain.ProcessConfig, addr domain.AccountAddress, defaultAccount string) (*domain.Element, error) {
	el := &domain.Element{
		Type:    domain.ElementAccount,
		Name:    "configure." + addr.ConfigKey(),
		Label:   ui.AccountLabel(ctx, addr, config.Language()),
		Filter:  AccountFilter(addr),
		Actions: map[string]*domain.ElementAction{},
	}
	if defaultAccount != "" {
		el.DefaultValue = defaultAccount
		return el, nil
	}
	candidates, err := ui.connector.AccountCandidates(ctx, addr, config)
	if err != nil {
		return nil, fmt.Errorf("account candidates for %s: %w", addr, err)
	}
	if len(candidates) > 0 {
		el.DefaultValue = candidates[0]
		if len(candidates) > 1 {
			el.Preferred = candidates
		}
	}
	return el, nil
}

// AskAccount asks for the account of a single address.
func (ui *UI) AskAccount(ctx context.Context, config domain.ProcessConfig, addr domain.AccountAddress) error {
	account, err := ui.Account(ctx, config, addr, "")
	if err != nil {
		return err
	}
	return domain.AskUI(flat(account, ui.Submit(ctx, "Continue", 1, config.Language())))
}

// AskDebtAccount offers a separate debt account for an account going negative.
func (ui *UI) AskDebtAccount(ctx context.Context, config domain.ProcessConfig, account string, addr domain.AccountAddress) error {
	language := config.Language()
	message := ui.Message(ui.t(ctx, "The account below has negative balance. If you want to record it to the separate debt account, please select another account below.", language), domain.SeverityInfo)
	selector, err := ui.Account(ctx, config, addr.DebtAddress(), account)
	if err != nil {
		return err
	}
	return domain.AskUI(flat(message, selector, ui.Submit(ctx, "Continue", 1, language)))
}

// AccountGroup asks accounts of the same reason and type, allowing one
// account for all of them.
func (ui *UI) AccountGroup(ctx context.Context, config domain.ProcessConfig, addrs []domain.AccountAddress) (*domain.Element, error) {
	first := addrs[0]
	variable := fmt.Sprintf("grouping.%s.%s", first.Reason(), first.Type())
	var separate []*domain.Element
	for _, addr := range addrs {
		el, err := ui.Account(ctx, config, addr, "")
		if err != nil {
			return nil, err
		}
		separate = append(separate, el)
	}
	shared, err := ui.Account(ctx, config, first.Wildcard(), "")
	if err != nil {
		return nil, err
	}
	return flat(
		&domain.Element{
			Type:         domain.ElementBoolean,
			Name:         variable,
			Label:        ui.t(ctx, "Do you want to use the same account for all of them?", config.Language()),
			DefaultValue: false,
			Actions:      map[string]*domain.ElementAction{},
		},
		&domain.Element{
			Type:      domain.ElementCase,
			Condition: variable,
			Cases: map[string]*domain.Element{
				"true":  shared,
				"false": flat(separate...),
			},
		},
	), nil
}

// AskRetry shows an error with a retry button.
func (ui *UI) AskRetry(ctx context.Context, message, language string) error {
	return domain.AskUI(flat(ui.Message(message, domain.SeverityError), ui.Submit(ctx, "Retry", 0, language)))
}

// ParseQuery renders a rule question.
func (ui *UI) ParseQuery(ctx context.Context, name string, query *domain.UIQuery, language string) (*domain.Element, error) {
	label := func(def string) string {
		if query.Label != "" {
			return query.Label
		}
		return ui.t(ctx, def, language)
	}
	switch {
	case query.Ask != nil:
		return &domain.Element{
			Type:    domain.ElementRadio,
			Name:    name,
			Label:   label("Select one of the following:"),
			Options: query.Ask,
			Actions: map[string]*domain.ElementAction{},
		}, nil
	case query.ChooseTag != nil:
		return &domain.Element{
			Type:    domain.ElementTags,
			Name:    name,
			Label:   label("Select one of the following:"),
			Single:  true,
			Options: query.ChooseTag,
			Actions: map[string]*domain.ElementAction{},
		}, nil
	case query.Text:
		return &domain.Element{
			Type:    domain.ElementText,
			Name:    name,
			Label:   label("Please enter text:"),
			Actions: map[string]*domain.ElementAction{},
		}, nil
	}
	return nil, fmt.Errorf("%w: unable to parse UI from query %+v", domain.ErrSystemError, *query)
}

// Query renders questions with the lines they are about and a submit button.
func (ui *UI) Query(ctx context.Context, name string, queries []*domain.UIQuery, lines []*domain.TextFileLine, language string) (*domain.Element, error) {
	var elements []*domain.Element
	if len(lines) > 0 {
		elements = append(elements, ui.DescribeLines(ctx, lines, language))
	}
	for _, q := range queries {
		el, err := ui.ParseQuery(ctx, name, q, language)
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}
	elements = append(elements, ui.Submit(ctx, "Continue", 2, language))
	return flat(elements...), nil
}

// DescribeLines shows the imported lines a question is about.
func (ui *UI) DescribeLines(ctx context.Context, lines []*domain.TextFileLine, language string) *domain.Element {
	elements := []*domain.Element{{
		Type: domain.ElementHTML,
		HTML: "<strong>" + ui.t(ctx, "Based on the following imported lines", language) + "</strong>",
	}}
	for _, line := range lines {
		elements = append(elements, &domain.Element{Type: domain.ElementTextFileLine, Line: line})
	}
	return &domain.Element{Type: domain.ElementBox, Elements: elements}
}

// AskRuleEditor opens the rule editor for lines no rule matched.
func (ui *UI) AskRuleEditor(ctx context.Context, lines []*domain.TextFileLine, config domain.ProcessConfig, options Options) error {
	cash, err := ui.CashAccount(ctx, config)
	if err != nil {
		return err
	}
	return domain.AskUI(&domain.Element{
		Type: domain.ElementRuleEditor,
		Name: "once",
		Actions: map[string]*domain.ElementAction{
			"onContinue":   {Type: "post", URL: ""},
			"onCreateRule": {Type: "post", URL: "/rule"},
		},
		Config:      config,
		Lines:       lines,
		Options:     options,
		CashAccount: cash,
	})
}
