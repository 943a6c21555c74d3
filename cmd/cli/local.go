package main

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/goimport/internal/adapter/connector"
	"github.com/iho/goimport/internal/adapter/http/dto"
	postgresRepo "github.com/iho/goimport/internal/adapter/repository/postgres"
	"github.com/iho/goimport/internal/adapter/repository/sqlite"
	"github.com/iho/goimport/internal/adapter/source"
	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/infrastructure/settings"
	"github.com/iho/goimport/internal/tui"
	"github.com/iho/goimport/internal/usecase"
)

// maxRounds bounds the questions asked in one offline run.
const maxRounds = 100

func localCmd(a *app) *cobra.Command {
	var (
		configFile  string
		dbPath      string
		name        string
		assignments []string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "local FILE...",
		Short: "Import files offline into an in-memory ledger",
		Long: `Runs the whole import without a server. Processes are kept in a SQLite
database, accounts and rates come from the ledger section of the settings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := a.logger()
			if dbPath == "" {
				dbPath = a.settings.Database
			}

			store, err := sqlite.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			idGen := postgresRepo.NewULIDGenerator()
			ledger, err := newLedger(a.settings.Ledger, idGen)
			if err != nil {
				return err
			}
			handlers, err := source.Handlers(a.settings.Sources, ledger, log)
			if err != nil {
				return err
			}
			uc := usecase.NewProcessUseCase(store, sqlite.NewProcessRepository(store), connector.NewLogNotifier(log), idGen, log)
			for _, h := range handlers {
				if err := uc.Register(h); err != nil {
					return err
				}
			}

			input, err := localInput(args, configFile, name, assignments, a.settings.ProcessDefaults())
			if err != nil {
				return err
			}

			runner := &localRunner{uc: uc, ledger: ledger, out: a.out, theme: a.theme}
			if interactive {
				runner.ask = func(el *domain.Element) (map[string]any, error) {
					return tui.Ask(a.theme, el)
				}
			}
			process, err := runner.run(ctx, input)
			if err != nil {
				return err
			}
			return runner.summary(ctx, process)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "process configuration as JSON")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database of the processes (default from settings)")
	cmd.Flags().StringVar(&name, "name", "", "process name (default: first file name)")
	cmd.Flags().StringArrayVar(&assignments, "set", nil, "answer or setting as name=value (repeatable)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "ask the questions in the terminal")
	return cmd
}

// newLedger seeds an in-memory ledger from the settings.
func newLedger(s settings.Ledger, idGen usecase.IDGenerator) (*connector.MemoryConnector, error) {
	ledger := connector.NewMemoryConnector(idGen)
	accounts, err := s.ParsedAccounts()
	if err != nil {
		return nil, err
	}
	for number, addrs := range accounts {
		ledger.AddAccount(number, addrs...)
	}
	for _, r := range s.Rates {
		t, typ, rate, err := r.Parse()
		if err != nil {
			return nil, err
		}
		ledger.AddRate(t, typ, r.Asset, r.Currency, rate)
	}
	if s.VAT != "" {
		vat, err := decimal.NewFromString(s.VAT)
		if err != nil {
			return nil, fmt.Errorf("%w: VAT %q", domain.ErrInvalidArgument, s.VAT)
		}
		ledger.SetVAT(vat)
	}
	return ledger, nil
}

// localInput builds the process input. Answers given on the command line are
// stored in the configuration so they are never asked.
func localInput(paths []string, configFile, name string, assignments []string, defaults map[string]any) (usecase.CreateProcessInput, error) {
	files, err := readFiles(paths)
	if err != nil {
		return usecase.CreateProcessInput{}, err
	}
	config, err := settings.ReadProcessConfig(configFile)
	if err != nil {
		return usecase.CreateProcessInput{}, err
	}
	values, err := tui.ParseAssignments(assignments)
	if err != nil {
		return usecase.CreateProcessInput{}, err
	}
	actions, err := tui.Actions(values)
	if err != nil {
		return usecase.CreateProcessInput{}, err
	}
	for _, action := range actions {
		if action.Configure != nil {
			config.Merge(action.Configure)
		}
		if action.Answer != nil {
			config.MergeAnswers(action.Answer)
		}
	}
	req := &dto.CreateProcessRequest{Name: name, Config: config, Files: files}
	return req.ToUseCaseInput(defaults)
}

// localRunner drives a process until it completes or waits for answers
// nobody is there to give.
type localRunner struct {
	uc     *usecase.ProcessUseCase
	ledger *connector.MemoryConnector
	out    io.Writer
	theme  tui.Theme
	ask    func(el *domain.Element) (map[string]any, error)
}

func (r *localRunner) run(ctx context.Context, input usecase.CreateProcessInput) (*domain.Process, error) {
	process, err := r.uc.CreateProcess(ctx, input)
	if err != nil {
		return nil, err
	}
	if process, err = r.continueRun(ctx, process); err != nil {
		return nil, err
	}

	for round := 0; round < maxRounds && process.Status == domain.ProcessStatusWaiting && r.ask != nil; round++ {
		step, err := r.uc.GetCurrentStep(ctx, process.ID)
		if err != nil {
			return nil, err
		}
		if step.Directions == nil || step.Directions.Element == nil {
			return process, nil
		}
		el := step.Directions.Element
		fmt.Fprintln(r.out, tui.RenderElement(r.theme, el))

		var actions []*domain.ImportAction
		switch {
		case tui.NeedsRuleEditor(el):
			return process, nil
		case tui.WantsRetry(el):
			actions = []*domain.ImportAction{{Retry: true}}
		default:
			values, err := r.ask(el)
			if err != nil {
				return nil, err
			}
			if actions, err = tui.Actions(values); err != nil {
				return nil, err
			}
		}
		if len(actions) == 0 {
			return process, nil
		}
		for _, action := range actions {
			if process, err = r.uc.Input(ctx, process.ID, action); err != nil {
				return nil, err
			}
			if process, err = r.continueRun(ctx, process); err != nil {
				return nil, err
			}
		}
	}
	return process, nil
}

func (r *localRunner) continueRun(ctx context.Context, process *domain.Process) (*domain.Process, error) {
	if !process.CanRun() {
		return process, nil
	}
	return r.uc.Run(ctx, process.ID)
}

func (r *localRunner) summary(ctx context.Context, process *domain.Process) error {
	fmt.Fprintf(r.out, "%s  %s\n", r.theme.Title.Render(process.Name), tui.StatusStyle(r.theme, process.Status).Render(string(process.Status)))
	fmt.Fprintf(r.out, "ID: %s\n", process.ID)
	if process.Error != "" {
		fmt.Fprintln(r.out, r.theme.Error.Render(firstLine(process.Error)))
	}

	step, err := r.uc.GetCurrentStep(ctx, process.ID)
	if err != nil {
		return err
	}
	if step.State != nil && step.State.Output != nil {
		o := step.State.Output
		fmt.Fprintf(r.out, "Created: %d  Duplicates: %d  Ignored: %d  Skipped: %d\n", o.Created, o.Duplicates, o.Ignored, o.Skipped)
	}
	for _, tx := range r.ledger.Transactions(process.ID) {
		fmt.Fprintf(r.out, "  %s  #%s\n", tx.Date.Format("2006-01-02"), tx.ID)
		for _, e := range tx.Entries {
			fmt.Fprintf(r.out, "      %-8s %12s  %s\n", e.Account, domain.FromCents(e.Amount).StringFixed(2), e.Description)
		}
	}
	if process.Status == domain.ProcessStatusWaiting && step.Directions != nil {
		fmt.Fprintln(r.out, tui.RenderDirections(r.theme, step.Directions))
		fmt.Fprintln(r.out, r.theme.Muted.Render("Run again with --interactive or give the answers with --set name=value."))
	}
	return nil
}
