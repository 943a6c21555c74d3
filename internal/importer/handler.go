package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/rules"
)

// Handler drives the import of one source through its stages.
type Handler struct {
	source     Source
	connector  Connector
	translator *Translator
	ui         *UI
	classifier *Classifier
	logger     zerolog.Logger
}

func NewHandler(source Source, connector Connector, logger zerolog.Logger) *Handler {
	logger = logger.With().Str("handler", source.Name()).Logger()
	translator := NewTranslator(connector, logger)
	ui := NewUI(connector, translator, logger)
	engine := rules.NewEngine(logger, false)
	return &Handler{
		source:     source,
		connector:  connector,
		translator: translator,
		ui:         ui,
		classifier: NewClassifier(engine, ui, connector, source.Options(), logger),
		logger:     logger,
	}
}

func (h *Handler) Name() string {
	return h.source.Name()
}

func (h *Handler) CanHandle(file *domain.ProcessFile) bool {
	return h.source.CanHandle(file)
}

// CanAppend tells whether files can be added to a running process.
func (h *Handler) CanAppend(files []*domain.ProcessFile) bool {
	return false
}

func (h *Handler) exchange() string {
	return strings.TrimSuffix(h.source.Name(), "Import")
}

// StartingState splits the files into lines.
func (h *Handler) StartingState(files []*domain.ProcessFile) (*domain.ImportState, error) {
	state := &domain.ImportState{Stage: domain.StageInitial, Files: map[string]*domain.ImportFile{}}
	for _, file := range files {
		text, err := file.Decode()
		if err != nil {
			return nil, err
		}
		text = strings.TrimRight(text, "\r\n")
		parts := strings.Split(text, "\n")
		lines := make([]*domain.TextFileLine, 0, len(parts))
		for n, part := range parts {
			lines = append(lines, &domain.TextFileLine{
				Text:    strings.TrimSuffix(part, "\r"),
				Line:    n,
				Columns: map[string]string{},
			})
		}
		state.Files[file.Name] = &domain.ImportFile{Lines: lines}
	}
	return state, nil
}

// CheckCompletion returns true once the results are executed and nil while
// the import is still in progress.
func (h *Handler) CheckCompletion(state *domain.ImportState) *bool {
	if state.Stage == domain.StageExecuted {
		done := true
		return &done
	}
	return nil
}

// Directions tells what to do next in the current stage.
func (h *Handler) Directions(ctx context.Context, state *domain.ImportState, config domain.ProcessConfig) (*domain.Directions, error) {
	switch state.Stage {
	case domain.StageInitial:
		return domain.ActionDirections(domain.OpSegmentation), nil
	case domain.StageSegmented:
		return domain.ActionDirections(domain.OpClassification), nil
	case domain.StageClassified:
		directions, err := h.needInputForAnalysis(ctx, state, config)
		if err != nil || directions != nil {
			return directions, err
		}
		return domain.ActionDirections(domain.OpAnalysis), nil
	case domain.StageAnalyzed:
		return domain.ActionDirections(domain.OpExecution), nil
	}
	return nil, fmt.Errorf("%w: cannot find directions from the current state %q", domain.ErrBadState, state.Stage)
}

// Action executes an action and returns the new state. Configuration and
// answers are stored into the process config without changing the state.
func (h *Handler) Action(ctx context.Context, process *domain.Process, action *domain.ImportAction, state *domain.ImportState) (*domain.ImportState, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	switch {
	case action.Retry:
		process.Status = domain.ProcessStatusIncomplete
		process.Error = ""
		return state, nil
	case action.Op != "":
		next, err := state.Clone()
		if err != nil {
			return nil, err
		}
		return h.op(ctx, process, action.Op, next)
	case action.Configure != nil:
		process.Config.Assign(action.Configure)
		return state, nil
	case action.Answer != nil:
		process.Config.MergeAnswers(action.Answer)
		return state, nil
	case action.Rollback:
		return h.Rollback(ctx, process, state)
	}
	return nil, fmt.Errorf("%w: unknown action %s", domain.ErrBadState, describe(action))
}

func (h *Handler) op(ctx context.Context, process *domain.Process, op domain.ImportOp, state *domain.ImportState) (*domain.ImportState, error) {
	start := time.Now()
	logger := h.logger.With().Str("process_id", process.ID).Str("op", string(op)).Logger()
	var err error
	switch op {
	case domain.OpSegmentation:
		err = h.segmentation(ctx, state)
	case domain.OpClassification:
		err = h.classification(ctx, state, process.Config)
	case domain.OpAnalysis:
		err = h.analysis(ctx, state, process.Config)
	case domain.OpExecution:
		err = h.execution(ctx, process, state)
	default:
		err = fmt.Errorf("%w: unknown operation %q", domain.ErrBadState, op)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug().Dur("duration", time.Since(start)).Str("stage", string(state.Stage)).Msg("operation done")
	return state, nil
}

func (h *Handler) segmentation(ctx context.Context, state *domain.ImportState) error {
	opts := h.source.Options()
	if parser, ok := h.source.(LineParser); ok {
		if err := parser.ParseLines(ctx, state); err != nil {
			return err
		}
	} else {
		if opts.CSV == nil {
			return fmt.Errorf("%w: no CSV options defined", domain.ErrSystemError)
		}
		if err := ParseCSV(state, *opts.CSV); err != nil {
			return err
		}
	}
	if err := GroupBySegment(state, h.source); err != nil {
		return err
	}
	if err := PostProcessLines(state, opts); err != nil {
		return err
	}
	state.Stage = domain.StageSegmented
	h.logger.Debug().Int("segments", len(state.Segments)).Msg("segmentation done")
	return nil
}

func (h *Handler) classification(ctx context.Context, state *domain.ImportState, config domain.ProcessConfig) error {
	run := h.classifier.Run()
	custom, hasCustom := h.source.(LineClassifier)
	state.Result = map[domain.SegmentID][]*domain.TransactionDescription{}
	for _, segment := range state.SortedSegments() {
		lines := state.Lines(segment.ID)
		var (
			desc *domain.TransactionDescription
			err  error
		)
		if hasCustom {
			desc, err = custom.ClassifyLines(ctx, lines, config, segment)
		} else {
			desc, err = run.ClassifyLines(ctx, lines, config, segment)
		}
		if err != nil {
			return err
		}
		state.Result[segment.ID] = []*domain.TransactionDescription{desc}
	}
	state.Stage = domain.StageClassified
	return nil
}

// needInputForAnalysis finds accounts the analysis cannot resolve and asks
// them all at once.
func (h *Handler) needInputForAnalysis(ctx context.Context, state *domain.ImportState, config domain.ProcessConfig) (*domain.Directions, error) {
	if state.Result == nil || state.Segments == nil {
		return nil, nil
	}
	analyzer := NewAnalyzer(h.exchange(), h.connector, h.ui, h.translator, config.Clone(), state, h.logger)
	missing := map[domain.AccountAddress]bool{}

	ids := make([]string, 0, len(state.Result))
	for id := range state.Result {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	for _, sid := range ids {
		id := domain.SegmentID(sid)
		segment, ok := state.Segments[id]
		if !ok {
			segment = &domain.ImportSegment{ID: id}
		}
		for _, desc := range state.Result[id] {
			_, found, err := analyzer.CollectAccounts(segment, desc, true)
			if err != nil {
				return nil, err
			}
			for _, addr := range found {
				missing[addr] = true
			}
		}

		for _, addr := range sortedAddresses(missing) {
			if v, ok := config.SegmentAnswer(id, addr.ConfigKey()); ok && v != nil {
				delete(missing, addr)
				continue
			}
			query, ok := analyzer.AccountQuery(addr)
			if !ok {
				continue
			}
			lines := state.Lines(id)
			element, err := h.ui.Query(ctx, fmt.Sprintf("answer.%s.%s", id, addr.ConfigKey()), []*domain.UIQuery{query}, lines, config.Language())
			if err != nil {
				return nil, err
			}
			return domain.UIDirections(element), nil
		}
	}

	if len(missing) == 0 {
		return nil, nil
	}
	h.logger.Info().Int("accounts", len(missing)).Msg("need to configure some accounts")
	return h.directionsForMissingAccounts(ctx, missing, config)
}

func sortedAddresses(set map[domain.AccountAddress]bool) []domain.AccountAddress {
	out := make([]domain.AccountAddress, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// directionsForMissingAccounts asks the missing accounts, grouped with the
// already configured accounts of the same reason and type.
func (h *Handler) directionsForMissingAccounts(ctx context.Context, missing map[domain.AccountAddress]bool, config domain.ProcessConfig) (*domain.Directions, error) {
	pairs := map[string]map[domain.AccountAddress]bool{}
	add := func(addr domain.AccountAddress) {
		key := fmt.Sprintf("%s.%s", addr.Reason(), addr.Type())
		if pairs[key] == nil {
			pairs[key] = map[domain.AccountAddress]bool{}
		}
		pairs[key][addr] = true
	}
	for key := range config {
		if !strings.HasPrefix(key, "account.") {
			continue
		}
		addr, err := domain.ParseAccountAddress(strings.TrimPrefix(key, "account."))
		if err != nil || addr.IsWildcard() {
			continue
		}
		add(addr)
	}
	for addr := range missing {
		add(addr)
	}

	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var elements []*domain.Element
	for _, key := range keys {
		addrs := sortedAddresses(pairs[key])
		if len(addrs) == 1 {
			if missing[addrs[0]] {
				el, err := h.ui.Account(ctx, config, addrs[0], "")
				if err != nil {
					return nil, err
				}
				elements = append(elements, el)
			}
			continue
		}
		count := 0
		for _, addr := range addrs {
			if missing[addr] {
				count++
			}
		}
		if count > 0 {
			el, err := h.ui.AccountGroup(ctx, config, addrs)
			if err != nil {
				return nil, err
			}
			elements = append(elements, el)
		}
	}
	if len(elements) == 0 {
		return nil, nil
	}
	elements = append(elements, h.ui.Submit(ctx, "Continue", 1, config.Language()))
	return domain.UIDirections(flat(elements...)), nil
}

// firstTime returns the time of the first segment at or after the
// configured first date.
func firstTime(segments []*domain.ImportSegment, config domain.ProcessConfig) (time.Time, error) {
	var start time.Time
	if s := config.String(domain.ConfigFirstDate); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidArgument, domain.ConfigFirstDate, s)
		}
		start = t
	}
	for _, seg := range segments {
		if start.IsZero() || !seg.Time.Before(start) {
			return seg.Time, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unable to find any valid time stamps after %s", domain.ErrBadState, start.Format("2006-01-02"))
}

func (h *Handler) analysis(ctx context.Context, state *domain.ImportState, config domain.ProcessConfig) error {
	if err := h.createCustomSegments(ctx, state, config); err != nil {
		return err
	}
	analyzer := NewAnalyzer(h.exchange(), h.connector, h.ui, h.translator, config.Clone(), state, h.logger)

	if state.Result != nil && state.Segments != nil {
		segments := state.SortedSegments()
		if len(segments) > 0 {
			first, err := firstTime(segments, config)
			if err != nil {
				return err
			}
			if err := analyzer.Initialize(ctx, first); err != nil {
				return err
			}
		}
		debts := analyzer.debtAccounts()

		for _, segment := range segments {
			results, ok := state.Result[segment.ID]
			if !ok {
				return fmt.Errorf("%w: cannot find results for segment %s during analysis", domain.ErrBadState, segment.ID)
			}
			for i, desc := range results {
				if desc.Type != "transfers" {
					return fmt.Errorf("%w: cannot analyze yet type '%s'", domain.ErrNotImplemented, desc.Type)
				}
				analyzed, err := analyzer.Analyze(ctx, desc, segment, config)
				if err != nil {
					return err
				}
				if err := analyzer.CheckForLoan(analyzed, debts); err != nil {
					return err
				}
				results[i] = analyzed
			}
		}
	}
	state.Stage = domain.StageAnalyzed
	return nil
}

func (h *Handler) sortedResults(state *domain.ImportState) []domain.SegmentID {
	ids := make([]domain.SegmentID, 0, len(state.Result))
	for id := range state.Result {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := state.Segments[ids[i]], state.Segments[ids[j]]
		if a != nil && b != nil && !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (h *Handler) execution(ctx context.Context, process *domain.Process, state *domain.ImportState) error {
	output := domain.NewApplyResults()
	ids := h.sortedResults(state)
	for _, id := range ids {
		for _, res := range state.Result[id] {
			for _, tx := range res.Transactions {
				if tx.ExecutionResult == "" {
					tx.ExecutionResult = domain.ExecutionNotDone
				}
			}
		}
	}

	for _, id := range ids {
		for _, res := range state.Result[id] {
			exists, err := h.connector.ResultExists(ctx, process.ID, res)
			if err != nil {
				return fmt.Errorf("checking result of segment %s: %w", id, err)
			}
			if exists {
				allow, err := h.ui.Boolean(ctx, process.Config, domain.ConfigAllowIdenticalTx, "Allow creation of identical transactions that has been already created.")
				if err != nil {
					return err
				}
				if !allow {
					for _, tx := range res.Transactions {
						tx.ExecutionResult = domain.ExecutionDuplicate
						output.Duplicate(tx)
					}
					continue
				}
				h.logger.Info().Str("segment", string(id)).Msg("creating identical transaction since allowed in settings")
			}
			applied, err := h.connector.ApplyResult(ctx, process.ID, res)
			if err != nil {
				return fmt.Errorf("applying result of segment %s: %w", id, err)
			}
			output.Add(applied)
		}
	}
	state.Output = output
	state.Stage = domain.StageExecuted
	return nil
}

// Rollback removes the stored transactions of the process. Only executed
// imports have anything stored.
func (h *Handler) Rollback(ctx context.Context, process *domain.Process, state *domain.ImportState) (*domain.ImportState, error) {
	if state == nil || state.Stage != domain.StageExecuted {
		return nil, fmt.Errorf("%w: cannot rollback an import that has not been executed", domain.ErrBadState)
	}
	ok, err := h.connector.Rollback(ctx, process.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: rollback failed", domain.ErrSystemError)
	}
	next, err := state.Clone()
	if err != nil {
		return nil, err
	}
	for _, results := range next.Result {
		for _, res := range results {
			for _, tx := range res.Transactions {
				tx.ExecutionResult = domain.ExecutionReverted
			}
		}
	}
	next.Stage = domain.StageRolledBack
	return next, nil
}
