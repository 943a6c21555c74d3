package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iho/goimport/internal/domain"
)

// ProcessUseCase drives processes through the steps of their handler.
//
// Every action produces a new step holding the resulting state. A step with
// immediate directions is executed by Run, a step waiting for UI input stays
// until Input is called and a finished step completes the process.
type ProcessUseCase struct {
	txManager TransactionManager
	repo      ProcessRepository
	notifier  ProcessNotifier
	idGen     IDGenerator
	retrier   Retrier
	metrics   MetricsRecorder
	logger    zerolog.Logger
	now       func() time.Time

	handlers []ProcessHandler
}

// NewProcessUseCase creates a new ProcessUseCase.
func NewProcessUseCase(
	txManager TransactionManager,
	repo ProcessRepository,
	notifier ProcessNotifier,
	idGen IDGenerator,
	logger zerolog.Logger,
) *ProcessUseCase {
	return &ProcessUseCase{
		txManager: txManager,
		repo:      repo,
		notifier:  notifier,
		idGen:     idGen,
		logger:    logger.With().Str("component", "process").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetRetrier retries persistence of steps on transient database errors.
func (uc *ProcessUseCase) SetRetrier(retrier Retrier) {
	uc.retrier = retrier
}

func (uc *ProcessUseCase) SetMetrics(metrics MetricsRecorder) {
	uc.metrics = metrics
}

// Register adds a handler. Handlers are tried in registration order when a
// process is created.
func (uc *ProcessUseCase) Register(handler ProcessHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: a handler was undefined", domain.ErrInvalidArgument)
	}
	name := handler.Name()
	if name == "" {
		return fmt.Errorf("%w: a handler without name cannot be registered", domain.ErrInvalidArgument)
	}
	if len(name) > MaxHandlerNameLength {
		return fmt.Errorf("%w: the handler name '%s' is too long", domain.ErrInvalidArgument, name)
	}
	if uc.handler(name) != nil {
		return fmt.Errorf("%w: the handler '%s' is already defined", domain.ErrInvalidArgument, name)
	}
	uc.handlers = append(uc.handlers, handler)
	return nil
}

// Handlers returns the names of the registered handlers.
func (uc *ProcessUseCase) Handlers() []string {
	names := make([]string, 0, len(uc.handlers))
	for _, h := range uc.handlers {
		names = append(names, h.Name())
	}
	return names
}

func (uc *ProcessUseCase) handler(name string) ProcessHandler {
	for _, h := range uc.handlers {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// CreateProcessInput represents input for creating a process.
type CreateProcessInput struct {
	Name   string
	Config domain.ProcessConfig
	Files  []*domain.ProcessFile
}

// CreateProcess stores a new process with its initial step. A process that
// cannot be started is stored as crashed rather than returned as an error.
func (uc *ProcessUseCase) CreateProcess(ctx context.Context, input CreateProcessInput) (*domain.Process, error) {
	now := uc.now()
	process := domain.NewProcess(input.Name, input.Config.Clone())
	process.ID = uc.idGen.Generate()
	process.CreatedAt = now
	process.UpdatedAt = now
	for _, file := range input.Files {
		file.ID = uc.idGen.Generate()
		file.ProcessID = process.ID
		file.CreatedAt = now
		process.Files = append(process.Files, file)
	}
	logger := uc.logger.With().Str("process_id", process.ID).Logger()

	handler, err := uc.selectHandler(process.Files)
	var state *domain.ImportState
	if err == nil {
		state, err = handler.StartingState(process.Files)
	}
	if err != nil {
		uc.crash(process, nil, err)
		if err := uc.save(ctx, func(tx Transaction) error {
			return uc.repo.Create(ctx, tx, process)
		}); err != nil {
			return nil, err
		}
		uc.notify(ctx, process, nil)
		return process, nil
	}

	step := &domain.ProcessStep{
		ID:        uc.idGen.Generate(),
		ProcessID: process.ID,
		Number:    0,
		Handler:   handler.Name(),
		State:     state,
		Started:   now,
	}
	zero := 0
	process.CurrentStep = &zero
	uc.findDirections(ctx, handler, process, step)
	uc.updateStatus(process, step)

	if err := uc.save(ctx, func(tx Transaction) error {
		if err := uc.repo.Create(ctx, tx, process); err != nil {
			return err
		}
		return uc.repo.CreateStep(ctx, tx, step)
	}); err != nil {
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.RecordProcessCreated(handler.Name())
	}
	logger.Info().Str("handler", handler.Name()).Int("files", len(process.Files)).Msg("created process")
	uc.notify(ctx, process, step)
	return process, nil
}

func (uc *ProcessUseCase) selectHandler(files []*domain.ProcessFile) (ProcessHandler, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files given to create a process", domain.ErrInvalidArgument)
	}
	first := files[0]
	for _, h := range uc.handlers {
		if !h.CanHandle(first) {
			continue
		}
		if len(files) > 1 && !h.CanAppend(files[1:]) {
			return nil, fmt.Errorf("%w: the files following %s cannot be appended to handler '%s'", domain.ErrInvalidArgument, first.Name, h.Name())
		}
		return h, nil
	}
	return nil, fmt.Errorf("%w: no handler found for the file %s of type %s", domain.ErrInvalidArgument, first.Name, first.Type)
}

// Run executes immediate directions until the process waits for input,
// completes, crashes or MaxRunsPerCall actions have been taken.
func (uc *ProcessUseCase) Run(ctx context.Context, id string) (*domain.Process, error) {
	process, step, handler, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !process.CanRun() {
		return process, fmt.Errorf("%w: %s is %s", domain.ErrProcessNotRunnable, process, process.Status)
	}
	logger := uc.logger.With().Str("process_id", process.ID).Logger()

	for runs := 0; ; runs++ {
		if runs >= MaxRunsPerCall {
			logger.Error().Int("runs", runs).Msg("maximum number of executions reached")
			break
		}
		if step.Directions == nil {
			logger.Debug().Msg("no new directions")
			break
		}
		if !step.Directions.IsImmediate() {
			logger.Info().Int("step", step.Number).Msg("waiting for more input")
			break
		}
		action := step.Directions.Action
		next, err := uc.execute(ctx, handler, process, action, step)
		if err != nil {
			return process, uc.crashed(ctx, process, step, err)
		}
		if step, err = uc.proceedToState(ctx, handler, process, step, action, next); err != nil {
			return nil, err
		}
		if process.Error != "" {
			break
		}
	}
	return process, nil
}

// Input applies an action coming from outside, typically configuration or
// answers for the question the process is waiting for.
func (uc *ProcessUseCase) Input(ctx context.Context, id string, action *domain.ImportAction) (*domain.Process, error) {
	if err := action.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if action.Rollback {
		return uc.Rollback(ctx, id)
	}
	process, step, handler, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if process.Status == domain.ProcessStatusRolledBack || (process.Complete && !action.Retry) {
		return process, fmt.Errorf("%w: %s is %s", domain.ErrProcessNotRunnable, process, process.Status)
	}
	uc.logger.Info().Str("process_id", process.ID).Interface("action", action).Msg("handling input")

	next, err := uc.execute(ctx, handler, process, action, step)
	if err != nil {
		return process, uc.crashed(ctx, process, step, err)
	}
	if _, err := uc.proceedToState(ctx, handler, process, step, action, next); err != nil {
		return nil, err
	}
	return process, nil
}

// Rollback undoes the stored results of the process. The process cannot be
// run after that.
func (uc *ProcessUseCase) Rollback(ctx context.Context, id string) (*domain.Process, error) {
	process, step, handler, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if step.Number < 1 {
		return nil, fmt.Errorf("%w: cannot rollback when there is only initial step in the process", domain.ErrBadState)
	}
	if process.Status == domain.ProcessStatusRolledBack {
		return process, fmt.Errorf("%w: %s is already rolled back", domain.ErrProcessNotRunnable, process)
	}
	if step.State == nil || step.State.Stage != domain.StageExecuted {
		return process, fmt.Errorf("%w: cannot rollback %s before it has been executed", domain.ErrBadState, process)
	}
	logger := uc.logger.With().Str("process_id", process.ID).Int("step", step.Number).Logger()
	logger.Info().Msg("rolling back")

	state, err := handler.Rollback(ctx, process, step.State)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	step.Action = &domain.ImportAction{Rollback: true}
	step.Finished = &now
	next := uc.nextStep(handler, step, state)
	next.Finished = &now
	process.CurrentStep = &next.Number
	process.Status = domain.ProcessStatusRolledBack
	process.UpdatedAt = now

	if err := uc.saveProgress(ctx, process, step, next); err != nil {
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.RecordStatus(process.Status)
	}
	logger.Info().Msg("rolled back")
	return process, nil
}

func (uc *ProcessUseCase) GetProcess(ctx context.Context, id string) (*domain.Process, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *ProcessUseCase) GetStep(ctx context.Context, id string, number int) (*domain.ProcessStep, error) {
	if number < 0 {
		return nil, fmt.Errorf("%w: invalid step number %d", domain.ErrInvalidArgument, number)
	}
	return uc.repo.GetStep(ctx, id, number)
}

// GetCurrentStep returns the latest step of the process.
func (uc *ProcessUseCase) GetCurrentStep(ctx context.Context, id string) (*domain.ProcessStep, error) {
	_, step, _, err := uc.load(ctx, id)
	return step, err
}

func (uc *ProcessUseCase) ListProcesses(ctx context.Context, limit, offset int) ([]*domain.Process, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return uc.repo.List(ctx, limit, offset)
}

func (uc *ProcessUseCase) load(ctx context.Context, id string) (*domain.Process, *domain.ProcessStep, ProcessHandler, error) {
	process, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if process.CurrentStep == nil {
		return nil, nil, nil, fmt.Errorf("%w: %s has invalid current step", domain.ErrBadState, process)
	}
	step, err := uc.repo.GetStep(ctx, process.ID, *process.CurrentStep)
	if err != nil {
		return nil, nil, nil, err
	}
	handler := uc.handler(step.Handler)
	if handler == nil {
		return nil, nil, nil, fmt.Errorf("%w: handler '%s' is not registered", domain.ErrSystemError, step.Handler)
	}
	return process, step, handler, nil
}

func (uc *ProcessUseCase) execute(
	ctx context.Context,
	handler ProcessHandler,
	process *domain.Process,
	action *domain.ImportAction,
	step *domain.ProcessStep,
) (*domain.ImportState, error) {
	start := time.Now()
	next, err := handler.Action(ctx, process, action, step.State)
	if uc.metrics != nil && action.Op != "" {
		uc.metrics.RecordStep(handler.Name(), action.Op, time.Since(start), err)
	}
	return next, err
}

func (uc *ProcessUseCase) nextStep(handler ProcessHandler, current *domain.ProcessStep, state *domain.ImportState) *domain.ProcessStep {
	return &domain.ProcessStep{
		ID:        uc.idGen.Generate(),
		ProcessID: current.ProcessID,
		Number:    current.Number + 1,
		Handler:   handler.Name(),
		State:     state,
		Started:   uc.now(),
	}
}

// proceedToState finishes the current step with the action taken and stores
// a new step for the resulting state.
func (uc *ProcessUseCase) proceedToState(
	ctx context.Context,
	handler ProcessHandler,
	process *domain.Process,
	current *domain.ProcessStep,
	action *domain.ImportAction,
	state *domain.ImportState,
) (*domain.ProcessStep, error) {
	now := uc.now()
	current.Action = action
	current.Finished = &now

	next := uc.nextStep(handler, current, state)
	process.CurrentStep = &next.Number
	process.UpdatedAt = now
	uc.findDirections(ctx, handler, process, next)
	uc.updateStatus(process, next)

	if err := uc.saveProgress(ctx, process, current, next); err != nil {
		return nil, err
	}
	uc.logger.Debug().Str("process_id", process.ID).Int("step", next.Number).Str("stage", string(state.Stage)).Msg("proceeded to new step")
	uc.notify(ctx, process, next)
	return next, nil
}

// findDirections completes the process or sets the directions of the step.
func (uc *ProcessUseCase) findDirections(ctx context.Context, handler ProcessHandler, process *domain.Process, step *domain.ProcessStep) {
	if result := handler.CheckCompletion(step.State); result != nil {
		now := uc.now()
		step.Directions = nil
		step.Action = nil
		step.Finished = &now
		process.Complete = true
		process.Successful = result
		return
	}
	directions, err := handler.Directions(ctx, step.State, process.Config)
	if err != nil {
		uc.crash(process, step, err)
		return
	}
	step.Directions = directions
}

// crash records the error in memory. A UI question only replaces the
// directions of the step.
func (uc *ProcessUseCase) crash(process *domain.Process, step *domain.ProcessStep, err error) {
	if ask, ok := domain.IsAskUI(err); ok {
		if step != nil {
			step.Directions = domain.UIDirections(ask.Element)
		}
		uc.updateStatus(process, step)
		return
	}
	uc.logger.Error().Err(err).Str("process_id", process.ID).Msg("processing failed")
	if step != nil {
		now := uc.now()
		step.Finished = &now
	}
	process.Error = fmt.Sprintf("%+v", errors.WithStack(err))
	uc.updateStatus(process, step)
}

// crashed records the error of an action and stores the outcome.
func (uc *ProcessUseCase) crashed(ctx context.Context, process *domain.Process, step *domain.ProcessStep, err error) error {
	uc.crash(process, step, err)
	process.UpdatedAt = uc.now()
	if err := uc.save(ctx, func(tx Transaction) error {
		if err := uc.repo.UpdateStep(ctx, tx, step); err != nil {
			return err
		}
		return uc.repo.Update(ctx, tx, process)
	}); err != nil {
		return err
	}
	uc.notify(ctx, process, step)
	return nil
}

// updateStatus derives the status from the error, the completion and the
// directions of the current step.
func (uc *ProcessUseCase) updateStatus(process *domain.Process, step *domain.ProcessStep) {
	status := domain.ProcessStatusIncomplete
	switch {
	case process.Error != "":
		status = domain.ProcessStatusCrashed
	case step != nil:
		if step.Finished != nil && process.Successful != nil {
			if *process.Successful {
				status = domain.ProcessStatusSucceeded
			} else {
				status = domain.ProcessStatusFailed
			}
		}
		if step.Directions != nil {
			if step.Directions.IsImmediate() {
				status = domain.ProcessStatusIncomplete
			} else {
				status = domain.ProcessStatusWaiting
			}
		}
	}
	if process.Status != status {
		uc.logger.Info().Str("process_id", process.ID).Str("status", string(status)).Msg("process status changed")
		if uc.metrics != nil {
			uc.metrics.RecordStatus(status)
		}
	}
	process.Status = status
}

// notify reports settled statuses. Notification failures are logged only.
func (uc *ProcessUseCase) notify(ctx context.Context, process *domain.Process, step *domain.ProcessStep) {
	if uc.notifier == nil {
		return
	}
	var err error
	switch process.Status {
	case domain.ProcessStatusSucceeded:
		err = uc.notifier.Success(ctx, process, step.State)
	case domain.ProcessStatusCrashed:
		err = uc.notifier.Fail(ctx, process, process.Error)
	case domain.ProcessStatusFailed:
		err = uc.notifier.Fail(ctx, process, "process was not successful")
	case domain.ProcessStatusWaiting:
		err = uc.notifier.Waiting(ctx, process, step.State, step.Directions)
	}
	if err != nil {
		uc.logger.Warn().Err(err).Str("process_id", process.ID).Msg("notification failed")
	}
}

func (uc *ProcessUseCase) saveProgress(ctx context.Context, process *domain.Process, current, next *domain.ProcessStep) error {
	return uc.save(ctx, func(tx Transaction) error {
		if err := uc.repo.UpdateStep(ctx, tx, current); err != nil {
			return err
		}
		if err := uc.repo.CreateStep(ctx, tx, next); err != nil {
			return err
		}
		return uc.repo.Update(ctx, tx, process)
	})
}

// save runs fn in a transaction, retried on transient errors when a
// retrier is set.
func (uc *ProcessUseCase) save(ctx context.Context, fn func(tx Transaction) error) error {
	operation := func() error {
		tx, err := uc.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
	if uc.retrier == nil {
		return operation()
	}
	return uc.retrier.Retry(ctx, operation)
}
