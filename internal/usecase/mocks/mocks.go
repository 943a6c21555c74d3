package mocks

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/usecase"
)

// MockProcessRepository is an in-memory implementation of ProcessRepository.
// Stored values are copied so that callers cannot change them afterwards.
type MockProcessRepository struct {
	mu        sync.RWMutex
	processes map[string]*domain.Process
	steps     map[string]map[int]*domain.ProcessStep

	CreateFunc     func(ctx context.Context, tx usecase.Transaction, process *domain.Process) error
	UpdateFunc     func(ctx context.Context, tx usecase.Transaction, process *domain.Process) error
	CreateStepFunc func(ctx context.Context, tx usecase.Transaction, step *domain.ProcessStep) error
	UpdateStepFunc func(ctx context.Context, tx usecase.Transaction, step *domain.ProcessStep) error
}

func NewMockProcessRepository() *MockProcessRepository {
	return &MockProcessRepository{
		processes: make(map[string]*domain.Process),
		steps:     make(map[string]map[int]*domain.ProcessStep),
	}
}

func (m *MockProcessRepository) Create(ctx context.Context, tx usecase.Transaction, process *domain.Process) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, process)
	}
	return m.put(process)
}

func (m *MockProcessRepository) Update(ctx context.Context, tx usecase.Transaction, process *domain.Process) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tx, process)
	}
	m.mu.RLock()
	_, ok := m.processes[process.ID]
	m.mu.RUnlock()
	if !ok {
		return domain.ErrProcessNotFound
	}
	return m.put(process)
}

func (m *MockProcessRepository) put(process *domain.Process) error {
	stored, err := copyProcess(process)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processes[process.ID] = stored
	return nil
}

func (m *MockProcessRepository) GetByID(ctx context.Context, id string) (*domain.Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.processes[id]; ok {
		return copyProcess(p)
	}
	return nil, domain.ErrProcessNotFound
}

func (m *MockProcessRepository) List(ctx context.Context, limit, offset int) ([]*domain.Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*domain.Process, 0, len(m.processes))
	for _, p := range m.processes {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return []*domain.Process{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MockProcessRepository) CreateStep(ctx context.Context, tx usecase.Transaction, step *domain.ProcessStep) error {
	if m.CreateStepFunc != nil {
		return m.CreateStepFunc(ctx, tx, step)
	}
	return m.putStep(step)
}

func (m *MockProcessRepository) UpdateStep(ctx context.Context, tx usecase.Transaction, step *domain.ProcessStep) error {
	if m.UpdateStepFunc != nil {
		return m.UpdateStepFunc(ctx, tx, step)
	}
	return m.putStep(step)
}

func (m *MockProcessRepository) putStep(step *domain.ProcessStep) error {
	stored := &domain.ProcessStep{}
	if err := copyJSON(step, stored); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.steps[step.ProcessID] == nil {
		m.steps[step.ProcessID] = make(map[int]*domain.ProcessStep)
	}
	m.steps[step.ProcessID][step.Number] = stored
	return nil
}

func (m *MockProcessRepository) GetStep(ctx context.Context, processID string, number int) (*domain.ProcessStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	step, ok := m.steps[processID][number]
	if !ok {
		return nil, domain.ErrStepNotFound
	}
	out := &domain.ProcessStep{}
	if err := copyJSON(step, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StepCount returns the number of stored steps of a process.
func (m *MockProcessRepository) StepCount(processID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.steps[processID])
}

func copyProcess(p *domain.Process) (*domain.Process, error) {
	out := &domain.Process{}
	if err := copyJSON(p, out); err != nil {
		return nil, err
	}
	out.Files = make([]*domain.ProcessFile, 0, len(p.Files))
	for _, f := range p.Files {
		file := *f
		out.Files = append(out.Files, &file)
	}
	return out, nil
}

func copyJSON(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// MockProcessHandler is a mock implementation of ProcessHandler.
type MockProcessHandler struct {
	HandlerName string

	CanHandleFunc       func(file *domain.ProcessFile) bool
	CanAppendFunc       func(files []*domain.ProcessFile) bool
	StartingStateFunc   func(files []*domain.ProcessFile) (*domain.ImportState, error)
	CheckCompletionFunc func(state *domain.ImportState) *bool
	DirectionsFunc      func(ctx context.Context, state *domain.ImportState, config domain.ProcessConfig) (*domain.Directions, error)
	ActionFunc          func(ctx context.Context, process *domain.Process, action *domain.ImportAction, state *domain.ImportState) (*domain.ImportState, error)
	RollbackFunc        func(ctx context.Context, process *domain.Process, state *domain.ImportState) (*domain.ImportState, error)
}

func (m *MockProcessHandler) Name() string {
	return m.HandlerName
}

func (m *MockProcessHandler) CanHandle(file *domain.ProcessFile) bool {
	if m.CanHandleFunc != nil {
		return m.CanHandleFunc(file)
	}
	return true
}

func (m *MockProcessHandler) CanAppend(files []*domain.ProcessFile) bool {
	if m.CanAppendFunc != nil {
		return m.CanAppendFunc(files)
	}
	return false
}

func (m *MockProcessHandler) StartingState(files []*domain.ProcessFile) (*domain.ImportState, error) {
	if m.StartingStateFunc != nil {
		return m.StartingStateFunc(files)
	}
	return &domain.ImportState{Stage: domain.StageInitial, Files: map[string]*domain.ImportFile{}}, nil
}

func (m *MockProcessHandler) CheckCompletion(state *domain.ImportState) *bool {
	if m.CheckCompletionFunc != nil {
		return m.CheckCompletionFunc(state)
	}
	return nil
}

func (m *MockProcessHandler) Directions(ctx context.Context, state *domain.ImportState, config domain.ProcessConfig) (*domain.Directions, error) {
	if m.DirectionsFunc != nil {
		return m.DirectionsFunc(ctx, state, config)
	}
	return nil, nil
}

func (m *MockProcessHandler) Action(ctx context.Context, process *domain.Process, action *domain.ImportAction, state *domain.ImportState) (*domain.ImportState, error) {
	if m.ActionFunc != nil {
		return m.ActionFunc(ctx, process, action, state)
	}
	return state, nil
}

func (m *MockProcessHandler) Rollback(ctx context.Context, process *domain.Process, state *domain.ImportState) (*domain.ImportState, error) {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx, process, state)
	}
	return &domain.ImportState{Stage: domain.StageRolledBack}, nil
}

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)

	mu      sync.Mutex
	commits int
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTransaction{CommitFunc: func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.commits++
		return nil
	}}, nil
}

// Commits returns the number of committed default transactions.
func (m *MockTransactionManager) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

// MockRetrier runs the operation up to Attempts times while it fails.
type MockRetrier struct {
	Attempts int
	calls    int
}

func (m *MockRetrier) Retry(ctx context.Context, operation func() error) error {
	attempts := m.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		m.calls++
		if err = operation(); err == nil {
			return nil
		}
	}
	return err
}

func (m *MockRetrier) Calls() int {
	return m.calls
}

// MockIdempotencyStore is a mock implementation of IdempotencyStore.
type MockIdempotencyStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	CheckAndSetFunc func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	UpdateFunc      func(ctx context.Context, key string, response []byte, ttl time.Duration) error
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{
		data: make(map[string][]byte),
	}
}

func (m *MockIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	if m.CheckAndSetFunc != nil {
		return m.CheckAndSetFunc(ctx, key, response, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.data[key]; ok {
		return true, existing, nil
	}
	if response != nil {
		m.data[key] = response
	} else {
		m.data[key] = []byte("processing")
	}
	return false, nil, nil
}

func (m *MockIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, key, response, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = response
	return nil
}
