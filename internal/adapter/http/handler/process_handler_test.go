package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/goimport/internal/adapter/http/dto"
	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/usecase"
)

type processServiceStub struct {
	createFn  func(ctx context.Context, input usecase.CreateProcessInput) (*domain.Process, error)
	runFn     func(ctx context.Context, id string) (*domain.Process, error)
	inputFn   func(ctx context.Context, id string, action *domain.ImportAction) (*domain.Process, error)
	getFn     func(ctx context.Context, id string) (*domain.Process, error)
	stepFn    func(ctx context.Context, id string, number int) (*domain.ProcessStep, error)
	listFn    func(ctx context.Context, limit, offset int) ([]*domain.Process, error)
	runCalled int
}

func (s *processServiceStub) CreateProcess(ctx context.Context, input usecase.CreateProcessInput) (*domain.Process, error) {
	return s.createFn(ctx, input)
}

func (s *processServiceStub) Run(ctx context.Context, id string) (*domain.Process, error) {
	s.runCalled++
	return s.runFn(ctx, id)
}

func (s *processServiceStub) Input(ctx context.Context, id string, action *domain.ImportAction) (*domain.Process, error) {
	return s.inputFn(ctx, id, action)
}

func (s *processServiceStub) GetProcess(ctx context.Context, id string) (*domain.Process, error) {
	return s.getFn(ctx, id)
}

func (s *processServiceStub) GetCurrentStep(ctx context.Context, id string) (*domain.ProcessStep, error) {
	return &domain.ProcessStep{ID: "step", ProcessID: id, Number: 1, State: &domain.ImportState{Stage: domain.StageSegmented}}, nil
}

func (s *processServiceStub) GetStep(ctx context.Context, id string, number int) (*domain.ProcessStep, error) {
	return s.stepFn(ctx, id, number)
}

func (s *processServiceStub) ListProcesses(ctx context.Context, limit, offset int) ([]*domain.Process, error) {
	return s.listFn(ctx, limit, offset)
}

func runnable(id string) *domain.Process {
	zero := 0
	return &domain.Process{ID: id, Name: "January", Status: domain.ProcessStatusIncomplete, CurrentStep: &zero}
}

func waiting(id string) *domain.Process {
	one := 1
	return &domain.Process{ID: id, Name: "January", Status: domain.ProcessStatusWaiting, CurrentStep: &one}
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func newProcessHandler(svc ProcessService) *ProcessHandler {
	return NewProcessHandler(svc, map[string]any{"currency": "EUR", "language": "en"}, 0, zerolog.Nop())
}

func TestProcessHandler_Create_RunsProcess(t *testing.T) {
	var captured usecase.CreateProcessInput
	svc := &processServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateProcessInput) (*domain.Process, error) {
			captured = input
			return runnable("p1"), nil
		},
		runFn: func(ctx context.Context, id string) (*domain.Process, error) {
			return waiting(id), nil
		},
	}

	body, _ := json.Marshal(dto.CreateProcessRequest{
		Name:  "January",
		Files: []dto.FileRequest{{Name: "jan.csv", Data: "date,amount\n"}},
	})
	rec := httptest.NewRecorder()
	newProcessHandler(svc).Create(rec, httptest.NewRequest(http.MethodPost, "/process", bytes.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.runCalled != 1 {
		t.Fatalf("expected process to be run once, got %d", svc.runCalled)
	}
	if captured.Config.Currency() != "EUR" {
		t.Fatalf("expected default currency, got %+v", captured.Config)
	}

	var resp dto.ProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.ProcessStatusWaiting || resp.Step == nil || resp.Step.Number != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestProcessHandler_Create_CrashedIsNotRun(t *testing.T) {
	svc := &processServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateProcessInput) (*domain.Process, error) {
			return &domain.Process{ID: "p1", Status: domain.ProcessStatusCrashed, Error: "no handler"}, nil
		},
	}

	body := `{"name":"x","files":[{"name":"a.bin","data":"??"}]}`
	rec := httptest.NewRecorder()
	newProcessHandler(svc).Create(rec, httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if svc.runCalled != 0 {
		t.Fatalf("crashed process must not be run")
	}
}

func TestProcessHandler_Create_Multipart(t *testing.T) {
	var captured usecase.CreateProcessInput
	svc := &processServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateProcessInput) (*domain.Process, error) {
			captured = input
			return &domain.Process{ID: "p1", Status: domain.ProcessStatusSucceeded, Complete: true}, nil
		},
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("name", "Upload")
	mw.WriteField("config", `{"language":"fi"}`)
	part, _ := mw.CreateFormFile("file", "jan.csv")
	part.Write([]byte("date,amount\n2024-01-15,-12.40\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/process", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newProcessHandler(svc).Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Name != "Upload" || captured.Config.Language() != "fi" || len(captured.Files) != 1 {
		t.Fatalf("unexpected input %+v", captured)
	}
	file := captured.Files[0]
	if file.Encoding != domain.EncodingBase64 {
		t.Fatalf("expected base64 encoding, got %s", file.Encoding)
	}
	raw, _ := base64.StdEncoding.DecodeString(file.Data)
	if !strings.HasPrefix(string(raw), "date,amount") {
		t.Fatalf("unexpected file content %q", raw)
	}
}

func TestProcessHandler_Create_InvalidRequest(t *testing.T) {
	h := newProcessHandler(&processServiceStub{})

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/process", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{"name":"x","files":[]}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without files, got %d", rec.Code)
	}
}

func TestProcessHandler_Input(t *testing.T) {
	var got *domain.ImportAction
	svc := &processServiceStub{
		inputFn: func(ctx context.Context, id string, action *domain.ImportAction) (*domain.Process, error) {
			got = action
			return runnable(id), nil
		},
		runFn: func(ctx context.Context, id string) (*domain.Process, error) {
			p := runnable(id)
			p.Status = domain.ProcessStatusSucceeded
			p.Complete = true
			return p, nil
		},
	}

	body := `{"answer":{"seg-1":{"account.expense.statement.FOOD":"4000"}}}`
	req := withURLParams(httptest.NewRequest(http.MethodPost, "/process/p1", strings.NewReader(body)), map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	newProcessHandler(svc).Input(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.Answer["seg-1"]["account.expense.statement.FOOD"] != "4000" {
		t.Fatalf("answer not passed through: %+v", got)
	}
	if svc.runCalled != 1 {
		t.Fatalf("expected run after input")
	}
}

func TestProcessHandler_Input_NotRunnable(t *testing.T) {
	svc := &processServiceStub{
		inputFn: func(ctx context.Context, id string, action *domain.ImportAction) (*domain.Process, error) {
			return nil, domain.ErrProcessNotRunnable
		},
	}
	req := withURLParams(httptest.NewRequest(http.MethodPost, "/process/p1", strings.NewReader(`{"op":"analysis"}`)), map[string]string{"id": "p1"})
	rec := httptest.NewRecorder()
	newProcessHandler(svc).Input(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestProcessHandler_GetAndList(t *testing.T) {
	svc := &processServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.Process, error) {
			if id != "p1" {
				return nil, domain.ErrProcessNotFound
			}
			return waiting(id), nil
		},
		listFn: func(ctx context.Context, limit, offset int) ([]*domain.Process, error) {
			if limit != 10 || offset != 20 {
				t.Fatalf("unexpected pagination %d %d", limit, offset)
			}
			return []*domain.Process{waiting("p1"), runnable("p2")}, nil
		},
	}
	h := newProcessHandler(svc)

	rec := httptest.NewRecorder()
	h.Get(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/process/p1", nil), map[string]string{"id": "p1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/process/nope", nil), map[string]string{"id": "nope"}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/process?limit=10&offset=20", nil))
	var list []dto.ProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("unexpected list %s", rec.Body.String())
	}
}

func TestProcessHandler_GetStep(t *testing.T) {
	svc := &processServiceStub{
		stepFn: func(ctx context.Context, id string, number int) (*domain.ProcessStep, error) {
			if number > 3 {
				return nil, domain.ErrStepNotFound
			}
			return &domain.ProcessStep{ProcessID: id, Number: number, State: &domain.ImportState{Stage: domain.StageAnalyzed}}, nil
		},
	}
	h := newProcessHandler(svc)

	rec := httptest.NewRecorder()
	h.GetStep(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/process/p1/step/2", nil), map[string]string{"id": "p1", "number": "2"}))
	var step dto.StepResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &step); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if step.Number != 2 || step.State == nil || step.State.Stage != domain.StageAnalyzed {
		t.Fatalf("unexpected step %+v", step)
	}

	rec = httptest.NewRecorder()
	h.GetStep(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/process/p1/step/x", nil), map[string]string{"id": "p1", "number": "x"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.GetStep(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/process/p1/step/9", nil), map[string]string{"id": "p1", "number": "9"}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := Check{Name: "postgres", Ping: func(context.Context) error { return nil }}
	down := Check{Name: "redis", Ping: func(context.Context) error { return context.DeadlineExceeded }}

	rec := httptest.NewRecorder()
	NewHealthHandler(ok).Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewHealthHandler(ok, down).Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
