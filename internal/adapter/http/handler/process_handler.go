package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/iho/goimport/internal/adapter/http/dto"
	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/infrastructure/logging"
	"github.com/iho/goimport/internal/usecase"
)

// ProcessService defines the behavior needed by ProcessHandler.
type ProcessService interface {
	CreateProcess(ctx context.Context, input usecase.CreateProcessInput) (*domain.Process, error)
	Run(ctx context.Context, id string) (*domain.Process, error)
	Input(ctx context.Context, id string, action *domain.ImportAction) (*domain.Process, error)
	GetProcess(ctx context.Context, id string) (*domain.Process, error)
	GetCurrentStep(ctx context.Context, id string) (*domain.ProcessStep, error)
	GetStep(ctx context.Context, id string, number int) (*domain.ProcessStep, error)
	ListProcesses(ctx context.Context, limit, offset int) ([]*domain.Process, error)
}

// ProcessHandler handles process-related HTTP requests.
type ProcessHandler struct {
	processUC ProcessService
	defaults  map[string]any
	maxUpload int64
	logger    zerolog.Logger
}

// NewProcessHandler creates a new ProcessHandler. Defaults are applied to the
// config of new processes.
func NewProcessHandler(processUC ProcessService, defaults map[string]any, maxUpload int64, logger zerolog.Logger) *ProcessHandler {
	if maxUpload <= 0 {
		maxUpload = domain.MaxFileSize
	}
	return &ProcessHandler{
		processUC: processUC,
		defaults:  defaults,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Create stores a new process from JSON or a multipart upload and runs it
// until it needs input or completes.
func (h *ProcessHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateProcessRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		parsed, err := h.parseMultipart(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
			return
		}
		req = *parsed
	} else if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(h.defaults)
	if err != nil {
		writeError(w, mapDomainError(err), "invalid process", err.Error())
		return
	}

	process, err := h.processUC.CreateProcess(r.Context(), input)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to create process", err.Error())
		return
	}
	ctx := logging.WithProcessID(r.Context(), process.ID)

	if process.CanRun() {
		if process, err = h.processUC.Run(ctx, process.ID); err != nil {
			writeError(w, mapDomainError(err), "failed to run process", err.Error())
			return
		}
	}

	h.respond(ctx, w, http.StatusCreated, process)
}

func (h *ProcessHandler) parseMultipart(r *http.Request) (*dto.CreateProcessRequest, error) {
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, err
	}
	req := &dto.CreateProcessRequest{Name: r.FormValue("name")}
	if raw := r.FormValue("config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Config); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	for _, header := range r.MultipartForm.File["file"] {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		req.Files = append(req.Files, dto.FileRequest{
			Name:     header.Filename,
			Type:     header.Header.Get("Content-Type"),
			Encoding: string(domain.EncodingBase64),
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return req, nil
}

// List lists processes, newest first.
func (h *ProcessHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, _ := domain.ValidatePagination(parseIntQuery(r, "limit", 0), parseIntQuery(r, "offset", 0))

	processes, err := h.processUC.ListProcesses(r.Context(), limit, offset)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to list processes", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.ProcessesFromDomain(processes))
}

// Get returns a process with its current step.
func (h *ProcessHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing process ID", "")
		return
	}

	process, err := h.processUC.GetProcess(r.Context(), id)
	if err != nil {
		writeError(w, mapDomainError(err), "process not found", err.Error())
		return
	}

	h.respond(logging.WithProcessID(r.Context(), id), w, http.StatusOK, process)
}

// Input applies an action or answers to a process and continues running it.
func (h *ProcessHandler) Input(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing process ID", "")
		return
	}
	ctx := logging.WithProcessID(r.Context(), id)

	var req dto.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	process, err := h.processUC.Input(ctx, id, req.ToDomain())
	if err != nil {
		writeError(w, mapDomainError(err), "failed to handle input", err.Error())
		return
	}
	if process.CanRun() {
		if process, err = h.processUC.Run(ctx, id); err != nil {
			writeError(w, mapDomainError(err), "failed to run process", err.Error())
			return
		}
	}

	h.respond(ctx, w, http.StatusOK, process)
}

// GetStep returns one step of a process including its state.
func (h *ProcessHandler) GetStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if id == "" || err != nil {
		writeError(w, http.StatusBadRequest, "invalid step reference", "")
		return
	}

	step, err := h.processUC.GetStep(r.Context(), id, number)
	if err != nil {
		writeError(w, mapDomainError(err), "step not found", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.StepWithStateFromDomain(step))
}

func (h *ProcessHandler) respond(ctx context.Context, w http.ResponseWriter, status int, process *domain.Process) {
	var step *domain.ProcessStep
	if process.CurrentStep != nil {
		var err error
		if step, err = h.processUC.GetCurrentStep(ctx, process.ID); err != nil {
			logger := logging.FromContext(ctx, h.logger)
			logger.Warn().Err(err).Msg("cannot load current step")
		}
	}
	writeJSON(w, status, dto.ProcessFromDomain(process, step))
}
