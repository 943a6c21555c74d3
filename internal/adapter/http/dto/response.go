package dto

import (
	"time"

	"github.com/iho/goimport/internal/domain"
)

// FileResponse describes an attached file without its content.
type FileResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Encoding string `json:"encoding"`
	Size     int    `json:"size"`
}

// ProcessResponse represents a process in API responses.
type ProcessResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Status      domain.ProcessStatus `json:"status"`
	Complete    bool                 `json:"complete"`
	Successful  *bool                `json:"successful,omitempty"`
	CurrentStep *int                 `json:"current_step,omitempty"`
	Error       string               `json:"error,omitempty"`
	Config      domain.ProcessConfig `json:"config"`
	Files       []FileResponse       `json:"files,omitempty"`
	Step        *StepResponse        `json:"step,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// ProcessFromDomain converts a process and optionally its current step.
func ProcessFromDomain(p *domain.Process, step *domain.ProcessStep) *ProcessResponse {
	resp := &ProcessResponse{
		ID:          p.ID,
		Name:        p.Name,
		Status:      p.Status,
		Complete:    p.Complete,
		Successful:  p.Successful,
		CurrentStep: p.CurrentStep,
		Error:       p.Error,
		Config:      p.Config,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for _, f := range p.Files {
		resp.Files = append(resp.Files, FileResponse{
			ID:       f.ID,
			Name:     f.Name,
			Type:     f.Type,
			Encoding: string(f.Encoding),
			Size:     len(f.Data),
		})
	}
	if step != nil {
		resp.Step = StepFromDomain(step)
	}
	return resp
}

// ProcessesFromDomain converts processes to list entries.
func ProcessesFromDomain(processes []*domain.Process) []*ProcessResponse {
	result := make([]*ProcessResponse, len(processes))
	for i, p := range processes {
		result[i] = ProcessFromDomain(p, nil)
	}
	return result
}

// StepResponse represents a process step in API responses.
type StepResponse struct {
	ID         string               `json:"id"`
	Number     int                  `json:"number"`
	Handler    string               `json:"handler"`
	Stage      domain.ImportStage   `json:"stage,omitempty"`
	Directions *domain.Directions   `json:"directions,omitempty"`
	Action     *domain.ImportAction `json:"action,omitempty"`
	Output     *domain.ApplyResults `json:"output,omitempty"`
	State      *domain.ImportState  `json:"state,omitempty"`
	Started    time.Time            `json:"started"`
	Finished   *time.Time           `json:"finished,omitempty"`
}

// StepFromDomain converts a step leaving out its full state.
func StepFromDomain(s *domain.ProcessStep) *StepResponse {
	resp := &StepResponse{
		ID:         s.ID,
		Number:     s.Number,
		Handler:    s.Handler,
		Directions: s.Directions,
		Action:     s.Action,
		Started:    s.Started,
		Finished:   s.Finished,
	}
	if s.State != nil {
		resp.Stage = s.State.Stage
		resp.Output = s.State.Output
	}
	return resp
}

// StepWithStateFromDomain converts a step including its state.
func StepWithStateFromDomain(s *domain.ProcessStep) *StepResponse {
	resp := StepFromDomain(s)
	resp.State = s.State
	return resp
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
