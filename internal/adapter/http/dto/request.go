package dto

import (
	"fmt"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/usecase"
)

// FileRequest is one file uploaded with a new process.
type FileRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Data     string `json:"data"`
}

// CreateProcessRequest represents a request to create a process.
type CreateProcessRequest struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`
	Files  []FileRequest  `json:"files"`
}

// ToUseCaseInput validates the request and converts it to use case input.
// Settings missing from the config are taken from defaults.
func (r *CreateProcessRequest) ToUseCaseInput(defaults map[string]any) (usecase.CreateProcessInput, error) {
	name := r.Name
	if name == "" && len(r.Files) > 0 {
		name = r.Files[0].Name
	}
	if err := domain.ValidateProcessName(name); err != nil {
		return usecase.CreateProcessInput{}, err
	}
	if len(r.Files) == 0 {
		return usecase.CreateProcessInput{}, fmt.Errorf("%w: no files given", domain.ErrInvalidArgument)
	}
	if len(r.Files) > domain.MaxFilesPerProcess {
		return usecase.CreateProcessInput{}, fmt.Errorf("%w: at most %d files allowed", domain.ErrInvalidArgument, domain.MaxFilesPerProcess)
	}

	config := domain.ProcessConfig{}
	for key, value := range defaults {
		config[key] = value
	}
	config.Merge(r.Config)
	if err := domain.ValidateProcessConfig(config); err != nil {
		return usecase.CreateProcessInput{}, err
	}

	files := make([]*domain.ProcessFile, len(r.Files))
	for i, f := range r.Files {
		encoding := domain.FileEncoding(f.Encoding)
		if encoding == "" {
			encoding = domain.EncodingUTF8
		}
		files[i] = &domain.ProcessFile{Name: f.Name, Type: f.Type, Encoding: encoding, Data: f.Data}
		if err := domain.ValidateFile(files[i]); err != nil {
			return usecase.CreateProcessInput{}, err
		}
	}

	return usecase.CreateProcessInput{Name: name, Config: config, Files: files}, nil
}

// ActionRequest carries an action for a process. Exactly one field is set.
type ActionRequest struct {
	Op        string                    `json:"op,omitempty"`
	Retry     bool                      `json:"retry,omitempty"`
	Configure map[string]any            `json:"configure,omitempty"`
	Answer    map[string]map[string]any `json:"answer,omitempty"`
	Rollback  bool                      `json:"rollback,omitempty"`
}

// ToDomain converts the request to an import action.
func (r *ActionRequest) ToDomain() *domain.ImportAction {
	action := &domain.ImportAction{
		Op:        domain.ImportOp(r.Op),
		Retry:     r.Retry,
		Configure: r.Configure,
		Rollback:  r.Rollback,
	}
	if r.Answer != nil {
		action.Answer = make(map[domain.SegmentID]map[string]any, len(r.Answer))
		for segment, values := range r.Answer {
			action.Answer[domain.SegmentID(segment)] = values
		}
	}
	return action
}
