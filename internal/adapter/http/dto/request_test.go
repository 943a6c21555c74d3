package dto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/domain"
)

func TestCreateProcessRequest_ToUseCaseInput(t *testing.T) {
	defaults := map[string]any{"currency": "EUR", "language": "en"}

	t.Run("fills defaults", func(t *testing.T) {
		req := &CreateProcessRequest{
			Config: map[string]any{"language": "fi"},
			Files:  []FileRequest{{Name: "jan.csv", Data: "a,b\n1,2\n"}},
		}
		got, err := req.ToUseCaseInput(defaults)
		require.NoError(t, err)
		assert.Equal(t, "jan.csv", got.Name)
		assert.Equal(t, "EUR", got.Config.Currency())
		assert.Equal(t, "fi", got.Config.Language())
		require.Len(t, got.Files, 1)
		assert.Equal(t, domain.EncodingUTF8, got.Files[0].Encoding)
	})

	tests := []struct {
		name    string
		request *CreateProcessRequest
		wantErr error
	}{
		{
			name:    "no files",
			request: &CreateProcessRequest{Name: "empty"},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "long name",
			request: &CreateProcessRequest{Name: strings.Repeat("x", 300), Files: []FileRequest{{Name: "a.csv"}}},
			wantErr: domain.ErrInvalidProcessName,
		},
		{
			name:    "bad currency",
			request: &CreateProcessRequest{Name: "p", Config: map[string]any{"currency": "XYZ1"}, Files: []FileRequest{{Name: "a.csv"}}},
			wantErr: domain.ErrInvalidCurrency,
		},
		{
			name:    "bad encoding",
			request: &CreateProcessRequest{Name: "p", Files: []FileRequest{{Name: "a.csv", Encoding: "zip"}}},
			wantErr: domain.ErrInvalidEncoding,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.request.ToUseCaseInput(defaults)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestActionRequest_ToDomain(t *testing.T) {
	req := &ActionRequest{Answer: map[string]map[string]any{"seg-1": {"account.expense.statement.FOOD": "4000"}}}
	action := req.ToDomain()
	require.NoError(t, action.Validate())
	assert.Equal(t, "4000", action.Answer["seg-1"]["account.expense.statement.FOOD"])

	assert.Error(t, (&ActionRequest{}).ToDomain().Validate())
	assert.Equal(t, domain.OpAnalysis, (&ActionRequest{Op: "analysis"}).ToDomain().Op)
}

func TestProcessFromDomain(t *testing.T) {
	step := 2
	process := &domain.Process{
		ID:          "p1",
		Name:        "January",
		Status:      domain.ProcessStatusWaiting,
		CurrentStep: &step,
		Files:       []*domain.ProcessFile{{ID: "f1", Name: "jan.csv", Encoding: domain.EncodingUTF8, Data: "abc"}},
	}
	current := &domain.ProcessStep{
		ID:         "s2",
		Number:     2,
		Handler:    "Bank",
		State:      &domain.ImportState{Stage: domain.StageClassified},
		Directions: domain.UIDirections(&domain.Element{Type: "flat"}),
	}

	resp := ProcessFromDomain(process, current)
	assert.Equal(t, "p1", resp.ID)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, 3, resp.Files[0].Size)
	require.NotNil(t, resp.Step)
	assert.Equal(t, domain.StageClassified, resp.Step.Stage)
	assert.Nil(t, resp.Step.State)

	assert.NotNil(t, StepWithStateFromDomain(current).State)
	assert.Len(t, ProcessesFromDomain([]*domain.Process{process, process}), 2)
}
