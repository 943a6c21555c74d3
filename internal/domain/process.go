package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

type ProcessStatus string

const (
	ProcessStatusIncomplete ProcessStatus = "INCOMPLETE"
	ProcessStatusWaiting    ProcessStatus = "WAITING"
	ProcessStatusSucceeded  ProcessStatus = "SUCCEEDED"
	ProcessStatusFailed     ProcessStatus = "FAILED"
	ProcessStatusCrashed    ProcessStatus = "CRASHED"
	ProcessStatusRolledBack ProcessStatus = "ROLLEDBACK"
)

type FileEncoding string

const (
	EncodingUTF8   FileEncoding = "utf-8"
	EncodingBase64 FileEncoding = "base64"
	EncodingJSON   FileEncoding = "json"
)

// ProcessFile is an input file attached to a process.
type ProcessFile struct {
	ID        string       `json:"id"`
	ProcessID string       `json:"processId"`
	Name      string       `json:"name"`
	Type      string       `json:"type,omitempty"`
	Encoding  FileEncoding `json:"encoding"`
	Data      string       `json:"data"`
	CreatedAt time.Time    `json:"created"`
}

// Decode returns the file content as text. Base64 content that is not valid
// UTF-8 is read as Latin-1.
func (f *ProcessFile) Decode() (string, error) {
	switch f.Encoding {
	case EncodingUTF8, EncodingJSON, "":
		return f.Data, nil
	case EncodingBase64:
		raw, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return "", fmt.Errorf("%w: cannot decode file %s: %v", ErrInvalidFile, f.Name, err)
		}
		if utf8.Valid(raw) {
			return strings.TrimPrefix(string(raw), "\ufeff"), nil
		}
		runes := make([]rune, len(raw))
		for i, b := range raw {
			runes[i] = rune(b)
		}
		return string(runes), nil
	default:
		return "", fmt.Errorf("%w: unsupported encoding %q for file %s", ErrInvalidFile, f.Encoding, f.Name)
	}
}

// IsTextFile reports whether the mime type is textual.
func (f *ProcessFile) IsTextFile() bool {
	return strings.HasPrefix(f.Type, "text/")
}

// FirstLineMatch checks the first line of the decoded content.
func (f *ProcessFile) FirstLineMatch(re *regexp.Regexp) bool {
	text, err := f.Decode()
	if err != nil {
		return false
	}
	first, _, _ := strings.Cut(text, "\n")
	return re.MatchString(strings.TrimRight(first, "\r"))
}

// Process is a persisted, resumable run of a handler over a set of files.
type Process struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Config      ProcessConfig  `json:"config"`
	Complete    bool           `json:"complete"`
	Successful  *bool          `json:"successful,omitempty"`
	CurrentStep *int           `json:"currentStep,omitempty"`
	Status      ProcessStatus  `json:"status"`
	Error       string         `json:"error,omitempty"`
	Files       []*ProcessFile `json:"-"`
	CreatedAt   time.Time      `json:"created"`
	UpdatedAt   time.Time      `json:"updated"`
}

// NewProcess returns an incomplete process without steps.
func NewProcess(name string, config ProcessConfig) *Process {
	if name == "" {
		name = "[no name]"
	}
	if config == nil {
		config = ProcessConfig{}
	}
	return &Process{
		Name:   name,
		Config: config,
		Status: ProcessStatusIncomplete,
	}
}

func (p *Process) String() string {
	return fmt.Sprintf("Process #%s %s", p.ID, p.Name)
}

// CanRun reports whether the process can still proceed.
func (p *Process) CanRun() bool {
	return !p.Complete && (p.Status == ProcessStatusIncomplete || p.Status == ProcessStatusWaiting)
}

// ProcessStep is an immutable snapshot of the process state.
type ProcessStep struct {
	ID         string        `json:"id"`
	ProcessID  string        `json:"processId"`
	Number     int           `json:"number"`
	Handler    string        `json:"handler"`
	State      *ImportState  `json:"state"`
	Directions *Directions   `json:"directions,omitempty"`
	Action     *ImportAction `json:"action,omitempty"`
	Started    time.Time     `json:"started"`
	Finished   *time.Time    `json:"finished,omitempty"`
}

func (s *ProcessStep) String() string {
	return fmt.Sprintf("ProcessStep %d of Process #%s", s.Number, s.ProcessID)
}

type ImportStage string

const (
	StageInitial    ImportStage = "initial"
	StageSegmented  ImportStage = "segmented"
	StageClassified ImportStage = "classified"
	StageAnalyzed   ImportStage = "analyzed"
	StageExecuted   ImportStage = "executed"
	StageRolledBack ImportStage = "rolledback"
)

// ImportState is the state carried from one step to the next.
type ImportState struct {
	Stage    ImportStage                             `json:"stage"`
	Files    map[string]*ImportFile                  `json:"files"`
	Segments map[SegmentID]*ImportSegment            `json:"segments,omitempty"`
	Result   map[SegmentID][]*TransactionDescription `json:"result,omitempty"`
	Output   *ApplyResults                           `json:"output,omitempty"`
}

// Clone returns a deep copy of the state.
func (s *ImportState) Clone() (*ImportState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot copy state: %v", ErrSystemError, err)
	}
	out := &ImportState{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%w: cannot copy state: %v", ErrSystemError, err)
	}
	return out, nil
}

// FileNames returns the file names in a stable order.
func (s *ImportState) FileNames() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lines collects the lines of a segment.
func (s *ImportState) Lines(id SegmentID) []*TextFileLine {
	segment, ok := s.Segments[id]
	if !ok {
		return nil
	}
	lines := make([]*TextFileLine, 0, len(segment.Lines))
	for _, ref := range segment.Lines {
		file, ok := s.Files[ref.File]
		if !ok || ref.Number < 0 || ref.Number >= len(file.Lines) {
			continue
		}
		lines = append(lines, file.Lines[ref.Number])
	}
	return lines
}

// SortedSegments returns the segments ordered by time, ties broken by id.
func (s *ImportState) SortedSegments() []*ImportSegment {
	out := make([]*ImportSegment, 0, len(s.Segments))
	for _, seg := range s.Segments {
		out = append(out, seg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			return out[i].ID < out[j].ID
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

type ImportOp string

const (
	OpSegmentation   ImportOp = "segmentation"
	OpClassification ImportOp = "classification"
	OpAnalysis       ImportOp = "analysis"
	OpExecution      ImportOp = "execution"
)

// ImportAction is an instruction moving the process forward. Exactly one of
// the fields is expected to be set.
type ImportAction struct {
	Op        ImportOp                     `json:"op,omitempty"`
	Retry     bool                         `json:"retry,omitempty"`
	Configure map[string]any               `json:"configure,omitempty"`
	Answer    map[SegmentID]map[string]any `json:"answer,omitempty"`
	Rollback  bool                         `json:"rollback,omitempty"`
}

// Validate checks that the action is one of the known kinds.
func (a *ImportAction) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: missing action", ErrBadState)
	}
	switch {
	case a.Op != "":
		switch a.Op {
		case OpSegmentation, OpClassification, OpAnalysis, OpExecution:
			return nil
		}
		return fmt.Errorf("%w: unknown operation %q", ErrBadState, a.Op)
	case a.Retry, a.Rollback, a.Configure != nil, a.Answer != nil:
		return nil
	}
	return fmt.Errorf("%w: action is not an import action", ErrBadState)
}

type DirectionsType string

const (
	DirectionsAction   DirectionsType = "action"
	DirectionsUI       DirectionsType = "ui"
	DirectionsComplete DirectionsType = "complete"
)

// Directions describe what can happen next to a process.
type Directions struct {
	Type    DirectionsType `json:"type"`
	Element *Element       `json:"element,omitempty"`
	Action  *ImportAction  `json:"action,omitempty"`
}

// ActionDirections returns immediate directions for an operation.
func ActionDirections(op ImportOp) *Directions {
	return &Directions{Type: DirectionsAction, Action: &ImportAction{Op: op}}
}

// UIDirections returns directions waiting for an answer to the element.
func UIDirections(element *Element) *Directions {
	return &Directions{Type: DirectionsUI, Element: element}
}

// IsImmediate reports whether the directions can be executed without input.
func (d *Directions) IsImmediate() bool {
	return d != nil && d.Type == DirectionsAction
}

func (d *Directions) IsComplete() bool {
	return d != nil && d.Type == DirectionsComplete
}
