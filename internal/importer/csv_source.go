package importer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/iho/goimport/internal/domain"
)

// CSVSourceConfig describes a generic CSV import format.
type CSVSourceConfig struct {
	Name string `json:"name" mapstructure:"name"`
	// FilePattern is a glob matched against the file name.
	FilePattern string `json:"filePattern,omitempty" mapstructure:"filePattern"`
	// FirstLine is a regular expression the first line must match.
	FirstLine string `json:"firstLine,omitempty" mapstructure:"firstLine"`
	// SegmentColumns give the segment id. A single column is used as is,
	// several columns are hashed. Without any the whole line is hashed.
	SegmentColumns []string `json:"segmentColumns,omitempty" mapstructure:"segmentColumns"`
	TimeColumn     string   `json:"timeColumn" mapstructure:"timeColumn"`
	// TimeLayout is a Go time layout. RFC 3339 and plain dates are tried
	// when it is empty.
	TimeLayout string `json:"timeLayout,omitempty" mapstructure:"timeLayout"`
	TimeZone   string `json:"timeZone,omitempty" mapstructure:"timeZone"`

	Options Options `json:"options" mapstructure:"options"`
}

// CSVSource is a source configured by CSVSourceConfig.
type CSVSource struct {
	config    CSVSourceConfig
	firstLine *regexp.Regexp
	location  *time.Location
}

func NewCSVSource(config CSVSourceConfig) (*CSVSource, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("%w: CSV source needs a name", domain.ErrInvalidArgument)
	}
	if config.TimeColumn == "" {
		return nil, fmt.Errorf("%w: CSV source %s needs a time column", domain.ErrInvalidArgument, config.Name)
	}
	if config.Options.CSV == nil {
		config.Options.CSV = &CSVOptions{UseFirstLineHeadings: true}
	}
	s := &CSVSource{config: config, location: time.UTC}
	if config.FirstLine != "" {
		re, err := regexp.Compile(config.FirstLine)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid first line pattern of %s: %v", domain.ErrInvalidArgument, config.Name, err)
		}
		s.firstLine = re
	}
	if config.TimeZone != "" {
		loc, err := time.LoadLocation(config.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid time zone of %s: %v", domain.ErrInvalidArgument, config.Name, err)
		}
		s.location = loc
	}
	return s, nil
}

func (s *CSVSource) Name() string {
	return s.config.Name
}

func (s *CSVSource) Options() Options {
	return s.config.Options
}

func (s *CSVSource) CanHandle(file *domain.ProcessFile) bool {
	if s.config.FilePattern != "" {
		ok, err := filepath.Match(s.config.FilePattern, file.Name)
		if err != nil || !ok {
			return false
		}
	}
	if s.firstLine != nil {
		return file.FirstLineMatch(s.firstLine)
	}
	return s.config.FilePattern != "" || strings.HasSuffix(strings.ToLower(file.Name), ".csv")
}

func (s *CSVSource) SegmentID(line *domain.TextFileLine) domain.SegmentID {
	switch len(s.config.SegmentColumns) {
	case 0:
		return HashSegmentID(line)
	case 1:
		return domain.SegmentID(strings.TrimSpace(line.Columns[s.config.SegmentColumns[0]]))
	}
	return HashSegmentID(line, s.config.SegmentColumns...)
}

var fallbackLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func (s *CSVSource) Time(line *domain.TextFileLine) (time.Time, bool) {
	value := strings.TrimSpace(line.Columns[s.config.TimeColumn])
	if value == "" {
		return time.Time{}, false
	}
	layouts := fallbackLayouts
	if s.config.TimeLayout != "" {
		layouts = []string{s.config.TimeLayout}
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, s.location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
