package importer

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iho/goimport/internal/domain"
)

// Options describe how lines of a source are post-processed after parsing.
type Options struct {
	CSV *CSVOptions `json:"csv,omitempty" mapstructure:"csv"`

	NumericFields       []string `json:"numericFields" mapstructure:"numericFields"`
	RequiredFields      []string `json:"requiredFields" mapstructure:"requiredFields"`
	InsignificantFields []string `json:"insignificantFields" mapstructure:"insignificantFields"`
	SharedFields        []string `json:"sharedFields" mapstructure:"sharedFields"`
	TextField           string   `json:"textField,omitempty" mapstructure:"textField"`
	TotalAmountField    string   `json:"totalAmountField,omitempty" mapstructure:"totalAmountField"`
}

// Source is one import format. It knows how to recognize its files, how to
// group lines and when they happened.
type Source interface {
	Name() string
	CanHandle(file *domain.ProcessFile) bool
	Options() Options
	// SegmentID returns the segment of a line, domain.NoSegment to drop it
	// or an empty id when it cannot be determined.
	SegmentID(line *domain.TextFileLine) domain.SegmentID
	// Time returns the timestamp of a line if the line carries one.
	Time(line *domain.TextFileLine) (time.Time, bool)
}

// LineParser is implemented by sources that fill in columns themselves
// instead of the CSV parser.
type LineParser interface {
	ParseLines(ctx context.Context, state *domain.ImportState) error
}

// LineClassifier is implemented by sources that classify segments without
// the configured rules.
type LineClassifier interface {
	ClassifyLines(ctx context.Context, lines []*domain.TextFileLine, config domain.ProcessConfig, segment *domain.ImportSegment) (*domain.TransactionDescription, error)
}

// segmentNamespace keeps hashed segment ids apart from other name based UUIDs.
var segmentNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("goimport/segment"))

// HashSegmentID derives a stable segment id from the trimmed values of the
// given columns, or all columns when none are named.
func HashSegmentID(line *domain.TextFileLine, columns ...string) domain.SegmentID {
	if len(columns) == 0 {
		for name := range line.Columns {
			columns = append(columns, name)
		}
	}
	if len(line.Columns) == 0 || len(columns) == 0 {
		return domain.NoSegment
	}
	pairs := make([][2]string, 0, len(columns))
	for _, name := range columns {
		value, ok := line.Columns[name]
		if !ok {
			continue
		}
		pairs = append(pairs, [2]string{name, strings.TrimSpace(value)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	data, _ := json.Marshal(pairs)
	return domain.SegmentID(uuid.NewSHA1(segmentNamespace, data).String())
}
