package importer

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/iho/goimport/internal/domain"
)

// CSVOptions control splitting lines into columns.
type CSVOptions struct {
	ColumnSeparator      string `json:"columnSeparator,omitempty" mapstructure:"columnSeparator"`
	UseFirstLineHeadings bool   `json:"useFirstLineHeadings,omitempty" mapstructure:"useFirstLineHeadings"`
	CutFromBeginning     int    `json:"cutFromBeginning,omitempty" mapstructure:"cutFromBeginning"`
	TrimLines            bool   `json:"trimLines,omitempty" mapstructure:"trimLines"`
	SkipErrors           bool   `json:"skipErrors,omitempty" mapstructure:"skipErrors"`
}

func (o CSVOptions) split(text string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if o.ColumnSeparator != "" {
		r.Comma = []rune(o.ColumnSeparator)[0]
	}
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ParseCSV fills in the columns of every line. The first line after the cut
// gives the headings, either read from it or numbered by its column count.
// Repeated headings get a running number and surplus columns are collected
// into the `+` column.
func ParseCSV(state *domain.ImportState, opts CSVOptions) error {
	var headings []string
	drop := opts.CutFromBeginning
	first := true
	for _, name := range state.FileNames() {
		file := state.Files[name]
		for n, line := range file.Lines {
			if drop > 0 {
				drop--
				continue
			}
			text := line.Text
			if opts.TrimLines {
				text = strings.TrimSpace(text)
			}
			if first {
				first = false
				pieces, err := opts.split(text)
				if err != nil {
					return fmt.Errorf("%w: cannot parse headings of %s: %v", domain.ErrInvalidFile, name, err)
				}
				if opts.UseFirstLineHeadings {
					count := map[string]int{}
					for i, h := range pieces {
						count[h]++
						if count[h] > 1 {
							pieces[i] = h + strconv.Itoa(count[h])
						}
					}
					headings = pieces
					continue
				}
				for i := range pieces {
					headings = append(headings, strconv.Itoa(i))
				}
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			pieces, err := opts.split(text)
			if err != nil {
				if opts.SkipErrors {
					continue
				}
				return fmt.Errorf("%w: cannot parse line %d of %s: %v", domain.ErrInvalidFile, n+1, name, err)
			}
			columns := make(map[string]string, len(pieces))
			for i, value := range pieces {
				if i < len(headings) {
					columns[headings[i]] = value
				} else {
					columns["+"] += value + "\n"
				}
			}
			file.Lines[n].Columns = columns
		}
	}
	return nil
}
