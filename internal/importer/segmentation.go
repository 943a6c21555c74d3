package importer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iho/goimport/internal/domain"
)

// GroupBySegment assigns every parsed line to its segment and resolves the
// single timestamp of each segment.
func GroupBySegment(state *domain.ImportState, source Source) error {
	segments := map[domain.SegmentID]*domain.ImportSegment{}
	for _, name := range state.FileNames() {
		for n, line := range state.Files[name].Lines {
			if len(line.Columns) == 0 {
				continue
			}
			id := source.SegmentID(line)
			if id == "" {
				return fmt.Errorf("%w: the segment ID for %s was not found by %s", domain.ErrInvalidFile, describe(line), source.Name())
			}
			if id == domain.NoSegment {
				continue
			}
			seg, ok := segments[id]
			if !ok {
				seg = &domain.ImportSegment{ID: id}
				segments[id] = seg
			}
			seg.Lines = append(seg.Lines, domain.SegmentLine{File: name, Number: n})
			line.SegmentID = id
		}
	}

	for _, seg := range segments {
		stamps := map[int64]time.Time{}
		for _, ref := range seg.Lines {
			if t, ok := source.Time(state.Files[ref.File].Lines[ref.Number]); ok {
				stamps[t.UnixMilli()] = t
			}
		}
		switch len(stamps) {
		case 0:
			return fmt.Errorf("%w: was not able to find timestamps for lines %s", domain.ErrInvalidFile, describe(seg.Lines))
		case 1:
			for _, t := range stamps {
				seg.Time = t.UTC()
			}
		default:
			var found []string
			for _, t := range stamps {
				found = append(found, t.UTC().Format(time.RFC3339))
			}
			sort.Strings(found)
			return fmt.Errorf("%w: found more than one (%d) candidate for timestamp (%s) from lines %s",
				domain.ErrInvalidFile, len(stamps), strings.Join(found, ", "), describe(seg.Lines))
		}
	}
	state.Segments = segments
	return nil
}

// PostProcessLines fills in the standard columns. Required fields default to
// an empty string, empty numeric fields become zero and shared fields given
// on one line of a segment are copied to all its lines.
func PostProcessLines(state *domain.ImportState, opts Options) error {
	shared := map[domain.SegmentID]map[string]string{}
	for _, name := range state.FileNames() {
		for _, line := range state.Files[name].Lines {
			columns := line.Columns
			if len(columns) == 0 {
				continue
			}
			for _, field := range opts.RequiredFields {
				if _, ok := columns[field]; !ok {
					columns[field] = ""
				}
			}
			for _, field := range opts.NumericFields {
				v, ok := columns[field]
				if !ok {
					continue
				}
				if strings.TrimSpace(v) == "" {
					columns[field] = "0"
				} else if f, ok := domain.ParseNumber(v); ok {
					columns[field] = strconv.FormatFloat(f, 'f', -1, 64)
				}
			}
			for _, field := range opts.SharedFields {
				v, ok := columns[field]
				if !ok || strings.TrimSpace(v) == "" {
					continue
				}
				if shared[line.SegmentID] == nil {
					shared[line.SegmentID] = map[string]string{}
				}
				old, seen := shared[line.SegmentID][field]
				if seen && old != v {
					return fmt.Errorf("%w: shared field '%s' has different values %q and %q in segment %s",
						domain.ErrInvalidFile, field, old, v, line.SegmentID)
				}
				shared[line.SegmentID][field] = v
			}
			if opts.TextField != "" {
				columns["_textField"] = columns[opts.TextField]
			}
			if opts.TotalAmountField != "" {
				columns["_totalAmountField"] = columns[opts.TotalAmountField]
			}
		}
	}

	for _, name := range state.FileNames() {
		for _, line := range state.Files[name].Lines {
			if len(line.Columns) == 0 {
				continue
			}
			for field, v := range shared[line.SegmentID] {
				line.Columns[field] = v
			}
		}
	}
	return nil
}

// AssetRenaming is an answer telling that an asset changed its name.
type AssetRenaming struct {
	Type domain.AssetType `json:"type" mapstructure:"type"`
	Old  string           `json:"old" mapstructure:"old"`
	New  string           `json:"new" mapstructure:"new"`
	Date string           `json:"date" mapstructure:"date"`
}

// SegmentID returns the id of the custom segment of the renaming.
func (r AssetRenaming) SegmentID() domain.SegmentID {
	return domain.SegmentID(fmt.Sprintf("rename-%s-%s-%s", r.Type, r.Old, r.New))
}

// createCustomSegments adds segments for answers that do not come from any
// imported line.
func (h *Handler) createCustomSegments(ctx context.Context, state *domain.ImportState, config domain.ProcessConfig) error {
	global := config.Answers()[domain.GlobalAnswers]
	raw, ok := global["asset-renaming"]
	if !ok || raw == nil {
		return nil
	}
	var renamings []AssetRenaming
	holder := domain.ProcessConfig{"asset-renaming": raw}
	if err := holder.Decode("asset-renaming", &renamings); err != nil {
		return err
	}

	renamed := h.translator.Translate(ctx, "note-renamed", config.Language())
	oldName := h.translator.Translate(ctx, "note-old-name", config.Language())
	newName := h.translator.Translate(ctx, "note-new-name", config.Language())

	if state.Segments == nil {
		state.Segments = map[domain.SegmentID]*domain.ImportSegment{}
	}
	if state.Result == nil {
		state.Result = map[domain.SegmentID][]*domain.TransactionDescription{}
	}
	for _, r := range renamings {
		t, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return fmt.Errorf("%w: invalid date %q in asset renaming of %s", domain.ErrInvalidArgument, r.Date, r.Old)
		}
		id := r.SegmentID()
		state.Segments[id] = &domain.ImportSegment{ID: id, Time: t.UTC(), Lines: []domain.SegmentLine{}}
		state.Result[id] = []*domain.TransactionDescription{domain.NewTransactionDescription(
			&domain.AssetTransfer{
				Reason: domain.ReasonTrade,
				Type:   r.Type,
				Asset:  r.Old,
				Data:   &domain.TransferData{Notes: []string{renamed, oldName}},
			},
			&domain.AssetTransfer{
				Reason: domain.ReasonTrade,
				Type:   r.Type,
				Asset:  r.New,
				Data:   &domain.TransferData{Notes: []string{renamed, newName}},
			},
		)}
	}
	return nil
}
