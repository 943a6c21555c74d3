package domain

import (
	"time"
)

// SegmentID identifies one economic event made of one or more lines.
type SegmentID string

// NoSegment marks a line that does not belong to any segment.
const NoSegment SegmentID = "NO_SEGMENT"

// TextFileLine is one parsed line of an imported file.
type TextFileLine struct {
	Text      string            `json:"text"`
	Line      int               `json:"line"`
	Columns   map[string]string `json:"columns"`
	SegmentID SegmentID         `json:"segmentId,omitempty"`
}

// SegmentLine points to a line of a file.
type SegmentLine struct {
	File   string `json:"file"`
	Number int    `json:"number"`
}

// ImportSegment is a group of lines with a single timestamp.
type ImportSegment struct {
	ID    SegmentID     `json:"id"`
	Time  time.Time     `json:"time"`
	Lines []SegmentLine `json:"lines"`
}

// ImportFile holds the parsed lines of one file.
type ImportFile struct {
	Lines []*TextFileLine `json:"lines"`
}
