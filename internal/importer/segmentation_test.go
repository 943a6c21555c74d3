package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goimport/internal/domain"
)

func csvFile(name, text string) *domain.ProcessFile {
	return &domain.ProcessFile{Name: name, Encoding: domain.EncodingUTF8, Data: text}
}

func newTestCSVSource(t *testing.T, opts Options) *CSVSource {
	t.Helper()
	src, err := NewCSVSource(CSVSourceConfig{
		Name:           "BankImport",
		SegmentColumns: []string{"id"},
		TimeColumn:     "date",
		Options:        opts,
	})
	require.NoError(t, err)
	return src
}

func segmented(t *testing.T, src Source, text string) (*domain.ImportState, error) {
	t.Helper()
	h := NewHandler(src, &fakeConnector{}, zerolog.Nop())
	state, err := h.StartingState([]*domain.ProcessFile{csvFile("bank.csv", text)})
	require.NoError(t, err)
	return state, h.segmentation(context.Background(), state)
}

func TestParseCSV(t *testing.T) {
	t.Run("headings from the first line", func(t *testing.T) {
		h := NewHandler(newTestCSVSource(t, Options{}), &fakeConnector{}, zerolog.Nop())
		state, err := h.StartingState([]*domain.ProcessFile{csvFile("a.csv", "x,x,y\r\n1,2,\"3,5\"\r\n4,5,6,7,8\r\n")})
		require.NoError(t, err)

		require.NoError(t, ParseCSV(state, CSVOptions{UseFirstLineHeadings: true}))
		lines := state.Files["a.csv"].Lines
		require.Len(t, lines, 3)
		assert.Empty(t, lines[0].Columns)
		assert.Equal(t, "1,2,\"3,5\"", lines[1].Text)
		assert.Equal(t, map[string]string{"x": "1", "x2": "2", "y": "3,5"}, lines[1].Columns)
		assert.Equal(t, map[string]string{"x": "4", "x2": "5", "y": "6", "+": "7\n8\n"}, lines[2].Columns)
	})

	t.Run("numbered columns with a custom separator", func(t *testing.T) {
		h := NewHandler(newTestCSVSource(t, Options{}), &fakeConnector{}, zerolog.Nop())
		state, err := h.StartingState([]*domain.ProcessFile{csvFile("a.csv", "Statement\na;b\n\nc;d\n")})
		require.NoError(t, err)

		require.NoError(t, ParseCSV(state, CSVOptions{ColumnSeparator: ";", CutFromBeginning: 1}))
		lines := state.Files["a.csv"].Lines
		assert.Equal(t, map[string]string{"0": "a", "1": "b"}, lines[1].Columns)
		assert.Empty(t, lines[2].Columns)
		assert.Equal(t, map[string]string{"0": "c", "1": "d"}, lines[3].Columns)
	})
}

func TestHashSegmentID(t *testing.T) {
	line := func(columns map[string]string) *domain.TextFileLine {
		return &domain.TextFileLine{Columns: columns}
	}
	a := HashSegmentID(line(map[string]string{"date": "2023-01-02", "amount": "5"}))
	b := HashSegmentID(line(map[string]string{"amount": " 5 ", "date": "2023-01-02"}))
	c := HashSegmentID(line(map[string]string{"date": "2023-01-02", "amount": "6"}))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t,
		HashSegmentID(line(map[string]string{"date": "2023-01-02", "amount": "5"}), "date"),
		HashSegmentID(line(map[string]string{"date": "2023-01-02", "amount": "6"}), "date"),
	)
	assert.Equal(t, domain.NoSegment, HashSegmentID(line(nil)))
}

func TestCSVSource(t *testing.T) {
	t.Run("requires a time column", func(t *testing.T) {
		_, err := NewCSVSource(CSVSourceConfig{Name: "X"})
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	})

	t.Run("recognizes files", func(t *testing.T) {
		plain := newTestCSVSource(t, Options{})
		assert.True(t, plain.CanHandle(csvFile("bank.CSV", "id,date\n")))
		assert.False(t, plain.CanHandle(csvFile("bank.txt", "id,date\n")))

		byLine, err := NewCSVSource(CSVSourceConfig{Name: "X", TimeColumn: "date", FirstLine: `^id,date`})
		require.NoError(t, err)
		assert.True(t, byLine.CanHandle(csvFile("export.txt", "id,date\r\n1,2023-01-01\n")))
		assert.False(t, byLine.CanHandle(csvFile("export.txt", "date,id\n")))
	})

	t.Run("parses time with a layout", func(t *testing.T) {
		src, err := NewCSVSource(CSVSourceConfig{Name: "X", TimeColumn: "Päivä", TimeLayout: "02.01.2006"})
		require.NoError(t, err)
		got, ok := src.Time(&domain.TextFileLine{Columns: map[string]string{"Päivä": "05.03.2023"}})
		require.True(t, ok)
		assert.Equal(t, time.Date(2023, time.March, 5, 0, 0, 0, 0, time.UTC), got)

		_, ok = src.Time(&domain.TextFileLine{Columns: map[string]string{"Päivä": "yesterday"}})
		assert.False(t, ok)
	})
}

func TestSegmentation(t *testing.T) {
	opts := Options{
		NumericFields:  []string{"amount"},
		RequiredFields: []string{"note"},
		SharedFields:   []string{"currency"},
		TextField:      "id",
	}

	t.Run("groups lines and fills standard fields", func(t *testing.T) {
		state, err := segmented(t, newTestCSVSource(t, opts), "id,date,amount,currency\n"+
			"A,2023-01-02,-12.50,EUR\n"+
			"A,2023-01-02,,\n"+
			"B,2023-01-03,\"1,000.00\",USD\n")
		require.NoError(t, err)
		assert.Equal(t, domain.StageSegmented, state.Stage)

		require.Len(t, state.Segments, 2)
		a := state.Segments["A"]
		require.NotNil(t, a)
		assert.Equal(t, []domain.SegmentLine{{File: "bank.csv", Number: 1}, {File: "bank.csv", Number: 2}}, a.Lines)
		assert.Equal(t, time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC), a.Time)

		lines := state.Lines("A")
		require.Len(t, lines, 2)
		assert.Equal(t, "-12.5", lines[0].Columns["amount"])
		assert.Equal(t, "0", lines[1].Columns["amount"])
		assert.Equal(t, "EUR", lines[1].Columns["currency"])
		assert.Equal(t, "", lines[1].Columns["note"])
		assert.Equal(t, "A", lines[1].Columns["_textField"])
		assert.Equal(t, domain.SegmentID("A"), lines[1].SegmentID)

		b := state.Lines("B")
		require.Len(t, b, 1)
		assert.Equal(t, "1000", b[0].Columns["amount"])
		assert.Empty(t, state.Files["bank.csv"].Lines[0].Columns)
	})

	t.Run("segment with two timestamps", func(t *testing.T) {
		_, err := segmented(t, newTestCSVSource(t, opts), "id,date,amount,currency\n"+
			"A,2023-01-02,1,EUR\n"+
			"A,2023-01-03,2,EUR\n")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidFile))
		assert.Contains(t, err.Error(), "more than one (2) candidate")
	})

	t.Run("segment without timestamp", func(t *testing.T) {
		_, err := segmented(t, newTestCSVSource(t, opts), "id,date,amount,currency\nA,,1,EUR\n")
		assert.True(t, errors.Is(err, domain.ErrInvalidFile))
	})

	t.Run("line without segment id", func(t *testing.T) {
		_, err := segmented(t, newTestCSVSource(t, opts), "id,date,amount,currency\n,2023-01-02,1,EUR\n")
		assert.True(t, errors.Is(err, domain.ErrInvalidFile))
	})

	t.Run("conflicting shared field", func(t *testing.T) {
		_, err := segmented(t, newTestCSVSource(t, opts), "id,date,amount,currency\n"+
			"A,2023-01-02,1,EUR\n"+
			"A,2023-01-02,2,USD\n")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidFile))
		assert.Contains(t, err.Error(), "shared field 'currency'")
	})
}

func TestHandler_CreateCustomSegments(t *testing.T) {
	h := NewHandler(newTestCSVSource(t, Options{}), &fakeConnector{}, zerolog.Nop())
	config := domain.ProcessConfig{
		"answers": map[string]any{
			"": map[string]any{
				"asset-renaming": []any{
					map[string]any{"type": "stock", "old": "OLD", "new": "NEW", "date": "2023-01-05"},
				},
			},
		},
	}
	state := &domain.ImportState{Stage: domain.StageClassified}

	require.NoError(t, h.createCustomSegments(context.Background(), state, config))

	id := domain.SegmentID("rename-stock-OLD-NEW")
	require.Contains(t, state.Segments, id)
	assert.Equal(t, time.Date(2023, time.January, 5, 0, 0, 0, 0, time.UTC), state.Segments[id].Time)
	require.Len(t, state.Result[id], 1)
	transfers := state.Result[id][0].Transfers
	require.Len(t, transfers, 2)
	assert.Equal(t, "OLD", transfers[0].Asset)
	assert.Equal(t, []string{"Renamed", "Old name"}, transfers[0].Data.Notes)
	assert.Equal(t, []string{"Renamed", "New name"}, transfers[1].Data.Notes)

	config["answers"].(map[string]any)[""].(map[string]any)["asset-renaming"] = []any{
		map[string]any{"type": "stock", "old": "OLD", "new": "NEW", "date": "5.1.2023"},
	}
	err := h.createCustomSegments(context.Background(), &domain.ImportState{}, config)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}
