package parser

import (
	"testing"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func januaryScope() Scope {
	return Scope{
		UserID:  "u1",
		MeterID: "m1",
		From:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
}

// buildWorkbook writes rows (A1-based) into sheet and returns the xlsx bytes
func buildWorkbook(t *testing.T, sheet string, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		idx, err := f.NewSheet(sheet)
		require.NoError(t, err)
		f.SetActiveSheet(idx)
		require.NoError(t, f.DeleteSheet("Sheet1"))
	}
	for i, row := range rows {
		for j, value := range row {
			if value == nil {
				continue
			}
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, name, value))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseExcel_DailyExport(t *testing.T) {
	data := buildWorkbook(t, DailySheetName, [][]interface{}{
		{"Export de vos données de consommation"},
		{"PRM", "12345678901234"},
		{nil, " date ", "Valeur (en kWh)"},
		{nil, "01/01/2024", 10.5},
		{nil, "2024-01-02", "11,25"},
		{nil, "", 99},
		{nil, "not a date", 1},
		{nil, "04/01/2024", "n/a"},
		{nil, "15/02/2024", 7},
		{nil, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 3},
	})

	items, report, err := ParseExcel(data, januaryScope())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), items[0].Timestamp)
	assert.Equal(t, 10.5, items[0].Kwh)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), items[1].Timestamp)
	assert.InDelta(t, 11.25, items[1].Kwh, 1e-9)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), items[2].Timestamp)

	for _, item := range items {
		assert.Equal(t, "u1", item.UserID)
		assert.Equal(t, "m1", item.MeterID)
		assert.Equal(t, models.SourceEnedis, item.Source)
		assert.NotEmpty(t, item.ID)
	}
	assert.NotEqual(t, items[0].ID, items[1].ID)

	assert.Equal(t, 6, report.RowsRead)
	assert.Equal(t, 2, report.RowsSkipped)
	assert.Equal(t, 1, report.OutOfRange)
}

func TestParseExcel_MissingWorksheet(t *testing.T) {
	data := buildWorkbook(t, "Sheet1", [][]interface{}{{"Date", "Valeur (en kWh)"}})

	_, _, err := ParseExcel(data, januaryScope())
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindFormat))
	assert.Contains(t, err.Error(), "not found")
}

func TestParseExcel_StructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]interface{}
	}{
		{name: "no header", rows: [][]interface{}{{"Jour", "Valeur (en kWh)"}, {"01/01/2024", 1}}},
		{name: "no value column", rows: [][]interface{}{{"Date", "Index"}, {"01/01/2024", 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildWorkbook(t, DailySheetName, tt.rows)
			_, _, err := ParseExcel(data, januaryScope())
			assert.True(t, apperror.IsKind(err, apperror.KindFormat))
		})
	}
}

func TestParseExcel_EmptyAndGarbage(t *testing.T) {
	_, _, err := ParseExcel(nil, januaryScope())
	assert.True(t, apperror.IsKind(err, apperror.KindFormat))

	_, _, err = ParseExcel([]byte("PK\x03\x04 definitely not a workbook"), januaryScope())
	assert.True(t, apperror.IsKind(err, apperror.KindFormat))
}

func TestParseCSV(t *testing.T) {
	input := "timestamp;kwh\n" +
		"2024-01-01T00:00:00Z;0,25\n" +
		"2024-01-01 00:30:00;0.5\n" +
		"01/01/2024 01:00;1\n" +
		"garbage;1\n" +
		"2024-01-01T01:30:00Z;-3\n" +
		"2023-12-31T23:30:00Z;4\n"

	items, report, err := ParseCSV([]byte(input), januaryScope())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.InDelta(t, 0.25, items[0].Kwh, 1e-9)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC), items[1].Timestamp)
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), items[2].Timestamp)
	assert.Equal(t, models.SourceCSV, items[0].Source)

	assert.Equal(t, 6, report.RowsRead)
	assert.Equal(t, 2, report.RowsSkipped)
	assert.Equal(t, 1, report.OutOfRange)
}

func TestParseCSV_CommaDelimited(t *testing.T) {
	input := "timestamp,kwh\n2024-01-10T12:00:00+02:00,1.5\n"

	items, _, err := ParseCSV([]byte(input), januaryScope())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), items[0].Timestamp)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	items, report, err := ParseCSV([]byte("timestamp;kwh\n"), januaryScope())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, report.RowsRead)
}

func TestParseCSV_NoValidRow(t *testing.T) {
	input := "timestamp;kwh\n2024-01-05T00:00:00Z;abc\nnot-a-date;1,5\n"

	items, report, err := ParseCSV([]byte(input), januaryScope())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 2, report.RowsRead)
	assert.Equal(t, 2, report.RowsSkipped)
}

func TestParse_UpperBoundIsInclusive(t *testing.T) {
	scope := Scope{
		UserID:  "u1",
		MeterID: "m1",
		From:    time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC),
	}

	workbook := buildWorkbook(t, DailySheetName, [][]interface{}{
		{"Date", "Valeur (en kWh)"},
		{"01/12/2025", 8},
		{"02/12/2025", 9.5},
		{"03/12/2025", 7},
	})
	items, report, err := ParseExcel(workbook, scope)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, scope.To, items[1].Timestamp)
	assert.Equal(t, 9.5, items[1].Kwh)
	assert.Equal(t, 1, report.OutOfRange)

	input := "timestamp;kwh\n2025-12-02T00:00:00Z;0,75\n2025-12-02T00:30:00Z;0,5\n"
	items, report, err = ParseCSV([]byte(input), scope)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, scope.To, items[0].Timestamp)
	assert.Equal(t, 1, report.OutOfRange)
}

func TestParse_DetectsFormat(t *testing.T) {
	workbook := buildWorkbook(t, DailySheetName, [][]interface{}{{"Date", "Valeur (en kWh)"}, {"03/01/2024", 2}})
	assert.Equal(t, FormatExcel, DetectFormat(workbook))
	assert.Equal(t, FormatCSV, DetectFormat([]byte("timestamp;kwh\n")))

	items, report, err := Parse(workbook, januaryScope())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, FormatExcel, report.Format)

	_, _, err = Parse(nil, januaryScope())
	assert.True(t, apperror.IsKind(err, apperror.KindFormat))
}

func TestParseFile_Unreadable(t *testing.T) {
	_, _, err := ParseFile(t.TempDir()+"/missing.xlsx", januaryScope())
	assert.True(t, apperror.IsKind(err, apperror.KindIO))
}

func TestSpan(t *testing.T) {
	_, _, ok := Span(nil)
	assert.False(t, ok)

	a := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	from, to, ok := Span([]models.Measurement{{Timestamp: a}, {Timestamp: b}})
	require.True(t, ok)
	assert.Equal(t, b, from)
	assert.Equal(t, a, to)
}
