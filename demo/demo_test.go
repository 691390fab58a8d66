package demo

import (
	"bytes"
	"testing"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/models"
	"github.com/Iksvihii/daily-watt-sub000/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	from = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
)

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(42, "u1", "m1", from, to)
	b := Generate(42, "u1", "m1", from, to)
	c := Generate(43, "u1", "m1", from, to)

	require.Len(t, a, 7*48)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[10].Kwh, c[10].Kwh)

	for i, m := range a {
		assert.Equal(t, from.Add(time.Duration(i)*Step), m.Timestamp)
		assert.Greater(t, m.Kwh, 0.0)
		assert.Equal(t, models.SourceDemo, m.Source)
	}
}

func TestGenerate_EveningPeak(t *testing.T) {
	readings := Generate(1, "u1", "m1", from, from.Add(24*time.Hour))
	night := readings[6]    // 03:00
	evening := readings[39] // 19:30
	assert.Greater(t, evening.Kwh, night.Kwh)
}

func TestWriteCSV_ParsesBack(t *testing.T) {
	readings := Generate(7, "u1", "m1", from, to)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, readings))

	parsed, report, err := parser.Parse(buf.Bytes(), parser.Scope{UserID: "u1", MeterID: "m1", From: from, To: to})
	require.NoError(t, err)
	assert.Zero(t, report.RowsSkipped)
	require.Len(t, parsed, len(readings))
	assert.InDelta(t, readings[100].Kwh, parsed[100].Kwh, 1e-9)
}

func TestWriteDailyWorkbook_ParsesBack(t *testing.T) {
	readings := Generate(7, "u1", "m1", from, to)

	var buf bytes.Buffer
	require.NoError(t, WriteDailyWorkbook(&buf, readings))

	parsed, _, err := parser.ParseExcel(buf.Bytes(), parser.Scope{UserID: "u1", MeterID: "m1", From: from, To: to})
	require.NoError(t, err)
	require.Len(t, parsed, 7)
	assert.Equal(t, from, parsed[0].Timestamp)
	assert.Equal(t, models.SourceEnedis, parsed[0].Source)

	var total float64
	for _, m := range readings[:48] {
		total += m.Kwh
	}
	assert.InDelta(t, total, parsed[0].Kwh, 1e-3)
}
