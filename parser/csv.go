package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/google/uuid"
)

// Timestamp layouts accepted in CSV files; layouts without a zone are read as UTC
var csvTimestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// ParseCSV parses timestamp;kwh or timestamp,kwh rows
func ParseCSV(data []byte, scope Scope) ([]models.Measurement, Report, error) {
	report := Report{Format: FormatCSV}

	// Strip a UTF-8 BOM written by spreadsheet exports
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, report, nil
	}

	delimiter := detectDelimiter(data)
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.TrimLeadingSpace = true

	var items []models.Measurement
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				report.RowsSkipped++
				logger.Warnf("Line %d of CSV input is malformed: %v", line, err)
				continue
			}
			return nil, report, apperror.IO(err, "failed to read CSV input")
		}

		// Header
		if line == 1 && isHeaderRecord(record) {
			continue
		}
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		report.RowsRead++

		m, ok := parseCSVRecord(record, delimiter == ';')
		if !ok {
			report.RowsSkipped++
			logger.Warnf("Line %d of CSV input is invalid: %s", line, strings.Join(record, string(delimiter)))
			continue
		}
		if !scope.contains(m.Timestamp) {
			report.OutOfRange++
			continue
		}

		m.ID = uuid.NewString()
		m.UserID = scope.UserID
		m.MeterID = scope.MeterID
		items = append(items, m)
	}

	return items, report, nil
}

// detectDelimiter looks at the header line only
func detectDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	if bytes.Count(header, []byte(";")) >= bytes.Count(header, []byte(",")) && bytes.Contains(header, []byte(";")) {
		return ';'
	}
	return ','
}

func isHeaderRecord(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, ok := parseTimestamp(record[0])
	return !ok
}

func parseCSVRecord(record []string, commaDecimal bool) (models.Measurement, bool) {
	if len(record) < 2 {
		return models.Measurement{}, false
	}
	ts, ok := parseTimestamp(record[0])
	if !ok {
		return models.Measurement{}, false
	}
	kwh, ok := parseDecimal(record[1], commaDecimal)
	if !ok || kwh < 0 {
		return models.Measurement{}, false
	}
	return models.Measurement{Timestamp: ts, Kwh: kwh, Source: models.SourceCSV}, true
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range csvTimestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
