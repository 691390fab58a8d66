package parser

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Daily consumption export layout
const (
	DailySheetName   = "Export Consommation Quotidienne"
	DateHeader       = "Date"
	ValueHeader      = "Valeur (en kWh)"
	textDateLayoutFR = "02/01/2006"
)

// ParseExcel parses the daily consumption workbook
func ParseExcel(data []byte, scope Scope) ([]models.Measurement, Report, error) {
	report := Report{Format: FormatExcel}
	if len(data) == 0 {
		return nil, report, apperror.Format("empty workbook")
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, report, apperror.FormatWrap(err, "unreadable workbook")
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(DailySheetName); err != nil || idx < 0 {
		return nil, report, apperror.Format("worksheet %q not found", DailySheetName)
	}

	// Raw values keep native dates as serial numbers
	rows, err := f.GetRows(DailySheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, report, apperror.FormatWrap(err, "failed to read worksheet %q", DailySheetName)
	}

	headerRow := findHeaderRow(rows)
	if headerRow < 0 {
		return nil, report, apperror.Format("header row with %q not found", DateHeader)
	}
	dateCol := findColumn(rows[headerRow], DateHeader)
	valueCol := findColumn(rows[headerRow], ValueHeader)
	if dateCol < 0 || valueCol < 0 {
		return nil, report, apperror.Format("columns %q and %q are required", DateHeader, ValueHeader)
	}

	var items []models.Measurement
	for i := headerRow + 1; i < len(rows); i++ {
		dateCell := cell(rows[i], dateCol)
		if dateCell == "" {
			continue
		}
		report.RowsRead++

		day, ok := parseExcelDate(dateCell)
		if !ok {
			report.RowsSkipped++
			logger.Warnf("Row %d of %q has an invalid date: %s", i+1, DailySheetName, dateCell)
			continue
		}
		kwh, ok := parseDecimal(cell(rows[i], valueCol), true)
		if !ok || kwh < 0 {
			report.RowsSkipped++
			logger.Warnf("Row %d of %q has an invalid value: %s", i+1, DailySheetName, cell(rows[i], valueCol))
			continue
		}
		if !scope.contains(day) {
			report.OutOfRange++
			continue
		}

		items = append(items, models.Measurement{
			ID:        uuid.NewString(),
			UserID:    scope.UserID,
			MeterID:   scope.MeterID,
			Timestamp: day,
			Kwh:       kwh,
			Source:    models.SourceEnedis,
		})
	}

	return items, report, nil
}

// findHeaderRow scans top to bottom, left to right for the date header
func findHeaderRow(rows [][]string) int {
	for i, row := range rows {
		if findColumn(row, DateHeader) >= 0 {
			return i
		}
	}
	return -1
}

func findColumn(row []string, header string) int {
	for j, value := range row {
		if strings.EqualFold(strings.TrimSpace(value), header) {
			return j
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// parseExcelDate accepts a date serial or dd/MM/yyyy and yyyy-MM-dd text, normalized to midnight UTC
func parseExcelDate(value string) (time.Time, bool) {
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return midnight(t), true
	}
	for _, layout := range []string{textDateLayoutFR, models.DateLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return midnight(t), true
		}
	}
	return time.Time{}, false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseDecimal reads a number, optionally accepting a decimal comma
func parseDecimal(value string, commaDecimal bool) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if commaDecimal {
		value = strings.ReplaceAll(value, ",", ".")
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
