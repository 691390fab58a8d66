// Package demo generates plausible household consumption for demos and tests.
package demo

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/aggregation"
	"github.com/Iksvihii/daily-watt-sub000/models"
	"github.com/Iksvihii/daily-watt-sub000/parser"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Step is the interval between two generated readings
const Step = 30 * time.Minute

// Generate returns half-hourly readings over [from, to). The same seed always yields the same
// values and ids.
func Generate(seed int64, userID, meterID string, from, to time.Time) []models.Measurement {
	rng := rand.New(rand.NewSource(seed))
	start := from.UTC().Truncate(Step)

	var readings []models.Measurement
	for ts := start; ts.Before(to); ts = ts.Add(Step) {
		hour := float64(ts.Hour()) + float64(ts.Minute())/60

		// Base load plus a morning and a larger evening peak
		base := 0.12
		morning := 0.25 * math.Exp(-math.Pow(hour-7.5, 2)/2)
		evening := 0.45 * math.Exp(-math.Pow(hour-19.5, 2)/3)

		// Electric heating: more in January, least in July
		season := 1 + 0.6*math.Cos(2*math.Pi*float64(ts.YearDay()-15)/365)

		noise := rng.Float64()*0.06 - 0.03
		kwh := math.Max(0.01, (base+morning+evening)*season+noise)

		readings = append(readings, models.Measurement{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d/%s/%s/%d", seed, userID, meterID, ts.Unix()))).String(),
			UserID:    userID,
			MeterID:   meterID,
			Timestamp: ts,
			Kwh:       math.Round(kwh*1000) / 1000,
			Source:    models.SourceDemo,
		})
	}
	return readings
}

// WriteCSV writes readings in the timestamp;kwh layout accepted by the parser
func WriteCSV(w io.Writer, readings []models.Measurement) error {
	if _, err := io.WriteString(w, "timestamp;kwh\n"); err != nil {
		return err
	}
	for _, reading := range readings {
		line := fmt.Sprintf("%s;%.3f\n", reading.Timestamp.UTC().Format(time.RFC3339), reading.Kwh)
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteDailyWorkbook writes the daily sums of readings as a portal daily export workbook
func WriteDailyWorkbook(w io.Writer, readings []models.Measurement) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := parser.DailySheetName
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create worksheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default worksheet: %w", err)
	}

	cells := map[string]interface{}{
		"A1": "Export de consommation quotidienne",
		"A3": parser.DateHeader,
		"B3": parser.ValueHeader,
	}
	for cell, value := range cells {
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}

	for i, point := range aggregation.Aggregate(readings, aggregation.Day) {
		row := i + 4
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", row), point.BucketStart.Format("02/01/2006")); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row), math.Round(point.Kwh*1000)/1000); err != nil {
			return err
		}
	}

	return f.Write(w)
}
