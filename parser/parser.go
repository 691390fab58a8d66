// Package parser turns meter export files into measurements.
//
// Parsing happens in two phases: the structure of the file (worksheet, header row, columns or
// delimiter) is validated first and fails fast with a format error, then every data row goes
// through a tolerant row parser whose failures are only counted and logged.
package parser

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/models"
)

// Format identifies the layout of an input file
type Format string

const (
	FormatExcel Format = "excel"
	FormatCSV   Format = "csv"
)

// zipSignature starts every xlsx document
var zipSignature = []byte("PK\x03\x04")

// Scope carries the owner of the parsed readings and the inclusive range to keep
type Scope struct {
	UserID  string
	MeterID string
	From    time.Time
	To      time.Time
}

func (s Scope) contains(t time.Time) bool {
	return !t.Before(s.From) && !t.After(s.To)
}

// Report summarizes the row phase of a parse
type Report struct {
	Format      Format
	RowsRead    int
	RowsSkipped int
	OutOfRange  int
}

func (r Report) String() string {
	return fmt.Sprintf("%s: %d rows read, %d skipped, %d out of range",
		r.Format, r.RowsRead, r.RowsSkipped, r.OutOfRange)
}

// DetectFormat picks the format from the content
func DetectFormat(data []byte) Format {
	if bytes.HasPrefix(data, zipSignature) {
		return FormatExcel
	}
	return FormatCSV
}

// Parse parses data with the detected format
func Parse(data []byte, scope Scope) ([]models.Measurement, Report, error) {
	if len(data) == 0 {
		return nil, Report{}, apperror.Format("empty file")
	}
	if DetectFormat(data) == FormatExcel {
		return ParseExcel(data, scope)
	}
	return ParseCSV(data, scope)
}

// ParseFile reads path and parses it
func ParseFile(path string, scope Scope) ([]models.Measurement, Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Report{}, apperror.IO(err, "failed to read %s", path)
	}
	return Parse(data, scope)
}

// Span returns the oldest and newest timestamps of items; ok is false for an empty slice
func Span(items []models.Measurement) (from, to time.Time, ok bool) {
	for i, item := range items {
		if i == 0 || item.Timestamp.Before(from) {
			from = item.Timestamp
		}
		if i == 0 || item.Timestamp.After(to) {
			to = item.Timestamp
		}
	}
	return from, to, len(items) > 0
}
