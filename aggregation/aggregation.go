// Package aggregation rolls meter readings into calendar buckets and derives summary statistics.
package aggregation

import (
	"sort"
	"strings"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/models"
)

// Granularity is the width of an aggregation bucket
type Granularity string

const (
	Hour  Granularity = "hour"
	Day   Granularity = "day"
	Month Granularity = "month"
	Year  Granularity = "year"
)

// ParseGranularity falls back to Day for unknown values
func ParseGranularity(value string) Granularity {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(value))); g {
	case Hour, Day, Month, Year:
		return g
	default:
		return Day
	}
}

// BucketStart aligns t to the start of its bucket in UTC
func (g Granularity) BucketStart(t time.Time) time.Time {
	u := t.UTC()
	switch g {
	case Hour:
		return u.Truncate(time.Hour)
	case Month:
		return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(u.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Point is the consumption of one bucket
type Point struct {
	BucketStart time.Time `json:"bucketStart"`
	Kwh         float64   `json:"kwh"`
}

// Summary is derived from day buckets
type Summary struct {
	TotalKwh      float64      `json:"totalKwh"`
	AvgKwhPerDay  float64      `json:"avgKwhPerDay"`
	MaxDayKwh     float64      `json:"maxDayKwh"`
	MaxDay        *models.Date `json:"maxDay"`
	DaysWithData  int          `json:"daysWithData"`
	ReadingsCount int          `json:"readingsCount"`
}

// Aggregate sums readings per bucket; only buckets with data are returned, oldest first
func Aggregate(items []models.Measurement, g Granularity) []Point {
	if len(items) == 0 {
		return []Point{}
	}

	sums := make(map[time.Time]float64)
	for _, item := range items {
		sums[g.BucketStart(item.Timestamp)] += item.Kwh
	}

	points := make([]Point, 0, len(sums))
	for start, kwh := range sums {
		points = append(points, Point{BucketStart: start, Kwh: kwh})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].BucketStart.Before(points[j].BucketStart)
	})
	return points
}

// Summarize computes totals from readings; the earliest date wins a tie for the max day
func Summarize(items []models.Measurement) Summary {
	days := Aggregate(items, Day)
	summary := Summary{DaysWithData: len(days), ReadingsCount: len(items)}

	for _, point := range days {
		summary.TotalKwh += point.Kwh
		if summary.MaxDay == nil || point.Kwh > summary.MaxDayKwh {
			date := models.DateOf(point.BucketStart)
			summary.MaxDay = &date
			summary.MaxDayKwh = point.Kwh
		}
	}
	if len(days) > 0 {
		summary.AvgKwhPerDay = summary.TotalKwh / float64(len(days))
	}
	return summary
}
