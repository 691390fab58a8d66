package weather

import "github.com/Iksvihii/daily-watt-sub000/models"

// Interval is a closed range of days
type Interval struct {
	From models.Date
	To   models.Date
}

// Days returns the number of days in the interval
func (i Interval) Days() int {
	return int(i.To.Time().Sub(i.From.Time()).Hours()/24) + 1
}

// MissingIntervals compacts the days of [from, to] absent from cached into closed intervals
func MissingIntervals(from, to models.Date, cached []models.Date) []Interval {
	if from.After(to) {
		return nil
	}

	have := make(map[string]bool, len(cached))
	for _, d := range cached {
		have[d.String()] = true
	}

	var (
		intervals []Interval
		open      bool
		current   Interval
	)
	for d := from; !d.After(to); d = d.AddDays(1) {
		if have[d.String()] {
			if open {
				intervals = append(intervals, current)
				open = false
			}
			continue
		}
		if !open {
			current = Interval{From: d}
			open = true
		}
		current.To = d
	}
	if open {
		intervals = append(intervals, current)
	}
	return intervals
}
