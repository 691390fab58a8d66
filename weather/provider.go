// Package weather keeps a per-meter cache of daily temperatures, fetching only the missing days.
package weather

import (
	"context"

	"github.com/Iksvihii/daily-watt-sub000/models"
)

// Day is one day of weather returned by a provider
type Day struct {
	Date    models.Date
	TempAvg float64
	TempMin float64
	TempMax float64
	Source  string
}

// Provider fetches daily weather for a location, inclusive of both dates
type Provider interface {
	GetWeather(ctx context.Context, lat, lon float64, from, to models.Date) ([]Day, error)
}
