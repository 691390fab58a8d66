// Package dashboard composes the time series screen: consumption buckets, summary and weather.
package dashboard

import (
	"context"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/aggregation"
	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/models"
	"github.com/Iksvihii/daily-watt-sub000/weather"
)

// MeterStore resolves the meter of a query
type MeterStore interface {
	GetMeter(ctx context.Context, userID, meterID string) (*models.Meter, error)
	FirstMeter(ctx context.Context, userID string) (*models.Meter, error)
}

// WeatherStore reads cached weather
type WeatherStore interface {
	ListWeather(ctx context.Context, userID, meterID string, from, to models.Date) ([]models.WeatherDay, error)
}

// WeatherSyncer fills missing weather days
type WeatherSyncer interface {
	EnsureWeather(ctx context.Context, userID, meterID string, lat, lon float64, from, to models.Date) (weather.SyncResult, error)
}

// Aggregator computes consumption views
type Aggregator interface {
	Compute(ctx context.Context, userID, meterID string, from, to time.Time, g aggregation.Granularity) (aggregation.Result, error)
	GetMeasurementRange(ctx context.Context, userID, meterID string) (*time.Time, *time.Time, error)
}

// Request is one time series query; an empty MeterID selects the user's oldest meter
type Request struct {
	UserID      string
	MeterID     string
	From        time.Time
	To          time.Time
	Granularity aggregation.Granularity
	WithWeather bool
}

// Response is the time series payload
type Response struct {
	MeterID     string                  `json:"meterId"`
	From        time.Time               `json:"from"`
	To          time.Time               `json:"to"`
	Granularity aggregation.Granularity `json:"granularity"`
	Consumption []aggregation.Point     `json:"consumption"`
	Summary     aggregation.Summary     `json:"summary"`
	Weather     []models.WeatherDay     `json:"weather,omitempty"`
}

// Composer answers dashboard queries
type Composer struct {
	meters     MeterStore
	aggregator Aggregator
	weather    WeatherStore
	syncer     WeatherSyncer
}

// NewComposer wires the composer; syncer may be nil when weather is disabled
func NewComposer(meters MeterStore, aggregator Aggregator, weatherStore WeatherStore, syncer WeatherSyncer) *Composer {
	return &Composer{meters: meters, aggregator: aggregator, weather: weatherStore, syncer: syncer}
}

func (c *Composer) Query(ctx context.Context, req Request) (*Response, error) {
	if !req.To.After(req.From) {
		return nil, apperror.Validation("to must be after from")
	}
	if req.Granularity == "" {
		req.Granularity = aggregation.Day
	}

	meter, err := c.meter(ctx, req)
	if err != nil {
		return nil, err
	}

	from, to := req.From.UTC(), req.To.UTC()
	result, err := c.aggregator.Compute(ctx, req.UserID, meter.ID, from, to, req.Granularity)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		MeterID:     meter.ID,
		From:        from,
		To:          to,
		Granularity: req.Granularity,
		Consumption: result.Points,
		Summary:     result.Summary,
	}

	if req.WithWeather && meter.HasLocation() && c.syncer != nil {
		days, err := c.weatherFor(ctx, req.UserID, meter, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warnf("Weather omitted for meter %s: %v", meter.ID, err)
		} else {
			resp.Weather = days
		}
	}

	return resp, nil
}

func (c *Composer) meter(ctx context.Context, req Request) (*models.Meter, error) {
	if req.MeterID == "" {
		return c.meters.FirstMeter(ctx, req.UserID)
	}
	return c.meters.GetMeter(ctx, req.UserID, req.MeterID)
}

// weatherFor syncs and reads the days where the query range and the stored readings overlap
func (c *Composer) weatherFor(ctx context.Context, userID string, meter *models.Meter, from, to time.Time) ([]models.WeatherDay, error) {
	first, last, err := c.aggregator.GetMeasurementRange(ctx, userID, meter.ID)
	if err != nil {
		return nil, err
	}
	if first == nil || last == nil {
		return []models.WeatherDay{}, nil
	}

	start, end := models.DateOf(from), models.DateOf(to)
	if d := models.DateOf(*first); d.After(start) {
		start = d
	}
	if d := models.DateOf(*last); d.Before(end) {
		end = d
	}
	if start.After(end) {
		return []models.WeatherDay{}, nil
	}

	result, err := c.syncer.EnsureWeather(ctx, userID, meter.ID, *meter.Latitude, *meter.Longitude, start, end)
	if err != nil {
		return nil, err
	}
	if !result.Complete() {
		logger.Warnf("Weather incomplete for meter %s: %v", meter.ID, result.Failures)
	}
	return c.weather.ListWeather(ctx, userID, meter.ID, start, end)
}
