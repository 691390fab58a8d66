package weather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/metrics"
	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"
)

// SharedSyncTimeout bounds one coalesced sync, which no longer follows any single caller's context
const SharedSyncTimeout = 2 * time.Minute

// Store is the weather cache
type Store interface {
	WeatherDates(ctx context.Context, userID, meterID string, from, to models.Date) ([]models.Date, error)
	UpsertWeatherDays(ctx context.Context, userID, meterID string, days []models.WeatherDay) error
}

// SyncResult describes one EnsureWeather call
type SyncResult struct {
	Intervals  []Interval
	DaysStored int
	// Failures aggregates the provider errors of the intervals that could not be fetched
	Failures error
}

// Complete reports whether every missing interval was fetched
func (r SyncResult) Complete() bool {
	return r.Failures == nil
}

// Engine fills the weather cache of a meter
type Engine struct {
	store    Store
	provider Provider
	recorder metrics.Recorder

	group singleflight.Group
	locks sync.Map // "user/meter" -> *sync.Mutex
}

func NewEngine(store Store, provider Provider, recorder metrics.Recorder) *Engine {
	if recorder == nil {
		recorder = metrics.NoOpRecorder{}
	}
	return &Engine{store: store, provider: provider, recorder: recorder}
}

// EnsureWeather makes sure [from, to] is cached for (user, meter) at (lat, lon).
// Provider failures leave their interval empty and are reported in the result; only cache
// failures return an error. Identical concurrent calls share one execution.
func (e *Engine) EnsureWeather(ctx context.Context, userID, meterID string, lat, lon float64, from, to models.Date) (SyncResult, error) {
	if from.After(to) {
		return SyncResult{}, nil
	}

	key := fmt.Sprintf("%s/%s/%f/%f/%s/%s", userID, meterID, lat, lon, from, to)
	ch := e.group.DoChan(key, func() (interface{}, error) {
		// The flight outlives the caller that started it; each caller waits on its own ctx below
		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SharedSyncTimeout)
		defer cancel()
		return e.sync(syncCtx, userID, meterID, lat, lon, from, to)
	})

	select {
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logger.Debugf("Weather sync %s shared with a concurrent request", key)
		}
		if res.Err != nil {
			return SyncResult{}, res.Err
		}
		return res.Val.(SyncResult), nil
	}
}

func (e *Engine) lock(userID, meterID string) func() {
	m, _ := e.locks.LoadOrStore(userID+"/"+meterID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (e *Engine) sync(ctx context.Context, userID, meterID string, lat, lon float64, from, to models.Date) (SyncResult, error) {
	unlock := e.lock(userID, meterID)
	defer unlock()

	cached, err := e.store.WeatherDates(ctx, userID, meterID, from, to)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Intervals: MissingIntervals(from, to, cached)}
	if len(result.Intervals) == 0 {
		return result, nil
	}

	var failures *multierror.Error
	var rows []models.WeatherDay
	for _, interval := range result.Intervals {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		days, err := e.provider.GetWeather(ctx, lat, lon, interval.From, interval.To)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			e.recorder.RecordWeatherCall("error")
			logger.Warnf("Weather for %s..%s of meter %s unavailable: %v", interval.From, interval.To, meterID, err)
			failures = multierror.Append(failures, fmt.Errorf("%s..%s: %w", interval.From, interval.To, err))
			continue
		}
		e.recorder.RecordWeatherCall("ok")

		for _, day := range days {
			// Providers may answer with more than requested
			if day.Date.Before(interval.From) || day.Date.After(interval.To) {
				continue
			}
			rows = append(rows, models.WeatherDay{
				UserID:    userID,
				MeterID:   meterID,
				Date:      day.Date,
				TempAvg:   day.TempAvg,
				TempMin:   day.TempMin,
				TempMax:   day.TempMax,
				Source:    day.Source,
				Latitude:  lat,
				Longitude: lon,
			})
		}
	}

	if err := e.store.UpsertWeatherDays(ctx, userID, meterID, rows); err != nil {
		return result, err
	}
	result.DaysStored = len(rows)
	result.Failures = failures.ErrorOrNil()
	e.recorder.RecordWeatherDaysStored(len(rows))

	logger.Debugf("Weather sync for meter %s: %d interval(s), %d day(s) stored", meterID, len(result.Intervals), len(rows))
	return result, nil
}
