package aggregation

import (
	"context"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/models"
)

// MeasurementStore is the read side of the measurement repository
type MeasurementStore interface {
	ListMeasurements(ctx context.Context, userID, meterID string, from, to time.Time) ([]models.Measurement, error)
	MeasurementRange(ctx context.Context, userID, meterID string) (*time.Time, *time.Time, error)
}

// Service answers aggregation queries for one meter
type Service struct {
	store MeasurementStore
}

func NewService(store MeasurementStore) *Service {
	return &Service{store: store}
}

// GetAggregated returns the buckets of [from, to] at granularity g
func (s *Service) GetAggregated(ctx context.Context, userID, meterID string, from, to time.Time, g Granularity) ([]Point, error) {
	items, err := s.store.ListMeasurements(ctx, userID, meterID, from, to)
	if err != nil {
		return nil, err
	}
	return Aggregate(items, g), nil
}

// GetSummary returns the day-based summary of [from, to]
func (s *Service) GetSummary(ctx context.Context, userID, meterID string, from, to time.Time) (Summary, error) {
	items, err := s.store.ListMeasurements(ctx, userID, meterID, from, to)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(items), nil
}

// GetMeasurementRange returns the oldest and newest reading timestamps, both nil without data
func (s *Service) GetMeasurementRange(ctx context.Context, userID, meterID string) (*time.Time, *time.Time, error) {
	return s.store.MeasurementRange(ctx, userID, meterID)
}

// Result holds both views of one query, computed from a single read
type Result struct {
	Points  []Point
	Summary Summary
}

// Compute reads [from, to] once and returns the buckets and the summary
func (s *Service) Compute(ctx context.Context, userID, meterID string, from, to time.Time, g Granularity) (Result, error) {
	items, err := s.store.ListMeasurements(ctx, userID, meterID, from, to)
	if err != nil {
		return Result{}, err
	}
	return Result{Points: Aggregate(items, g), Summary: Summarize(items)}, nil
}
