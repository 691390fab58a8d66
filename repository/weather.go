package repository

import (
	"context"
	"fmt"

	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WeatherDates returns the cached dates of (user, meter) within [from, to]
func (r *Repository) WeatherDates(ctx context.Context, userID, meterID string, from, to models.Date) ([]models.Date, error) {
	var dates []models.Date
	err := r.db.WithContext(ctx).Model(&models.WeatherDay{}).
		Where("user_id = ? AND meter_id = ? AND date >= ? AND date <= ?", userID, meterID, from, to).
		Order("date ASC").
		Pluck("date", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read cached weather dates: %w", err)
	}
	return dates, nil
}

// ListWeather returns the cached weather of (user, meter) within [from, to], oldest first
func (r *Repository) ListWeather(ctx context.Context, userID, meterID string, from, to models.Date) ([]models.WeatherDay, error) {
	var days []models.WeatherDay
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND meter_id = ? AND date >= ? AND date <= ?", userID, meterID, from, to).
		Order("date ASC").
		Find(&days).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list weather: %w", err)
	}
	return days, nil
}

// UpsertWeatherDays replaces the rows of (user, meter) for exactly the dates in days
func (r *Repository) UpsertWeatherDays(ctx context.Context, userID, meterID string, days []models.WeatherDay) error {
	if len(days) == 0 {
		return nil
	}

	dates := make([]models.Date, 0, len(days))
	rows := make([]models.WeatherDay, 0, len(days))
	seen := make(map[string]bool, len(days))
	for _, day := range days {
		key := day.Date.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		day.UserID = userID
		day.MeterID = meterID
		if day.ID == "" {
			day.ID = uuid.NewString()
		}
		dates = append(dates, day.Date)
		rows = append(rows, day)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND meter_id = ? AND date IN ?", userID, meterID, dates).
			Delete(&models.WeatherDay{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear weather days: %w", err)
		}
		if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert weather days: %w", err)
		}
		return nil
	})
}
