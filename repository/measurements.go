package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReplaceMeasurements deletes the readings of (user, meter) within [from, to] inclusive and inserts
// items, in one transaction. It returns the number of inserted rows.
func (r *Repository) ReplaceMeasurements(ctx context.Context, userID, meterID string, from, to time.Time, items []models.Measurement) (int, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND meter_id = ? AND timestamp >= ? AND timestamp <= ?",
			userID, meterID, from.UTC(), to.UTC()).
			Delete(&models.Measurement{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete existing measurements: %w", res.Error)
		}

		if len(items) == 0 {
			return nil
		}
		for i := range items {
			if items[i].ID == "" {
				items[i].ID = uuid.NewString()
			}
		}
		if err := tx.CreateInBatches(items, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert measurements: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// ListMeasurements returns the readings of (user, meter) within [from, to] inclusive, oldest first
func (r *Repository) ListMeasurements(ctx context.Context, userID, meterID string, from, to time.Time) ([]models.Measurement, error) {
	var items []models.Measurement
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND meter_id = ? AND timestamp >= ? AND timestamp <= ?",
			userID, meterID, from.UTC(), to.UTC()).
		Order("timestamp ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	return items, nil
}

// CountMeasurements returns the number of stored readings of (user, meter)
func (r *Repository) CountMeasurements(ctx context.Context, userID, meterID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Measurement{}).
		Where("user_id = ? AND meter_id = ?", userID, meterID).
		Count(&count).Error
	return count, err
}

// MeasurementRange returns the oldest and newest timestamps of (user, meter); both nil without data
func (r *Repository) MeasurementRange(ctx context.Context, userID, meterID string) (*time.Time, *time.Time, error) {
	var first, last models.Measurement
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Where("user_id = ? AND meter_id = ?", userID, meterID)
	}

	err := base().Order("timestamp ASC").Take(&first).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read measurement range: %w", err)
	}
	if err := base().Order("timestamp DESC").Take(&last).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to read measurement range: %w", err)
	}

	oldest, newest := first.Timestamp.UTC(), last.Timestamp.UTC()
	return &oldest, &newest, nil
}
