package repository

import (
	"context"
	"fmt"

	"github.com/Iksvihii/daily-watt-sub000/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateMeter stores a new meter, assigning an id when missing
func (r *Repository) CreateMeter(ctx context.Context, meter *models.Meter) error {
	if meter.ID == "" {
		meter.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(meter).Error; err != nil {
		return fmt.Errorf("failed to create meter: %w", err)
	}
	return nil
}

// GetMeter returns the meter when it belongs to userID
func (r *Repository) GetMeter(ctx context.Context, userID, meterID string) (*models.Meter, error) {
	var meter models.Meter
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, meterID).
		Take(&meter).Error
	if err != nil {
		return nil, notFound(err, models.ErrCodeMeterNotFound, "meter %s not found", meterID)
	}
	return &meter, nil
}

// FirstMeter returns the oldest meter of a user
func (r *Repository) FirstMeter(ctx context.Context, userID string) (*models.Meter, error) {
	var meter models.Meter
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Take(&meter).Error
	if err != nil {
		return nil, notFound(err, models.ErrCodeMeterNotFound, "no meter registered for user %s", userID)
	}
	return &meter, nil
}

// UpdateMeterLocation changes the coordinates and drops the weather cached for the old location
func (r *Repository) UpdateMeterLocation(ctx context.Context, userID, meterID string, lat, lon *float64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Meter{}).
			Where("user_id = ? AND id = ?", userID, meterID).
			Updates(map[string]interface{}{"latitude": lat, "longitude": lon})
		if res.Error != nil {
			return fmt.Errorf("failed to update meter location: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound(gorm.ErrRecordNotFound, models.ErrCodeMeterNotFound, "meter %s not found", meterID)
		}
		if err := tx.Where("user_id = ? AND meter_id = ?", userID, meterID).Delete(&models.WeatherDay{}).Error; err != nil {
			return fmt.Errorf("failed to drop cached weather: %w", err)
		}
		return nil
	})
}

// DeleteMeter removes a meter and everything it owns: measurements, import jobs and weather days
func (r *Repository) DeleteMeter(ctx context.Context, userID, meterID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := []interface{}{&models.Measurement{}, &models.ImportJob{}, &models.WeatherDay{}}
		for _, model := range owned {
			if err := tx.Where("user_id = ? AND meter_id = ?", userID, meterID).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to delete %T rows of meter %s: %w", model, meterID, err)
			}
		}
		res := tx.Where("user_id = ? AND id = ?", userID, meterID).Delete(&models.Meter{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete meter: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound(gorm.ErrRecordNotFound, models.ErrCodeMeterNotFound, "meter %s not found", meterID)
		}
		return nil
	})
}

// GetCredential returns the stored portal credentials of a user
func (r *Repository) GetCredential(ctx context.Context, userID string) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&cred).Error; err != nil {
		return nil, notFound(err, models.ErrCodeNoCredentials, "no credentials stored for user %s", userID)
	}
	return &cred, nil
}

// SaveCredential inserts or replaces the credentials of a user
func (r *Repository) SaveCredential(ctx context.Context, cred *models.Credential) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"login", "password_protected", "updated_at"}),
		}).
		Create(cred).Error
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}
