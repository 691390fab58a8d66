package models

import (
	"time"
)

// Measurement sources
const (
	SourceEnedis = "enedis"
	SourceCSV    = "csv"
	SourceDemo   = "demo"
)

// Measurement represents one energy reading of a meter
type Measurement struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index:idx_measurement_owner_ts,priority:1;not null;size:64" json:"userId"`
	MeterID   string    `gorm:"index:idx_measurement_owner_ts,priority:2;not null;size:64" json:"meterId"`
	Timestamp time.Time `gorm:"column:timestamp;index:idx_measurement_owner_ts,priority:3;not null" json:"timestamp"`
	Kwh       float64   `gorm:"column:kwh;not null" json:"kwh"`
	Source    string    `gorm:"size:32;not null" json:"source"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName customizes the table name
func (Measurement) TableName() string {
	return "measurements"
}

// GetAllModels returns all models for migration
func GetAllModels() []interface{} {
	return []interface{}{
		&Meter{},
		&Credential{},
		&Measurement{},
		&ImportJob{},
		&WeatherDay{},
	}
}
