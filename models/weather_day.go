package models

import "time"

// SourceOpenMeteo tags weather rows fetched from Open-Meteo
const SourceOpenMeteo = "open-meteo"

// WeatherDay is the cached daily weather of a meter location
type WeatherDay struct {
	ID        string    `gorm:"primaryKey;size:36" json:"-"`
	UserID    string    `gorm:"uniqueIndex:idx_weather_owner_date,priority:1;not null;size:64" json:"-"`
	MeterID   string    `gorm:"uniqueIndex:idx_weather_owner_date,priority:2;not null;size:64" json:"-"`
	Date      Date      `gorm:"uniqueIndex:idx_weather_owner_date,priority:3;type:varchar(10);not null" json:"date"`
	TempAvg   float64   `json:"tempAvg"`
	TempMin   float64   `json:"tempMin"`
	TempMax   float64   `json:"tempMax"`
	Source    string    `gorm:"size:32" json:"source"`
	Latitude  float64   `json:"-"`
	Longitude float64   `json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

func (WeatherDay) TableName() string {
	return "weather_days"
}
