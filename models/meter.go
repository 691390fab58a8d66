package models

import "time"

// Meter is a utility meter (PRM) linked by a user
type Meter struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index;not null;size:64" json:"userId"`
	Prm       string    `gorm:"size:32;not null" json:"prm"`
	Label     string    `gorm:"size:255" json:"label"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Meter) TableName() string {
	return "meters"
}

// HasLocation reports whether both coordinates are known
func (m Meter) HasLocation() bool {
	return m.Latitude != nil && m.Longitude != nil
}

// Credential holds the utility portal login of a user; the password is protected at rest
type Credential struct {
	UserID            string    `gorm:"primaryKey;size:64" json:"userId"`
	Login             string    `gorm:"size:255;not null" json:"login"`
	PasswordProtected []byte    `gorm:"not null" json:"-"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Credential) TableName() string {
	return "credentials"
}
