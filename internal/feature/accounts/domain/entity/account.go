// Package entity defines the domain models for the accounts feature.
package entity

import "time"

// BreezeAccount holds a user's upstream API credentials. The session token
// is issued out-of-band by the provider and expires daily; when it does, the
// session loop keeps retrying with a long backoff until an operator saves a
// fresh token here.
type BreezeAccount struct {
	ID           uint      `gorm:"primaryKey"`
	UserID       uint      `gorm:"not null;index"`
	Name         string    `gorm:"size:255;not null;default:ADMIN"`
	APIKey       string    `gorm:"size:255;not null"`
	APISecret    string    `gorm:"size:255;not null"`
	SessionToken string    `gorm:"size:255"`
	IsActive     bool      `gorm:"not null;default:true"`
	LastUpdated  time.Time `gorm:"autoUpdateTime"`
}
