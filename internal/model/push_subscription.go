package model

import "time"

// PushSubscription holds a browser push endpoint registered by a patient.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	PatientID string    `gorm:"index;size:64;not null"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
