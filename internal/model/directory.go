package model

import "time"

// Hospital is a directory record owned by the profile-management service.
type Hospital struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"size:256;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Doctors []Doctor `gorm:"foreignKey:HospitalID"`
}

// Doctor is a directory record; the engine only reads it.
type Doctor struct {
	ID              string `gorm:"primaryKey;size:64"`
	HospitalID      string `gorm:"index;size:64;not null"`
	DisplayName     string `gorm:"size:256;not null"`
	Specialization  string `gorm:"size:128"`
	ConsultationFee float64
	Active          bool      `gorm:"not null;default:true"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// DoctorAvailability declares a consultation window for one doctor on one date.
type DoctorAvailability struct {
	ID       int64  `gorm:"primaryKey"`
	DoctorID string `gorm:"size:64;not null;index:idx_availability_doctor_date,priority:1"`
	Date     string `gorm:"size:10;not null;index:idx_availability_doctor_date,priority:2"`
	Window   string `gorm:"column:time_window;size:16;not null"` // "09:00-13:00"
}
