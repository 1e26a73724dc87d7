package model

import (
	"time"

	"gorm.io/datatypes"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
	StatusMissed     Status = "missed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusConfirmed, StatusInProgress, StatusCompleted,
	StatusCancelled, StatusNoShow, StatusMissed,
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusMissed:
		return true
	}
	return false
}

// Pending reports whether s still counts toward the queue ahead of later tokens.
func (s Status) Pending() bool {
	return s == StatusConfirmed || s == StatusInProgress
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// PendingStatuses are the statuses counted by the wait-time estimate.
var PendingStatuses = []Status{StatusConfirmed, StatusInProgress}

// SlotHoldingStatuses occupy their exact (doctor, date, time) slot.
var SlotHoldingStatuses = []Status{StatusConfirmed, StatusInProgress, StatusCompleted}

// ActorRole identifies who performed a cancellation.
type ActorRole string

const (
	RolePatient  ActorRole = "patient"
	RoleDoctor   ActorRole = "doctor"
	RoleHospital ActorRole = "hospital"
	RoleSystem   ActorRole = "system"
)

// Urgency is the triage level supplied by the patient.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Valid reports whether u is a known urgency level.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Appointment is a booked visit and its queue position.
type Appointment struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	PatientID  string `gorm:"index;size:64;not null" json:"patientId"`
	DoctorID   string `gorm:"size:64;not null;uniqueIndex:idx_doctor_day_token,priority:1" json:"doctorId"`
	HospitalID string `gorm:"size:64;not null;index:idx_hospital_day,priority:1" json:"hospitalId"`

	AppointmentDate      string `gorm:"size:10;not null;uniqueIndex:idx_doctor_day_token,priority:2;index:idx_hospital_day,priority:2" json:"appointmentDate"`
	AppointmentTime      string `gorm:"size:5;not null" json:"appointmentTime"`
	TokenNumber          int    `gorm:"not null;uniqueIndex:idx_doctor_day_token,priority:3" json:"tokenNumber"`
	EstimatedWaitMinutes int    `gorm:"not null;default:0" json:"estimatedWaitMinutes"`

	Status Status `gorm:"size:16;not null;index" json:"status"`

	CheckedInAt           *time.Time `json:"checkedInAt,omitempty"`
	ConsultationStartedAt *time.Time `json:"consultationStartedAt,omitempty"`
	ConsultationEndedAt   *time.Time `json:"consultationEndedAt,omitempty"`
	CancelledAt           *time.Time `json:"cancelledAt,omitempty"`
	CancelledBy           ActorRole  `gorm:"size:16" json:"cancelledBy,omitempty"`
	CancellationReason    string     `gorm:"size:512" json:"cancellationReason,omitempty"`

	// Clinical payload; carried, not interpreted, except Urgency.
	Symptoms        string            `gorm:"type:text" json:"symptoms"`
	Urgency         Urgency           `gorm:"size:16;not null;default:'low'" json:"urgency"`
	Notes           string            `gorm:"type:text" json:"notes,omitempty"`
	ConsultationFee float64           `json:"consultationFee"`
	PaymentStatus   string            `gorm:"size:32" json:"paymentStatus,omitempty"`
	PaymentMethod   string            `gorm:"size:32" json:"paymentMethod,omitempty"`
	Vitals          datatypes.JSONMap `json:"vitals,omitempty"`

	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}
