// Package directory reads the hospital/doctor records the queue engine needs
// when creating an appointment. The records themselves are maintained by the
// profile-management service.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/parse"
)

var (
	ErrNotFound    = errors.New("doctor not found")
	ErrUnavailable = errors.New("directory unavailable")
)

// Doctor is the slice of a doctor record used at booking time.
type Doctor struct {
	DoctorID        string
	HospitalID      string
	Active          bool
	ConsultationFee float64
}

// Directory answers "does this doctor exist, where, and when".
type Directory interface {
	// LookupDoctor returns ErrNotFound when the doctor is unknown or is not
	// attached to hospitalID.
	LookupDoctor(ctx context.Context, hospitalID, doctorID string) (Doctor, error)
	// Availability returns the doctor's declared windows on date, if any.
	Availability(ctx context.Context, doctorID, date string) ([]parse.Window, error)
}

type gormDirectory struct {
	db      *gorm.DB
	timeout time.Duration
	log     zerolog.Logger
}

// NewGormDirectory reads the doctors and doctor_availabilities tables.
func NewGormDirectory(db *gorm.DB, timeout time.Duration, log zerolog.Logger) Directory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &gormDirectory{db: db, timeout: timeout, log: log.With().Str("component", "directory").Logger()}
}

func (d *gormDirectory) LookupDoctor(ctx context.Context, hospitalID, doctorID string) (Doctor, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var doc model.Doctor
	err := d.db.WithContext(ctx).
		Where("id = ? AND hospital_id = ?", doctorID, hospitalID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Doctor{}, fmt.Errorf("doctor %s in hospital %s: %w", doctorID, hospitalID, ErrNotFound)
	}
	if err != nil {
		return Doctor{}, fmt.Errorf("lookup doctor: %w: %v", ErrUnavailable, err)
	}
	return Doctor{
		DoctorID:        doc.ID,
		HospitalID:      doc.HospitalID,
		Active:          doc.Active,
		ConsultationFee: doc.ConsultationFee,
	}, nil
}

func (d *gormDirectory) Availability(ctx context.Context, doctorID, date string) ([]parse.Window, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var rows []model.DoctorAvailability
	err := d.db.WithContext(ctx).
		Where("doctor_id = ? AND date = ?", doctorID, date).
		Order("time_window ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("availability: %w: %v", ErrUnavailable, err)
	}

	windows := make([]parse.Window, 0, len(rows))
	for _, row := range rows {
		w, err := parse.ParseWindow(row.Window)
		if err != nil {
			d.log.Warn().Err(err).Str("doctor_id", doctorID).Str("date", date).Msg("skipping malformed availability window")
			continue
		}
		windows = append(windows, w)
	}
	return windows, nil
}
