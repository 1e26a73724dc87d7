package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"clinic-queue-backend/internal/model"
)

// DayLedger is a read view of one doctor's day, valid only inside
// CreateAppointment while that day is locked.
type DayLedger interface {
	// Appointments lists the day's appointments in token order.
	Appointments() ([]model.Appointment, error)
	// NextToken is max(token)+1 for the day, or 1.
	NextToken() (int, error)
	// PendingBefore counts confirmed/in-progress appointments with a lower token.
	PendingBefore(token int) (int64, error)
}

// PrepareFunc validates a booking against the day and fills derived fields.
type PrepareFunc func(day DayLedger, a *model.Appointment) error

type dayLedger struct {
	tx       *gorm.DB
	doctorID string
	date     string
}

func (d *dayLedger) scope() *gorm.DB {
	return d.tx.Model(&model.Appointment{}).
		Where("doctor_id = ? AND appointment_date = ?", d.doctorID, d.date)
}

func (d *dayLedger) Appointments() ([]model.Appointment, error) {
	var out []model.Appointment
	if err := d.scope().Order("token_number ASC").Find(&out).Error; err != nil {
		return nil, translate("day appointments", err)
	}
	return out, nil
}

func (d *dayLedger) NextToken() (int, error) {
	var maxToken int
	if err := d.scope().Select("COALESCE(MAX(token_number), 0)").Scan(&maxToken).Error; err != nil {
		return 0, translate("max token", err)
	}
	return maxToken + 1, nil
}

func (d *dayLedger) PendingBefore(token int) (int64, error) {
	var n int64
	err := d.scope().
		Where("token_number < ? AND status IN ?", token, model.PendingStatuses).
		Count(&n).Error
	if err != nil {
		return 0, translate("pending before", err)
	}
	return n, nil
}

func dayKey(doctorID, date string) string { return doctorID + "|" + date }

// CreateAppointment is the token allocator. Bookings for the same doctor and
// date are serialized by an in-process lock; the unique index on
// (doctor_id, appointment_date, token_number) covers other instances, and a
// violation is retried with a freshly read maximum.
func (s *gormStore) CreateAppointment(ctx context.Context, a *model.Appointment, prepare PrepareFunc) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	unlock, err := s.locks.Lock(ctx, dayKey(a.DoctorID, a.AppointmentDate))
	if err != nil {
		return fmt.Errorf("lock doctor day: %w: %v", ErrUnavailable, err)
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < s.opts.AllocationAttempts; attempt++ {
		lastErr = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			day := &dayLedger{tx: tx, doctorID: a.DoctorID, date: a.AppointmentDate}

			token, err := day.NextToken()
			if err != nil {
				return err
			}
			a.TokenNumber = token

			if prepare != nil {
				if err := prepare(day, a); err != nil {
					return prepareError{err: err}
				}
			}
			return tx.Create(a).Error
		})
		if lastErr == nil {
			return nil
		}
		if perr, ok := unwrapPrepare(lastErr); ok {
			return perr
		}
		if errors.Is(lastErr, ErrUnavailable) {
			return lastErr
		}
		if !isDuplicate(lastErr) {
			return translate("create appointment", lastErr)
		}
		// Another instance took the token between our read and insert.
	}
	return translate("create appointment", lastErr)
}
