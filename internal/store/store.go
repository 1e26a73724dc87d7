package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"clinic-queue-backend/internal/model"
)

// Store defines the interface for all appointment persistence.
type Store interface {
	// CreateAppointment reserves the next token for (a.DoctorID, a.AppointmentDate)
	// and inserts a. prepare runs inside the transaction while the doctor/day is
	// locked; an error from prepare aborts the booking and is returned unchanged.
	CreateAppointment(ctx context.Context, a *model.Appointment, prepare PrepareFunc) error
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	// UpdateAppointment writes a only if the stored row still has expectStatus
	// and expectVersion; otherwise it returns ErrConflict.
	UpdateAppointment(ctx context.Context, a *model.Appointment, expectStatus model.Status, expectVersion int) error
	DoctorQueue(ctx context.Context, doctorID, date string) ([]model.Appointment, error)
	HospitalSummary(ctx context.Context, hospitalID, date string) (map[model.Status]int64, error)
	// ConfirmedThrough lists confirmed appointments dated on or before date.
	ConfirmedThrough(ctx context.Context, date string) ([]model.Appointment, error)

	SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
	GetPushSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	PushSubscriptions(ctx context.Context, patientID string) ([]model.PushSubscription, error)
}

// Options bounds store calls.
type Options struct {
	OpTimeout          time.Duration
	AllocationAttempts int
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	opts  Options
	locks *keyedMutex
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts Options) Store {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 5 * time.Second
	}
	if opts.AllocationAttempts <= 0 {
		opts.AllocationAttempts = 3
	}
	return &gormStore{db: db, opts: opts, locks: newKeyedMutex()}
}

func (s *gormStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.OpTimeout)
}

// GetAppointment loads one appointment by id.
func (s *gormStore) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var a model.Appointment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, translate("get appointment", err)
	}
	return &a, nil
}

// UpdateAppointment performs the conditioned write used by every status change.
func (s *gormStore) UpdateAppointment(ctx context.Context, a *model.Appointment, expectStatus model.Status, expectVersion int) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Model(a).
		Where("status = ? AND version = ?", expectStatus, expectVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(a)
	if res.Error != nil {
		return translate("update appointment", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update appointment %s: %w", a.ID, ErrConflict)
	}
	return nil
}

// DoctorQueue returns every appointment for the doctor on date, token ascending.
func (s *gormStore) DoctorQueue(ctx context.Context, doctorID, date string) ([]model.Appointment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out []model.Appointment
	err := s.db.WithContext(ctx).
		Where("doctor_id = ? AND appointment_date = ?", doctorID, date).
		Order("token_number ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate("doctor queue", err)
	}
	return out, nil
}

// HospitalSummary counts the hospital's appointments on date by status.
func (s *gormStore) HospitalSummary(ctx context.Context, hospitalID, date string) (map[model.Status]int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	type row struct {
		Status model.Status
		Total  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Select("status, COUNT(*) AS total").
		Where("hospital_id = ? AND appointment_date = ?", hospitalID, date).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("hospital summary", err)
	}

	counts := make(map[model.Status]int64, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

// ConfirmedThrough feeds the missed-appointment reconciler.
func (s *gormStore) ConfirmedThrough(ctx context.Context, date string) ([]model.Appointment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out []model.Appointment
	err := s.db.WithContext(ctx).
		Where("status = ? AND appointment_date <= ?", model.StatusConfirmed, date).
		Order("appointment_date ASC, appointment_time ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate("confirmed appointments", err)
	}
	return out, nil
}

// --- Push subscriptions ---

func (s *gormStore) SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return translate("save push subscription", s.db.WithContext(ctx).Save(sub).Error)
}

func (s *gormStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	return translate("delete push subscription", err)
}

func (s *gormStore) GetPushSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, translate("get push subscription", err)
	}
	return &sub, nil
}

func (s *gormStore) PushSubscriptions(ctx context.Context, patientID string) ([]model.PushSubscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("patient_id = ?", patientID).Find(&subs).Error; err != nil {
		return nil, translate("list push subscriptions", err)
	}
	return subs, nil
}

// prepareError carries a caller error out of a transaction untranslated.
type prepareError struct{ err error }

func (e prepareError) Error() string { return e.err.Error() }

func unwrapPrepare(err error) (error, bool) {
	var pe prepareError
	if errors.As(err, &pe) {
		return pe.err, true
	}
	return nil, false
}
