package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/bus"
	"clinic-queue-backend/internal/clock"
	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/parse"
	"clinic-queue-backend/internal/store"
)

// BookingRequest is everything a caller supplies to reserve a slot.
type BookingRequest struct {
	PatientID  string
	HospitalID string
	DoctorID   string
	Date       string // YYYY-MM-DD
	Time       string // HH:MM

	Symptoms        string
	Urgency         model.Urgency
	Notes           string
	ConsultationFee *float64 // nil takes the doctor's default fee
	PaymentMethod   string
	PaymentStatus   string
	Vitals          map[string]any
}

type slotRequest struct {
	date    string
	minute  int
	windows []parse.Window
}

func (e *Engine) validateBooking(req *BookingRequest) (slotRequest, error) {
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.HospitalID = strings.TrimSpace(req.HospitalID)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.Symptoms = strings.TrimSpace(req.Symptoms)

	switch {
	case req.PatientID == "":
		return slotRequest{}, invalid("patientId", "is required")
	case req.HospitalID == "":
		return slotRequest{}, invalid("hospitalId", "is required")
	case req.DoctorID == "":
		return slotRequest{}, invalid("doctorId", "is required")
	case req.Symptoms == "":
		return slotRequest{}, invalid("symptoms", "is required")
	}

	date, err := clock.ParseDate(req.Date)
	if err != nil {
		return slotRequest{}, invalid("appointmentDate", "%v", err)
	}
	minute, err := clock.ParseTimeOfDay(req.Time)
	if err != nil {
		return slotRequest{}, invalid("appointmentTime", "%v", err)
	}
	req.Date = date
	req.Time = clock.FormatTimeOfDay(minute)

	if req.Urgency == "" {
		req.Urgency = model.UrgencyLow
	}
	if !req.Urgency.Valid() {
		return slotRequest{}, invalid("urgency", "unknown level %q", req.Urgency)
	}
	if req.ConsultationFee != nil && *req.ConsultationFee < 0 {
		return slotRequest{}, invalid("consultationFee", "must not be negative")
	}

	at, err := clock.ScheduledInstant(date, req.Time, e.opts.Location)
	if err != nil {
		return slotRequest{}, invalid("appointmentDate", "%v", err)
	}
	if at.Before(e.now()) {
		return slotRequest{}, invalid("appointmentTime", "%s %s is in the past", date, req.Time)
	}
	return slotRequest{date: date, minute: minute}, nil
}

// Book reserves the next token for the doctor's day and returns the created
// appointment with its wait estimate. Patients may only book for themselves;
// hospital staff may book into their own hospital.
func (e *Engine) Book(ctx context.Context, actor auth.Actor, req BookingRequest) (*model.Appointment, error) {
	a, err := e.book(ctx, actor, req)
	e.metrics.Booking(bookingResult(err))
	if err != nil {
		e.logRefusal(err).Str("doctor_id", req.DoctorID).Str("date", req.Date).Str("time", req.Time).Msg("booking refused")
		return nil, err
	}

	e.log.Info().
		Str("appointment_id", a.ID).
		Str("doctor_id", a.DoctorID).
		Str("date", a.AppointmentDate).
		Int("token", a.TokenNumber).
		Int("estimated_wait_minutes", a.EstimatedWaitMinutes).
		Msg("appointment booked")

	e.announce(ctx, bus.EventCreated, a, bus.HospitalTopic(a.HospitalID), bus.DoctorTopic(a.DoctorID))
	return a, nil
}

func (e *Engine) book(ctx context.Context, actor auth.Actor, req BookingRequest) (*model.Appointment, error) {
	slot, err := e.validateBooking(&req)
	if err != nil {
		return nil, err
	}

	switch {
	case e.authz.IsSystem(actor):
	case actor.Role == model.RolePatient && actor.ID == req.PatientID:
	case e.authz.IsHospitalStaff(actor, req.HospitalID):
	default:
		return nil, ErrForbidden
	}

	doc, err := e.dir.LookupDoctor(ctx, req.HospitalID, req.DoctorID)
	if err != nil {
		return nil, fromDirectory("lookup doctor", err)
	}
	if !doc.Active {
		return nil, fmt.Errorf("doctor %s is inactive: %w", req.DoctorID, ErrNotFound)
	}

	if e.opts.EnforceAvailability {
		windows, err := e.dir.Availability(ctx, req.DoctorID, slot.date)
		if err != nil {
			return nil, fromDirectory("doctor availability", err)
		}
		if len(windows) > 0 && !parse.AnyContains(windows, slot.minute) {
			return nil, invalid("appointmentTime", "%s is outside the doctor's hours %s", req.Time, formatWindows(windows))
		}
		slot.windows = windows
	}

	fee := doc.ConsultationFee
	if req.ConsultationFee != nil {
		fee = *req.ConsultationFee
	}
	a := &model.Appointment{
		ID:              uuid.NewString(),
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		HospitalID:      req.HospitalID,
		AppointmentDate: slot.date,
		AppointmentTime: req.Time,
		Status:          model.StatusConfirmed,
		Symptoms:        req.Symptoms,
		Urgency:         req.Urgency,
		Notes:           req.Notes,
		ConsultationFee: fee,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   req.PaymentStatus,
		Vitals:          req.Vitals,
		Version:         1,
	}

	err = e.store.CreateAppointment(ctx, a, func(day store.DayLedger, a *model.Appointment) error {
		existing, err := day.Appointments()
		if err != nil {
			return fromStore("day appointments", err)
		}
		if c := e.findConflict(existing, a.PatientID, slot.minute); c != nil {
			c.RequestedTime = a.AppointmentTime
			c.Alternatives = e.suggest(existing, a.PatientID, slot)
			return c
		}

		pending, err := day.PendingBefore(a.TokenNumber)
		if err != nil {
			return fromStore("pending before", err)
		}
		a.EstimatedWaitMinutes = e.estimate(pending)
		return nil
	})
	if err != nil {
		var c *ConflictError
		var v *ValidationError
		if errors.As(err, &c) || errors.As(err, &v) || errors.Is(err, ErrTransientStore) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fromStore("create appointment", err)
	}
	return a, nil
}

// findConflict checks the two booking rules against the doctor's day: an
// exact time already held by another appointment, and the same patient
// within the patient window of an appointment still pending.
func (e *Engine) findConflict(existing []model.Appointment, patientID string, minute int) *ConflictError {
	for i := range existing {
		x := &existing[i]
		m, err := clock.ParseTimeOfDay(x.AppointmentTime)
		if err != nil {
			continue
		}
		if m == minute && holdsSlot(x.Status) {
			return &ConflictError{Reason: ConflictSlotTaken, ConflictingTime: x.AppointmentTime}
		}
	}
	for i := range existing {
		x := &existing[i]
		if x.PatientID != patientID || !x.Status.Pending() {
			continue
		}
		m, err := clock.ParseTimeOfDay(x.AppointmentTime)
		if err != nil {
			continue
		}
		if abs(m-minute) < e.opts.PatientWindowMinutes {
			return &ConflictError{Reason: ConflictPatientWindow, ConflictingTime: x.AppointmentTime}
		}
	}
	return nil
}

// suggest walks forward from the requested time in slot steps until the end
// of the day, collecting times that would pass every booking rule.
func (e *Engine) suggest(existing []model.Appointment, patientID string, slot slotRequest) []string {
	out := []string{}
	if e.opts.Suggestions <= 0 {
		return out
	}
	now := e.now()
	for m := slot.minute + e.opts.SlotStepMinutes; clock.ValidMinutes(m); m += e.opts.SlotStepMinutes {
		hhmm := clock.FormatTimeOfDay(m)
		if at, err := clock.ScheduledInstant(slot.date, hhmm, e.opts.Location); err != nil || at.Before(now) {
			continue
		}
		if len(slot.windows) > 0 && !parse.AnyContains(slot.windows, m) {
			continue
		}
		if e.findConflict(existing, patientID, m) != nil {
			continue
		}
		out = append(out, hhmm)
		if len(out) == e.opts.Suggestions {
			break
		}
	}
	return out
}

func holdsSlot(s model.Status) bool {
	for _, h := range model.SlotHoldingStatuses {
		if s == h {
			return true
		}
	}
	return false
}

func formatWindows(ws []parse.Window) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.String()
	}
	return strings.Join(parts, ", ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrSchedulingConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
