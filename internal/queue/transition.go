package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/bus"
	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/store"
)

// Transition moves an appointment to target on behalf of actor. The write is
// conditioned on the status and version that were read, so of two concurrent
// requests on one appointment exactly one succeeds; the other gets a
// TransitionError carrying the winner's status.
func (e *Engine) Transition(ctx context.Context, actor auth.Actor, id string, target model.Status, meta Metadata) (*model.Appointment, error) {
	a, err := e.transition(ctx, actor, id, target, meta)
	e.metrics.Transition(string(target), transitionResult(err))
	if err != nil {
		e.logRefusal(err).
			Str("appointment_id", id).
			Str("target", string(target)).
			Str("actor_role", string(actor.Role)).
			Msg("transition refused")
		return nil, err
	}

	e.log.Info().
		Str("appointment_id", a.ID).
		Str("status", string(a.Status)).
		Str("actor_role", string(actor.Role)).
		Msg("appointment transitioned")

	eventType := bus.EventUpdated
	topics := []string{bus.HospitalTopic(a.HospitalID), bus.DoctorTopic(a.DoctorID)}
	switch a.Status {
	case model.StatusCancelled:
		eventType = bus.EventCancelled
		topics = append(topics, bus.PatientTopic(a.PatientID))
	case model.StatusMissed:
		eventType = bus.EventMissed
		topics = append(topics, bus.PatientTopic(a.PatientID))
	}
	e.announce(ctx, eventType, a, topics...)
	return a, nil
}

func (e *Engine) transition(ctx context.Context, actor auth.Actor, id string, target model.Status, meta Metadata) (*model.Appointment, error) {
	if !target.Valid() {
		return nil, invalid("status", "unknown status %q", target)
	}
	cur, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fromStore("get appointment", err)
	}

	r, ok := transitions[edge{cur.Status, target}]
	if !ok {
		reason := "transition is not allowed"
		if cur.Status.Terminal() {
			reason = "appointment is already " + string(cur.Status)
		}
		return nil, &TransitionError{To: target, Current: cur.Status, Reason: reason}
	}
	if !r.allowed(e.authz, actor, cur) {
		return nil, &TransitionError{To: target, Current: cur.Status, Unauthorized: true, Reason: "actor is not permitted to make this change"}
	}

	next := *cur
	now := e.now()
	r.apply(&next, actor, meta, func() *time.Time { t := now; return &t })
	next.Status = target
	next.Version = cur.Version + 1

	if err := e.store.UpdateAppointment(ctx, &next, cur.Status, cur.Version); err != nil {
		return nil, e.writeFailed(ctx, id, target, err)
	}
	return &next, nil
}

// CheckIn records the patient's arrival on a confirmed appointment. It may
// happen once, by the patient or by staff of the appointment's hospital.
func (e *Engine) CheckIn(ctx context.Context, actor auth.Actor, id string) (*model.Appointment, error) {
	a, err := e.checkIn(ctx, actor, id)
	if err != nil {
		e.logRefusal(err).Str("appointment_id", id).Msg("check-in refused")
		return nil, err
	}
	e.log.Info().Str("appointment_id", a.ID).Msg("patient checked in")
	e.announce(ctx, bus.EventUpdated, a, bus.HospitalTopic(a.HospitalID), bus.DoctorTopic(a.DoctorID))
	return a, nil
}

func (e *Engine) checkIn(ctx context.Context, actor auth.Actor, id string) (*model.Appointment, error) {
	cur, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fromStore("get appointment", err)
	}
	allowed := e.authz.IsSystem(actor) || e.authz.IsOwningPatient(actor, cur) || e.authz.IsHospitalStaff(actor, cur.HospitalID)
	switch {
	case !allowed:
		return nil, &TransitionError{Current: cur.Status, Unauthorized: true, Reason: "actor may not check in this appointment"}
	case cur.Status != model.StatusConfirmed:
		return nil, &TransitionError{Current: cur.Status, Reason: "only confirmed appointments can be checked in"}
	case cur.CheckedInAt != nil:
		return nil, &TransitionError{Current: cur.Status, Reason: "already checked in"}
	}

	next := *cur
	now := e.now()
	next.CheckedInAt = &now
	next.Version = cur.Version + 1
	if err := e.store.UpdateAppointment(ctx, &next, cur.Status, cur.Version); err != nil {
		return nil, e.writeFailed(ctx, id, "", err)
	}
	return &next, nil
}

// writeFailed explains a failed conditioned write. A lost race is reported
// with the status that won.
func (e *Engine) writeFailed(ctx context.Context, id string, target model.Status, err error) error {
	if !errors.Is(err, store.ErrConflict) {
		return fromStore("update appointment", err)
	}
	fresh, gerr := e.store.GetAppointment(ctx, id)
	if gerr != nil {
		return fromStore("reload appointment", gerr)
	}
	return &TransitionError{To: target, Current: fresh.Status, Reason: "appointment was changed concurrently"}
}

func (e *Engine) logRefusal(err error) *zerolog.Event {
	if errors.Is(err, ErrTransientStore) {
		return e.log.Warn().Err(err)
	}
	return e.log.Info().Err(err)
}

func transitionResult(err error) string {
	var te *TransitionError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &te) && te.Unauthorized:
		return "unauthorized"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, ErrValidation):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
