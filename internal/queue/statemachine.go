package queue

import (
	"time"

	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/model"
)

// MissedReason is recorded on appointments the reconciler marks missed.
const MissedReason = "No check-in or consultation start within the grace period"

type edge struct {
	from, to model.Status
}

// rule guards and applies one edge of the state machine.
type rule struct {
	allowed func(authz auth.Authorizer, actor auth.Actor, a *model.Appointment) bool
	apply   func(a *model.Appointment, actor auth.Actor, meta Metadata, now nowFunc)
}

// nowFunc returns a fresh pointer to the transition instant.
type nowFunc func() *time.Time

// Metadata accompanies a transition request.
type Metadata struct {
	Reason string
	Notes  string
}

var transitions = map[edge]rule{
	{model.StatusConfirmed, model.StatusInProgress}: {
		allowed: doctorOrStaff,
		apply: func(a *model.Appointment, _ auth.Actor, _ Metadata, now nowFunc) {
			a.ConsultationStartedAt = now()
		},
	},
	{model.StatusInProgress, model.StatusCompleted}: {
		allowed: func(authz auth.Authorizer, actor auth.Actor, a *model.Appointment) bool {
			return authz.IsAssignedDoctor(actor, a)
		},
		apply: func(a *model.Appointment, _ auth.Actor, meta Metadata, now nowFunc) {
			a.ConsultationEndedAt = now()
			a.Notes = mergeNotes(a.Notes, meta.Notes)
		},
	},
	{model.StatusConfirmed, model.StatusCancelled}:  {allowed: canCancel, apply: cancel},
	{model.StatusInProgress, model.StatusCancelled}: {allowed: canCancel, apply: cancel},
	{model.StatusConfirmed, model.StatusNoShow}: {
		allowed: doctorOrStaff,
		apply:   func(*model.Appointment, auth.Actor, Metadata, nowFunc) {},
	},
	{model.StatusConfirmed, model.StatusMissed}: {
		allowed: func(authz auth.Authorizer, actor auth.Actor, _ *model.Appointment) bool {
			return authz.IsSystem(actor)
		},
		apply: func(a *model.Appointment, _ auth.Actor, _ Metadata, _ nowFunc) {
			a.CancelledBy = model.RoleSystem
			a.CancellationReason = MissedReason
		},
	},
}

func doctorOrStaff(authz auth.Authorizer, actor auth.Actor, a *model.Appointment) bool {
	return authz.IsAssignedDoctor(actor, a) || authz.IsHospitalStaff(actor, a.HospitalID)
}

func canCancel(authz auth.Authorizer, actor auth.Actor, a *model.Appointment) bool {
	return authz.IsSystem(actor) ||
		authz.IsOwningPatient(actor, a) ||
		authz.IsAssignedDoctor(actor, a) ||
		authz.IsHospitalStaff(actor, a.HospitalID)
}

func cancel(a *model.Appointment, actor auth.Actor, meta Metadata, now nowFunc) {
	a.CancelledAt = now()
	a.CancelledBy = actor.Role
	a.CancellationReason = meta.Reason
	if a.CancellationReason == "" {
		a.CancellationReason = "Cancelled by " + string(actor.Role)
	}
}

func mergeNotes(existing, added string) string {
	switch {
	case added == "":
		return existing
	case existing == "":
		return added
	default:
		return existing + "\n" + added
	}
}
