// Package auth resolves who is calling and answers the ownership questions
// the queue engine asks before a status change.
package auth

import (
	"strings"

	"clinic-queue-backend/internal/model"
)

// Actor is an authenticated caller. HospitalID is set for hospital staff and
// for doctors attached to a hospital.
type Actor struct {
	ID         string          `json:"id"`
	Role       model.ActorRole `json:"role"`
	HospitalID string          `json:"hospitalId,omitempty"`
}

// System is the actor the reconciler acts as.
var System = Actor{ID: "system", Role: model.RoleSystem}

// Authorizer answers pure authorization checks against an appointment.
type Authorizer interface {
	IsAssignedDoctor(a Actor, appt *model.Appointment) bool
	IsOwningPatient(a Actor, appt *model.Appointment) bool
	IsHospitalStaff(a Actor, hospitalID string) bool
	IsSystem(a Actor) bool
	CanSubscribe(a Actor, topic string) bool
}

// RolePolicy decides from the actor's role and ids alone.
type RolePolicy struct{}

var _ Authorizer = RolePolicy{}

func (RolePolicy) IsAssignedDoctor(a Actor, appt *model.Appointment) bool {
	return a.Role == model.RoleDoctor && a.ID != "" && a.ID == appt.DoctorID
}

func (RolePolicy) IsOwningPatient(a Actor, appt *model.Appointment) bool {
	return a.Role == model.RolePatient && a.ID != "" && a.ID == appt.PatientID
}

func (RolePolicy) IsHospitalStaff(a Actor, hospitalID string) bool {
	return a.Role == model.RoleHospital && a.HospitalID != "" && a.HospitalID == hospitalID
}

func (RolePolicy) IsSystem(a Actor) bool {
	return a.Role == model.RoleSystem
}

// CanSubscribe limits bus topics to the caller's own stream: a patient or a
// doctor to their own topic, hospital staff to their hospital's topic.
func (RolePolicy) CanSubscribe(a Actor, topic string) bool {
	kind, id, ok := strings.Cut(topic, ":")
	if !ok || id == "" {
		return false
	}
	switch kind {
	case "patient":
		return a.Role == model.RolePatient && a.ID == id
	case "doctor":
		return a.Role == model.RoleDoctor && a.ID == id
	case "hospital":
		return a.Role == model.RoleHospital && a.HospitalID == id
	default:
		return false
	}
}
