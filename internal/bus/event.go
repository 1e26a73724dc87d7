// Package bus is the topic-based publish/subscribe layer that announces
// appointment state changes to hospitals, doctors and patients.
//
// Delivery is at-most-once and best effort. A subscriber sees events in the
// order they were published to a topic; one that connects later gets nothing
// retroactively and is expected to re-query current state.
package bus

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"clinic-queue-backend/internal/model"
)

// Event types.
const (
	EventCreated   = "appointment.created"
	EventUpdated   = "appointment.updated"
	EventCancelled = "appointment.cancelled"
	EventMissed    = "appointment.missed"
)

// Topic kinds.
const (
	KindHospital = "hospital"
	KindDoctor   = "doctor"
	KindPatient  = "patient"
)

// Event is one notification on one topic.
type Event struct {
	Type          string          `json:"type"`
	Topic         string          `json:"topic"`
	AppointmentID string          `json:"appointmentId"`
	Status        model.Status    `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Publisher delivers an event to everyone subscribed to topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

func HospitalTopic(id string) string { return KindHospital + ":" + id }
func DoctorTopic(id string) string   { return KindDoctor + ":" + id }
func PatientTopic(id string) string  { return KindPatient + ":" + id }

// SplitTopic breaks "kind:id" apart.
func SplitTopic(topic string) (kind, id string, ok bool) {
	kind, id, ok = strings.Cut(topic, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch kind {
	case KindHospital, KindDoctor, KindPatient:
		return kind, id, true
	}
	return "", "", false
}
