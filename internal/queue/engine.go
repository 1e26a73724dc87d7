// Package queue is the appointment queue and scheduling engine: booking with
// token allocation and wait estimates, the status state machine, and the
// queries behind the doctor console and hospital dashboard.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"clinic-queue-backend/config"
	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/bus"
	"clinic-queue-backend/internal/clock"
	"clinic-queue-backend/internal/directory"
	"clinic-queue-backend/internal/metrics"
	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/store"
)

// Options tunes scheduling policy.
type Options struct {
	Location             *time.Location
	ConsultationMinutes  int
	PatientWindowMinutes int
	SlotStepMinutes      int
	Suggestions          int
	EnforceAvailability  bool
}

// OptionsFromConfig copies the queue section of the service config.
func OptionsFromConfig(cfg config.QueueConfig) Options {
	return Options{
		Location:             cfg.Location,
		ConsultationMinutes:  cfg.ConsultationMinutes,
		PatientWindowMinutes: cfg.PatientWindowMinutes,
		SlotStepMinutes:      cfg.SlotStepMinutes,
		Suggestions:          cfg.Suggestions,
		EnforceAvailability:  cfg.EnforceAvailability,
	}
}

func (o *Options) applyDefaults() {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.ConsultationMinutes <= 0 {
		o.ConsultationMinutes = 15
	}
	if o.PatientWindowMinutes <= 0 {
		o.PatientWindowMinutes = 20
	}
	if o.SlotStepMinutes <= 0 {
		o.SlotStepMinutes = 15
	}
	switch {
	case o.Suggestions == 0:
		o.Suggestions = 3
	case o.Suggestions < 0:
		// Negative turns alternative slots off.
		o.Suggestions = -1
	}
}

// Deps are the engine's collaborators. Bus, Clock, Authorizer and Metrics
// may be left nil.
type Deps struct {
	Store      store.Store
	Directory  directory.Directory
	Authorizer auth.Authorizer
	Bus        bus.Publisher
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	store   store.Store
	dir     directory.Directory
	authz   auth.Authorizer
	bus     bus.Publisher
	clock   clock.Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
	opts    Options
}

// New creates an Engine.
func New(deps Deps, opts Options) *Engine {
	opts.applyDefaults()
	e := &Engine{
		store:   deps.Store,
		dir:     deps.Directory,
		authz:   deps.Authorizer,
		bus:     deps.Bus,
		clock:   deps.Clock,
		metrics: deps.Metrics,
		log:     deps.Log.With().Str("component", "queue").Logger(),
		opts:    opts,
	}
	if e.authz == nil {
		e.authz = auth.RolePolicy{}
	}
	if e.bus == nil {
		e.bus = bus.Discard
	}
	if e.clock == nil {
		e.clock = clock.System()
	}
	return e
}

// Location is the zone appointment dates and times are expressed in.
func (e *Engine) Location() *time.Location { return e.opts.Location }

// Today is the current calendar date in the engine's zone.
func (e *Engine) Today() string { return clock.DayOf(e.now(), e.opts.Location) }

func (e *Engine) now() time.Time { return e.clock.Now().In(e.opts.Location) }

// Get returns one appointment to a caller allowed to see it.
func (e *Engine) Get(ctx context.Context, actor auth.Actor, id string) (*model.Appointment, error) {
	a, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, fromStore("get appointment", err)
	}
	if !e.canView(actor, a) {
		return nil, ErrForbidden
	}
	return a, nil
}

func (e *Engine) canView(actor auth.Actor, a *model.Appointment) bool {
	return e.authz.IsSystem(actor) ||
		e.authz.IsOwningPatient(actor, a) ||
		e.authz.IsAssignedDoctor(actor, a) ||
		e.authz.IsHospitalStaff(actor, a.HospitalID)
}

// Queue lists a doctor's appointments on date in token order, every status
// included. The doctor and staff of the doctor's hospital may read it.
func (e *Engine) Queue(ctx context.Context, actor auth.Actor, doctorID, date string) ([]model.Appointment, error) {
	day, err := clock.ParseDate(date)
	if err != nil {
		return nil, invalid("date", "%v", err)
	}
	if err := e.authorizeDoctorView(ctx, actor, doctorID); err != nil {
		return nil, err
	}
	list, err := e.store.DoctorQueue(ctx, doctorID, day)
	if err != nil {
		return nil, fromStore("doctor queue", err)
	}
	return list, nil
}

func (e *Engine) authorizeDoctorView(ctx context.Context, actor auth.Actor, doctorID string) error {
	switch actor.Role {
	case model.RoleSystem:
		return nil
	case model.RoleDoctor:
		if actor.ID == doctorID {
			return nil
		}
	case model.RoleHospital:
		if actor.HospitalID == "" {
			return ErrForbidden
		}
		_, err := e.dir.LookupDoctor(ctx, actor.HospitalID, doctorID)
		if err == nil {
			return nil
		}
		if errors.Is(err, directory.ErrNotFound) {
			return ErrForbidden
		}
		return fromDirectory("lookup doctor", err)
	}
	return ErrForbidden
}

// Summary counts a hospital's appointments on date by status.
func (e *Engine) Summary(ctx context.Context, actor auth.Actor, hospitalID, date string) (map[model.Status]int64, error) {
	day, err := clock.ParseDate(date)
	if err != nil {
		return nil, invalid("date", "%v", err)
	}
	if !e.authz.IsSystem(actor) && !e.authz.IsHospitalStaff(actor, hospitalID) {
		return nil, ErrForbidden
	}
	counts, err := e.store.HospitalSummary(ctx, hospitalID, day)
	if err != nil {
		return nil, fromStore("hospital summary", err)
	}
	return counts, nil
}

// announce publishes a persisted change. Failures are logged, never returned:
// the state change has already committed and subscribers re-query on reconnect.
func (e *Engine) announce(ctx context.Context, eventType string, a *model.Appointment, topics ...string) {
	data, err := json.Marshal(a)
	if err != nil {
		e.log.Error().Err(err).Str("appointment_id", a.ID).Msg("failed to marshal event payload")
		return
	}
	ev := bus.Event{
		Type:          eventType,
		AppointmentID: a.ID,
		Status:        a.Status,
		Timestamp:     e.now(),
		Data:          data,
	}
	for _, topic := range topics {
		if err := e.bus.Publish(ctx, topic, ev); err != nil {
			e.log.Warn().Err(err).Str("topic", topic).Str("appointment_id", a.ID).Msg("event publish failed")
		}
	}
	e.metrics.BusEvent(eventType)
}
