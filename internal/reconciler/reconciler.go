// Package reconciler runs the periodic sweep that marks overdue confirmed
// appointments as missed.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"clinic-queue-backend/config"
	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/clock"
	"clinic-queue-backend/internal/metrics"
	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/queue"
)

// Source lists sweep candidates.
type Source interface {
	ConfirmedThrough(ctx context.Context, date string) ([]model.Appointment, error)
}

// Transitioner applies a status change through the state machine.
type Transitioner interface {
	Transition(ctx context.Context, actor auth.Actor, id string, target model.Status, meta queue.Metadata) (*model.Appointment, error)
}

// Report summarizes one sweep.
type Report struct {
	Scanned int // confirmed appointments dated today or earlier
	Missed  int // transitioned by this sweep
	Skipped int // changed by someone else before we got to them
	Errors  int // candidates that failed and will be retried next sweep
}

// Service owns the sweep loop.
type Service struct {
	cfg     config.ReconcilerConfig
	loc     *time.Location
	source  Source
	engine  Transitioner
	clock   clock.Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewService creates the reconciler. loc is the zone appointment times are
// expressed in.
func NewService(cfg config.ReconcilerConfig, loc *time.Location, source Source, engine Transitioner, clk clock.Clock, m *metrics.Metrics, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if clk == nil {
		clk = clock.System()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	return &Service{
		cfg:     cfg,
		loc:     loc,
		source:  source,
		engine:  engine,
		clock:   clk,
		metrics: m,
		log:     log.With().Str("component", "reconciler").Logger(),
	}
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.Disabled {
		s.log.Warn().Msg("reconciler is disabled, missed appointments will not be swept")
		return
	}
	s.log.Info().Dur("interval", s.cfg.Interval).Dur("grace", s.cfg.Grace).Msg("starting reconciler")

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("reconciler shutting down")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SweepOnce marks every overdue confirmed appointment missed. A failure on one
// candidate is logged and counted; it never stops the rest of the sweep. When
// ctx is cancelled the candidate in hand is finished and the sweep stops.
func (s *Service) SweepOnce(ctx context.Context) Report {
	var rep Report
	now := s.clock.Now()
	today := clock.DayOf(now, s.loc)

	candidates, err := s.source.ConfirmedThrough(ctx, today)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep aborted: could not list confirmed appointments")
		rep.Errors++
		s.metrics.Sweep(0, rep.Errors)
		return rep
	}
	rep.Scanned = len(candidates)

	for i := range candidates {
		if ctx.Err() != nil {
			s.log.Info().Int("remaining", len(candidates)-i).Msg("sweep interrupted by shutdown")
			break
		}
		a := &candidates[i]

		overdue, err := clock.Overdue(a.AppointmentDate, a.AppointmentTime, s.cfg.Grace, now, s.loc)
		if err != nil {
			rep.Errors++
			s.log.Error().Err(err).Str("appointment_id", a.ID).Msg("unreadable schedule on appointment")
			continue
		}
		if !overdue {
			continue
		}

		// Each candidate commits on its own; do not abandon one half way.
		_, err = s.engine.Transition(context.WithoutCancel(ctx), auth.System, a.ID, model.StatusMissed, queue.Metadata{})
		switch {
		case err == nil:
			rep.Missed++
		case errors.Is(err, queue.ErrInvalidTransition), errors.Is(err, queue.ErrNotFound):
			rep.Skipped++
		default:
			rep.Errors++
			s.log.Warn().Err(err).Str("appointment_id", a.ID).Msg("failed to mark appointment missed, will retry next sweep")
		}
	}

	s.metrics.Sweep(rep.Missed, rep.Errors)
	s.log.Info().
		Int("scanned", rep.Scanned).
		Int("missed", rep.Missed).
		Int("skipped", rep.Skipped).
		Int("errors", rep.Errors).
		Msg("sweep complete")
	return rep
}
