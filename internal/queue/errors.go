package queue

import (
	"errors"
	"fmt"
	"strings"

	"clinic-queue-backend/internal/directory"
	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/store"
)

// Sentinel errors. Every error returned by Engine matches exactly one of them
// under errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrTransientStore     = errors.New("transient store error")
)

// ValidationError names the offending input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Conflict reasons.
const (
	ConflictSlotTaken     = "slot_taken"
	ConflictPatientWindow = "patient_window"
)

// ConflictError is returned when a booking collides with an existing one.
type ConflictError struct {
	Reason          string   `json:"reason"`
	RequestedTime   string   `json:"requestedTime"`
	ConflictingTime string   `json:"conflictingTime"`
	Alternatives    []string `json:"alternatives"`
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s at %s conflicts with %s", e.Reason, e.RequestedTime, e.ConflictingTime)
	if len(e.Alternatives) > 0 {
		msg += " (try " + strings.Join(e.Alternatives, ", ") + ")"
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return ErrSchedulingConflict }

// TransitionError reports a refused status change together with the
// appointment's current authoritative status.
type TransitionError struct {
	To           model.Status `json:"to,omitempty"`
	Current      model.Status `json:"current"`
	Unauthorized bool         `json:"unauthorized,omitempty"`
	Reason       string       `json:"reason"`
}

func (e *TransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("appointment is %s: %s", e.Current, e.Reason)
	}
	return fmt.Sprintf("cannot move appointment from %s to %s: %s", e.Current, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// fromStore maps persistence errors onto the engine's taxonomy.
func fromStore(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		// Unavailability, timeouts and anything unexpected are retryable.
		return fmt.Errorf("%s: %w: %v", op, ErrTransientStore, err)
	}
}

func fromDirectory(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, directory.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrTransientStore, err)
	}
}
