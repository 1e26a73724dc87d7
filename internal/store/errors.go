package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict means a conditioned write lost a race or a unique index rejected it.
	ErrConflict = errors.New("store: conflicting write")
	// ErrUnavailable means the database timed out or could not be reached. Retryable.
	ErrUnavailable = errors.New("store: unavailable")
)

// translate maps driver and gorm errors onto the store's error set.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isDuplicate(err):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		// Timeouts, dropped connections and anything else the driver reports.
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
