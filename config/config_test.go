package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  dsn: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.OpTimeout)
	assert.Equal(t, 3, cfg.Store.AllocationAttempts)
	assert.Equal(t, 15, cfg.Queue.ConsultationMinutes)
	assert.Equal(t, 20, cfg.Queue.PatientWindowMinutes)
	assert.Equal(t, 5*time.Minute, cfg.Reconciler.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Reconciler.Grace)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.NotNil(t, cfg.Queue.Location)
	assert.Equal(t, 3, cfg.Queue.Suggestions)
	assert.False(t, cfg.Reconciler.Disabled, "the sweep runs when the section is absent")
}

func TestLoad_NegativeSuggestionsTurnAlternativesOff(t *testing.T) {
	cfg, err := Load(writeConfig(t, "queue:\n  suggestions: -1\n"))
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Queue.Suggestions)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
queue:
  timezone: "Asia/Kolkata"
  consultation_minutes: 20
reconciler:
  disabled: true
  interval_seconds: 60
  grace_minutes: 5
`))
	require.NoError(t, err)

	assert.Equal(t, "Asia/Kolkata", cfg.Queue.Location.String())
	assert.Equal(t, 20, cfg.Queue.ConsultationMinutes)
	assert.True(t, cfg.Reconciler.Disabled)
	assert.Equal(t, time.Minute, cfg.Reconciler.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Reconciler.Grace)
}

func TestLoad_BadTimezone(t *testing.T) {
	_, err := Load(writeConfig(t, "queue:\n  timezone: Mars/Olympus\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
