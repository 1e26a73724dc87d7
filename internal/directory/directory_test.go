package directory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/parse"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Hospital{}, &model.Doctor{}, &model.DoctorAvailability{}))
	return db
}

func TestGormDirectory(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.Hospital{ID: "h1", Name: "City Clinic"}).Error)
	require.NoError(t, db.Create(&model.Doctor{ID: "d1", HospitalID: "h1", DisplayName: "Dr. One", ConsultationFee: 500, Active: true}).Error)
	require.NoError(t, db.Create([]model.DoctorAvailability{
		{DoctorID: "d1", Date: "2026-03-09", Window: "14:00-17:00"},
		{DoctorID: "d1", Date: "2026-03-09", Window: "09:00-12:00"},
		{DoctorID: "d1", Date: "2026-03-09", Window: "whenever"},
		{DoctorID: "d1", Date: "2026-03-10", Window: "10:00-11:00"},
	}).Error)

	dir := NewGormDirectory(db, time.Second, zerolog.Nop())
	ctx := context.Background()

	t.Run("lookup", func(t *testing.T) {
		doc, err := dir.LookupDoctor(ctx, "h1", "d1")
		require.NoError(t, err)
		assert.Equal(t, Doctor{DoctorID: "d1", HospitalID: "h1", Active: true, ConsultationFee: 500}, doc)
	})

	t.Run("doctor in another hospital", func(t *testing.T) {
		_, err := dir.LookupDoctor(ctx, "h2", "d1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("availability skips malformed rows", func(t *testing.T) {
		ws, err := dir.Availability(ctx, "d1", "2026-03-09")
		require.NoError(t, err)
		assert.Equal(t, []parse.Window{{Start: 540, End: 720}, {Start: 840, End: 1020}}, ws)
	})

	t.Run("no availability declared", func(t *testing.T) {
		ws, err := dir.Availability(ctx, "d1", "2026-03-11")
		require.NoError(t, err)
		assert.Empty(t, ws)
	})
}

// MockDirectory is a mock implementation of Directory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) LookupDoctor(ctx context.Context, hospitalID, doctorID string) (Doctor, error) {
	args := m.Called(ctx, hospitalID, doctorID)
	return args.Get(0).(Doctor), args.Error(1)
}

func (m *MockDirectory) Availability(ctx context.Context, doctorID, date string) ([]parse.Window, error) {
	args := m.Called(ctx, doctorID, date)
	return args.Get(0).([]parse.Window), args.Error(1)
}

func TestCached(t *testing.T) {
	ctx := context.Background()
	next := new(MockDirectory)
	doc := Doctor{DoctorID: "d1", HospitalID: "h1", Active: true}
	next.On("LookupDoctor", ctx, "h1", "d1").Return(doc, nil).Once()
	next.On("LookupDoctor", ctx, "h1", "missing").Return(Doctor{}, ErrNotFound).Twice()
	next.On("Availability", ctx, "d1", "2026-03-09").Return([]parse.Window{{Start: 540, End: 720}}, nil).Once()

	c := NewCached(next, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := c.LookupDoctor(ctx, "h1", "d1")
		require.NoError(t, err)
		assert.Equal(t, doc, got)

		ws, err := c.Availability(ctx, "d1", "2026-03-09")
		require.NoError(t, err)
		assert.Len(t, ws, 1)
	}

	// Failures are not cached.
	for i := 0; i < 2; i++ {
		_, err := c.LookupDoctor(ctx, "h1", "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	}

	next.AssertExpectations(t)
}
