package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clinic-queue-backend/internal/bus"
	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestStore(t *testing.T) (store.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return store.NewGormStore(gormDB, store.Options{}), mock
}

func cancelledEvent(t *testing.T) bus.Event {
	data, err := json.Marshal(model.Appointment{
		ID:                 "a1",
		AppointmentDate:    "2026-03-09",
		AppointmentTime:    "09:00",
		Status:             model.StatusCancelled,
		CancellationReason: "doctor unwell",
	})
	require.NoError(t, err)
	return bus.Event{Type: bus.EventCancelled, AppointmentID: "a1", Status: model.StatusCancelled, Data: data}
}

func TestWorkerPool_PublishFiltersTopics(t *testing.T) {
	st, _ := newTestStore(t)
	wp := NewWorkerPool(1, st, &webpush.Options{}, zerolog.Nop())

	require.NoError(t, wp.Publish(context.Background(), bus.DoctorTopic("d1"), bus.Event{}))
	require.NoError(t, wp.Publish(context.Background(), bus.HospitalTopic("h1"), bus.Event{}))
	assert.Len(t, wp.jobs, 0)

	require.NoError(t, wp.Publish(context.Background(), bus.PatientTopic("p1"), bus.Event{Type: bus.EventMissed}))
	select {
	case j := <-wp.jobs:
		assert.Equal(t, "p1", j.patientID)
		assert.Equal(t, "patient:p1", j.event.Topic)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be queued")
	}
}

func TestWorkerPool_PublishNeverBlocks(t *testing.T) {
	st, _ := newTestStore(t)
	wp := NewWorkerPool(1, st, &webpush.Options{}, zerolog.Nop())

	var err error
	for i := 0; i < cap(wp.jobs)+1; i++ {
		err = wp.Publish(context.Background(), bus.PatientTopic("p1"), bus.Event{})
	}
	assert.Error(t, err)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	st, mock := newTestStore(t)
	wp := NewWorkerPool(1, st, &webpush.Options{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	// --- Test Case: One subscription found, notification sent ---
	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)

				var msg Message
				assert.NoError(t, json.Unmarshal(payload, &msg))
				assert.Equal(t, "Appointment cancelled", msg.Title)
				assert.Equal(t, "Your appointment on 2026-03-09 at 09:00 was cancelled. Reason: doctor unwell", msg.Body)
				assert.Equal(t, "a1", msg.AppointmentID)
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE patient_id = \$1`).
			WithArgs("p1").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "patient_id", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/push", "p1", "test_p256dh", "test_auth", time.Now()))

		require.NoError(t, wp.Publish(ctx, bus.PatientTopic("p1"), cancelledEvent(t)))
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// --- Test Case: Subscription expired, should be deleted ---
	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE patient_id = \$1`).
			WithArgs("p2").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "patient_id", "p256dh", "auth", "created_at"}).
				AddRow("https://example.com/expired", "p2", "k", "a", time.Now()))

		// Expect the delete operation
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs("https://example.com/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, wp.Publish(ctx, bus.PatientTopic("p2"), bus.Event{Type: bus.EventMissed, Status: model.StatusMissed}))

		// A short sleep to allow the worker to process the job
		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
	})

	// --- Test Case: No subscriptions, nothing sent ---
	t.Run("skips patients without subscriptions", func(t *testing.T) {
		sent := make(chan struct{}, 1)
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				sent <- struct{}{}
				return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(bytes.NewBufferString(""))}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE patient_id = \$1`).
			WithArgs("p3").
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "patient_id", "p256dh", "auth", "created_at"}))

		require.NoError(t, wp.Publish(ctx, bus.PatientTopic("p3"), bus.Event{Type: bus.EventUpdated}))
		assert.Eventually(t, func() bool { return mock.ExpectationsWereMet() == nil }, time.Second, 10*time.Millisecond)
		select {
		case <-sent:
			t.Fatal("no notification expected")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage(bus.Event{Type: bus.EventMissed, AppointmentID: "a9", Status: model.StatusMissed})
	assert.Equal(t, "Appointment missed", msg.Title)
	assert.Equal(t, "Your appointment was marked as missed. Please book a new slot.", msg.Body)

	msg = buildMessage(bus.Event{Type: bus.EventUpdated, Status: model.StatusInProgress})
	assert.Equal(t, "Your appointment is now in_progress.", msg.Body)
}

func TestWorkerPool_Flush(t *testing.T) {
	st, mock := newTestStore(t)
	wp := NewWorkerPool(2, st, &webpush.Options{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	for _, p := range []string{"p1", "p2"} {
		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE patient_id = \$1`).
			WithArgs(p).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "patient_id", "p256dh", "auth", "created_at"}))
	}
	mock.MatchExpectationsInOrder(false)

	require.NoError(t, wp.Publish(ctx, bus.PatientTopic("p1"), bus.Event{Type: bus.EventMissed}))
	require.NoError(t, wp.Publish(ctx, bus.PatientTopic("p2"), bus.Event{Type: bus.EventMissed}))

	flushCtx, flushCancel := context.WithTimeout(ctx, time.Second)
	defer flushCancel()
	require.NoError(t, wp.Flush(flushCtx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
