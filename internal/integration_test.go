package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-queue-backend/config"
	"clinic-queue-backend/internal/api"
	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/bus"
	"clinic-queue-backend/internal/db"
	"clinic-queue-backend/internal/directory"
	"clinic-queue-backend/internal/metrics"
	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/queue"
	"clinic-queue-backend/internal/reconciler"
	"clinic-queue-backend/internal/store"
)

const secret = "integration-secret"

// movableClock lets the test walk time forward across a whole day.
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func signed(t *testing.T, a auth.Actor) string {
	t.Helper()
	tok, err := auth.Sign([]byte(secret), a, time.Hour)
	require.NoError(t, err)
	return tok
}

// TestAppointmentDayLifecycle drives a clinic day end to end: booking over
// HTTP, events over the websocket, and the reconciler marking a no-show.
func TestAppointmentDayLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()

	// --- Test Setup ---

	// 1. An in-memory SQLite database, migrated like production.
	cfg := &config.Config{
		Server: config.ServerConfig{JWTSecret: secret},
		Database: config.DatabaseConfig{
			Driver:       "sqlite",
			DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
			MaxOpenConns: 1,
			LogLevel:     "silent",
		},
		Queue:      config.QueueConfig{Timezone: "UTC", EnforceAvailability: true},
		Reconciler: config.ReconcilerConfig{},
	}
	require.NoError(t, cfg.ApplyDefaults())

	gormDB, err := db.Init(&cfg.Database, log)
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	require.NoError(t, gormDB.Create(&model.Hospital{ID: "h1", Name: "General"}).Error)
	require.NoError(t, gormDB.Create(&model.Doctor{ID: "d1", HospitalID: "h1", DisplayName: "Dr. One", ConsultationFee: 300, Active: true}).Error)
	require.NoError(t, gormDB.Create(&model.DoctorAvailability{DoctorID: "d1", Date: "2026-03-09", Window: "09:00-12:00"}).Error)

	// 2. The service, wired as cmd/clinicd does it.
	clk := &movableClock{now: time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)}
	st := store.NewGormStore(gormDB, store.Options{OpTimeout: cfg.Store.OpTimeout})
	hub := bus.NewHub(cfg.Bus.SubscriberBuffer)
	m := metrics.New()
	engine := queue.New(queue.Deps{
		Store:     st,
		Directory: directory.NewCached(directory.NewGormDirectory(gormDB, time.Second, log), time.Minute),
		Bus:       hub,
		Clock:     clk,
		Metrics:   m,
		Log:       log,
	}, queue.OptionsFromConfig(cfg.Queue))
	sweeper := reconciler.NewService(cfg.Reconciler, cfg.Queue.Location, st, engine, clk, m, log)

	router := api.NewRouter(cfg.Server, api.RouterDeps{
		Handler: api.NewHandler(engine, st, nil, log),
		Hub:     hub,
		Metrics: m,
		Log:     log,
	})
	server := httptest.NewServer(router)
	defer server.Close()

	post := func(who auth.Actor, path string, body any) *http.Response {
		t.Helper()
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, server.URL+path, bytes.NewReader(buf))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+signed(t, who))
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	doctor := auth.Actor{ID: "d1", Role: model.RoleDoctor, HospitalID: "h1"}
	patient1 := auth.Actor{ID: "p1", Role: model.RolePatient}
	patient2 := auth.Actor{ID: "p2", Role: model.RolePatient}

	// 3. The doctor's console follows their own topic.
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?topic=doctor:d1&access_token=" + signed(t, doctor)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.SubscriberCount("doctor:d1") == 1 }, time.Second, 10*time.Millisecond)

	next := func() bus.Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev bus.Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	// --- Step 1: two patients book ---
	booking := func(at string) map[string]any {
		return map[string]any{
			"hospitalId": "h1", "doctorId": "d1",
			"appointmentDate": "2026-03-09", "appointmentTime": at,
			"symptoms": "headache",
		}
	}
	resp := post(patient1, "/api/appointments", booking("09:00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var first model.Appointment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))
	assert.Equal(t, 1, first.TokenNumber)
	assert.Equal(t, 300.0, first.ConsultationFee)

	ev := next()
	assert.Equal(t, bus.EventCreated, ev.Type)
	assert.Equal(t, first.ID, ev.AppointmentID)
	assert.Equal(t, "doctor:d1", ev.Topic)

	resp = post(patient2, "/api/appointments", booking("09:30"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var second model.Appointment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	assert.Equal(t, 2, second.TokenNumber)
	assert.Equal(t, 15, second.EstimatedWaitMinutes)
	assert.Equal(t, bus.EventCreated, next().Type)

	// Outside the declared hours.
	resp = post(patient2, "/api/appointments", booking("13:00"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// --- Step 2: the second patient is seen ---
	clk.Set(time.Date(2026, 3, 9, 9, 31, 0, 0, time.UTC))
	resp = post(doctor, "/api/appointments/"+second.ID+"/transitions", map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ev = next()
	assert.Equal(t, bus.EventUpdated, ev.Type)
	assert.Equal(t, model.StatusInProgress, ev.Status)

	// --- Step 3: the reconciler catches the first patient's no-show ---
	report := sweeper.SweepOnce(context.Background())
	assert.Equal(t, reconciler.Report{Scanned: 1, Missed: 1}, report)

	ev = next()
	assert.Equal(t, bus.EventMissed, ev.Type)
	assert.Equal(t, first.ID, ev.AppointmentID)

	got, err := st.GetAppointment(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusMissed, got.Status)
	assert.Equal(t, model.RoleSystem, got.CancelledBy)
	assert.Equal(t, queue.MissedReason, got.CancellationReason)

	// A second sweep finds nothing left to do.
	assert.Equal(t, reconciler.Report{}, sweeper.SweepOnce(context.Background()))

	// --- Step 4: the consultation ends; terminal states stay put ---
	resp = post(doctor, "/api/appointments/"+second.ID+"/transitions", map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusCompleted, next().Status)

	resp = post(patient1, "/api/appointments/"+first.ID+"/transitions", map[string]string{"status": "cancelled"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
