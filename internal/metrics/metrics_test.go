package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.Booking("created")
	m.Booking("created")
	m.Booking("conflict")
	m.Transition("in_progress", "ok")
	m.Sweep(3, 1)
	m.BusEvent("appointment.created")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookings.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookings.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcilerSweeps))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reconcilerMissed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcilerErrors))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `clinic_transitions_total{result="ok",to="in_progress"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Booking("created")
		m.Transition("missed", "ok")
		m.Sweep(1, 0)
		m.BusEvent("x")
		m.ObserveHTTP("GET", "/", "200", 0.1)
	})
}
