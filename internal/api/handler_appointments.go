package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/queue"
)

type createAppointmentRequest struct {
	PatientID       string         `json:"patientId"`
	HospitalID      string         `json:"hospitalId" binding:"required"`
	DoctorID        string         `json:"doctorId" binding:"required"`
	AppointmentDate string         `json:"appointmentDate" binding:"required"`
	AppointmentTime string         `json:"appointmentTime" binding:"required"`
	Symptoms        string         `json:"symptoms"`
	Urgency         model.Urgency  `json:"urgency"`
	Notes           string         `json:"notes"`
	ConsultationFee *float64       `json:"consultationFee"`
	PaymentMethod   string         `json:"paymentMethod"`
	PaymentStatus   string         `json:"paymentStatus"`
	Vitals          map[string]any `json:"vitals"`
}

// CreateAppointment handles POST /api/appointments.
func (h *Handler) CreateAppointment(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req createAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Patients book for themselves unless they say otherwise.
	if req.PatientID == "" && who.Role == model.RolePatient {
		req.PatientID = who.ID
	}

	a, err := h.engine.Book(c.Request.Context(), who, queue.BookingRequest{
		PatientID:       req.PatientID,
		HospitalID:      req.HospitalID,
		DoctorID:        req.DoctorID,
		Date:            req.AppointmentDate,
		Time:            req.AppointmentTime,
		Symptoms:        req.Symptoms,
		Urgency:         req.Urgency,
		Notes:           req.Notes,
		ConsultationFee: req.ConsultationFee,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   req.PaymentStatus,
		Vitals:          req.Vitals,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Location", "/api/appointments/"+a.ID)
	c.JSON(http.StatusCreated, a)
}

// GetAppointment handles GET /api/appointments/:id.
func (h *Handler) GetAppointment(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	a, err := h.engine.Get(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type transitionRequest struct {
	Status model.Status `json:"status" binding:"required"`
	Reason string       `json:"reason"`
	Notes  string       `json:"notes"`
}

// TransitionAppointment handles POST /api/appointments/:id/transitions.
func (h *Handler) TransitionAppointment(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.engine.Transition(c.Request.Context(), who, c.Param("id"), req.Status, queue.Metadata{
		Reason: req.Reason,
		Notes:  req.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// CheckIn handles POST /api/appointments/:id/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	a, err := h.engine.CheckIn(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
