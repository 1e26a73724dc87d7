package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/model"
)

// QueueResponse is a doctor's day in token order.
type QueueResponse struct {
	DoctorID     string              `json:"doctorId"`
	Date         string              `json:"date"`
	Appointments []model.Appointment `json:"appointments"`
}

// GetDoctorQueue handles GET /api/doctors/:doctor_id/queue.
func (h *Handler) GetDoctorQueue(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	doctorID, date := c.Param("doctor_id"), h.date(c)

	list, err := h.engine.Queue(c.Request.Context(), who, doctorID, date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []model.Appointment{}
	}
	c.JSON(http.StatusOK, QueueResponse{DoctorID: doctorID, Date: date, Appointments: list})
}

// SummaryResponse counts a hospital's appointments on one day.
type SummaryResponse struct {
	HospitalID string                 `json:"hospitalId"`
	Date       string                 `json:"date"`
	Counts     map[model.Status]int64 `json:"counts"`
	Total      int64                  `json:"total"`
}

// GetHospitalSummary handles GET /api/hospitals/:hospital_id/summary.
func (h *Handler) GetHospitalSummary(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	hospitalID, date := c.Param("hospital_id"), h.date(c)

	counts, err := h.engine.Summary(c.Request.Context(), who, hospitalID, date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, SummaryResponse{HospitalID: hospitalID, Date: date, Counts: counts, Total: total})
}

// requireHospitalStaff rejects callers who are not staff of :hospital_id. It
// runs ahead of the response cache so cached summaries are only served to
// callers entitled to them.
func requireHospitalStaff(authz auth.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := actor(c)
		if !ok {
			return
		}
		if !authz.IsHospitalStaff(who, c.Param("hospital_id")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
