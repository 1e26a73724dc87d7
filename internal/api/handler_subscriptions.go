package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"clinic-queue-backend/internal/model"
	"clinic-queue-backend/internal/store"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// patient returns the calling patient, or aborts: push subscriptions belong
// to patients only.
func patient(c *gin.Context) (string, bool) {
	who, ok := actor(c)
	if !ok {
		return "", false
	}
	if who.Role != model.RolePatient {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only patients can manage push subscriptions"})
		return "", false
	}
	return who.ID, true
}

// PutSubscription handles the creation or replacement of a subscription. An
// endpoint re-registered from another account moves to the caller.
func (h *Handler) PutSubscription(c *gin.Context) {
	patientID, ok := patient(c)
	if !ok {
		return
	}
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	subscription := model.PushSubscription{
		Endpoint:  req.Endpoint,
		PatientID: patientID,
		P256DH:    req.P256DH,
		Auth:      req.Auth,
	}
	if err := h.store.SavePushSubscription(c.Request.Context(), &subscription); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	patientID, ok := patient(c)
	if !ok {
		return
	}
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if _, err := h.ownedSubscription(c, patientID, req.Endpoint); err != nil {
		h.storeError(c, err)
		return
	}
	if err := h.store.DeletePushSubscription(c.Request.Context(), req.Endpoint); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// rawQueryParam reads a parameter without URL decoding. Push endpoints are
// URLs themselves and clients often send them unescaped.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription handles the retrieval of a subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	patientID, ok := patient(c)
	if !ok {
		return
	}
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	sub, err := h.ownedSubscription(c, patientID, raw)
	if errors.Is(err, store.ErrNotFound) {
		// Fall back to the decoded form for clients that did escape it.
		if decoded, derr := url.QueryUnescape(raw); derr == nil && decoded != raw {
			sub, err = h.ownedSubscription(c, patientID, decoded)
		}
	}
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoint": sub.Endpoint, "patientId": sub.PatientID, "createdAt": sub.CreatedAt})
}

// ownedSubscription hides other patients' endpoints behind ErrNotFound.
func (h *Handler) ownedSubscription(c *gin.Context, patientID, endpoint string) (*model.PushSubscription, error) {
	sub, err := h.store.GetPushSubscription(c.Request.Context(), endpoint)
	if err != nil {
		return nil, err
	}
	if sub.PatientID != patientID {
		return nil, store.ErrNotFound
	}
	return sub, nil
}

func (h *Handler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
	default:
		h.log.Error().Err(err).Msg("push subscription store error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// GetVAPIDPublicKey returns the VAPID public key to the client.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vapid keys are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
