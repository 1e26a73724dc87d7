package api

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endpoint = "https://push.example.com/send/abc?x=1"

func TestPutSubscription(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, &patient1, http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	body := gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"}
	assert.Equal(t, http.StatusCreated, f.do(t, &patient1, http.MethodPut, "/api/subscriptions", body).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, &doctor1, http.MethodPut, "/api/subscriptions", body).Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newAPIFixture(t, nil)

	body := gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"}
	require.Equal(t, http.StatusCreated, f.do(t, &patient1, http.MethodPut, "/api/subscriptions", body).Code)

	// Raw and escaped forms both resolve.
	w := f.do(t, &patient1, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "p1", decode[gin.H](t, w)["patientId"])

	w = f.do(t, &patient1, http.MethodGet, "/api/subscriptions?endpoint="+url.QueryEscape(endpoint), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Another patient cannot see or remove it.
	assert.Equal(t, http.StatusNotFound, f.do(t, &patient2, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, &patient2, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint}).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, &patient1, http.MethodGet, "/api/subscriptions", nil).Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, &patient1, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, &patient1, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil).Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	f := newAPIFixture(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, nil, http.MethodGet, "/api/vapid_public_key", nil).Code)

	f = newAPIFixture(t, &webpush.Options{VAPIDPublicKey: "public"})
	w := f.do(t, nil, http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"public"}`, w.Body.String())
}
