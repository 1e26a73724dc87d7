package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/queue"
	"clinic-queue-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *queue.Engine
	store   store.Store
	webpush *webpush.Options
	log     zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(engine *queue.Engine, s store.Store, webpushOptions *webpush.Options, log zerolog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		store:   s,
		webpush: webpushOptions,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// actor returns the authenticated caller. The auth middleware guarantees one
// on every /api route, so a miss is a wiring error.
func actor(c *gin.Context) (auth.Actor, bool) {
	a, ok := auth.FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
	return a, ok
}

// date reads ?date= and falls back to today in the clinic's zone.
func (h *Handler) date(c *gin.Context) string {
	if d := c.Query("date"); d != "" {
		return d
	}
	return h.engine.Today()
}

// writeError maps engine errors onto HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		verr *queue.ValidationError
		cerr *queue.ConflictError
		terr *queue.TransitionError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &cerr):
		c.JSON(http.StatusConflict, gin.H{"error": "scheduling conflict", "conflict": cerr})
	case errors.As(err, &terr):
		status := http.StatusConflict
		if terr.Unauthorized {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": terr.Error(), "currentStatus": terr.Current, "transition": terr})
	case errors.Is(err, queue.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, queue.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, queue.ErrTransientStore):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("unmapped error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
	_ = c.Error(err)
}
