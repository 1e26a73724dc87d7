package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"clinic-queue-backend/config"
	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/bus"
	"clinic-queue-backend/internal/metrics"
	"clinic-queue-backend/internal/mw"
)

// RouterDeps are the pieces NewRouter mounts.
type RouterDeps struct {
	Handler    *Handler
	Hub        *bus.Hub
	Authorizer auth.Authorizer
	Metrics    *metrics.Metrics
	// Health reports whether the service can reach its database.
	Health func(ctx context.Context) error
	Log    zerolog.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(mw.Recovery(deps.Log), mw.RequestID(), mw.Logger(deps.Log, deps.Metrics))

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", mw.RequestIDHeader},
		ExposeHeaders: []string{mw.RequestIDHeader, "Location", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(corsConfig))

	authz := deps.Authorizer
	if authz == nil {
		authz = auth.RolePolicy{}
	}
	h := deps.Handler

	// Initialize middleware
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Summaries change with every booking, so the TTL stays short.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 10*ttl)
	caching := mw.Cache(cacheStore, ttl)

	ws := bus.NewWebSocketHandler(deps.Hub, func(c *gin.Context, topic string) bool {
		who, ok := auth.FromContext(c)
		return ok && authz.CanSubscribe(who, topic)
	}, deps.Log)

	r.GET("/healthz", func(c *gin.Context) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Public key lookup needs no identity.
	r.GET("/api/vapid_public_key", rateLimiter, h.GetVAPIDPublicKey)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter, auth.Middleware([]byte(cfg.JWTSecret)))
	{
		api.POST("/appointments", h.CreateAppointment)
		api.GET("/appointments/:id", h.GetAppointment)
		api.POST("/appointments/:id/transitions", h.TransitionAppointment)
		api.POST("/appointments/:id/check-in", h.CheckIn)

		api.GET("/doctors/:doctor_id/queue", h.GetDoctorQueue)
		api.GET("/hospitals/:hospital_id/summary", requireHospitalStaff(authz), caching, h.GetHospitalSummary)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)

		api.GET("/ws", ws.HandleConnect)
	}

	return r
}
