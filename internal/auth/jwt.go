package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"clinic-queue-backend/internal/model"
)

const actorKey = "actor"

// Claims is the bearer token payload issued by the account service.
type Claims struct {
	Role       string `json:"role"`
	HospitalID string `json:"hospital_id,omitempty"`
	jwt.RegisteredClaims
}

// Sign issues an HS256 token for actor. Used by tooling and tests; production
// tokens come from the account service.
func Sign(secret []byte, actor Actor, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	claims := &Claims{
		Role:       string(actor.Role),
		HospitalID: actor.HospitalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Parse validates tokenStr and resolves the actor it names.
func Parse(secret []byte, tokenStr string) (Actor, error) {
	if len(secret) == 0 {
		return Actor{}, errors.New("jwt secret is not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, err
	}
	if !token.Valid {
		return Actor{}, errors.New("invalid token")
	}

	role := model.ActorRole(claims.Role)
	switch role {
	case model.RolePatient, model.RoleDoctor, model.RoleHospital:
	default:
		// System is never granted over HTTP.
		return Actor{}, fmt.Errorf("unsupported role %q", claims.Role)
	}
	if claims.Subject == "" {
		return Actor{}, errors.New("token has no subject")
	}
	return Actor{ID: claims.Subject, Role: role, HospitalID: claims.HospitalID}, nil
}

// Middleware authenticates the bearer token and stores the actor on the
// context. Browsers opening a websocket cannot set headers, so the
// access_token query parameter is accepted as a fallback.
func Middleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			tokenStr = c.Query("access_token")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		actor, err := Parse(secret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// FromContext returns the actor set by Middleware.
func FromContext(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return Actor{}, false
	}
	a, ok := v.(Actor)
	return a, ok
}
