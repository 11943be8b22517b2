package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rutinasds/routines-app/internal/access"
	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/service"
)

// ContextActorKey is where AuthMiddleware stores the resolved access.Actor.
const ContextActorKey = "actor"

// AuthMiddleware turns a Bearer token into an actor. The user behind the
// token is reloaded on every request, so deactivation takes effect at once.
func AuthMiddleware(identity service.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header is missing")
			return
		}

		// Expecting "Bearer <token>"
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortWithError(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		actor, err := identity.ResolveActor(c.Request.Context(), parts[1])
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// actorFromContext returns the actor set by AuthMiddleware. A missing actor
// is a routing bug, reported as 500.
func actorFromContext(c *gin.Context) (access.Actor, bool) {
	raw, exists := c.Get(ContextActorKey)
	if !exists {
		abortWithError(c, http.StatusInternalServerError, "actor not found in context")
		return access.Actor{}, false
	}
	actor, ok := raw.(access.Actor)
	if !ok {
		abortWithError(c, http.StatusInternalServerError, "invalid actor type in context")
		return access.Actor{}, false
	}
	return actor, true
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if actor, ok := c.Get(ContextActorKey); ok {
			attrs = append(attrs, "actor", actor.(access.Actor).ID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string            `json:"error"`
	Kind  domain.Kind       `json:"kind,omitempty"`
	Rows  []domain.RowError `json:"rows,omitempty"`
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{Error: message})
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed), errors.Is(err, service.ErrInvalidToken):
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	case errors.Is(err, service.ErrTokenGeneration):
		abortWithError(c, http.StatusInternalServerError, "could not process login")
		return
	}

	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: "an unexpected error occurred",
			Kind:  domain.KindInternal,
		})
		return
	}
	c.AbortWithStatusJSON(statusFor(de.Kind), ErrorResponse{
		Error: de.Error(),
		Kind:  de.Kind,
		Rows:  de.Rows,
	})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
