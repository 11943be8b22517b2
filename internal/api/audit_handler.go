package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/service"
)

type AuditHandler struct {
	audit service.AuditService
}

func NewAuditHandler(audit service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List answers GET /audit?actorId=&clientId=&action=&since=&limit=.
// since is RFC 3339.
func (h *AuditHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var filter domain.AuditFilter
	if raw := c.Query("actorId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid actorId format.")
			return
		}
		filter.ActorID = &id
	}
	if raw := c.Query("clientId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid clientId format.")
			return
		}
		filter.ClientID = &id
	}
	filter.Action = domain.AuditAction(c.Query("action"))
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid since, expected RFC 3339.")
			return
		}
		filter.Since = &since
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "Invalid limit.")
			return
		}
		filter.Limit = limit
	}

	entries, err := h.audit.List(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}
