package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/feed"
	"rutinasds/routines-app/internal/service"
	"rutinasds/routines-app/internal/storage"
)

// CatalogHandler serves the base routine catalog and its synchronization.
type CatalogHandler struct {
	catalog service.CatalogService
	sync    service.SyncService
	source  feed.Source // nil disables POST /catalog/sync/source
}

func NewCatalogHandler(catalog service.CatalogService, sync service.SyncService, source feed.Source) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, sync: sync, source: source}
}

// ListRoutines returns the current version of every routine.
func (h *CatalogHandler) ListRoutines(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	routines, err := h.catalog.ListCurrent(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	if routines == nil {
		routines = []domain.BaseRoutine{}
	}
	c.JSON(http.StatusOK, routines)
}

// GetRoutine accepts a routine code or a version id and answers with the
// latest version.
func (h *CatalogHandler) GetRoutine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	routine, err := h.catalog.GetRoutine(c.Request.Context(), actor, c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, routine)
}

func (h *CatalogHandler) ListVersions(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	versions, err := h.catalog.ListVersions(c.Request.Context(), actor, c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *CatalogHandler) ListExercises(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	exercises, err := h.catalog.ListExercises(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	if exercises == nil {
		exercises = []domain.ExerciseDefinition{}
	}
	c.JSON(http.StatusOK, exercises)
}

// EditItem exists so that clients get an explicit refusal: catalog items
// only change through synchronization.
func (h *CatalogHandler) EditItem(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	itemID, ok := uuidParam(c, "itemId")
	if !ok {
		return
	}
	var patch domain.SnapshotItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if err := h.catalog.EditBaseRoutineItem(c.Request.Context(), actor, itemID, patch); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Sync godoc
// @Summary Synchronize the catalog from an uploaded feed
// @Description All-or-nothing: one bad row rejects the whole feed and every rejected row is reported.
// @Tags Catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param feed body feed.Batch true "Exercises, routines and routine items"
// @Success 200 {object} service.SyncSummary
// @Failure 403 {object} ErrorResponse "Only coordinators and admins sync"
// @Failure 422 {object} ErrorResponse "Rejected rows"
// @Router /catalog/sync [post]
func (h *CatalogHandler) Sync(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var batch feed.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	summary, err := h.sync.Sync(c.Request.Context(), actor, &batch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// SyncFromSource runs a synchronization from the configured feed source.
func (h *CatalogHandler) SyncFromSource(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if h.source == nil {
		abortWithError(c, http.StatusNotImplemented, "no feed source configured")
		return
	}
	summary, err := h.sync.SyncFromSource(c.Request.Context(), actor, h.source)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ArchivedFeed answers with a presigned link to the feed a sync accepted.
func (h *CatalogHandler) ArchivedFeed(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	syncID, ok := uuidParam(c, "syncId")
	if !ok {
		return
	}
	url, err := h.sync.ArchiveURL(c.Request.Context(), actor, syncID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expiresIn": storage.DefaultPresignedURLExpiry.String()})
}
