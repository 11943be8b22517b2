package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/service"
)

// PlanHandler serves the per-plan endpoints: snapshot edits, executions and
// progress.
type PlanHandler struct {
	assignments service.AssignmentService
	executions  service.ExecutionService
}

func NewPlanHandler(assignments service.AssignmentService, executions service.ExecutionService) *PlanHandler {
	return &PlanHandler{assignments: assignments, executions: executions}
}

// MarkExecutedRequest is the body of POST /plans/{planId}/executions.
type MarkExecutedRequest struct {
	RoutineDay  int    `json:"routineDay"`
	Note        string `json:"note"`
	PerformedOn string `json:"performedOn"` // YYYY-MM-DD, empty means today
}

// EditSnapshotItem godoc
// @Summary Edit one item of a client's active snapshot
// @Description Only the snapshot is changed; the catalog routine it was copied from stays as is.
// @Tags Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param itemId path string true "Snapshot item id"
// @Param patch body domain.SnapshotItemPatch true "Fields to change"
// @Success 200 {object} domain.SnapshotItem
// @Failure 409 {object} ErrorResponse "Snapshot is not the active plan"
// @Router /snapshot-items/{itemId} [patch]
func (h *PlanHandler) EditSnapshotItem(c *gin.Context) {
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
	item, err := h.assignments.EditItem(c.Request.Context(), actor, itemID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// MarkExecuted godoc
// @Summary Record a completed routine day
// @Description Every call appends a record; repeating a day is allowed. performedOn backfills a past date.
// @Tags Executions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param planId path string true "Plan id"
// @Param execution body MarkExecutedRequest true "Routine day"
// @Success 201 {object} domain.ExecutionRecord
// @Failure 409 {object} ErrorResponse "Plan is archived"
// @Failure 422 {object} ErrorResponse "Day not in the routine or future date"
// @Router /plans/{planId}/executions [post]
func (h *PlanHandler) MarkExecuted(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	planID, ok := uuidParam(c, "planId")
	if !ok {
		return
	}
	var req MarkExecutedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	in := service.MarkInput{RoutineDay: req.RoutineDay, Note: req.Note}
	if strings.TrimSpace(req.PerformedOn) != "" {
		day, err := domain.ParseDate(req.PerformedOn)
		if err != nil {
			respondError(c, err)
			return
		}
		in.PerformedOn = &day
	}

	record, err := h.executions.MarkExecuted(c.Request.Context(), actor, planID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *PlanHandler) ListExecutions(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	planID, ok := uuidParam(c, "planId")
	if !ok {
		return
	}
	records, err := h.executions.ListExecutions(c.Request.Context(), actor, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []domain.ExecutionRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *PlanHandler) Progress(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	planID, ok := uuidParam(c, "planId")
	if !ok {
		return
	}
	progress, err := h.executions.Progress(c.Request.Context(), actor, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Today tells whether a session today counts as BASE or EXTRA and which
// routine day comes next.
func (h *PlanHandler) Today(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	planID, ok := uuidParam(c, "planId")
	if !ok {
		return
	}
	today, err := h.executions.Today(c.Request.Context(), actor, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, today)
}
