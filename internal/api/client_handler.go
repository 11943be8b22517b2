package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/service"
)

// ClientHandler serves everything scoped to one client: enrollment, plans
// and body measurements.
type ClientHandler struct {
	identity     service.IdentityService
	plans        service.PlanService
	assignments  service.AssignmentService
	measurements service.MeasurementService
}

func NewClientHandler(
	identity service.IdentityService,
	plans service.PlanService,
	assignments service.AssignmentService,
	measurements service.MeasurementService,
) *ClientHandler {
	return &ClientHandler{
		identity:     identity,
		plans:        plans,
		assignments:  assignments,
		measurements: measurements,
	}
}

// --- DTOs ---

type AssignTrainerRequest struct {
	TrainerID *uuid.UUID `json:"trainerId"` // null unassigns
}

type AssignRoutineRequest struct {
	Routine   string `json:"routine" binding:"required"` // Routine code or any version id
	Frequency int    `json:"frequency"`                   // Base sessions per week; 0 = one per routine day
}

type ActivateRequest struct {
	SnapshotID uuid.UUID `json:"snapshotId" binding:"required"`
	Frequency  int       `json:"frequency"`
}

// --- Enrollment ---

// CreateClient godoc
// @Summary Enroll a client
// @Description Trainers enroll clients for themselves; coordinators may pick any trainer.
// @Tags Clients
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param client body service.NewClient true "Client details"
// @Success 201 {object} domain.User
// @Failure 409 {object} ErrorResponse "DNI already registered"
// @Failure 422 {object} ErrorResponse "Invalid DNI"
// @Router /clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.NewClient
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	user, err := h.identity.CreateClient(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *ClientHandler) ListClients(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clients, err := h.identity.ListClients(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	if clients == nil {
		clients = []domain.User{}
	}
	c.JSON(http.StatusOK, clients)
}

func (h *ClientHandler) GetClient(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, ok := uuidParam(c, "clientId")
	if !ok {
		return
	}
	client, err := h.identity.GetClient(c.Request.Context(), actor, clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *ClientHandler) AssignTrainer(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, ok := uuidParam(c, "clientId")
	if !ok {
		return
	}
	var req AssignTrainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	client, err := h.identity.AssignTrainer(c.Request.Context(), actor, clientID, req.TrainerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// --- Plans ---

// AssignRoutine godoc
// @Summary Assign a catalog routine to a client
// @Description Copies the current catalog version into a new snapshot and makes it the active plan. The previous active plan is archived.
// @Tags Plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client id"
// @Param request body AssignRoutineRequest true "Routine code or version id"
// @Success 201 {object} service.AssignmentResult
// @Failure 404 {object} ErrorResponse "Client or routine not found"
// @Failure 409 {object} ErrorResponse "Concurrent activation"
// @Router /clients/{clientId}/assignments [post]
func (h *ClientHandler) AssignRoutine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, ok := uuidParam(c, "clientId")
	if !ok {
		return
	}
	var req AssignRoutineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	res, err := h.assignments.Assign(c.Request.Context(), actor, clientID, req.Routine, req.Frequency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Activate switches the active plan to an existing snapshot of the client.
func (h *ClientHandler) Activate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, ok := uuidParam(c, "clientId")
	if !ok {
		return
	}
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	res, err := h.plans.Activate(c.Request.Context(), actor, clientID, req.SnapshotID, req.Frequency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *ClientHandler) GetActivePlan(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, ok := uuidParam(c, "clientId")
	if !ok {
		return
	}
	view, err := h.plans.GetActivePlan(c.Request.Context(), actor, clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ClientHandler) ListPlans(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, ok := uuidParam(c, "clientId")
	if !ok {
		return
	}
	plans, err := h.plans.ListPlans(c.Request.Context(), actor, clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	if plans == nil {
		plans = []domain.Plan{}
	}
	c.JSON(http.StatusOK, plans)
}

func (h *ClientHandler) ListSnapshots(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, ok := uuidParam(c, "clientId")
	if !ok {
		return
	}
	snapshots, err := h.plans.ListSnapshots(c.Request.Context(), actor, clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	if snapshots == nil {
		snapshots = []domain.RoutineSnapshot{}
	}
	c.JSON(http.StatusOK, snapshots)
}

// --- Measurements ---

// UpsertMeasurement godoc
// @Summary Record or amend the measurement of a date
// @Description One record per client and date; a second submission amends it. Perimeters merge by name.
// @Tags Measurements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param clientId path string true "Client id"
// @Param date path string true "YYYY-MM-DD"
// @Param measurement body domain.MeasurementInput true "Fields to set"
// @Success 201 {object} gin.H "Created"
// @Success 200 {object} gin.H "Amended"
// @Failure 422 {object} ErrorResponse "Invalid values or future date"
// @Router /clients/{clientId}/measurements/{date} [put]
func (h *ClientHandler) UpsertMeasurement(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, ok := uuidParam(c, "clientId")
	if !ok {
		return
	}
	date, err := domain.ParseDate(c.Param("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req domain.MeasurementInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	res, err := h.measurements.Upsert(c.Request.Context(), actor, clientID, date, req)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"measurement": measurementResponse{Measurement: *res.Measurement, Date: res.Measurement.Date()},
		"created":     res.Created,
	})
}

func (h *ClientHandler) ListMeasurements(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	clientID, ok := uuidParam(c, "clientId")
	if !ok {
		return
	}
	history, err := h.measurements.ListHistory(c.Request.Context(), actor, clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]measurementResponse, len(history))
	for i := range history {
		out[i] = measurementResponse{Measurement: history[i], Date: history[i].Date()}
	}
	c.JSON(http.StatusOK, out)
}

// measurementResponse adds the calendar date, which Measurement keeps out of its JSON.
type measurementResponse struct {
	domain.Measurement
	Date string `json:"date"`
}

// uuidParam parses a path parameter, answering 400 when it is not a UUID.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid "+name+" format.")
		return uuid.Nil, false
	}
	return id, true
}
