package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rutinasds/routines-app/internal/domain"
	"rutinasds/routines-app/internal/service"
)

// AuthHandler serves login and staff management.
type AuthHandler struct {
	identity service.IdentityService
}

func NewAuthHandler(identity service.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

// --- Request/Response Structs ---

type LoginRequest struct {
	DNI      string `json:"dni" binding:"required"`
	Password string `json:"password"` // Staff only
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Login godoc
// @Summary Log in with DNI
// @Description Clients log in with their DNI; staff also send a password.
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse "Login successful"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	token, user, err := h.identity.Login(c.Request.Context(), req.DNI, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token, User: user})
}

// Me returns the caller's identity as resolved from the token.
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": actor.ID, "role": actor.Role})
}

// CreateStaff godoc
// @Summary Create a staff member
// @Tags Staff
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param staff body service.NewStaff true "Staff details"
// @Success 201 {object} domain.User
// @Failure 403 {object} ErrorResponse "Only admins manage staff"
// @Failure 409 {object} ErrorResponse "DNI already registered"
// @Router /staff [post]
func (h *AuthHandler) CreateStaff(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.NewStaff
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	user, err := h.identity.CreateStaff(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Deactivate logically removes a user. Their tokens stop working immediately.
func (h *AuthHandler) Deactivate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	if err := h.identity.Deactivate(c.Request.Context(), actor, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
