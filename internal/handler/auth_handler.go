package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Elvismn/Scholalink3.0/internal/models"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
	"github.com/Elvismn/Scholalink3.0/pkg/response"
)

type authService interface {
	Register(ctx context.Context, req models.RegisterRequest, meta models.RequestMeta) (*models.AuthResult, error)
	Login(ctx context.Context, req models.LoginRequest, meta models.RequestMeta) (*models.AuthResult, error)
	Me(ctx context.Context, userID string) (*models.PublicUser, error)
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

// Register godoc
// @Summary Register a parent account
// @Description Self-registration always creates a parent account and returns a session token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid registration payload"))
		return
	}

	res, err := h.service.Register(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Identity(c, http.StatusCreated, res.Token, &res.User)
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid login payload"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Identity(c, http.StatusOK, res.Token, &res.User)
}

// Me godoc
// @Summary Current identity
// @Description Returns the authenticated user with permissions derived from the role
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	user, err := h.service.Me(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Identity(c, http.StatusOK, "", user)
}
