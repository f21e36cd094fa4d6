package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Elvismn/Scholalink3.0/internal/middleware"
	"github.com/Elvismn/Scholalink3.0/internal/models"
	"github.com/Elvismn/Scholalink3.0/internal/service"
	"github.com/Elvismn/Scholalink3.0/pkg/export"
	"github.com/Elvismn/Scholalink3.0/pkg/response"
)

type userService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.PublicUser, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.PublicUser, error)
	Create(ctx context.Context, req service.CreateUserRequest, actorID string, meta models.RequestMeta) (*models.PublicUser, error)
	CreateAdmin(ctx context.Context, req service.CreateUserRequest, actorID string, meta models.RequestMeta) (*models.PublicUser, error)
	Update(ctx context.Context, id string, req service.UpdateUserRequest, actorID string, meta models.RequestMeta) (*models.PublicUser, error)
	ChangeRole(ctx context.Context, id string, req service.ChangeRoleRequest, actorID string, meta models.RequestMeta) (*models.PublicUser, error)
	Deactivate(ctx context.Context, id, actorID string, meta models.RequestMeta) (*models.PublicUser, error)
	Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error
	Stats(ctx context.Context) (*models.UserStats, error)
	SystemStats(ctx context.Context) (*models.SystemStats, error)
	Analytics(ctx context.Context) (*models.UserAnalytics, error)
	ExportRoster(ctx context.Context, format export.Format, filter models.UserFilter, actorID string, meta models.RequestMeta) ([]byte, error)
}

// UserHandler serves the admin user management endpoints.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Description List users with pagination and filtering
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param role query string false "Role filter or all"
// @Param search query string false "Search email or name"
// @Param sort_by query string false "created_at, email, last_login or login_count"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	filter, err := userFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	users, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// Stats godoc
// @Summary User statistics
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/users/stats [get]
func (h *UserHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Analytics godoc
// @Summary User analytics
// @Description Role distribution with recent logins and registrations
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/analytics/users [get]
func (h *UserHandler) Analytics(c *gin.Context) {
	analytics, err := h.service.Analytics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Create godoc
// @Summary Create user
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateUserRequest true "User payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid user payload"))
		return
	}

	user, err := h.service.Create(c.Request.Context(), req, currentUserID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Update godoc
// @Summary Update user
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param payload body service.UpdateUserRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid user payload"))
		return
	}

	user, err := h.service.Update(c.Request.Context(), c.Param("id"), req, currentUserID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Delete godoc
// @Summary Delete user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), currentUserID(c), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "User deleted successfully")
}
