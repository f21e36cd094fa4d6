package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Elvismn/Scholalink3.0/internal/middleware"
	"github.com/Elvismn/Scholalink3.0/internal/service"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
	"github.com/Elvismn/Scholalink3.0/pkg/export"
	"github.com/Elvismn/Scholalink3.0/pkg/response"
)

// SuperAdminHandler serves the super-admin management endpoints.
type SuperAdminHandler struct {
	service userService
}

// NewSuperAdminHandler constructs the handler.
func NewSuperAdminHandler(svc userService) *SuperAdminHandler {
	return &SuperAdminHandler{service: svc}
}

// Users godoc
// @Summary List all users
// @Tags SuperAdmin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param role query string false "Role filter or all"
// @Param search query string false "Search email or name"
// @Success 200 {object} response.Envelope
// @Router /super-admin/users [get]
func (h *SuperAdminHandler) Users(c *gin.Context) {
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

// Analytics godoc
// @Summary User analytics
// @Tags SuperAdmin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /super-admin/analytics [get]
func (h *SuperAdminHandler) Analytics(c *gin.Context) {
	analytics, err := h.service.Analytics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil, middleware.ExtractMeta(c))
}

// Stats godoc
// @Summary System statistics
// @Tags SuperAdmin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /super-admin/stats [get]
func (h *SuperAdminHandler) Stats(c *gin.Context) {
	stats, err := h.service.SystemStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// CreateAdmin godoc
// @Summary Create admin or super admin
// @Tags SuperAdmin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateUserRequest true "Admin payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /super-admin/admins [post]
func (h *SuperAdminHandler) CreateAdmin(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid admin payload"))
		return
	}
	user, err := h.service.CreateAdmin(c.Request.Context(), req, currentUserID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// ChangeRole godoc
// @Summary Change a user's role
// @Tags SuperAdmin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param payload body service.ChangeRoleRequest true "New role"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /super-admin/users/{id}/role [put]
func (h *SuperAdminHandler) ChangeRole(c *gin.Context) {
	var req service.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid role payload"))
		return
	}
	user, err := h.service.ChangeRole(c.Request.Context(), c.Param("id"), req, currentUserID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Deactivate godoc
// @Summary Deactivate a user
// @Tags SuperAdmin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /super-admin/users/{id}/deactivate [put]
func (h *SuperAdminHandler) Deactivate(c *gin.Context) {
	user, err := h.service.Deactivate(c.Request.Context(), c.Param("id"), currentUserID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// Export godoc
// @Summary Export the user roster
// @Tags SuperAdmin
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param role query string false "Role filter or all"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /super-admin/users/export [get]
func (h *SuperAdminHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	filter, err := userFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload, err := h.service.ExportRoster(c.Request.Context(), format, filter, currentUserID(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("users-%s.%s", time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, format.ContentType(), payload)
}

var _ userService = (*service.UserService)(nil)
