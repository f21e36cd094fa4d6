package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Elvismn/Scholalink3.0/internal/middleware"
	"github.com/Elvismn/Scholalink3.0/internal/models"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
)

func currentUserID(c *gin.Context) string {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return ""
	}
	return user.ID
}

func requestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// userFilterFromQuery reads page, limit, role, search, sort_by and sort_order.
// role=all or an empty role means no role filter.
func userFilterFromQuery(c *gin.Context) (models.UserFilter, error) {
	var filter models.UserFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "10")); err == nil {
		filter.Limit = limit
	}

	if role := c.Query("role"); role != "" && role != "all" {
		r := models.UserRole(role)
		if !r.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "Invalid role filter")
		}
		filter.Role = &r
	}

	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")
	return filter, nil
}
