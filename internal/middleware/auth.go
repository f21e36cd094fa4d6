package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Elvismn/Scholalink3.0/internal/models"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
	"github.com/Elvismn/Scholalink3.0/pkg/logger"
	"github.com/Elvismn/Scholalink3.0/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated user.
const ContextUserKey = "currentUser"

// Authenticator resolves a bearer token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Authenticate protects routes by requiring a valid session token and an
// active account. The loaded user becomes the request identity.
func Authenticate(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Abort(c, err)
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(logger.UserIDKey, user.ID)
		c.Next()
	}
}

// CurrentUser returns the identity attached by Authenticate.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", appErrors.ErrMissingToken
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", appErrors.ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", appErrors.ErrMissingToken
	}
	return token, nil
}
