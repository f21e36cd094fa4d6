package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Elvismn/Scholalink3.0/internal/models"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
)

// Envelope represents the common response contract shared with the admin and
// parent portals.
type Envelope struct {
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Token      string                 `json:"token,omitempty"`
	User       *models.PublicUser     `json:"user,omitempty"`
	Data       interface{}            `json:"data,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Success: true, Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	c.JSON(status, envelope)
}

// Identity sends the token/user pair returned by the authentication endpoints.
func Identity(c *gin.Context, status int, token string, user *models.PublicUser) {
	noStore(c)
	c.JSON(status, Envelope{Success: true, Token: token, User: user})
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Success: false, Error: appErr.Message, Code: appErr.Code})
}

// Abort writes the error envelope and stops the middleware chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// Message sends a success envelope carrying only a human readable message.
func Message(c *gin.Context, status int, message string) {
	JSON(c, status, nil, nil, map[string]interface{}{"message": message})
}
