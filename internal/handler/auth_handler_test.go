package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Elvismn/Scholalink3.0/internal/middleware"
	"github.com/Elvismn/Scholalink3.0/internal/models"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
)

type fakeAuthSrv struct {
	registerReq models.RegisterRequest
	loginMeta   models.RequestMeta
	result      *models.AuthResult
	me          *models.PublicUser
	err         error
}

func (f *fakeAuthSrv) Register(_ context.Context, req models.RegisterRequest, _ models.RequestMeta) (*models.AuthResult, error) {
	f.registerReq = req
	return f.result, f.err
}

func (f *fakeAuthSrv) Login(_ context.Context, _ models.LoginRequest, meta models.RequestMeta) (*models.AuthResult, error) {
	f.loginMeta = meta
	return f.result, f.err
}

func (f *fakeAuthSrv) Me(context.Context, string) (*models.PublicUser, error) {
	return f.me, f.err
}

type responseEnvelope struct {
	Success    bool                   `json:"success"`
	Error      string                 `json:"error"`
	Code       string                 `json:"code"`
	Token      string                 `json:"token"`
	User       map[string]interface{} `json:"user"`
	Data       json.RawMessage        `json:"data"`
	Pagination map[string]interface{} `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func sampleResult() *models.AuthResult {
	now := time.Now().UTC()
	return &models.AuthResult{
		Token: "signed.jwt.value",
		User: models.PublicUser{
			ID:         "u1",
			Email:      "p@school.com",
			Role:       models.RoleParent,
			IsActive:   true,
			LastLogin:  &now,
			LoginCount: 1,
		},
	}
}

func TestAuthHandlerRegisterCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeAuthSrv{result: sampleResult()}
	handler := NewAuthHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "p@school.com", "password": "secret1", "first_name": "P", "last_name": "Q", "role": "super_admin",
	})

	handler.Register(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "signed.jwt.value", env.Token)
	assert.Equal(t, "parent", env.User["role"])
	assert.NotContains(t, env.User, "password_hash")
	assert.Equal(t, "P", srv.registerReq.FirstName)
}

func TestAuthHandlerRegisterMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&fakeAuthSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("{"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Register(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeEnvelope(t, rec).Code)
}

func TestAuthHandlerLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeAuthSrv{result: sampleResult()}
	handler := NewAuthHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{"email": "p@school.com", "password": "secret1"})
	c.Request.Header.Set("User-Agent", "portal/1.0")

	handler.Login(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, float64(1), env.User["login_count"])
	assert.NotEmpty(t, env.User["last_login"])
	assert.Equal(t, "portal/1.0", srv.loginMeta.UserAgent)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&fakeAuthSrv{err: appErrors.ErrInvalidCredentials})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{"email": "p@school.com", "password": "nope"})

	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid credentials.", env.Error)
	assert.Empty(t, env.Token)
}

func TestAuthHandlerMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	view := sampleResult().User
	view.Permissions = models.PermissionSet{CanManageStudents: true}
	handler := NewAuthHandler(&fakeAuthSrv{me: &view})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	c.Set(middleware.ContextUserKey, &models.User{ID: "u1", Role: models.RoleTeacher})

	handler.Me(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	perms, ok := env.User["permissions"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, perms["canManageStudents"])
	assert.Equal(t, false, perms["canManageUsers"])
	assert.Empty(t, env.Token)
}

func TestAuthHandlerMeWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&fakeAuthSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)

	handler.Me(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
