package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Elvismn/Scholalink3.0/internal/models"
	"github.com/Elvismn/Scholalink3.0/internal/repository"
	"github.com/Elvismn/Scholalink3.0/internal/service"
	"github.com/Elvismn/Scholalink3.0/pkg/config"
	"github.com/Elvismn/Scholalink3.0/pkg/password"
)

// memStore is an in-memory credential store with the same contract as
// repository.UserRepository.
type memStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemStore() *memStore {
	return &memStore{users: map[string]models.User{}}
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = repository.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) FindByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u.PasswordHash = ""
	return &u, nil
}

func (m *memStore) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Email = repository.NormalizeEmail(user.Email)
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = *user
	return nil
}

func (m *memStore) Update(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	existing.Role = user.Role
	existing.IsActive = user.IsActive
	existing.Profile = user.Profile
	m.users[user.ID] = existing
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) TouchLogin(_ context.Context, id string, ts time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	u.LoginCount++
	u.LastLogin = &ts
	m.users[id] = u
	return u.LoginCount, nil
}

func (m *memStore) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		u.PasswordHash = ""
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, len(out), nil
}

func (m *memStore) Counts(_ context.Context, createdSince, loginSince time.Time) (*models.UserCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.UserCounts{}
	for _, u := range m.users {
		c.Total++
		if u.IsActive {
			c.Active++
		}
		if !u.CreatedAt.Before(createdSince) {
			c.CreatedSince++
		}
		if u.LastLogin != nil && !u.LastLogin.Before(loginSince) {
			c.LoggedInSince++
		}
	}
	return c, nil
}

func (m *memStore) RoleDistribution(context.Context) ([]models.RoleCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RoleCount
	for _, role := range models.Roles {
		rc := models.RoleCount{Role: role}
		for _, u := range m.users {
			if u.Role == role {
				rc.Count++
				if u.IsActive {
					rc.Active++
				}
			}
		}
		if rc.Count > 0 {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (m *memStore) RecentLogins(context.Context, int) ([]models.LoginActivity, error) {
	return nil, nil
}

func (m *memStore) RecentRegistrations(ctx context.Context, limit int) ([]models.User, error) {
	users, _, err := m.List(ctx, models.UserFilter{})
	return users, err
}

func (m *memStore) ExistsWithRole(_ context.Context, role models.UserRole) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateAuditLog(context.Context, *models.AuditLog) error {
	return nil
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	store  *memStore
	users  *service.UserService
}

func newTestAPI(t *testing.T) *testAPI {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	hasher := password.NewHasher(bcrypt.MinCost)
	metrics := service.NewMetricsService()
	tokens := service.NewTokenService(service.TokenConfig{Secret: "e2e-secret", Issuer: "scholalink"})
	auth := service.NewAuthService(store, tokens, hasher, nil, nil, metrics, nil)
	users := service.NewUserService(store, hasher, nil, nil, nil)

	router := NewRouter(Deps{
		Config:  &config.Config{Env: "test", APIPrefix: "/api"},
		Auth:    auth,
		Users:   users,
		Metrics: metrics,
	})
	return &testAPI{t: t, router: router, store: store, users: users}
}

type apiResponse struct {
	Code int
	Body struct {
		Success bool            `json:"success"`
		Error   string          `json:"error"`
		Code    string          `json:"code"`
		Token   string          `json:"token"`
		User    json.RawMessage `json:"user"`
		Data    json.RawMessage `json:"data"`
	}
}

func (a *testAPI) do(method, path, token string, body interface{}) apiResponse {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var res apiResponse
	res.Code = rec.Code
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "text/csv" {
		_ = json.Unmarshal(rec.Body.Bytes(), &res.Body)
	}
	return res
}

func (a *testAPI) login(email, pass string) (string, models.PublicUser) {
	a.t.Helper()
	res := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": pass})
	require.Equal(a.t, http.StatusOK, res.Code, res.Body.Error)
	var user models.PublicUser
	require.NoError(a.t, json.Unmarshal(res.Body.User, &user))
	return res.Body.Token, user
}

func TestRegisterLoginForbiddenDeactivateFlow(t *testing.T) {
	api := newTestAPI(t)
	created, err := api.users.BootstrapSuperAdmin(context.Background(), "root@school.com", "rootpass")
	require.NoError(t, err)
	require.True(t, created)

	res := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "Parent@School.com", "password": "secret1", "first_name": "Pat", "last_name": "Parent",
	})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.Error)
	assert.True(t, res.Body.Success)
	assert.NotEmpty(t, res.Body.Token)
	var registered models.PublicUser
	require.NoError(t, json.Unmarshal(res.Body.User, &registered))
	assert.Equal(t, models.RoleParent, registered.Role)
	assert.Equal(t, "parent@school.com", registered.Email)

	token, user := api.login("parent@school.com", "secret1")
	assert.Equal(t, 1, user.LoginCount)
	require.NotNil(t, user.LastLogin)

	res = api.do(http.MethodGet, "/api/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Access denied. Required roles: admin, super_admin", res.Body.Error)

	// The rejected request still counted as an authenticated request.
	assert.Equal(t, 2, api.store.users[user.ID].LoginCount)

	rootToken, root := api.login("root@school.com", "rootpass")
	res = api.do(http.MethodPut, "/api/super-admin/users/"+user.ID+"/deactivate", rootToken, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.Error)

	res = api.do(http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "INACTIVE_OR_UNKNOWN_USER", res.Body.Code)

	res = api.do(http.MethodPut, "/api/super-admin/users/"+root.ID+"/deactivate", rootToken, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Cannot deactivate your own account", res.Body.Error)
}

func TestMeReturnsDerivedPermissions(t *testing.T) {
	api := newTestAPI(t)
	res := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "p@school.com", "password": "secret1", "first_name": "P", "last_name": "Q",
	})
	require.Equal(t, http.StatusCreated, res.Code)

	res = api.do(http.MethodGet, "/api/auth/me", res.Body.Token, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var me models.PublicUser
	require.NoError(t, json.Unmarshal(res.Body.User, &me))
	assert.Equal(t, models.PermissionSet{}, me.Permissions)
	assert.NotContains(t, string(res.Body.User), "password")
}

func TestMissingAndInvalidTokens(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Access denied. No token provided.", res.Body.Error)

	res = api.do(http.MethodGet, "/api/auth/me", "forged.token.value", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "Token is not valid.", res.Body.Error)
}

func TestDuplicateRegistration(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]string{"email": "a@x.com", "password": "secret1", "first_name": "A", "last_name": "X"}
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/auth/register", "", body).Code)

	body["email"] = "A@X.COM"
	res := api.do(http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "User already exists with this email.", res.Body.Error)
}

func TestPermissionGatedAnalytics(t *testing.T) {
	api := newTestAPI(t)
	_, err := api.users.Create(context.Background(), service.CreateUserRequest{
		Email: "teacher@school.com", Password: "secret1", Role: models.RoleTeacher, FirstName: "T", LastName: "T",
	}, "", models.RequestMeta{})
	require.NoError(t, err)
	_, err = api.users.Create(context.Background(), service.CreateUserRequest{
		Email: "admin@school.com", Password: "secret1", Role: models.RoleAdmin, FirstName: "A", LastName: "A",
	}, "", models.RequestMeta{})
	require.NoError(t, err)

	teacherToken, _ := api.login("teacher@school.com", "secret1")
	res := api.do(http.MethodGet, "/api/admin/analytics/users", teacherToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Insufficient permissions. Required: canViewAnalytics", res.Body.Error)

	adminToken, admin := api.login("admin@school.com", "secret1")
	res = api.do(http.MethodGet, "/api/admin/analytics/users", adminToken, nil)
	assert.Equal(t, http.StatusOK, res.Code)

	res = api.do(http.MethodGet, "/api/super-admin/stats", adminToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "Access denied. Required roles: super_admin", res.Body.Error)

	res = api.do(http.MethodDelete, "/api/admin/users/"+admin.ID, adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "Cannot delete your own account", res.Body.Error)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	api.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@x.com", "password": "secret1"})

	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auth_attempts_total{outcome="login_failure"} 1`)
}
