package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Elvismn/Scholalink3.0/internal/models"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
	"github.com/Elvismn/Scholalink3.0/pkg/export"
)

func newTestUserService(store *fakeUserStore, cache *CacheService) *UserService {
	return NewUserService(store, testHasher, cache, nil, nil)
}

func roleP(r models.UserRole) *models.UserRole { return &r }
func boolP(b bool) *bool                       { return &b }
func strP(s string) *string                    { return &s }

func TestUserCreateAnyRole(t *testing.T) {
	store := newFakeUserStore()
	admin := seedUser(t, store, "admin@school.com", "secret1", models.RoleAdmin, true)
	svc := newTestUserService(store, nil)

	view, err := svc.Create(context.Background(), CreateUserRequest{
		Email: "Teacher@School.com", Password: "secret1", Role: models.RoleTeacher, FirstName: "T", LastName: "One",
	}, admin.ID, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "teacher@school.com", view.Email)
	assert.True(t, view.IsActive)
	assert.True(t, view.Permissions.CanManageStudents)

	_, err = svc.Create(context.Background(), CreateUserRequest{
		Email: "x@school.com", Password: "secret1", Role: "janitor", FirstName: "X", LastName: "Y",
	}, admin.ID, models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CreateUserRequest{
		Email: "TEACHER@school.com", Password: "secret1", Role: models.RoleTeacher, FirstName: "T", LastName: "Two",
	}, admin.ID, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEmail)
}

func TestUserCreateTrimsEmailBeforeValidation(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestUserService(store, nil)

	view, err := svc.Create(context.Background(), CreateUserRequest{
		Email: "  Staff@School.com\t", Password: "secret1", Role: models.RoleStaff, FirstName: "S", LastName: "One",
	}, "", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "staff@school.com", view.Email)

	stored, err := store.FindByEmail(context.Background(), "staff@school.com")
	require.NoError(t, err)
	assert.Equal(t, view.ID, stored.ID)
}

func TestCreateAdminRejectsNonAdminRole(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestUserService(store, nil)

	_, err := svc.CreateAdmin(context.Background(), CreateUserRequest{
		Email: "s@school.com", Password: "secret1", Role: models.RoleStaff, FirstName: "S", LastName: "T",
	}, "actor", models.RequestMeta{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, 400, appErr.Status)
	assert.Equal(t, "Invalid admin role", appErr.Message)

	view, err := svc.CreateAdmin(context.Background(), CreateUserRequest{
		Email: "a2@school.com", Password: "secret1", Role: models.RoleAdmin, FirstName: "A", LastName: "Two",
	}, "actor", models.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, view.Permissions.CanViewAnalytics)
	require.NotEmpty(t, store.auditLogs)
	assert.Equal(t, models.AuditActionAdminCreate, store.auditLogs[len(store.auditLogs)-1].Action)
}

func TestSelfModificationIsRejected(t *testing.T) {
	store := newFakeUserStore()
	admin := seedUser(t, store, "admin@school.com", "secret1", models.RoleSuperAdmin, true)
	svc := newTestUserService(store, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, admin.ID, UpdateUserRequest{IsActive: boolP(false)}, admin.ID, models.RequestMeta{})
	assertSelf(t, err, "Cannot modify your own account")

	_, err = svc.ChangeRole(ctx, admin.ID, ChangeRoleRequest{Role: models.RoleParent}, admin.ID, models.RequestMeta{})
	assertSelf(t, err, "Cannot modify your own role")

	_, err = svc.Deactivate(ctx, admin.ID, admin.ID, models.RequestMeta{})
	assertSelf(t, err, "Cannot deactivate your own account")

	err = svc.Delete(ctx, admin.ID, admin.ID, models.RequestMeta{})
	assertSelf(t, err, "Cannot delete your own account")

	stored := store.users[admin.ID]
	assert.True(t, stored.IsActive)
	assert.Equal(t, models.RoleSuperAdmin, stored.Role)
}

func assertSelf(t *testing.T, err error, message string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSelfModification.Code, appErr.Code)
	assert.Equal(t, 400, appErr.Status)
	assert.Equal(t, message, appErr.Message)
}

func TestUpdateChangesRoleAndProfile(t *testing.T) {
	store := newFakeUserStore()
	target := seedUser(t, store, "p@school.com", "secret1", models.RoleParent, true)
	svc := newTestUserService(store, nil)

	view, err := svc.Update(context.Background(), target.ID, UpdateUserRequest{
		Role:      roleP(models.RoleStaff),
		FirstName: strP("Renamed"),
	}, "actor", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStaff, view.Role)
	assert.True(t, view.Permissions.CanManageInventory)
	assert.Equal(t, "Renamed", view.Profile.FirstName)
	assert.Equal(t, "User", view.Profile.LastName)

	_, err = svc.Update(context.Background(), target.ID, UpdateUserRequest{Role: roleP("owner")}, "actor", models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeactivateAndDelete(t *testing.T) {
	store := newFakeUserStore()
	target := seedUser(t, store, "t@school.com", "secret1", models.RoleTeacher, true)
	svc := newTestUserService(store, nil)
	ctx := context.Background()

	view, err := svc.Deactivate(ctx, target.ID, "actor", models.RequestMeta{})
	require.NoError(t, err)
	assert.False(t, view.IsActive)
	assert.False(t, store.users[target.ID].IsActive)

	require.NoError(t, svc.Delete(ctx, target.ID, "actor", models.RequestMeta{}))
	_, err = svc.Get(ctx, target.ID)
	require.Error(t, err)
	assert.Equal(t, "User not found", appErrors.FromError(err).Message)
}

func TestListPagination(t *testing.T) {
	store := newFakeUserStore()
	for _, email := range []string{"a@s.com", "b@s.com", "c@s.com"} {
		seedUser(t, store, email, "secret1", models.RoleParent, true)
	}
	svc := newTestUserService(store, nil)

	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, &models.Pagination{CurrentPage: 1, Limit: 2, TotalPages: 2, TotalUsers: 3, HasNext: true, HasPrev: false}, pagination)
}

func TestStatsCachedAndInvalidated(t *testing.T) {
	store := newFakeUserStore()
	seedUser(t, store, "a@s.com", "secret1", models.RoleAdmin, true)
	seedUser(t, store, "b@s.com", "secret1", models.RoleParent, false)
	cacheRepo := newMemoryCacheRepo()
	cacheRepo.values = map[string]interface{}{}
	svc := newTestUserService(store, NewCacheService(&statsCacheRepo{memoryCacheRepo: cacheRepo}, nil, time.Minute, nil, true))
	ctx := context.Background()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.ActiveUsers)
	assert.Equal(t, 2, stats.NewThisMonth)
	assert.Equal(t, 1, stats.RoleCounts["admin"])
	assert.Equal(t, 0, stats.RoleCounts["teacher"])
	assert.Contains(t, cacheRepo.values, userStatsSummaryKey)

	_, err = svc.Create(ctx, CreateUserRequest{Email: "c@s.com", Password: "secret1", Role: models.RoleStaff, FirstName: "C", LastName: "S"}, "actor", models.RequestMeta{})
	require.NoError(t, err)
	assert.Contains(t, cacheRepo.invalidated, userStatsPattern)

	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
}

// statsCacheRepo stores payloads by pointer so any destination type round-trips.
type statsCacheRepo struct {
	*memoryCacheRepo
}

func (r *statsCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := r.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	switch d := dest.(type) {
	case *models.UserStats:
		*d = *v.(*models.UserStats)
	case *models.SystemStats:
		*d = *v.(*models.SystemStats)
	case *models.UserAnalytics:
		*d = *v.(*models.UserAnalytics)
	}
	return nil
}

func TestAnalytics(t *testing.T) {
	store := newFakeUserStore()
	seedUser(t, store, "a@s.com", "secret1", models.RoleAdmin, true)
	u := seedUser(t, store, "b@s.com", "secret1", models.RoleTeacher, true)
	_, err := store.TouchLogin(context.Background(), u.ID, time.Now().UTC())
	require.NoError(t, err)
	svc := newTestUserService(store, nil)

	analytics, err := svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.Len(t, analytics.RoleDistribution, 2)
	require.Len(t, analytics.RecentLogins, 1)
	assert.Equal(t, u.ID, analytics.RecentLogins[0].ID)
	assert.Len(t, analytics.RecentRegistrations, 2)

	system, err := svc.SystemStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, system.RecentLogins)
	assert.Equal(t, 2, system.ActiveUsers)
}

func TestExportRosterCSV(t *testing.T) {
	store := newFakeUserStore()
	seedUser(t, store, "a@s.com", "secret1", models.RoleAdmin, true)
	seedUser(t, store, "b@s.com", "secret1", models.RoleParent, false)
	svc := newTestUserService(store, nil)

	payload, err := svc.ExportRoster(context.Background(), export.FormatCSV, models.UserFilter{}, "actor", models.RequestMeta{})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Email", records[0][1])
	assert.Equal(t, "a@s.com", records[1][1])
	assert.Equal(t, "false", records[2][4])
	assert.Equal(t, models.AuditActionRosterExport, store.auditLogs[len(store.auditLogs)-1].Action)
}

func TestBootstrapSuperAdmin(t *testing.T) {
	store := newFakeUserStore()
	svc := newTestUserService(store, nil)

	created, err := svc.BootstrapSuperAdmin(context.Background(), "Root@School.com", "changeme")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.BootstrapSuperAdmin(context.Background(), "other@school.com", "changeme")
	require.NoError(t, err)
	assert.False(t, created)

	u, err := store.FindByEmail(context.Background(), "root@school.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, u.Role)
	assert.Equal(t, "Super Admin", u.FullName())
}
