package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Elvismn/Scholalink3.0/internal/models"
	"github.com/Elvismn/Scholalink3.0/internal/rbac"
	"github.com/Elvismn/Scholalink3.0/internal/repository"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
	"github.com/Elvismn/Scholalink3.0/pkg/export"
)

const (
	recentLoginsLimit        = 20
	recentRegistrationsLimit = 10
	exportPageSize           = 100
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	Counts(ctx context.Context, createdSince, loginSince time.Time) (*models.UserCounts, error)
	RoleDistribution(ctx context.Context) ([]models.RoleCount, error)
	RecentLogins(ctx context.Context, limit int) ([]models.LoginActivity, error)
	RecentRegistrations(ctx context.Context, limit int) ([]models.User, error)
	ExistsWithRole(ctx context.Context, role models.UserRole) (bool, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required,min=6"`
	Role      models.UserRole `json:"role" validate:"required,oneof=super_admin admin staff teacher parent"`
	FirstName string          `json:"first_name" validate:"required"`
	LastName  string          `json:"last_name" validate:"required"`
	Phone     string          `json:"phone"`
	IsActive  *bool           `json:"is_active"`
}

// UpdateUserRequest carries the optional fields an administrator may change.
type UpdateUserRequest struct {
	Role      *models.UserRole `json:"role" validate:"omitempty,oneof=super_admin admin staff teacher parent"`
	IsActive  *bool            `json:"is_active"`
	FirstName *string          `json:"first_name" validate:"omitempty,min=1"`
	LastName  *string          `json:"last_name" validate:"omitempty,min=1"`
	Phone     *string          `json:"phone"`
	Avatar    *string          `json:"avatar"`
}

// ChangeRoleRequest is the body of the super-admin role change endpoint.
type ChangeRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,oneof=super_admin admin staff teacher parent"`
}

// UserService handles user management workflows for administrators.
type UserService struct {
	repo      userRepository
	hasher    PasswordHasher
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, hasher PasswordHasher, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &UserService{repo: repo, hasher: hasher, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// List returns a page of users and its pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.PublicUser, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page, limit := repository.NormalizePage(filter.Page, filter.Limit)
	return rbac.PublicViews(users), models.NewPagination(page, limit, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.PublicUser, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := rbac.PublicView(user)
	return &view, nil
}

// Create adds a user with any valid role.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actorID string, meta models.RequestMeta) (*models.PublicUser, error) {
	return s.create(ctx, req, actorID, models.AuditActionUserCreate, meta)
}

// CreateAdmin adds an admin or super admin account.
func (s *UserService) CreateAdmin(ctx context.Context, req CreateUserRequest, actorID string, meta models.RequestMeta) (*models.PublicUser, error) {
	if req.Role != models.RoleAdmin && req.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid admin role")
	}
	return s.create(ctx, req, actorID, models.AuditActionAdminCreate, meta)
}

func (s *UserService) create(ctx context.Context, req CreateUserRequest, actorID, action string, meta models.RequestMeta) (*models.PublicUser, error) {
	req.Email = repository.NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.ErrDuplicateEmail
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	user := &models.User{
		Email:        repository.NormalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         req.Role,
		Profile: models.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
		},
		IsActive: active,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, appErrors.ErrDuplicateEmail
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.invalidateStats(ctx)
	recordAudit(ctx, s.repo, s.logger, auditEntry{
		actorID:    actorID,
		action:     action,
		resourceID: user.ID,
		newValues:  map[string]interface{}{"email": user.Email, "role": user.Role, "is_active": user.IsActive},
		meta:       meta,
	})

	view := rbac.PublicView(user)
	return &view, nil
}

// Update modifies role, active flag or profile of another user.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actorID string, meta models.RequestMeta) (*models.PublicUser, error) {
	if err := rbac.EnsureNotSelf(actorID, id, "Cannot modify your own account"); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	before := map[string]interface{}{"role": user.Role, "is_active": user.IsActive, "profile": user.Profile}

	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Avatar != nil {
		user.Avatar = *req.Avatar
	}

	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.repo, s.logger, auditEntry{
		actorID:    actorID,
		action:     models.AuditActionUserUpdate,
		resourceID: user.ID,
		oldValues:  before,
		newValues:  map[string]interface{}{"role": user.Role, "is_active": user.IsActive, "profile": user.Profile},
		meta:       meta,
	})

	view := rbac.PublicView(user)
	return &view, nil
}

// ChangeRole assigns a new role to another user.
func (s *UserService) ChangeRole(ctx context.Context, id string, req ChangeRoleRequest, actorID string, meta models.RequestMeta) (*models.PublicUser, error) {
	if err := rbac.EnsureNotSelf(actorID, id, "Cannot modify your own role"); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := user.Role
	user.Role = req.Role
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.repo, s.logger, auditEntry{
		actorID:    actorID,
		action:     models.AuditActionRoleChange,
		resourceID: user.ID,
		oldValues:  map[string]interface{}{"role": previous},
		newValues:  map[string]interface{}{"role": user.Role},
		meta:       meta,
	})
	s.logger.Info("role changed", zap.String("user_id", user.ID), zap.String("from", string(previous)), zap.String("to", string(user.Role)))

	view := rbac.PublicView(user)
	return &view, nil
}

// Deactivate marks another user inactive. Their tokens stop working on the
// next request.
func (s *UserService) Deactivate(ctx context.Context, id, actorID string, meta models.RequestMeta) (*models.PublicUser, error) {
	if err := rbac.EnsureNotSelf(actorID, id, "Cannot deactivate your own account"); err != nil {
		return nil, err
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	user.IsActive = false
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.repo, s.logger, auditEntry{
		actorID:    actorID,
		action:     models.AuditActionDeactivate,
		resourceID: user.ID,
		newValues:  map[string]interface{}{"is_active": false},
		meta:       meta,
	})

	view := rbac.PublicView(user)
	return &view, nil
}

// Delete removes another user.
func (s *UserService) Delete(ctx context.Context, id, actorID string, meta models.RequestMeta) error {
	if err := rbac.EnsureNotSelf(actorID, id, "Cannot delete your own account"); err != nil {
		return err
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.invalidateStats(ctx)
	recordAudit(ctx, s.repo, s.logger, auditEntry{
		actorID:    actorID,
		action:     models.AuditActionUserDelete,
		resourceID: id,
		oldValues:  map[string]interface{}{"email": user.Email, "role": user.Role},
		meta:       meta,
	})
	return nil
}

// Stats summarises the user base for the admin dashboard.
func (s *UserService) Stats(ctx context.Context) (*models.UserStats, error) {
	return cachedUserStat(ctx, s.cache, userStatsSummaryKey, func() (*models.UserStats, error) {
		now := s.now().UTC()
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		counts, err := s.repo.Counts(ctx, monthStart, now.Add(-24*time.Hour))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
		}
		roles, err := s.repo.RoleDistribution(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role distribution")
		}
		return &models.UserStats{
			TotalUsers:   counts.Total,
			RoleCounts:   roleCounts(roles),
			NewThisMonth: counts.CreatedSince,
			ActiveUsers:  counts.Active,
		}, nil
	})
}

// SystemStats is the super-admin overview, counting logins in the last 24 hours.
func (s *UserService) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	return cachedUserStat(ctx, s.cache, userStatsSystemStats, func() (*models.SystemStats, error) {
		now := s.now().UTC()
		counts, err := s.repo.Counts(ctx, now, now.Add(-24*time.Hour))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
		}
		roles, err := s.repo.RoleDistribution(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role distribution")
		}
		return &models.SystemStats{
			TotalUsers:   counts.Total,
			ActiveUsers:  counts.Active,
			RecentLogins: counts.LoggedInSince,
			RoleCounts:   roleCounts(roles),
		}, nil
	})
}

// Analytics returns role distribution and recent account activity.
func (s *UserService) Analytics(ctx context.Context) (*models.UserAnalytics, error) {
	return cachedUserStat(ctx, s.cache, userStatsAnalytics, func() (*models.UserAnalytics, error) {
		roles, err := s.repo.RoleDistribution(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role distribution")
		}
		logins, err := s.repo.RecentLogins(ctx, recentLoginsLimit)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent logins")
		}
		registrations, err := s.repo.RecentRegistrations(ctx, recentRegistrationsLimit)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent registrations")
		}
		return &models.UserAnalytics{
			RoleDistribution:    roles,
			RecentLogins:        logins,
			RecentRegistrations: rbac.PublicViews(registrations),
		}, nil
	})
}

// ExportRoster renders every user matching filter as a CSV or PDF table.
func (s *UserService) ExportRoster(ctx context.Context, format export.Format, filter models.UserFilter, actorID string, meta models.RequestMeta) ([]byte, error) {
	table := export.Table{
		Title:   "User roster",
		Headers: []string{"ID", "Email", "Name", "Role", "Active", "Last Login", "Login Count"},
	}

	filter.Limit = exportPageSize
	for page := 1; ; page++ {
		filter.Page = page
		users, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
		}
		for _, u := range users {
			table.Rows = append(table.Rows, rosterRow(u))
		}
		if len(users) == 0 || page*exportPageSize >= total {
			break
		}
	}

	payload, err := export.Render(format, table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
	}

	recordAudit(ctx, s.repo, s.logger, auditEntry{
		actorID:   actorID,
		action:    models.AuditActionRosterExport,
		newValues: map[string]interface{}{"format": format, "rows": len(table.Rows)},
		meta:      meta,
	})
	return payload, nil
}

// BootstrapSuperAdmin creates the first super admin unless one already exists.
// It reports whether an account was created.
func (s *UserService) BootstrapSuperAdmin(ctx context.Context, email, plaintext string) (bool, error) {
	exists, err := s.repo.ExistsWithRole(ctx, models.RoleSuperAdmin)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for super admin")
	}
	if exists {
		return false, nil
	}

	_, err = s.create(ctx, CreateUserRequest{
		Email:     email,
		Password:  plaintext,
		Role:      models.RoleSuperAdmin,
		FirstName: "Super",
		LastName:  "Admin",
	}, "", models.AuditActionAdminCreate, models.RequestMeta{IP: "127.0.0.1", UserAgent: "create-superadmin"})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *UserService) save(ctx context.Context, user *models.User) error {
	if !user.Role.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid role %q", user.Role))
	}
	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	s.invalidateStats(ctx)
	return nil
}

func (s *UserService) invalidateStats(ctx context.Context) {
	_ = s.cache.InvalidateUserStats(ctx)
}

func roleCounts(rows []models.RoleCount) map[string]int {
	counts := make(map[string]int, len(models.Roles))
	for _, role := range models.Roles {
		counts[string(role)] = 0
	}
	for _, row := range rows {
		counts[string(row.Role)] = row.Count
	}
	return counts
}

func rosterRow(u models.User) []string {
	lastLogin := ""
	if u.LastLogin != nil {
		lastLogin = u.LastLogin.UTC().Format(time.RFC3339)
	}
	return []string{
		u.ID,
		u.Email,
		u.FullName(),
		string(u.Role),
		strconv.FormatBool(u.IsActive),
		lastLogin,
		strconv.Itoa(u.LoginCount),
	}
}
