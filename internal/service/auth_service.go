package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Elvismn/Scholalink3.0/internal/models"
	"github.com/Elvismn/Scholalink3.0/internal/rbac"
	"github.com/Elvismn/Scholalink3.0/internal/repository"
	appErrors "github.com/Elvismn/Scholalink3.0/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	TouchLogin(ctx context.Context, id string, ts time.Time) (int, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(digest, plaintext string) bool
}

// AuthService provides registration, login and per-request authentication.
type AuthService struct {
	repo      authUserRepository
	tokens    *TokenService
	hasher    PasswordHasher
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	cache     *CacheService
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, tokens *TokenService, hasher PasswordHasher, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, cache *CacheService) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &AuthService{
		repo:      repo,
		tokens:    tokens,
		hasher:    hasher,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		cache:     cache,
		now:       time.Now,
	}
}

// Register creates a parent account and issues its first session token.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, meta models.RequestMeta) (*models.AuthResult, error) {
	req.Email = repository.NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}

	email := req.Email
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.ErrDuplicateEmail
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleParent,
		Profile: models.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
		},
		IsActive: true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, appErrors.ErrDuplicateEmail
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue token")
	}

	s.metrics.RecordAuthAttempt(AuthOutcomeRegister)
	_ = s.cache.InvalidateUserStats(ctx)
	recordAudit(ctx, s.repo, s.logger, auditEntry{
		actorID:    user.ID,
		action:     models.AuditActionRegister,
		resourceID: user.ID,
		newValues:  map[string]interface{}{"email": user.Email, "role": user.Role},
		meta:       meta,
	})
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	return &models.AuthResult{Token: token, ExpiresAt: expiresAt, User: rbac.PublicView(user)}, nil
}

// Login verifies credentials, stamps login telemetry and issues a token.
// Unknown email, inactive account and wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, meta models.RequestMeta) (*models.AuthResult, error) {
	req.Email = repository.NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordAuthAttempt(AuthOutcomeLoginFailure)
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !s.hasher.Compare(user.PasswordHash, req.Password) || !user.IsActive {
		s.metrics.RecordAuthAttempt(AuthOutcomeLoginFailure)
		s.logger.Debug("login rejected", zap.String("user_id", user.ID))
		return nil, appErrors.ErrInvalidCredentials
	}

	if err := s.touch(ctx, user); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue token")
	}

	s.metrics.RecordAuthAttempt(AuthOutcomeLoginSuccess)
	recordAudit(ctx, s.repo, s.logger, auditEntry{
		actorID:    user.ID,
		action:     models.AuditActionLogin,
		resourceID: user.ID,
		newValues:  map[string]interface{}{"status": "success"},
		meta:       meta,
	})

	user.PasswordHash = ""
	return &models.AuthResult{Token: token, ExpiresAt: expiresAt, User: rbac.PublicView(user)}, nil
}

// Authenticate resolves a bearer token to an active user and records the
// request against the user's login telemetry.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, appErrors.ErrMissingToken
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.metrics.RecordAuthAttempt(AuthOutcomeTokenRejected)
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordAuthAttempt(AuthOutcomeTokenRejected)
			return nil, appErrors.ErrInactiveOrUnknownUser
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !user.IsActive {
		s.metrics.RecordAuthAttempt(AuthOutcomeTokenRejected)
		return nil, appErrors.ErrInactiveOrUnknownUser
	}

	if err := s.touch(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Me returns the public view of the caller, re-read from the store.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.PublicUser, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	view := rbac.PublicView(user)
	return &view, nil
}

// touch increments login_count and stamps last_login, mirroring the stored
// values onto user.
func (s *AuthService) touch(ctx context.Context, user *models.User) error {
	ts := s.now().UTC()
	count, err := s.repo.TouchLogin(ctx, user.ID, ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrInactiveOrUnknownUser
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record login")
	}
	user.LastLogin = &ts
	user.LoginCount = count
	return nil
}
