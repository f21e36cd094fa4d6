package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Elvismn/Scholalink3.0/internal/models"
)

// ErrEmailTaken is returned by Create when the lowercased email already exists.
var ErrEmailTaken = errors.New("email already registered")

const (
	publicColumns = "id, email, role, first_name, last_name, phone, avatar, is_active, last_login, login_count, created_at, updated_at"
	secretColumns = "id, email, password_hash, role, first_name, last_name, phone, avatar, is_active, last_login, login_count, created_at, updated_at"

	uniqueViolation = "23505"
)

// UserRepository is the Postgres-backed credential store.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// NormalizeEmail is the canonical form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail returns a user, including the password hash, by case-insensitive email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + secretColumns + ` FROM users WHERE LOWER(email) = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier. The password hash is never selected.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	query := `SELECT ` + publicColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ExistsWithRole reports whether any account holds role.
func (r *UserRepository) ExistsWithRole(ctx context.Context, role models.UserRole) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, role); err != nil {
		return false, fmt.Errorf("check role existence: %w", err)
	}
	return exists, nil
}

// TouchLogin stamps last_login and increments login_count in one statement so
// concurrent requests never lose an increment. It returns the new count.
func (r *UserRepository) TouchLogin(ctx context.Context, id string, ts time.Time) (int, error) {
	const query = `UPDATE users SET last_login = $2, login_count = login_count + 1, updated_at = $2 WHERE id = $1 RETURNING login_count`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id, ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("touch login: %w", err)
	}
	return count, nil
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Search != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(email) LIKE $%d OR LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d)", n, n, n))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":  true,
		"email":       true,
		"last_login":  true,
		"login_count": true,
		"first_name":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page, limit := NormalizePage(filter.Page, filter.Limit)
	offset := (page - 1) * limit

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", publicColumns, baseQuery, sortBy, sortOrder, limit, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// NormalizePage clamps pagination input to page >= 1 and 1 <= limit <= 100,
// defaulting limit to 10.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// Create inserts a new user. The email is stored normalised.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = NormalizeEmail(user.Email)

	const query = `INSERT INTO users (id, email, password_hash, role, first_name, last_name, phone, avatar, is_active, login_count, created_at, updated_at) VALUES (:id, :email, :password_hash, :role, :first_name, :last_name, :phone, :avatar, :is_active, :login_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update writes the mutable account fields: role, active flag and profile.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET role = :role, is_active = :is_active, first_name = :first_name, last_name = :last_name, phone = :phone, avatar = :avatar, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the account row.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res)
}

// Counts returns total and active users plus those created since createdSince
// and logged in since loginSince.
func (r *UserRepository) Counts(ctx context.Context, createdSince, loginSince time.Time) (*models.UserCounts, error) {
	const query = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE is_active) AS active, COUNT(*) FILTER (WHERE created_at >= $1) AS created_since, COUNT(*) FILTER (WHERE last_login >= $2) AS logged_in_since FROM users`
	var counts models.UserCounts
	if err := r.db.GetContext(ctx, &counts, query, createdSince, loginSince); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return &counts, nil
}

// RoleDistribution groups users by role with active counts.
func (r *UserRepository) RoleDistribution(ctx context.Context) ([]models.RoleCount, error) {
	const query = `SELECT role, COUNT(*) AS count, COUNT(*) FILTER (WHERE is_active) AS active FROM users GROUP BY role ORDER BY role`
	var rows []models.RoleCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("role distribution: %w", err)
	}
	return rows, nil
}

// RecentLogins returns the most recent sign-ins.
func (r *UserRepository) RecentLogins(ctx context.Context, limit int) ([]models.LoginActivity, error) {
	const query = `SELECT id, email, role, is_active, last_login, login_count FROM users WHERE last_login IS NOT NULL ORDER BY last_login DESC LIMIT $1`
	var rows []models.LoginActivity
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("recent logins: %w", err)
	}
	return rows, nil
}

// RecentRegistrations returns the newest accounts.
func (r *UserRepository) RecentRegistrations(ctx context.Context, limit int) ([]models.User, error) {
	query := `SELECT ` + publicColumns + ` FROM users ORDER BY created_at DESC LIMIT $1`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, limit); err != nil {
		return nil, fmt.Errorf("recent registrations: %w", err)
	}
	return users, nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
