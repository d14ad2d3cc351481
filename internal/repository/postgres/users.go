package postgres

import (
	"context"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository реализация репозитория пользователей через PostgreSQL
type UserRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewUserRepository создает репозиторий пользователей
func NewUserRepository(db *pgxpool.Pool, log *logger.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

var _ repository.UserRepository = (*UserRepository)(nil)

const userColumns = `id, email, name, role, password_hash, stripe_customer_id,
	subscription_tier, subscription_status, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var customerID *string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &customerID,
		&u.SubscriptionTier, &u.SubscriptionStatus, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.StripeCustomerID = derefString(customerID)
	return &u, nil
}

// Create создает пользователя
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.SubscriptionTier == "" {
		u.SubscriptionTier = domain.TierFree
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query, u.ID, u.Email, u.Name, u.Role, u.PasswordHash,
		nullString(u.StripeCustomerID), u.SubscriptionTier, u.SubscriptionStatus, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return mapError(err, "create user")
	}
	r.log.Debugw("User created", "userID", u.ID)
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapError(err, "get user")
	}
	return u, nil
}

// GetByID возвращает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByEmail возвращает пользователя по email без учета регистра
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "lower(email) = lower($1)", email)
}

// GetByStripeCustomerID возвращает пользователя по ID клиента Stripe
func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	return r.getOne(ctx, "stripe_customer_id = $1", customerID)
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err, op)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetStripeCustomerID привязывает клиента Stripe к пользователю
func (r *UserRepository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.exec(ctx, "set stripe customer",
		`UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`, id, customerID)
}

// UpdateSubscription зеркалирует тариф и статус подписки
func (r *UserRepository) UpdateSubscription(ctx context.Context, id uuid.UUID, tier domain.Tier, status domain.SubscriptionStatus) error {
	return r.exec(ctx, "update user subscription",
		`UPDATE users SET subscription_tier = $2, subscription_status = $3, updated_at = now() WHERE id = $1`,
		id, tier, status)
}

// UpdateRole меняет роль пользователя
func (r *UserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role domain.UserRole) error {
	return r.exec(ctx, "update user role",
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, id, role)
}

// Count количество пользователей
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, mapError(err, "count users")
	}
	return n, nil
}
