package memory

import (
	"context"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/google/uuid"
)

// UserRepository реализация repository.UserRepository в памяти
type UserRepository struct{ s *Store }

// Users возвращает репозиторий пользователей
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	ensureID(&user.ID)
	now := r.s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.SubscriptionTier == "" {
		user.SubscriptionTier = domain.TierFree
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if customerID == "" {
		return nil, repository.ErrNotFound
	}
	for _, u := range r.s.users {
		if u.StripeCustomerID == customerID {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.update(id, func(u *domain.User) { u.StripeCustomerID = customerID })
}

func (r *UserRepository) UpdateSubscription(ctx context.Context, id uuid.UUID, tier domain.Tier, status domain.SubscriptionStatus) error {
	return r.update(id, func(u *domain.User) {
		u.SubscriptionTier = tier
		u.SubscriptionStatus = status
	})
}

func (r *UserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role domain.UserRole) error {
	return r.update(id, func(u *domain.User) { u.Role = role })
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

func (r *UserRepository) update(id uuid.UUID, fn func(u *domain.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = r.s.now()
	r.s.users[id] = u
	return nil
}
