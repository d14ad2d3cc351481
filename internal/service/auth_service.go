package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// AuthService регистрация, вход и профиль пользователя
type AuthService interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthToken, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthToken, error)
	Profile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	// CreateAdmin создает администратора или повышает существующего пользователя
	CreateAdmin(ctx context.Context, email, password, name string) (*domain.User, error)
}

// TokenIssuer выпускает токены доступа
type TokenIssuer interface {
	Issue(user *domain.User) (string, time.Time, error)
}

type authService struct {
	users  repository.UserRepository
	tokens TokenIssuer
	cost   int
	log    *logger.Logger
}

// NewAuthService создает новый сервис аутентификации
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, log *logger.Logger) AuthService {
	return &authService{
		users:  users,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		log:    log,
	}
}

func (s *authService) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, minPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (s *authService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthToken, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:            email,
		Name:             strings.TrimSpace(req.Name),
		Role:             domain.RoleUser,
		PasswordHash:     hash,
		SubscriptionTier: domain.TierFree,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email is already registered", domain.ErrDuplicate)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Infow("User registered", "userID", user.ID)
	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthToken, error) {
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.log.Warnw("Failed login attempt", "userID", user.ID)
		return nil, domain.ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *authService) issue(user *domain.User) (*domain.AuthToken, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &domain.AuthToken{Token: token, ExpiresAt: expires, User: *user}, nil
}

func (s *authService) Profile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier := user.EffectiveTier()
	return &domain.Profile{User: *user, EffectiveTier: tier, Features: tier.Features()}, nil
}

func (s *authService) CreateAdmin(ctx context.Context, email, password, name string) (*domain.User, error) {
	email, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != domain.RoleAdmin {
			if err := s.users.UpdateRole(ctx, existing.ID, domain.RoleAdmin); err != nil {
				return nil, fmt.Errorf("promote user: %w", err)
			}
			existing.Role = domain.RoleAdmin
			s.log.Infow("User promoted to admin", "userID", existing.ID)
		}
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:            email,
		Name:             strings.TrimSpace(name),
		Role:             domain.RoleAdmin,
		PasswordHash:     hash,
		SubscriptionTier: domain.TierFree,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	s.log.Infow("Admin created", "userID", user.ID)
	return user, nil
}
