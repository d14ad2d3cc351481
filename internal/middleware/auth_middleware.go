package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/Dhoini/ekaty/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextKey тип для ключей контекста во избежание коллизий.
type ContextKey string

const (
	// ContextUserIDKey ключ ID пользователя в контексте gin
	ContextUserIDKey ContextKey = "userID"
	// ContextClaimsKey ключ разобранных claims
	ContextClaimsKey ContextKey = "claims"
	authHeaderPrefix            = "Bearer "
)

// TokenClaims claims токена доступа: sub = ID пользователя, scope = роль
type TokenClaims struct {
	UserEmail string `json:"email"`
	Scope     string `json:"scope"`
	jwt.RegisteredClaims
}

// Role роль пользователя из scope
func (c *TokenClaims) Role() domain.UserRole {
	return domain.UserRole(c.Scope)
}

// TokenValidator проверяет токен доступа
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenManager выпускает и проверяет HS256 токены
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenManager создает менеджер токенов
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(cfg.JWTSecret), ttl: ttl, issuer: "ekaty", now: time.Now}
}

// Issue выпускает токен для пользователя
func (m *TokenManager) Issue(user *domain.User) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.ttl)
	claims := TokenClaims{
		UserEmail: user.Email,
		Scope:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Validate проверяет подпись и срок действия токена
func (m *TokenManager) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.New("malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.New("invalid token signature")
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("token expired")
		default:
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}
	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token claims")
}

// JWTMiddleware аутентификация по заголовку Authorization или cookie сессии
type JWTMiddleware struct {
	cookieName string
	log        *logger.Logger
	validator  TokenValidator
}

// NewJWTMiddleware создает middleware аутентификации
func NewJWTMiddleware(cfg config.AuthConfig, log *logger.Logger, validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{cookieName: cfg.CookieName, log: log, validator: validator}
}

// tokenFromRequest берет токен из Bearer заголовка, затем из cookie
func (m *JWTMiddleware) tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, authHeaderPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, authHeaderPrefix))
	}
	if m.cookieName != "" {
		if v, err := c.Cookie(m.cookieName); err == nil {
			return v
		}
	}
	return ""
}

func (m *JWTMiddleware) authenticate(c *gin.Context) (*TokenClaims, uuid.UUID, error) {
	tokenString := m.tokenFromRequest(c)
	if tokenString == "" {
		return nil, uuid.Nil, errors.New("missing authorization token")
	}
	claims, err := m.validator.Validate(tokenString)
	if err != nil {
		return nil, uuid.Nil, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, uuid.Nil, errors.New("user ID (sub) missing in token")
	}
	return claims, userID, nil
}

// RequireAuth требует валидный токен. Если заданы роли, scope токена должен совпасть с одной из них.
func (m *JWTMiddleware) RequireAuth(roles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, userID, err := m.authenticate(c)
		if err != nil {
			m.handleAuthError(c, http.StatusUnauthorized, err.Error())
			return
		}
		if !hasRole(claims.Role(), roles) {
			m.handleAuthError(c, http.StatusForbidden, "insufficient permissions")
			return
		}
		c.Set(string(ContextUserIDKey), userID)
		c.Set(string(ContextClaimsKey), claims)
		c.Next()
	}
}

// OptionalAuth заполняет пользователя, если токен есть и валиден, и не отклоняет запрос без него
func (m *JWTMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, userID, err := m.authenticate(c); err == nil {
			c.Set(string(ContextUserIDKey), userID)
			c.Set(string(ContextClaimsKey), claims)
		}
		c.Next()
	}
}

func hasRole(role domain.UserRole, allowed []domain.UserRole) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, status int, message string) {
	m.log.Debugw("HTTP authentication failed", "path", c.Request.URL.Path, "status", status, "error", message)
	res.JsonResponse(c.Writer, res.ErrorResponse{Error: message, ErrorCode: status}, status)
	c.Abort()
}

// UserID возвращает ID аутентифицированного пользователя
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(string(ContextUserIDKey))
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Claims возвращает claims аутентифицированного пользователя
func Claims(c *gin.Context) (*TokenClaims, bool) {
	v, ok := c.Get(string(ContextClaimsKey))
	if !ok {
		return nil, false
	}
	claims, ok := v.(*TokenClaims)
	return claims, ok
}

// IsAdmin сообщает, что запрос выполняет администратор
func IsAdmin(c *gin.Context) bool {
	claims, ok := Claims(c)
	return ok && claims.Role() == domain.RoleAdmin
}
