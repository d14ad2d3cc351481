package handlers

import (
	"net/http"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
)

// AuthHandler регистрация, вход и профиль
type AuthHandler struct {
	svc service.AuthService
	cfg config.AuthConfig
	log *logger.Logger
}

// NewAuthHandler создает обработчик аутентификации
func NewAuthHandler(svc service.AuthService, cfg config.AuthConfig, log *logger.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, cfg: cfg, log: log}
}

// setSession кладет токен в HttpOnly cookie
func (h *AuthHandler) setSession(c *gin.Context, token string, expires time.Time) {
	if h.cfg.CookieName == "" {
		return
	}
	maxAge := int(time.Until(expires).Seconds())
	if token == "" {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, token, maxAge, "/", "", h.cfg.SecureCookie, true)
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var in domain.RegisterRequest
	if !bindJSON(c, h.log, &in) {
		return
	}
	tok, err := h.svc.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err, "register")
		return
	}
	h.setSession(c, tok.Token, tok.ExpiresAt)
	c.JSON(http.StatusCreated, tok)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var in domain.LoginRequest
	if !bindJSON(c, h.log, &in) {
		return
	}
	tok, err := h.svc.Login(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err, "login")
		return
	}
	h.setSession(c, tok.Token, tok.ExpiresAt)
	c.JSON(http.StatusOK, tok)
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setSession(c, "", time.Time{})
	c.Status(http.StatusNoContent)
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	profile, err := h.svc.Profile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}
