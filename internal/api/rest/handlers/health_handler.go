package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Check проверка зависимости для /health
type Check func(ctx context.Context) error

// HealthHandler обработчик проверки работоспособности сервиса
type HealthHandler struct {
	checks map[string]Check
}

// NewHealthHandler создает обработчик; checks может быть пустым
func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthCheck отвечает 200, если все зависимости доступны, иначе 503
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := gin.H{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "OK"
	}

	text := "OK"
	if status != http.StatusOK {
		text = "DEGRADED"
	}
	c.JSON(status, gin.H{
		"status":       text,
		"time":         time.Now().Format(time.RFC3339),
		"dependencies": deps,
	})
}
