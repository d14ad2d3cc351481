package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/Dhoini/ekaty/pkg/req"
	"github.com/Dhoini/ekaty/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadBytes = 10 << 20

// StatusFor переводит ошибку сервиса в HTTP статус
func StatusFor(err error) int {
	var feature *domain.FeatureNotAvailableError
	var external *domain.ExternalServiceError
	switch {
	case errors.As(err, &feature):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidOperation),
		errors.Is(err, domain.ErrWebhookValidationFailed),
		errors.Is(err, domain.ErrSubscriptionPlanNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrEventInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrExternalServiceUnavailable), errors.As(err, &external):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError отвечает JSON ошибкой. Внутренние ошибки логируются, клиенту уходит общий текст.
func respondError(c *gin.Context, log *logger.Logger, err error, action string) {
	status := StatusFor(err)
	body := res.ErrorResponse{Error: err.Error(), ErrorCode: status}

	var verrs domain.ValidationErrors
	var feature *domain.FeatureNotAvailableError
	switch {
	case errors.As(err, &verrs):
		body.Error = "invalid request data"
		body.Details = []domain.ValidationError(verrs)
	case errors.As(err, &feature):
		body.Details = gin.H{"feature": feature.Feature, "required_tier": feature.Required, "current_tier": feature.Tier}
	}

	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "action", action, "path", c.Request.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			body.Error = "internal server error"
		}
	} else {
		log.Debugw("Request rejected", "action", action, "status", status, "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, res.ErrorResponse{Error: message, ErrorCode: http.StatusBadRequest})
}

// bindJSON разбирает тело запроса и проверяет binding-теги
func bindJSON(c *gin.Context, log *logger.Logger, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		log.Debugw("Invalid request body", "path", c.Request.URL.Path, "error", err)
		body := res.ErrorResponse{Error: "invalid request body", ErrorCode: http.StatusBadRequest}
		if details := req.ValidationDetails(err); details != nil {
			body.Error = "invalid request data"
			body.Details = details
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
		return false
	}
	return true
}

// uuidParam читает UUID из параметра пути
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func paging(c *gin.Context) (limit, offset int) {
	return req.QueryInt(c.Request, "limit", 0), req.QueryInt(c.Request, "offset", 0)
}

// queryTime разбирает дату в формате YYYY-MM-DD или RFC3339; пустое значение дает нулевое время
func queryTime(c *gin.Context, name string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	badRequest(c, name+" must be YYYY-MM-DD or RFC3339")
	return time.Time{}, false
}

// csvAttachment выставляет заголовки для выгрузки CSV
func csvAttachment(c *gin.Context, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)
}
