package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/integration/stripe"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/Dhoini/ekaty/pkg/res"
	"github.com/gin-gonic/gin"
)

const maxWebhookBytes = 1 << 20

// EventParser проверяет подпись и разбирает событие Stripe
type EventParser interface {
	Parse(payload []byte, sigHeader string) (*domain.BillingEvent, error)
}

// WebhookHandler обработчик для вебхуков
type WebhookHandler struct {
	parser EventParser
	svc    service.WebhookService
	log    *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(parser EventParser, svc service.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{parser: parser, svc: svc, log: log}
}

// HandleStripeWebhook обрабатывает вебхуки от Stripe.
// Любой ответ кроме 2xx заставит Stripe повторить доставку.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		h.log.Warnw("Failed to read webhook body", "error", err)
		badRequest(c, "failed to read webhook body")
		return
	}

	event, err := h.parser.Parse(payload, c.GetHeader(stripe.SignatureHeader))
	if err != nil {
		if errors.Is(err, domain.ErrWebhookValidationFailed) {
			h.log.Warnw("Rejected webhook", "error", err, "remoteIP", c.ClientIP())
			badRequest(c, "invalid webhook signature")
			return
		}
		respondError(c, h.log, err, "parse webhook")
		return
	}

	result, err := h.svc.Process(c.Request.Context(), event)
	if err != nil {
		if errors.Is(err, domain.ErrEventInFlight) {
			c.AbortWithStatusJSON(http.StatusConflict, res.ErrorResponse{
				Error:     "event is being processed",
				ErrorCode: http.StatusConflict,
			})
			return
		}
		h.log.Errorw("Webhook processing failed", "eventID", event.ID, "type", event.Type, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, res.ErrorResponse{
			Error:     "webhook processing failed",
			ErrorCode: http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"status":    result.Status,
		"duplicate": result.Duplicate,
	})
}

// ListEvents GET /api/admin/webhooks?status=
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	status := domain.WebhookEventStatus(c.Query("status"))
	switch status {
	case "", domain.WebhookEventStatusPending, domain.WebhookEventStatusProcessed,
		domain.WebhookEventStatusSkipped, domain.WebhookEventStatusFailed:
	default:
		badRequest(c, "unknown status")
		return
	}
	limit, offset := paging(c)
	items, total, err := h.svc.ListEvents(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, h.log, err, "list webhook events")
		return
	}
	c.JSON(http.StatusOK, res.NewListResponse(items, total, limit, offset))
}

// GetEvent GET /api/admin/webhooks/:id
func (h *WebhookHandler) GetEvent(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	event, err := h.svc.GetEvent(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "get webhook event")
		return
	}
	c.JSON(http.StatusOK, event)
}

// Retry POST /api/admin/webhooks/:id/retry
func (h *WebhookHandler) Retry(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.Retry(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "retry webhook event")
		return
	}
	h.log.Infow("Webhook event retried", "id", id, "status", result.Status)
	c.JSON(http.StatusOK, result)
}
