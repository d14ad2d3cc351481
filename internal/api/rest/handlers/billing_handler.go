package handlers

import (
	"net/http"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
)

// BillingHandler обработчик для подписок и оплаты
type BillingHandler struct {
	svc service.BillingService
	log *logger.Logger
}

// NewBillingHandler создает новый обработчик оплаты
func NewBillingHandler(svc service.BillingService, log *logger.Logger) *BillingHandler {
	return &BillingHandler{svc: svc, log: log}
}

// Checkout POST /api/billing/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	var in domain.CheckoutRequest
	if !bindJSON(c, h.log, &in) {
		return
	}
	userID, _ := middleware.UserID(c)
	session, err := h.svc.Checkout(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, h.log, err, "create checkout session")
		return
	}
	h.log.Infow("Checkout session created", "userID", userID, "tier", in.Tier, "sessionID", session.ID)
	c.JSON(http.StatusOK, session)
}

// Portal POST /api/billing/portal
func (h *BillingHandler) Portal(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	url, err := h.svc.Portal(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "create portal session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Subscriptions GET /api/billing/subscriptions
func (h *BillingHandler) Subscriptions(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	items, err := h.svc.Subscriptions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "list subscriptions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Payments GET /api/billing/payments
func (h *BillingHandler) Payments(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	items, err := h.svc.Payments(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "list payments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Claims GET /api/billing/claims
func (h *BillingHandler) Claims(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	items, err := h.svc.Claims(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "list claims")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Cancel POST /api/billing/subscriptions/:id/cancel. :id это ID подписки в Stripe.
func (h *BillingHandler) Cancel(c *gin.Context) {
	subID := strings.TrimSpace(c.Param("id"))
	if subID == "" {
		badRequest(c, "subscription id is required")
		return
	}
	userID, _ := middleware.UserID(c)
	if err := h.svc.Cancel(c.Request.Context(), userID, subID); err != nil {
		respondError(c, h.log, err, "cancel subscription")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"stripe_subscription_id": subID, "cancel_at_period_end": true})
}
