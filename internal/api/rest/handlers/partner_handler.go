package handlers

import (
	"net/http"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
)

// PartnerHandler партнерские тарифы и база партнеров
type PartnerHandler struct {
	svc service.PartnerService
	log *logger.Logger
}

// NewPartnerHandler создает обработчик партнеров
func NewPartnerHandler(svc service.PartnerService, log *logger.Logger) *PartnerHandler {
	return &PartnerHandler{svc: svc, log: log}
}

// ActiveTiers GET /api/tiers
func (h *PartnerHandler) ActiveTiers(c *gin.Context) {
	h.tiers(c, true)
}

// AllTiers GET /api/admin/tiers
func (h *PartnerHandler) AllTiers(c *gin.Context) {
	h.tiers(c, false)
}

func (h *PartnerHandler) tiers(c *gin.Context, activeOnly bool) {
	items, err := h.svc.Tiers(c.Request.Context(), activeOnly)
	if err != nil {
		respondError(c, h.log, err, "list tiers")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// UpsertTier PUT /api/admin/tiers
func (h *PartnerHandler) UpsertTier(c *gin.Context) {
	var in domain.PartnershipTierInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	tier, err := h.svc.UpsertTier(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err, "upsert tier")
		return
	}
	c.JSON(http.StatusOK, tier)
}

// Restaurants GET /api/admin/partners
func (h *PartnerHandler) Restaurants(c *gin.Context) {
	items, err := h.svc.Restaurants(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "list partners")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// CreateRestaurant POST /api/admin/partners
func (h *PartnerHandler) CreateRestaurant(c *gin.Context) {
	var in domain.PartnerRestaurant
	if !bindJSON(c, h.log, &in) {
		return
	}
	p, err := h.svc.CreateRestaurant(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err, "create partner")
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Reconcile POST /api/admin/partners/reconcile
func (h *PartnerHandler) Reconcile(c *gin.Context) {
	report, err := h.svc.Reconcile(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "reconcile partners")
		return
	}
	c.JSON(http.StatusOK, report)
}
