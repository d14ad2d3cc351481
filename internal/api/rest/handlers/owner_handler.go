package handlers

import (
	"net/http"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/gin-gonic/gin"
)

// OwnerHandler кабинет владельца
type OwnerHandler struct {
	svc service.OwnerService
	log *logger.Logger
}

// NewOwnerHandler создает обработчик кабинета владельца
func NewOwnerHandler(svc service.OwnerService, log *logger.Logger) *OwnerHandler {
	return &OwnerHandler{svc: svc, log: log}
}

// Restaurants GET /api/owner/restaurants
func (h *OwnerHandler) Restaurants(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	items, err := h.svc.Restaurants(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "list owned restaurants")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// UpdateListing PATCH /api/owner/restaurants/:id
func (h *OwnerHandler) UpdateListing(c *gin.Context) {
	restaurantID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in domain.OwnerListingInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	userID, _ := middleware.UserID(c)
	rest, err := h.svc.UpdateListing(c.Request.Context(), userID, restaurantID, in)
	if err != nil {
		respondError(c, h.log, err, "update listing")
		return
	}
	c.JSON(http.StatusOK, rest)
}

// Stats GET /api/owner/restaurants/:id/stats
func (h *OwnerHandler) Stats(c *gin.Context) {
	restaurantID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, _ := middleware.UserID(c)
	stats, err := h.svc.Stats(c.Request.Context(), userID, restaurantID)
	if err != nil {
		respondError(c, h.log, err, "owner stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
