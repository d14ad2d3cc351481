package handlers

import (
	"net/http"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/Dhoini/ekaty/pkg/res"
	"github.com/gin-gonic/gin"
)

// ReviewHandler отзывы и избранное
type ReviewHandler struct {
	svc service.ReviewService
	log *logger.Logger
}

// NewReviewHandler создает обработчик отзывов
func NewReviewHandler(svc service.ReviewService, log *logger.Logger) *ReviewHandler {
	return &ReviewHandler{svc: svc, log: log}
}

// List GET /api/restaurants/:id/reviews
func (h *ReviewHandler) List(c *gin.Context) {
	restaurantID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit, offset := paging(c)
	items, total, err := h.svc.List(c.Request.Context(), restaurantID, limit, offset)
	if err != nil {
		respondError(c, h.log, err, "list reviews")
		return
	}
	c.JSON(http.StatusOK, res.NewListResponse(items, total, limit, offset))
}

// Save POST /api/restaurants/:id/reviews. 201 для нового отзыва, 200 для изменения.
func (h *ReviewHandler) Save(c *gin.Context) {
	restaurantID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, _ := middleware.UserID(c)
	var in domain.ReviewInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	review, created, err := h.svc.Save(c.Request.Context(), userID, restaurantID, in)
	if err != nil {
		respondError(c, h.log, err, "save review")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, review)
}

// Delete DELETE /api/reviews/:id
func (h *ReviewHandler) Delete(c *gin.Context) {
	reviewID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, _ := middleware.UserID(c)
	if err := h.svc.Delete(c.Request.Context(), userID, middleware.IsAdmin(c), reviewID); err != nil {
		respondError(c, h.log, err, "delete review")
		return
	}
	c.Status(http.StatusNoContent)
}

// Favorites GET /api/me/favorites
func (h *ReviewHandler) Favorites(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	items, err := h.svc.Favorites(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err, "list favorites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// AddFavorite POST /api/me/favorites/:id. Повторное добавление отвечает 200.
func (h *ReviewHandler) AddFavorite(c *gin.Context) {
	restaurantID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, _ := middleware.UserID(c)
	added, err := h.svc.AddFavorite(c.Request.Context(), userID, restaurantID)
	if err != nil {
		respondError(c, h.log, err, "add favorite")
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"restaurant_id": restaurantID, "favorite": true})
}

// RemoveFavorite DELETE /api/me/favorites/:id
func (h *ReviewHandler) RemoveFavorite(c *gin.Context) {
	restaurantID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, _ := middleware.UserID(c)
	if err := h.svc.RemoveFavorite(c.Request.Context(), userID, restaurantID); err != nil {
		respondError(c, h.log, err, "remove favorite")
		return
	}
	c.Status(http.StatusNoContent)
}
