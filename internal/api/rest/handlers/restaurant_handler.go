package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/Dhoini/ekaty/pkg/req"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RestaurantHandler поиск, карточки, карта и рулетка
type RestaurantHandler struct {
	svc service.RestaurantService
	log *logger.Logger
}

// NewRestaurantHandler создает обработчик ресторанов
func NewRestaurantHandler(svc service.RestaurantService, log *logger.Logger) *RestaurantHandler {
	return &RestaurantHandler{svc: svc, log: log}
}

// filterFromQuery собирает фильтр поиска из параметров запроса
func filterFromQuery(c *gin.Context) (domain.RestaurantFilter, bool) {
	limit, offset := paging(c)
	f := domain.RestaurantFilter{
		Query:        strings.TrimSpace(c.Query("q")),
		Cuisine:      strings.TrimSpace(c.Query("cuisine")),
		FeaturedOnly: c.Query("featured") == "true",
		Sort:         domain.SortOrder(c.Query("sort")),
		Limit:        limit,
		Offset:       offset,
	}
	if v, ok := req.QueryFloat(c.Request, "min_rating"); ok {
		f.MinRating = v
	}
	if raw := c.Query("price"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			level, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || level < 0 || level > 4 {
				badRequest(c, "price must be a comma separated list of levels 0..4")
				return f, false
			}
			f.PriceLevels = append(f.PriceLevels, level)
		}
	}
	lat, hasLat := req.QueryFloat(c.Request, "lat")
	lng, hasLng := req.QueryFloat(c.Request, "lng")
	if hasLat != hasLng {
		badRequest(c, "lat and lng must be given together")
		return f, false
	}
	if hasLat {
		f.Origin = &domain.GeoPoint{Lat: lat, Lng: lng}
		if r, ok := req.QueryFloat(c.Request, "radius"); ok {
			f.RadiusMiles = r
		}
	}
	return f, true
}

// Search GET /api/restaurants
func (h *RestaurantHandler) Search(c *gin.Context) {
	f, ok := filterFromQuery(c)
	if !ok {
		return
	}
	result, err := h.svc.Search(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err, "search restaurants")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Get GET /api/restaurants/:id, где id это UUID или slug
func (h *RestaurantHandler) Get(c *gin.Context) {
	ref := c.Param("id")
	var (
		rest *domain.Restaurant
		err  error
	)
	admin := middleware.IsAdmin(c)
	if id, perr := uuid.Parse(ref); perr == nil {
		rest, err = h.svc.GetByID(c.Request.Context(), id, admin)
	} else {
		rest, err = h.svc.GetBySlug(c.Request.Context(), ref, admin)
	}
	if err != nil {
		respondError(c, h.log, err, "get restaurant")
		return
	}
	c.JSON(http.StatusOK, rest)
}

// MapPins GET /api/restaurants/map?min_lat=&max_lat=&min_lng=&max_lng=&cuisine=
func (h *RestaurantHandler) MapPins(c *gin.Context) {
	var bounds *domain.GeoBounds
	minLat, ok1 := req.QueryFloat(c.Request, "min_lat")
	maxLat, ok2 := req.QueryFloat(c.Request, "max_lat")
	minLng, ok3 := req.QueryFloat(c.Request, "min_lng")
	maxLng, ok4 := req.QueryFloat(c.Request, "max_lng")
	switch {
	case ok1 && ok2 && ok3 && ok4:
		bounds = &domain.GeoBounds{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
	case ok1 || ok2 || ok3 || ok4:
		badRequest(c, "bounds need min_lat, max_lat, min_lng and max_lng")
		return
	}
	pins, err := h.svc.MapPins(c.Request.Context(), bounds, c.Query("cuisine"))
	if err != nil {
		respondError(c, h.log, err, "map pins")
		return
	}
	c.JSON(http.StatusOK, gin.H{"pins": pins})
}

// Roulette POST /api/restaurants/roulette. Тело необязательно.
func (h *RestaurantHandler) Roulette(c *gin.Context) {
	var in domain.RouletteRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, h.log, &in) {
		return
	}
	result, err := h.svc.Roulette(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err, "roulette")
		return
	}
	c.JSON(http.StatusOK, result)
}

// AdminList GET /api/admin/restaurants, включая скрытые
func (h *RestaurantHandler) AdminList(c *gin.Context) {
	f, ok := filterFromQuery(c)
	if !ok {
		return
	}
	f.IncludeHidden = c.Query("include_hidden") != "false"
	result, err := h.svc.Search(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err, "list restaurants")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Create POST /api/admin/restaurants
func (h *RestaurantHandler) Create(c *gin.Context) {
	var in domain.RestaurantInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	rest, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err, "create restaurant")
		return
	}
	c.JSON(http.StatusCreated, rest)
}

// Update PUT /api/admin/restaurants/:id
func (h *RestaurantHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var in domain.RestaurantInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	rest, err := h.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.log, err, "update restaurant")
		return
	}
	c.JSON(http.StatusOK, rest)
}

// Delete DELETE /api/admin/restaurants/:id?hard=true
func (h *RestaurantHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, c.Query("hard") == "true"); err != nil {
		respondError(c, h.log, err, "delete restaurant")
		return
	}
	c.Status(http.StatusNoContent)
}
