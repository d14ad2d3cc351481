package handlers

import (
	"bytes"
	"net/http"

	"github.com/Dhoini/ekaty/internal/domain"
	"github.com/Dhoini/ekaty/internal/middleware"
	"github.com/Dhoini/ekaty/internal/service"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/Dhoini/ekaty/pkg/req"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AnalyticsHandler прием событий и дашборд администратора
type AnalyticsHandler struct {
	svc service.AnalyticsService
	log *logger.Logger
}

// NewAnalyticsHandler создает обработчик аналитики
func NewAnalyticsHandler(svc service.AnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, log: log}
}

// Track POST /api/events. Пользователь берется из токена, если он есть.
func (h *AnalyticsHandler) Track(c *gin.Context) {
	var in domain.TrackRequest
	if !bindJSON(c, h.log, &in) {
		return
	}
	var userID *uuid.UUID
	if id, ok := middleware.UserID(c); ok {
		userID = &id
	}
	if err := h.svc.Track(c.Request.Context(), userID, in); err != nil {
		respondError(c, h.log, err, "track event")
		return
	}
	c.Status(http.StatusAccepted)
}

// Dashboard GET /api/admin/analytics?from=&to=
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	d, err := h.svc.Dashboard(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.log, err, "analytics dashboard")
		return
	}
	c.JSON(http.StatusOK, d)
}

// RecordLaunchMetric POST /api/admin/launch-metrics
func (h *AnalyticsHandler) RecordLaunchMetric(c *gin.Context) {
	var in domain.LaunchMetricInput
	if !bindJSON(c, h.log, &in) {
		return
	}
	m, err := h.svc.RecordLaunchMetric(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err, "record launch metric")
		return
	}
	c.JSON(http.StatusOK, m)
}

// LaunchMetrics GET /api/admin/launch-metrics?from=&to=
func (h *AnalyticsHandler) LaunchMetrics(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	items, err := h.svc.LaunchMetrics(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.log, err, "launch metrics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ExportEvents GET /api/admin/analytics/events/export?from=&to=&name=&restaurant_id=&limit=
func (h *AnalyticsHandler) ExportEvents(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	filter := domain.AnalyticsFilter{
		From:  from,
		To:    to,
		Name:  c.Query("name"),
		Limit: req.QueryInt(c.Request, "limit", 0),
	}
	if raw := c.Query("restaurant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "invalid restaurant_id")
			return
		}
		filter.RestaurantID = &id
	}
	var buf bytes.Buffer
	if err := h.svc.ExportEvents(c.Request.Context(), &buf, filter); err != nil {
		respondError(c, h.log, err, "export events")
		return
	}
	csvAttachment(c, "events.csv")
	c.Writer.Write(buf.Bytes())
}
