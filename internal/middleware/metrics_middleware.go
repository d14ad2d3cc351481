package middleware

import (
	"time"

	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics записывает количество и длительность запросов по шаблону маршрута
func Metrics(m metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
