package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolStats источник статистики пула соединений (pgxpool, sql.DB)
type PoolStats func() (acquired, idle, total int32)

// SystemMetrics периодически снимает показатели процесса и пула БД
type SystemMetrics struct {
	log         *logger.Logger
	goroutines  prometheus.Gauge
	memoryAlloc prometheus.Gauge
	memorySys   prometheus.Gauge
	gcCycles    prometheus.Gauge
	uptime      prometheus.Gauge
	dbConns     *prometheus.GaugeVec
	pool        PoolStats
	started     time.Time
}

// NewSystemMetrics создает системные метрики. pool может быть nil.
func NewSystemMetrics(registry prometheus.Registerer, pool PoolStats, log *logger.Logger) *SystemMetrics {
	factory := promauto.With(registry)
	return &SystemMetrics{
		log: log,
		goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "goroutines", Help: "Current number of goroutines",
		}),
		memoryAlloc: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "memory_alloc_bytes", Help: "Currently allocated heap memory",
		}),
		memorySys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "memory_system_bytes", Help: "Memory obtained from the OS",
		}),
		gcCycles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "gc_cycles", Help: "Completed GC cycles",
		}),
		uptime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "uptime_seconds", Help: "Process uptime",
		}),
		dbConns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_connections", Help: "Catalog database pool connections by state",
		}, []string{"state"}),
		pool:    pool,
		started: time.Now(),
	}
}

// Record снимает текущие показатели
func (m *SystemMetrics) Record() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAlloc.Set(float64(mem.Alloc))
	m.memorySys.Set(float64(mem.Sys))
	m.gcCycles.Set(float64(mem.NumGC))
	m.uptime.Set(time.Since(m.started).Seconds())

	if m.pool != nil {
		acquired, idle, total := m.pool()
		m.dbConns.WithLabelValues("acquired").Set(float64(acquired))
		m.dbConns.WithLabelValues("idle").Set(float64(idle))
		m.dbConns.WithLabelValues("total").Set(float64(total))
	}
}

// Run снимает показатели с заданным интервалом до отмены ctx
func (m *SystemMetrics) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Infow("System metrics recording started", "interval", interval)
	m.Record()
	for {
		select {
		case <-ticker.C:
			m.Record()
		case <-ctx.Done():
			m.log.Info("System metrics recording stopped")
			return
		}
	}
}
