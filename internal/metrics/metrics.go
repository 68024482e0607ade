package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry - отдельный реестр Prometheus для сервиса
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Connections - активные соединения по ролям
	Connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "realtime_connections", Help: "Active realtime connections by role."},
		[]string{"role"},
	)
	// Broadcasts - разосланные события по типу
	Broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "realtime_broadcasts_total", Help: "Broadcast events by event name."},
		[]string{"event"},
	)
	// Deliveries - доставки участникам комнат
	Deliveries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "realtime_deliveries_total", Help: "Messages handed to connection outbound buffers."},
	)
	// DeliveriesDropped - недоставленные сообщения по причине
	DeliveriesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "realtime_deliveries_dropped_total", Help: "Messages not delivered to a member by reason."},
		[]string{"reason"},
	)
	// InvariantViolations - нарушения внутренних инвариантов реестра комнат
	InvariantViolations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "realtime_registry_invariant_violations_total", Help: "Room registry internal invariant violations."},
	)
	// AuthAttempts - исходы аутентификации
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_attempts_total", Help: "Authentication attempts by mode and outcome."},
		[]string{"mode", "outcome"},
	)
	// AnalyticsDuration - длительность расчетов аналитики
	AnalyticsDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "analytics_duration_seconds", Help: "Analytics computation duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"kind", "status"},
	)
	// RelayMessages - сообщения межузлового ретранслятора
	RelayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_messages_total", Help: "Cross-node relay messages by direction and status."},
		[]string{"direction", "status"},
	)
)

var regOnce sync.Once

// RegisterDefault регистрирует коллекторы в реестре сервиса
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Connections)
		Registry.MustRegister(Broadcasts)
		Registry.MustRegister(Deliveries)
		Registry.MustRegister(DeliveriesDropped)
		Registry.MustRegister(InvariantViolations)
		Registry.MustRegister(AuthAttempts)
		Registry.MustRegister(AnalyticsDuration)
		Registry.MustRegister(RelayMessages)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// GinMiddleware измеряет HTTP-запросы по шаблону маршрута
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
