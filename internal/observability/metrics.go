package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_ws_events_total",
			Help: "Total number of websocket lifecycle and frame events.",
		},
		[]string{"event"},
	)
	deliveryTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_delivery_transitions_total",
			Help: "Total number of aggregate message status transitions.",
		},
		[]string{"status"},
	)
	callsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_calls_finished_total",
			Help: "Total number of calls reaching a terminal state.",
		},
		[]string{"status"},
	)
	responderFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_responder_fallbacks_total",
			Help: "Total number of responder replies degraded to the fallback text.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		deliveryTransitionsTotal,
		callsFinishedTotal,
		responderFallbacksTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncDeliveryTransition(status string) {
	deliveryTransitionsTotal.WithLabelValues(status).Inc()
}

func IncCallFinished(status string) {
	callsFinishedTotal.WithLabelValues(status).Inc()
}

func IncResponderFallback() {
	responderFallbacksTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
