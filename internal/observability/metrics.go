package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_payments_total",
			Help: "Payments and legacy transactions by kind and resulting status.",
		},
		[]string{"kind", "status"},
	)
	fraudFlagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_fraud_flags_total",
			Help: "Fraud rule hits by reason code.",
		},
		[]string{"reason"},
	)
	refundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payflow_refunds_total",
			Help: "Processed refunds.",
		},
	)
	refundedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payflow_refunded_minor_units_total",
			Help: "Sum of refunded amounts in minor units.",
		},
	)
	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_webhook_deliveries_total",
			Help: "Webhook delivery attempts by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_cache_lookups_total",
			Help: "Cache lookups by backend and result.",
		},
		[]string{"backend", "result"},
	)
)

// NewMetricsMiddleware Creates HTTP middleware for collecting Prometheus metrics.
func NewMetricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				path := routePattern(r)

				httpRequestDuration.WithLabelValues(serviceName, r.Method, path).Observe(duration.Seconds())
				httpRequestsTotal.WithLabelValues(serviceName, r.Method, path, strconv.Itoa(ww.Status())).Inc()
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// RecordPayment counts a settled payment ("payment") or legacy transaction ("transaction").
func RecordPayment(kind, status string) {
	paymentsTotal.WithLabelValues(kind, status).Inc()
}

func RecordFraudFlags(reasons []string) {
	for _, r := range reasons {
		fraudFlagsTotal.WithLabelValues(r).Inc()
	}
}

func RecordRefund(amount int64) {
	refundsTotal.Inc()
	refundedAmount.Add(float64(amount))
}

func RecordWebhookDelivery(event string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	webhookDeliveries.WithLabelValues(event, outcome).Inc()
}

func RecordCacheLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(backend, result).Inc()
}

// routePattern is the matched chi pattern, which keeps refs out of labels and span names.
// Unmatched requests fall back to the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
