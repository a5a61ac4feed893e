package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds the affiliate program counters and HTTP instrumentation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	clicks      prometheus.Counter
	signups     prometheus.Counter
	conversions prometheus.Counter
	commission  prometheus.Counter
	payouts     *prometheus.CounterVec
	tasks       *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New(serviceName string) *Metrics {
	if serviceName == "" {
		serviceName = "affiliate-service"
	}
	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		clicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "affiliate_clicks_total",
			Help:        "Affiliate link clicks recorded.",
			ConstLabels: constLabels,
		}),
		signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "affiliate_signups_total",
			Help:        "Signups attributed to an affiliate.",
			ConstLabels: constLabels,
		}),
		conversions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "affiliate_conversions_total",
			Help:        "Paid conversions of referred users.",
			ConstLabels: constLabels,
		}),
		commission: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "affiliate_commission_accrued_total",
			Help:        "Commission accrued to affiliates in currency units.",
			ConstLabels: constLabels,
		}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "affiliate_payouts_total",
			Help:        "Payout lifecycle transitions by resulting status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "affiliate_charge_tasks_total",
			Help:        "Billing charge tasks handled by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_response_time_seconds",
			Help:        "Histogram of response times",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.clicks, m.signups, m.conversions, m.commission, m.payouts, m.tasks,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Click() {
	if m == nil {
		return
	}
	m.clicks.Inc()
}

func (m *Metrics) Signup() {
	if m == nil {
		return
	}
	m.signups.Inc()
}

// Conversion counts one conversion and the commission it accrued.
func (m *Metrics) Conversion(commission decimal.Decimal) {
	if m == nil {
		return
	}
	m.conversions.Inc()
	m.commission.Add(commission.InexactFloat64())
}

func (m *Metrics) Payout(status string) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(status).Inc()
}

// Task counts a handled billing charge task; outcome is processed, not_referred, rejected or failed.
func (m *Metrics) Task(outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(outcome).Inc()
}

// GinMiddleware records request counts and latency keyed by the route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
