package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New("test")

	m.Click()
	m.Click()
	m.Signup()
	m.Conversion(decimal.RequireFromString("15.80"))
	m.Payout("requested")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.clicks))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.signups))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.conversions))
	assert.InDelta(t, 15.80, testutil.ToFloat64(m.commission), 1e-9)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.payouts.WithLabelValues("requested")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Click()
		m.Signup()
		m.Conversion(decimal.NewFromInt(1))
		m.Payout("paid")
		m.Task("processed")
	})
	assert.Nil(t, m.Registry())
}

func TestGinMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New("test")

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/items/:id", "200")))

	w = httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `path="/items/:id"`)
}
