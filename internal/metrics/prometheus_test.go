package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(PrometheusMiddleware("metrics-test"))
	router.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	counter := RequestsTotal.WithLabelValues("metrics-test", http.MethodGet, "/orders/:id", "204")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/"+id, nil))
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestObserveAPICall(t *testing.T) {
	counter := APIRequestsTotal.WithLabelValues(http.MethodPost, "cancels", "api_error")
	before := testutil.ToFloat64(counter)

	ObserveAPICall(http.MethodPost, "cancels", "api_error", time.Now().Add(-50*time.Millisecond))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
