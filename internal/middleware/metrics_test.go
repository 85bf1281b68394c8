package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bi-platform/apikeys/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// findSeries returns the first series of c whose labels include all of labels.
func findSeries(c prometheus.Collector, labels prometheus.Labels) *dto.Metric {
	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		matched := 0
		for _, lp := range dm.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return &dm
		}
	}
	return nil
}

func counterValue(cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	if m := findSeries(cv, labels); m != nil {
		return m.GetCounter().GetValue()
	}
	return 0
}

func histogramCount(hv *prometheus.HistogramVec, labels prometheus.Labels) uint64 {
	if m := findSeries(hv, labels); m != nil {
		return m.GetHistogram().GetSampleCount()
	}
	return 0
}

func newMetricsRouter(handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware("/health"))
	r.GET("/keys/:id", handler)
	r.GET("/health", handler)
	return r
}

func serve(r *gin.Engine, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_CountsByRouteTemplate(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/keys/:id", "status": "200"}
	before := counterValue(telemetry.HTTPRequestsTotal, labels)
	beforeObs := histogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": "/keys/:id"})

	r := newMetricsRouter(func(c *gin.Context) { c.Status(http.StatusOK) })
	serve(r, "/keys/42")

	if got := counterValue(telemetry.HTTPRequestsTotal, labels) - before; got != 1 {
		t.Errorf("http_requests_total delta = %v, want 1", got)
	}
	if got := histogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": "/keys/:id"}); got != beforeObs+1 {
		t.Errorf("http_request_duration_seconds count = %d, want %d", got, beforeObs+1)
	}
	if findSeries(telemetry.HTTPRequestsTotal, prometheus.Labels{"path": "/keys/42"}) != nil {
		t.Error("raw URL leaked into the path label")
	}
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/keys/:id", "status": "500"}
	before := counterValue(telemetry.HTTPRequestsTotal, labels)

	r := newMetricsRouter(func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	serve(r, "/keys/err")

	if got := counterValue(telemetry.HTTPRequestsTotal, labels) - before; got != 1 {
		t.Errorf("status=500 delta = %v, want 1", got)
	}
}

func TestMetricsMiddleware_NoRouteLabel(t *testing.T) {
	r := newMetricsRouter(func(c *gin.Context) { c.Status(http.StatusOK) })
	serve(r, "/does-not-exist")

	if findSeries(telemetry.HTTPRequestsTotal, prometheus.Labels{"path": "<no-route>"}) == nil {
		t.Error("expected a <no-route> series for an unmatched request")
	}
}

func TestMetricsMiddleware_SkipsProbes(t *testing.T) {
	r := newMetricsRouter(func(c *gin.Context) { c.Status(http.StatusOK) })
	serve(r, "/health")

	if findSeries(telemetry.HTTPRequestsTotal, prometheus.Labels{"path": "/health"}) != nil {
		t.Error("skipped path was recorded")
	}
}
