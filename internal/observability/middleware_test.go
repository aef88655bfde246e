package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware("metrics-test"))
	r.Get("/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := HttpRequestsTotal.WithLabelValues("metrics-test", http.MethodGet, "/messages/{id}", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/messages/"+id, nil))
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Equal(t, float64(0), testutil.ToFloat64(HttpRequestsInFlight.WithLabelValues("metrics-test")))
}

func TestMetricsMiddleware_UnmatchedPath(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware("metrics-test"))

	counter := HttpRequestsTotal.WithLabelValues("metrics-test", http.MethodGet, "unmatched", "404")
	before := testutil.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
