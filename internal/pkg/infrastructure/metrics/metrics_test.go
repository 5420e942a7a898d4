package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"
)

func TestRequestsAreCountedPerRoutePattern(t *testing.T) {
	is := is.New(t)
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/gateways/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/gateways/"+id, nil))
	}

	body := scrape(t, m)
	is.True(strings.Contains(body, `iot_gateway_monitor_http_requests_total{method="GET",route="/gateways/{id}",status="404"} 2`))
}

func TestDashboardAndIngestAreObserved(t *testing.T) {
	is := is.New(t)
	m := New()

	m.ObserveDashboard(20*time.Millisecond, nil)
	m.ObserveDashboard(time.Second, errors.New("failed"))

	h := m.Ingested("gateways/+/faults", func(string, []byte) error { return nil })
	is.NoErr(h("gateways/gw-1/faults", []byte(`{}`)))

	body := scrape(t, m)
	is.True(strings.Contains(body, `iot_gateway_monitor_dashboard_aggregation_duration_seconds_count{result="error"} 1`))
	is.True(strings.Contains(body, `iot_gateway_monitor_ingested_messages_total{result="ok",topic="gateways/+/faults"} 1`))
}

func scrape(t *testing.T, m *Metrics) string {
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	b, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
