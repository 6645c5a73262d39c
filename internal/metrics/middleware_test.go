package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/jobs", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	ok := httpRequestsTotal.WithLabelValues("GET", "200")
	limited := httpRequestsTotal.WithLabelValues("POST", "429")
	okBefore := testutil.ToFloat64(ok)
	limitedBefore := testutil.ToFloat64(limited)

	resp, err := http.Get(ts.URL + "/v1/jobs/abc")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	resp, err = http.Post(ts.URL+"/v1/jobs", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	if val := testutil.ToFloat64(ok); val != okBefore+1 {
		t.Errorf("GET 200 count = %f, want %f", val, okBefore+1)
	}
	if val := testutil.ToFloat64(limited); val != limitedBefore+1 {
		t.Errorf("POST 429 count = %f, want %f", val, limitedBefore+1)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds, "http_request_duration_seconds"); val < 2 {
		t.Errorf("expected route-labeled duration series, got %d", val)
	}
}
