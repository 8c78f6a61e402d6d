package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentHandler_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "418"))
	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/items/"+id, nil))
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "418"))
	if after-before != 2 {
		t.Fatalf("expected 2 requests on the route pattern, got %v", after-before)
	}
}

func TestStatusWriter_DefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	_, _ = sw.Write([]byte("x"))
	if sw.status != http.StatusOK {
		t.Fatalf("status = %d", sw.status)
	}
	if sw.Unwrap() != rec {
		t.Fatalf("Unwrap must return the wrapped writer")
	}
}
