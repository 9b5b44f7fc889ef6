package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/claude/romkiosk/internal/models"
)

// TestCounters verifies the domain counters are labelled as expected.
func TestCounters(t *testing.T) {
	m := New()
	m.Frame("tracked")
	m.Frame("tracked")
	m.Frame("low_visibility")
	m.Reset("low_fps")
	m.Reset("")
	m.Completed(models.TypeRangeOfMotion)
	m.SetFPS(24.5)

	if got := testutil.ToFloat64(m.frames.WithLabelValues("tracked")); got != 2 {
		t.Errorf("tracked frames = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.resets.WithLabelValues("manual")); got != 1 {
		t.Errorf("manual resets = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.completed.WithLabelValues(string(models.TypeRangeOfMotion))); got != 1 {
		t.Errorf("completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fps); got != 24.5 {
		t.Errorf("fps = %v, want 24.5", got)
	}
}

// TestMiddlewareUsesRoutePattern verifies requests are labelled by chi
// pattern, not raw path.
func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/session/goto/{index}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/metrics", m.Handler().ServeHTTP)

	for _, path := range []string{"/api/v1/session/goto/1", "/api/v1/session/goto/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/v1/session/goto/{index}", "202"))
	if got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}

	srv := httptest.NewServer(r)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "romkiosk_http_requests_total") {
		t.Error("exposition missing romkiosk_http_requests_total")
	}
}

type failingPersister struct{ err error }

func (f failingPersister) SaveResult(context.Context, models.ResultRow) error { return f.err }
func (f failingPersister) RegisterUser(context.Context, string, string) error { return f.err }

// TestCountingPersister verifies only failures are counted and errors pass
// through unchanged.
func TestCountingPersister(t *testing.T) {
	m := New()
	boom := errors.New("boom")
	p := CountingPersister{Next: failingPersister{err: boom}, Metrics: m}
	if err := p.SaveResult(context.Background(), models.ResultRow{}); !errors.Is(err, boom) {
		t.Errorf("SaveResult err = %v, want boom", err)
	}
	if err := p.RegisterUser(context.Background(), "k", "started"); !errors.Is(err, boom) {
		t.Errorf("RegisterUser err = %v, want boom", err)
	}
	ok := CountingPersister{Next: failingPersister{}, Metrics: m}
	_ = ok.SaveResult(context.Background(), models.ResultRow{})

	if got := testutil.ToFloat64(m.persistFailures); got != 2 {
		t.Errorf("failures = %v, want 2", got)
	}
}
