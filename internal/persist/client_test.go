package persist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/claude/romkiosk/internal/models"
)

// TestSaveResult verifies the result body and API key reach the server.
func TestSaveResult(t *testing.T) {
	var got models.ResultRow
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/results" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("X-API-Key = %q", r.Header.Get("X-API-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"newResult":{"id":7},"result":{"id":7}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	row := models.NewResultRow("knee", "key-1", models.RangeOfMotionResult{AchievedAngle: 88, PainAnglesDeg: []float64{12}})
	id, err := c.CreateResult(context.Background(), row)
	if err != nil {
		t.Fatalf("CreateResult: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
	if got.ExerciseID != "knee" || got.AchievedAngle != 88 || len(got.PainAnglesDeg) != 1 {
		t.Errorf("server received %+v", got)
	}
}

// TestSaveResultNoRetry verifies a failure is reported after one attempt.
func TestSaveResultNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"exerciseId is required"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").SaveResult(context.Background(), models.ResultRow{})
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("err = %v, want status 400", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

// TestRegisterUser verifies the user body.
func TestRegisterUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["key"] != "key-1" || body["state"] != "started" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, "").RegisterUser(context.Background(), "key-1", "started"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
}

// TestFetchResults verifies the exercise filter is sent as a query param.
func TestFetchResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("exerciseId"); got != "knee flex" {
			t.Errorf("exerciseId = %q", got)
		}
		w.Write([]byte(`{"results":[{"id":1,"exerciseId":"knee flex","achievedAngle":70,"painAnglesDeg":[]}]}`))
	}))
	defer srv.Close()

	results, err := NewClient(srv.URL, "").FetchResults(context.Background(), "knee flex")
	if err != nil {
		t.Fatalf("FetchResults: %v", err)
	}
	if len(results) != 1 || results[0].AchievedAngle != 70 {
		t.Errorf("results = %+v", results)
	}
}
