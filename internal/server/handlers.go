package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/session"
	"github.com/claude/romkiosk/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateResult stores one exercise outcome. Pain angles are kept as
// a JSON string in the database and returned as an array.
func (s *Server) handleCreateResult(w http.ResponseWriter, r *http.Request) {
	var row models.ResultRow
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if row.ExerciseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exerciseId is required"})
		return
	}
	if row.PainAnglesDeg == nil {
		row.PainAnglesDeg = []float64{}
	}
	row.ID = 0

	id, err := s.db.InsertResult(r.Context(), row)
	if err != nil {
		s.log.Error("storing result", "exercise", row.ExerciseID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	row.ID = id

	writeJSON(w, http.StatusCreated, map[string]any{
		"newResult": row,
		"result":    map[string]int64{"id": id},
	})
}

func (s *Server) handleQueryResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.ResultFilter{
		ExerciseID: q.Get("exerciseId"),
		UserKey:    q.Get("userKey"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}

	rows, err := s.db.QueryResults(r.Context(), f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": rows})
}

func (s *Server) handleResultSummary(w http.ResponseWriter, r *http.Request) {
	sums, err := s.db.ResultSummaries(r.Context(), r.URL.Query().Get("exerciseId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": sums})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string `json:"key"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key is required"})
		return
	}
	if req.State == "" {
		req.State = session.UserStateStarted
	}

	user, err := s.db.InsertUser(r.Context(), req.Key, req.State)
	if err != nil {
		s.log.Error("storing user", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (s *Server) handleQueryUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.db.QueryUsers(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetDataStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
