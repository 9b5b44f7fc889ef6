package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/claude/romkiosk/internal/exercise"
	"github.com/claude/romkiosk/internal/kiosk"
	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/tracking"
)

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kiosk.Snapshot())
}

func (s *Server) handleSessionCommand(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, chi.URLParam(r, "action"), "")
}

func (s *Server) handleSessionGoto(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, "goto", chi.URLParam(r, "index"))
}

func (s *Server) handleSessionSelect(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, "select", chi.URLParam(r, "id"))
}

func (s *Server) runCommand(w http.ResponseWriter, name, arg string) {
	if err := s.kiosk.Command(name, arg); err != nil {
		writeJSON(w, commandStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.kiosk.Snapshot())
}

// commandStatus maps session errors to HTTP statuses.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, kiosk.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, exercise.ErrInvalidTransition),
		errors.Is(err, exercise.ErrNoCurrentExercise),
		errors.Is(err, exercise.ErrEmptyCollection),
		errors.Is(err, kiosk.ErrNotRecording),
		errors.Is(err, tracking.ErrNoCurrentFrame),
		errors.Is(err, tracking.ErrReferenceAlreadySaved):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleGameResult(w http.ResponseWriter, r *http.Request) {
	var g models.GameResult
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	s.kiosk.ReportGameResult(g)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	reason, reset := s.kiosk.Navigate(req.Path)
	writeJSON(w, http.StatusOK, map[string]any{"reset": reset, "reason": reason})
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	action, accepted := s.kiosk.Press(req.Key)
	if action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown key " + req.Key})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action, "accepted": accepted})
}

func (s *Server) handleExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"exercises": s.kiosk.Exercises()})
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	ok, err := s.kiosk.WriteOverlayPNG(&buf)
	if err != nil {
		s.log.Warn("encoding overlay", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no overlay frame yet"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}
