package session

import (
	"fmt"

	"github.com/claude/romkiosk/internal/exercise"
	"github.com/claude/romkiosk/internal/models"
)

// EventType names a session change published to subscribers.
type EventType string

const (
	EventExperienceStarted EventType = "experience_started"
	EventExerciseChanged   EventType = "exercise_changed"
	EventExerciseStarted   EventType = "exercise_started"
	EventExerciseCompleted EventType = "exercise_completed"
	EventExerciseSkipped   EventType = "exercise_skipped"
	EventRecording         EventType = "recording"
	EventPainMarked        EventType = "pain_marked"
	EventResultsShown      EventType = "results_shown"
	EventExperienceReset   EventType = "experience_reset"
	EventAngle             EventType = "angle"
)

// Event describes one session change. Navigation events carry the view
// path the presentation layer should show; a reset sets Reload so the
// presentation layer does a full reload.
type Event struct {
	Type       EventType      `json:"type"`
	Path       string         `json:"path,omitempty"`
	ExerciseID string         `json:"exerciseId,omitempty"`
	Index      int            `json:"index"`
	Angle      int            `json:"angle,omitempty"`
	Recording  bool           `json:"recording,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Reload     bool           `json:"reload,omitempty"`
	Results    models.Results `json:"results,omitempty"`
}

// Navigation paths.
const (
	PathStart   = "/"
	PathResults = "/results"
)

// ExercisePath is the view path of one exercise.
func ExercisePath(id string) string {
	return fmt.Sprintf("/exercises/%s", id)
}

// pathFor is the view matching the machine's current phase.
func pathFor(m *exercise.Machine) string {
	switch m.State() {
	case exercise.StateExercises:
		if cur := m.Current(); cur != nil {
			return ExercisePath(cur.ID)
		}
	case exercise.StateResults:
		return PathResults
	}
	return PathStart
}
