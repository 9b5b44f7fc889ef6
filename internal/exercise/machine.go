// Package exercise holds the exercise catalog and the state machine that
// walks a user through it.
package exercise

import (
	"errors"
	"fmt"
	"math"

	"github.com/claude/romkiosk/internal/models"
)

// AppState is the top-level phase of the kiosk experience.
type AppState string

const (
	StateStart     AppState = "start"
	StateExercises AppState = "exercises"
	StateResults   AppState = "results"
)

var (
	ErrEmptyCollection   = errors.New("exercise collection is empty")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNoCurrentExercise = errors.New("no current exercise")
)

// Progress is the position of the current exercise within the collection.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Machine tracks the app state, the current exercise index and each
// exercise's lifecycle. It is not safe for concurrent use; the session
// store serializes access.
type Machine struct {
	state     AppState
	index     int
	userKey   string
	exercises models.ExerciseCollection
}

// NewMachine returns a machine in the start state over a fresh copy of c.
func NewMachine(c models.ExerciseCollection) *Machine {
	m := &Machine{}
	m.Reset(c)
	return m
}

func (m *Machine) State() AppState { return m.state }
func (m *Machine) Index() int      { return m.index }
func (m *Machine) UserKey() string { return m.userKey }
func (m *Machine) Len() int        { return len(m.exercises) }

// StartExperience enters the exercises state at the first exercise under a
// new session key.
func (m *Machine) StartExperience(userKey string) error {
	if len(m.exercises) == 0 {
		return ErrEmptyCollection
	}
	m.state = StateExercises
	m.index = 0
	m.userKey = userKey
	return nil
}

// ShowResults moves from the exercises state to the results state.
func (m *Machine) ShowResults() error {
	switch m.state {
	case StateResults:
		return nil
	case StateExercises:
		m.state = StateResults
		return nil
	default:
		return fmt.Errorf("%w: show results from %s", ErrInvalidTransition, m.state)
	}
}

// GoToExercise selects exercise i. It reports false and changes nothing
// outside the exercises state or when i is out of range.
func (m *Machine) GoToExercise(i int) bool {
	if m.state != StateExercises || i < 0 || i >= len(m.exercises) {
		return false
	}
	m.index = i
	return true
}

// Next advances to the following exercise. Advancing past the last one
// shows the results instead of wrapping.
func (m *Machine) Next() error {
	if m.state != StateExercises {
		return fmt.Errorf("%w: next from %s", ErrInvalidTransition, m.state)
	}
	if m.index+1 >= len(m.exercises) {
		m.state = StateResults
		return nil
	}
	m.index++
	return nil
}

// Previous steps back one exercise, wrapping from the first to the last.
func (m *Machine) Previous() error {
	if m.state != StateExercises {
		return fmt.Errorf("%w: previous from %s", ErrInvalidTransition, m.state)
	}
	m.index = (m.index - 1 + len(m.exercises)) % len(m.exercises)
	return nil
}

// Reset returns to the start state over a fresh copy of c with every
// status not_started and every result cleared.
func (m *Machine) Reset(c models.ExerciseCollection) {
	fresh := c.Clone()
	for i := range fresh {
		fresh[i].Status = models.StatusNotStarted
		fresh[i].Results = nil
	}
	m.exercises = fresh
	m.state = StateStart
	m.index = 0
	m.userKey = ""
}

// Current returns a copy of the current exercise, or nil unless the machine
// is in the exercises state.
func (m *Machine) Current() *models.Exercise {
	if m.state != StateExercises || m.index < 0 || m.index >= len(m.exercises) {
		return nil
	}
	e := m.exercises[m.index].Clone()
	return &e
}

// StartCurrent moves the current exercise to in_progress. Restarting an
// exercise that is already in progress is allowed.
func (m *Machine) StartCurrent() error {
	e, err := m.current()
	if err != nil {
		return err
	}
	if e.Status == models.StatusInProgress {
		return nil
	}
	return transition(e, models.StatusInProgress)
}

// CompleteCurrent attaches r to the current exercise and marks it completed.
func (m *Machine) CompleteCurrent(r models.Results) error {
	e, err := m.current()
	if err != nil {
		return err
	}
	if err := models.ResultFor(e.Type, r); err != nil {
		return err
	}
	if err := transition(e, models.StatusCompleted); err != nil {
		return err
	}
	e.Results = r
	return nil
}

// SkipCurrent marks the current exercise skipped without results.
func (m *Machine) SkipCurrent() error {
	e, err := m.current()
	if err != nil {
		return err
	}
	return transition(e, models.StatusSkipped)
}

func (m *Machine) current() (*models.Exercise, error) {
	if m.state != StateExercises || m.index < 0 || m.index >= len(m.exercises) {
		return nil, ErrNoCurrentExercise
	}
	return &m.exercises[m.index], nil
}

func transition(e *models.Exercise, next models.ExerciseStatus) error {
	if !e.Status.CanTransition(next) {
		return fmt.Errorf("%w: exercise %s %s -> %s", ErrInvalidTransition, e.ID, e.Status, next)
	}
	e.Status = next
	return nil
}

// Progress reports the one-based position of the current exercise.
func (m *Machine) Progress() Progress {
	total := len(m.exercises)
	if total == 0 {
		return Progress{}
	}
	current := m.index + 1
	return Progress{
		Current:    current,
		Total:      total,
		Percentage: int(math.Round(float64(current) / float64(total) * 100)),
	}
}

func (m *Machine) IsFirst() bool { return m.index == 0 }
func (m *Machine) IsLast() bool  { return m.index == len(m.exercises)-1 }

// Exercises returns a deep copy of the collection.
func (m *Machine) Exercises() models.ExerciseCollection {
	return m.exercises.Clone()
}

// IndexOf returns the position of the exercise with the given id, or -1.
func (m *Machine) IndexOf(id string) int {
	for i, e := range m.exercises {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// ExerciseByID returns a copy of the exercise with the given id.
func (m *Machine) ExerciseByID(id string) (models.Exercise, bool) {
	i := m.IndexOf(id)
	if i < 0 {
		return models.Exercise{}, false
	}
	return m.exercises[i].Clone(), true
}
