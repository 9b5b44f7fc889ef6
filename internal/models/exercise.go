package models

import (
	"encoding/json"
	"fmt"
)

// ExerciseType discriminates how an exercise is measured and which
// Results variant it produces.
type ExerciseType string

const (
	TypeRangeOfMotion ExerciseType = "range-of-motion"
	TypeGame          ExerciseType = "p5_game"
)

// Valid reports whether t is a known exercise type.
func (t ExerciseType) Valid() bool {
	return t == TypeRangeOfMotion || t == TypeGame
}

// GoalType is what the exercise goal counts.
type GoalType string

const (
	GoalRepetitions GoalType = "repetitions"
	GoalDuration    GoalType = "duration"
)

// ExerciseStatus is the per-exercise lifecycle. Transitions only move
// forward: not_started -> in_progress -> completed | skipped.
type ExerciseStatus string

const (
	StatusNotStarted ExerciseStatus = "not_started"
	StatusInProgress ExerciseStatus = "in_progress"
	StatusCompleted  ExerciseStatus = "completed"
	StatusSkipped    ExerciseStatus = "skipped"
)

// Terminal reports whether no further transition is allowed.
func (s ExerciseStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusSkipped
}

// CanTransition reports whether moving from s to next is allowed.
func (s ExerciseStatus) CanTransition(next ExerciseStatus) bool {
	switch s {
	case StatusNotStarted:
		return next == StatusInProgress || next == StatusSkipped
	case StatusInProgress:
		return next == StatusCompleted || next == StatusSkipped
	default:
		return false
	}
}

// Exercise is one configured step of the experience.
type Exercise struct {
	ID                  string         `json:"id" yaml:"id"`
	Name                string         `json:"name" yaml:"name"`
	Category            string         `json:"category" yaml:"category"`
	Description         string         `json:"description,omitempty" yaml:"description"`
	Type                ExerciseType   `json:"type" yaml:"type"`
	GoalType            GoalType       `json:"goal_type" yaml:"goal_type"`
	RepetitionsGoal     *int           `json:"repetitions_goal" yaml:"repetitions_goal"`
	DurationSecondsGoal *int           `json:"duration_seconds_goal" yaml:"duration_seconds_goal"`
	Joint               JointQuery     `json:"joint" yaml:"-"`
	Status              ExerciseStatus `json:"status" yaml:"-"`
	Results             Results        `json:"results" yaml:"-"`
}

// Clone returns a copy that shares no mutable state with e.
func (e Exercise) Clone() Exercise {
	out := e
	if e.RepetitionsGoal != nil {
		v := *e.RepetitionsGoal
		out.RepetitionsGoal = &v
	}
	if e.DurationSecondsGoal != nil {
		v := *e.DurationSecondsGoal
		out.DurationSecondsGoal = &v
	}
	if e.Results != nil {
		out.Results = e.Results.clone()
	}
	return out
}

// ExerciseCollection is the ordered exercise list of one experience.
// Its length and order never change after load.
type ExerciseCollection []Exercise

// Clone deep-copies the collection.
func (c ExerciseCollection) Clone() ExerciseCollection {
	out := make(ExerciseCollection, len(c))
	for i, e := range c {
		out[i] = e.Clone()
	}
	return out
}

// Results is the tagged union of per-exercise outcomes. The concrete type
// always matches the owning exercise's Type.
type Results interface {
	Kind() ExerciseType
	clone() Results
}

// RangeOfMotionResult is produced by range-of-motion exercises.
type RangeOfMotionResult struct {
	AchievedAngle float64   `json:"achievedAngle"`
	PainAnglesDeg []float64 `json:"painAnglesDeg"`
}

func (RangeOfMotionResult) Kind() ExerciseType { return TypeRangeOfMotion }

func (r RangeOfMotionResult) clone() Results {
	out := r
	out.PainAnglesDeg = append([]float64(nil), r.PainAnglesDeg...)
	return out
}

func (r RangeOfMotionResult) MarshalJSON() ([]byte, error) {
	type plain RangeOfMotionResult
	pain := r.PainAnglesDeg
	if pain == nil {
		pain = []float64{}
	}
	r.PainAnglesDeg = pain
	return json.Marshal(struct {
		Kind ExerciseType `json:"kind"`
		plain
	}{r.Kind(), plain(r)})
}

// GameResult is produced by timed hand-tracking games.
type GameResult struct {
	Score           float64 `json:"score"`
	Accuracy        float64 `json:"accuracy"`
	DurationSeconds int     `json:"durationSeconds"`
	HandsDetected   bool    `json:"handsDetected"`
}

func (GameResult) Kind() ExerciseType { return TypeGame }

func (g GameResult) clone() Results { return g }

func (g GameResult) MarshalJSON() ([]byte, error) {
	type plain GameResult
	return json.Marshal(struct {
		Kind ExerciseType `json:"kind"`
		plain
	}{g.Kind(), plain(g)})
}

// ResultFor checks that r is the variant required by exercise type t.
func ResultFor(t ExerciseType, r Results) error {
	if r == nil {
		return fmt.Errorf("no results for %s exercise", t)
	}
	if r.Kind() != t {
		return fmt.Errorf("results kind %s does not match exercise type %s", r.Kind(), t)
	}
	return nil
}
