// Package tracking bridges a camera device and a landmark detector to the
// joint-angle pipeline.
package tracking

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/claude/romkiosk/internal/geometry"
	"github.com/claude/romkiosk/internal/models"
)

// DefaultVisibilityThreshold is the minimum landmark confidence for an
// angle update.
const DefaultVisibilityThreshold = 0.65

var (
	ErrDeviceClosed          = errors.New("device closed")
	ErrReferenceAlreadySaved = errors.New("reference pose already saved")
	ErrNoCurrentFrame        = errors.New("no current landmark frame")
)

// Device is a camera handle.
type Device interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Detector turns images into landmark results, delivered asynchronously
// through the OnResult callback. A nil callback detaches it.
type Detector interface {
	Send(ctx context.Context, img image.Image) error
	OnResult(fn func(Result))
	Close() error
}

// HandDetection is one detected hand.
type HandDetection struct {
	Handedness string       `json:"handedness" msgpack:"handedness"`
	Landmarks  models.Frame `json:"landmarks" msgpack:"landmarks"`
}

// Result is one detector output.
type Result struct {
	Seq           uint64          `json:"seq,omitempty" msgpack:"seq"`
	PoseLandmarks models.Frame    `json:"poseLandmarks" msgpack:"pose_landmarks"`
	Hands         []HandDetection `json:"hands,omitempty" msgpack:"hands"`
	Image         image.Image     `json:"-" msgpack:"-"`
	At            time.Time       `json:"-" msgpack:"-"`
}

// AngleObserver receives each confidently tracked angle in degrees.
type AngleObserver interface {
	RecordAngle(deg int)
}

// FrameTicker is told about every received frame.
type FrameTicker interface {
	Tick(now time.Time) (fps float64, degraded bool)
}

// Scene is everything the overlay needs to draw one frame.
type Scene struct {
	Image      image.Image
	Current    models.Frame
	Saved      models.Frame
	Joint      models.JointQuery
	Angle      geometry.JointAngle
	AngleValid bool
	FPS        float64
}

// Renderer draws a scene. Failures are logged and never stop tracking.
type Renderer interface {
	Render(Scene) error
}

// Outcome classifies how a frame contributed to the angle.
type Outcome string

const (
	OutcomeTracked       Outcome = "tracked"
	OutcomeLowVisibility Outcome = "low_visibility"
	OutcomeNoLandmarks   Outcome = "no_landmarks"
	OutcomeNoReference   Outcome = "no_reference"
)
