package tracking

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/claude/romkiosk/internal/geometry"
	"github.com/claude/romkiosk/internal/models"
)

// Options wires the adapter's collaborators. Every field is optional.
type Options struct {
	Observer            AngleObserver
	Ticker              FrameTicker
	Renderer            Renderer
	VisibilityThreshold float64

	// OnOutcome is told how each frame was classified.
	OnOutcome func(Outcome)

	// OnHands receives hand positions for frames that carry hands.
	OnHands func(HandResults)
}

// Adapter holds a device and a detector, feeds frames from one to the
// other and turns detector results into joint angles.
type Adapter struct {
	device   Device
	detector Detector
	opts     Options
	log      *slog.Logger

	alive    atomic.Bool
	stopOnce sync.Once
	stopErr  error

	mu      sync.Mutex
	joint   models.JointQuery
	current models.Frame
	saved   models.Frame
	angle   geometry.JointAngle
	angleOK bool
	fps     float64
}

// NewAdapter attaches to the detector's result callback. The device and
// detector are owned by the adapter from here on.
func NewAdapter(device Device, detector Detector, opts Options, log *slog.Logger) (*Adapter, error) {
	if device == nil {
		return nil, fmt.Errorf("tracking adapter: device is required")
	}
	if detector == nil {
		return nil, fmt.Errorf("tracking adapter: detector is required")
	}
	if opts.VisibilityThreshold <= 0 {
		opts.VisibilityThreshold = DefaultVisibilityThreshold
	}
	a := &Adapter{device: device, detector: detector, opts: opts, log: log}
	a.alive.Store(true)
	detector.OnResult(a.HandleResult)
	return a, nil
}

// Run pulls images from the device and sends them to the detector until
// ctx is done, the device closes or the adapter stops. A failed send is
// logged and the next frame is tried.
func (a *Adapter) Run(ctx context.Context) error {
	for a.alive.Load() {
		img, err := a.device.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrDeviceClosed) || !a.alive.Load() {
				return nil
			}
			return fmt.Errorf("reading camera frame: %w", err)
		}
		if err := a.send(ctx, img); err != nil {
			a.log.Warn("sending frame to detector", "error", err)
		}
	}
	return nil
}

func (a *Adapter) send(ctx context.Context, img image.Image) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return a.detector.Send(ctx, img)
}

// HandleResult processes one detector result. It is the detector callback
// and is also called directly for landmarks pushed by a browser client.
// Results arriving after Stop are ignored.
func (a *Adapter) HandleResult(r Result) {
	if !a.alive.Load() {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			a.log.Error("processing tracking result", "panic", rec)
		}
	}()

	now := r.At
	if now.IsZero() {
		now = time.Now()
	}

	var fps float64
	if a.opts.Ticker != nil {
		fps, _ = a.opts.Ticker.Tick(now)
	}

	if len(r.Hands) > 0 && a.opts.OnHands != nil {
		a.opts.OnHands(ExtractHands(r))
	}

	a.mu.Lock()
	a.fps = fps
	if len(r.PoseLandmarks) == 0 {
		a.current = nil
		a.mu.Unlock()
		a.report(OutcomeNoLandmarks)
		return
	}
	a.current = r.PoseLandmarks.Clone()
	outcome := a.updateAngle()
	scene := Scene{
		Image:      r.Image,
		Current:    a.current,
		Saved:      a.saved,
		Joint:      a.joint,
		Angle:      a.angle,
		AngleValid: outcome == OutcomeTracked,
		FPS:        fps,
	}
	deg := a.angle.Deg
	a.mu.Unlock()

	a.report(outcome)
	if outcome == OutcomeTracked && a.opts.Observer != nil {
		a.opts.Observer.RecordAngle(deg)
	}
	a.render(scene)
}

// updateAngle recomputes the angle from the saved and current frames.
// On any missing or low-confidence landmark the last angle is kept.
// Callers hold a.mu.
func (a *Adapter) updateAngle() Outcome {
	if a.saved == nil {
		return OutcomeNoReference
	}
	pivot, ok1 := a.current.At(a.joint.Pivot)
	point, ok2 := a.current.At(a.joint.Point)
	ref, ok3 := a.saved.At(a.joint.Point)
	_, ok4 := a.saved.At(a.joint.Pivot)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return OutcomeLowVisibility
	}
	th := a.opts.VisibilityThreshold
	if pivot.Visibility < th || point.Visibility < th || ref.Visibility < th {
		return OutcomeLowVisibility
	}

	a.angle = geometry.ComputeJointAngle(vec(pivot), vec(ref), vec(point))
	a.angleOK = true
	return OutcomeTracked
}

func vec(l models.Landmark) r2.Vec {
	return r2.Vec{X: l.X, Y: l.Y}
}

func (a *Adapter) report(o Outcome) {
	if a.opts.OnOutcome != nil {
		a.opts.OnOutcome(o)
	}
}

func (a *Adapter) render(s Scene) {
	if a.opts.Renderer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			a.log.Warn("overlay render panic", "panic", rec)
		}
	}()
	if err := a.opts.Renderer.Render(s); err != nil {
		a.log.Warn("overlay render failed", "error", err)
	}
}

// SetJoint selects the joint measured from now on.
func (a *Adapter) SetJoint(q models.JointQuery) {
	a.mu.Lock()
	a.joint = q
	a.mu.Unlock()
}

// CaptureReference saves the current frame as the attempt's reference.
func (a *Adapter) CaptureReference() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saved != nil {
		return ErrReferenceAlreadySaved
	}
	if a.current == nil {
		return ErrNoCurrentFrame
	}
	a.saved = a.current.Clone()
	return nil
}

// ClearReference drops the reference frame and the last angle.
func (a *Adapter) ClearReference() {
	a.mu.Lock()
	a.saved = nil
	a.angle = geometry.JointAngle{}
	a.angleOK = false
	a.mu.Unlock()
}

// HasReference reports whether a reference frame is saved.
func (a *Adapter) HasReference() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saved != nil
}

// LastAngle returns the last confidently tracked angle.
func (a *Adapter) LastAngle() (geometry.JointAngle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.angle, a.angleOK
}

// FPS returns the frame rate measured on the last result.
func (a *Adapter) FPS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fps
}

// Stop detaches from the detector and releases the device and detector.
// It is safe to call more than once.
func (a *Adapter) Stop() error {
	a.stopOnce.Do(func() {
		a.alive.Store(false)
		a.detector.OnResult(nil)
		a.stopErr = errors.Join(a.detector.Close(), a.device.Close())
	})
	return a.stopErr
}
