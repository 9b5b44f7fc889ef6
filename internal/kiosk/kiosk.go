// Package kiosk wires tracking, the session store, the frame-rate monitor,
// the remote control and the navigation guard into one running kiosk.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/claude/romkiosk/internal/exercise"
	"github.com/claude/romkiosk/internal/fps"
	"github.com/claude/romkiosk/internal/metrics"
	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/overlay"
	"github.com/claude/romkiosk/internal/remote"
	"github.com/claude/romkiosk/internal/session"
	"github.com/claude/romkiosk/internal/tracking"
)

// Reset reasons raised by the kiosk itself.
const (
	ReasonLowFPS   = "low_fps"
	ReasonMenu     = "menu"
	ReasonFinished = "finished"
	ReasonManual   = "manual"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNotRecording   = errors.New("not recording")
)

// Deps are the collaborators a Kiosk is built from. Renderer, Metrics,
// Catalog and Push are optional.
type Deps struct {
	Store    *session.Store
	Monitor  *fps.Monitor
	Device   tracking.Device
	Detector tracking.Detector
	Renderer *overlay.Renderer
	Metrics  *metrics.Metrics
	Catalog  *exercise.Catalog

	// Push receives landmarks delivered by browser clients. It is usually
	// also the Device and Detector.
	Push *tracking.Push

	// Recorder, when set, appends every delivered result for later replay.
	Recorder *tracking.Recorder
}

// Options tunes the kiosk.
type Options struct {
	VisibilityThreshold float64
	Keys                map[string]remote.Action
	Debounce            time.Duration
	ReleaseDelay        time.Duration
	NavWindow           int
	WatchCatalog        bool
}

// Kiosk owns the running pipeline.
type Kiosk struct {
	store    *session.Store
	monitor  *fps.Monitor
	adapter  *tracking.Adapter
	renderer *overlay.Renderer
	metrics  *metrics.Metrics
	catalog  *exercise.Catalog
	push     *tracking.Push
	recorder *tracking.Recorder
	remote   *remote.Control
	guard    *session.NavGuard
	hub      *Hub
	opts     Options
	log      *slog.Logger
}

// New builds the adapter and connects every collaborator.
func New(deps Deps, opts Options, log *slog.Logger) (*Kiosk, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("kiosk: session store is required")
	}
	if deps.Monitor == nil {
		deps.Monitor = fps.New(fps.DefaultThreshold, fps.DefaultTimeout)
	}
	if opts.Keys == nil {
		opts.Keys = remote.DefaultKeyMap
	}

	k := &Kiosk{
		store:    deps.Store,
		monitor:  deps.Monitor,
		renderer: deps.Renderer,
		metrics:  deps.Metrics,
		catalog:  deps.Catalog,
		push:     deps.Push,
		recorder: deps.Recorder,
		guard:    session.NewNavGuard(opts.NavWindow),
		hub:      NewHub(),
		opts:     opts,
		log:      log,
	}

	topts := tracking.Options{
		Observer:            deps.Store,
		Ticker:              k,
		VisibilityThreshold: opts.VisibilityThreshold,
		OnOutcome:           k.onOutcome,
		OnHands:             k.onHands,
	}
	if deps.Renderer != nil {
		topts.Renderer = deps.Renderer
	}
	adapter, err := tracking.NewAdapter(deps.Device, deps.Detector, topts, log)
	if err != nil {
		return nil, err
	}
	k.adapter = adapter
	k.remote = remote.New(opts.Keys, opts.Debounce, opts.ReleaseDelay, k.HandleAction)

	k.monitor.OnDegraded(func() {
		log.Warn("sustained low frame rate", "fps", k.monitor.FPS())
		k.store.ResetExperience(ReasonLowFPS)
	})
	k.store.Subscribe(k.onEvent)
	return k, nil
}

// Run drives the adapter and, when enabled, the catalog watcher until ctx
// is done or the device fails.
func (k *Kiosk) Run(ctx context.Context) error {
	if k.catalog != nil && k.opts.WatchCatalog {
		go func() {
			err := k.catalog.Watch(ctx, k.log, func(c models.ExerciseCollection) {
				k.log.Info("exercise catalog reloaded", "exercises", len(c))
			})
			if err != nil {
				k.log.Warn("catalog watch stopped", "error", err)
			}
		}()
	}
	return k.adapter.Run(ctx)
}

// Stop releases the camera and detector and waits for pending saves.
func (k *Kiosk) Stop() error {
	k.remote.Stop()
	err := k.adapter.Stop()
	k.store.Wait()
	return err
}

// Tick implements tracking.FrameTicker, feeding the monitor and the fps
// gauge.
func (k *Kiosk) Tick(now time.Time) (float64, bool) {
	rate, degraded := k.monitor.Tick(now)
	if k.metrics != nil {
		k.metrics.SetFPS(rate)
	}
	return rate, degraded
}

func (k *Kiosk) onOutcome(o tracking.Outcome) {
	if k.metrics != nil {
		k.metrics.Frame(string(o))
	}
}

func (k *Kiosk) onHands(h tracking.HandResults) {
	k.hub.Broadcast(Message{Kind: KindHands, Hands: &h})
}

// onEvent keeps the adapter and guard in step with the session and relays
// the event to clients.
func (k *Kiosk) onEvent(ev session.Event) {
	switch ev.Type {
	case session.EventExperienceStarted, session.EventExerciseChanged:
		k.adapter.ClearReference()
		if cur := k.store.CurrentExercise(); cur != nil {
			k.adapter.SetJoint(cur.Joint)
		}
		k.guard.Clear()
	case session.EventExerciseStarted, session.EventExerciseSkipped, session.EventResultsShown:
		k.adapter.ClearReference()
		k.guard.Clear()
	case session.EventExerciseCompleted:
		k.adapter.ClearReference()
		if k.metrics != nil && ev.Results != nil {
			k.metrics.Completed(ev.Results.Kind())
		}
	case session.EventExperienceReset:
		k.adapter.ClearReference()
		k.adapter.SetJoint(models.JointQuery{})
		k.guard.Clear()
		k.monitor.Reset()
		if k.metrics != nil {
			k.metrics.Reset(ev.Reason)
		}
	}
	k.hub.Broadcast(Message{Kind: KindEvent, Event: &ev})
}

// Press feeds a key from the keyboard or remote control.
func (k *Kiosk) Press(key string) (remote.Action, bool) {
	return k.remote.Press(key)
}

// HandleAction applies an accepted remote action to the session.
func (k *Kiosk) HandleAction(a remote.Action) {
	k.hub.Broadcast(Message{Kind: KindAction, Action: a})

	var err error
	switch a {
	case remote.ActionOK:
		err = k.advance()
	case remote.ActionRight:
		err = k.store.NextExercise()
	case remote.ActionLeft:
		err = k.store.PreviousExercise()
	case remote.ActionBack:
		if err = k.store.SkipCurrentExercise(); err == nil {
			err = k.store.NextExercise()
		}
	case remote.ActionMenu:
		k.store.ResetExperience(ReasonMenu)
	case remote.ActionDown:
		k.store.MarkPainMoment()
	}
	if err != nil {
		k.log.Debug("remote action ignored", "action", a, "error", err)
	}
}

// advance performs the next natural step of the flow for the ok button.
func (k *Kiosk) advance() error {
	snap := k.store.Snapshot()
	switch snap.AppState {
	case exercise.StateStart:
		return k.store.StartExperience()
	case exercise.StateResults:
		k.store.ResetExperience(ReasonFinished)
		return nil
	}

	cur := snap.CurrentExercise
	if cur == nil {
		return exercise.ErrNoCurrentExercise
	}
	switch cur.Status {
	case models.StatusCompleted, models.StatusSkipped:
		return k.store.NextExercise()
	}

	if cur.Type == models.TypeGame {
		if cur.Status == models.StatusNotStarted {
			return k.store.StartCurrentExercise()
		}
		_, err := k.store.CompleteCurrentExercise()
		return err
	}

	if !snap.Recording {
		return k.startRecording()
	}
	k.store.StopRecording()
	_, err := k.store.CompleteCurrentExercise()
	return err
}

// startRecording saves the reference pose and starts accumulating.
func (k *Kiosk) startRecording() error {
	if err := k.store.StartRecording(); err != nil {
		return err
	}
	// StartRecording may have started the exercise, which clears the
	// reference, so capture afterwards.
	if err := k.adapter.CaptureReference(); err != nil && !errors.Is(err, tracking.ErrReferenceAlreadySaved) {
		k.store.StopRecording()
		return fmt.Errorf("capturing reference pose: %w", err)
	}
	return nil
}

// Command runs a named session operation. arg carries the index for goto
// and the exercise id for select.
func (k *Kiosk) Command(name, arg string) error {
	switch name {
	case "start":
		return k.store.StartExperience()
	case "next":
		return k.store.NextExercise()
	case "previous":
		return k.store.PreviousExercise()
	case "results":
		return k.store.ShowResults()
	case "reset":
		k.store.ResetExperience(ReasonManual)
		return nil
	case "start-exercise":
		return k.store.StartCurrentExercise()
	case "record":
		return k.startRecording()
	case "stop":
		k.store.StopRecording()
		return nil
	case "complete":
		_, err := k.store.CompleteCurrentExercise()
		return err
	case "skip":
		return k.store.SkipCurrentExercise()
	case "pain":
		if !k.store.MarkPainMoment() {
			return ErrNotRecording
		}
		return nil
	case "goto":
		i, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid exercise index %q", arg)
		}
		if !k.store.GoToExercise(i) {
			return fmt.Errorf("%w: cannot go to exercise %d", exercise.ErrInvalidTransition, i)
		}
		return nil
	case "select":
		if !k.store.SetCurrentExercise(arg) {
			return fmt.Errorf("%w: cannot select exercise %q", exercise.ErrInvalidTransition, arg)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// Navigate records a view change reported by the presentation layer and
// resets the experience on an invalid route or a redirect loop.
func (k *Kiosk) Navigate(path string) (reason string, reset bool) {
	reason, reset = k.guard.Visit(path)
	if reset {
		k.log.Warn("navigation fault", "path", path, "reason", reason)
		k.store.ResetExperience(reason)
	}
	return reason, reset
}

// Deliver hands landmarks pushed by a browser client to the adapter.
func (k *Kiosk) Deliver(r tracking.Result) {
	if k.recorder != nil {
		if err := k.recorder.Record(r); err != nil {
			k.log.Warn("recording landmarks", "error", err)
		}
	}
	if k.push != nil {
		k.push.Deliver(r)
		return
	}
	k.adapter.HandleResult(r)
}

// ReportGameResult stores a game outcome for the current attempt.
func (k *Kiosk) ReportGameResult(g models.GameResult) {
	k.store.ReportGameResult(g)
}

// Snapshot returns the session state.
func (k *Kiosk) Snapshot() session.Snapshot {
	return k.store.Snapshot()
}

// Exercises returns the collection a new experience would start with.
func (k *Kiosk) Exercises() models.ExerciseCollection {
	if k.catalog != nil {
		return k.catalog.Collection()
	}
	return k.store.Snapshot().Exercises
}

// Subscribe attaches a client to the message hub.
func (k *Kiosk) Subscribe() (<-chan []byte, func()) {
	return k.hub.Subscribe()
}

// WriteOverlayPNG encodes the latest overlay frame. It reports false when
// there is no renderer or nothing was drawn yet.
func (k *Kiosk) WriteOverlayPNG(w io.Writer) (bool, error) {
	if k.renderer == nil {
		return false, nil
	}
	return k.renderer.WritePNG(w)
}

// Adapter exposes the tracking adapter.
func (k *Kiosk) Adapter() *tracking.Adapter {
	return k.adapter
}
