package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claude/romkiosk/internal/exercise"
	"github.com/claude/romkiosk/internal/metrics"
	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/remote"
	"github.com/claude/romkiosk/internal/session"
	"github.com/claude/romkiosk/internal/tracking"
)

type memPersister struct {
	mu   sync.Mutex
	rows []models.ResultRow
}

func (p *memPersister) SaveResult(_ context.Context, row models.ResultRow) error {
	p.mu.Lock()
	p.rows = append(p.rows, row)
	p.mu.Unlock()
	return nil
}

func (p *memPersister) RegisterUser(context.Context, string, string) error { return nil }

type fixture struct {
	k       *Kiosk
	store   *session.Store
	metrics *metrics.Metrics
	saved   *memPersister
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets before subscribe to the store ahead of the kiosk.
func newFixtureWith(t *testing.T, before func(*session.Store)) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := exercise.NewCatalog(models.ExerciseCollection{
		{ID: "raise", Type: models.TypeRangeOfMotion, Joint: models.JointQuery{Pivot: models.RightShoulder, Point: models.RightElbow}},
		{ID: "catch", Type: models.TypeGame},
	})
	saved := &memPersister{}
	m := metrics.New()
	store := session.NewStore(catalog, session.Options{Persister: metrics.CountingPersister{Next: saved, Metrics: m}}, log)
	if before != nil {
		before(store)
	}
	push := tracking.NewPush()
	k, err := New(Deps{
		Store:    store,
		Device:   push,
		Detector: push,
		Push:     push,
		Catalog:  catalog,
		Metrics:  m,
	}, Options{}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { k.Stop() })
	return &fixture{k: k, store: store, metrics: m, saved: saved, clock: time.Unix(1700000000, 0)}
}

// deliver pushes a frame with the right elbow at (x, y), advancing the
// clock by step.
func (f *fixture) deliver(x, y float64, step time.Duration) {
	frame := make(models.Frame, models.PoseLandmarkCount)
	for i := range frame {
		frame[i] = models.Landmark{X: 0.5, Y: 0.5, Visibility: 0.9}
	}
	frame[models.RightElbow] = models.Landmark{X: x, Y: y, Visibility: 0.9}
	f.clock = f.clock.Add(step)
	f.k.Deliver(tracking.Result{PoseLandmarks: frame, At: f.clock})
}

func (f *fixture) exposition(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

// TestRemoteDrivesWholeFlow verifies the ok button walks a range-of-motion
// exercise and a game through to the results and back to start.
func TestRemoteDrivesWholeFlow(t *testing.T) {
	f := newFixture(t)
	ok := func() { f.k.HandleAction(remote.ActionOK) }

	ok()
	if s := f.k.Snapshot(); s.AppState != exercise.StateExercises || s.CurrentExercise.ID != "raise" {
		t.Fatalf("after start: %+v", s)
	}

	f.deliver(0.5, 0.8, 33*time.Millisecond)
	ok()
	if !f.k.Snapshot().Recording || !f.k.Adapter().HasReference() {
		t.Fatal("ok should start recording and save the reference pose")
	}

	f.deliver(0.8, 0.5, 33*time.Millisecond)
	if got := f.k.Snapshot().AccumulatedAngle; got != 90 {
		t.Fatalf("accumulated = %v, want 90", got)
	}
	f.k.HandleAction(remote.ActionDown)

	ok()
	s := f.k.Snapshot()
	if s.Exercises[0].Status != models.StatusCompleted {
		t.Fatalf("raise status = %s", s.Exercises[0].Status)
	}
	rom, isROM := s.Exercises[0].Results.(models.RangeOfMotionResult)
	if !isROM || rom.AchievedAngle != 90 || len(rom.PainAnglesDeg) != 1 || rom.PainAnglesDeg[0] != 90 {
		t.Errorf("raise results = %+v", s.Exercises[0].Results)
	}
	if f.k.Adapter().HasReference() {
		t.Error("reference should be cleared after completion")
	}

	ok() // next -> game
	if cur := f.k.Snapshot().CurrentExercise; cur == nil || cur.ID != "catch" {
		t.Fatalf("current = %+v, want catch", cur)
	}
	ok() // start game
	f.k.ReportGameResult(models.GameResult{Score: 5, DurationSeconds: 30, HandsDetected: true})
	ok() // complete game
	if g, isGame := f.k.Snapshot().Exercises[1].Results.(models.GameResult); !isGame || g.Score != 5 {
		t.Errorf("game results = %+v", f.k.Snapshot().Exercises[1].Results)
	}

	ok() // next past last -> results
	if s := f.k.Snapshot(); s.AppState != exercise.StateResults {
		t.Fatalf("state = %s, want results", s.AppState)
	}
	ok() // back to start
	if s := f.k.Snapshot(); s.AppState != exercise.StateStart || s.UserKey != "" {
		t.Fatalf("after finish: %+v", s)
	}

	f.store.Wait()
	if len(f.saved.rows) != 2 {
		t.Errorf("saved %d rows, want 2", len(f.saved.rows))
	}
	body := f.exposition(t)
	for _, want := range []string{
		`romkiosk_exercises_completed_total{type="p5_game"} 1`,
		`romkiosk_exercises_completed_total{type="range-of-motion"} 1`,
		`romkiosk_resets_total{reason="finished"} 1`,
		`romkiosk_frames_total{outcome="tracked"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

// TestLowFrameRateResets verifies sustained low fps resets the experience
// once and tells clients why.
func TestLowFrameRateResets(t *testing.T) {
	f := newFixture(t)
	msgs, cancel := f.k.Subscribe()
	defer cancel()

	if err := f.k.Command("start", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	for range 21 {
		f.deliver(0.5, 0.8, 250*time.Millisecond)
	}

	if s := f.k.Snapshot(); s.AppState != exercise.StateStart {
		t.Fatalf("state = %s, want start", s.AppState)
	}
	var resets []string
	for {
		select {
		case data := <-msgs:
			var m Message
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("decoding message: %v", err)
			}
			if m.Kind == KindEvent && m.Event.Type == session.EventExperienceReset {
				resets = append(resets, m.Event.Reason)
			}
			continue
		default:
		}
		break
	}
	if len(resets) != 1 || resets[0] != ReasonLowFPS {
		t.Errorf("resets = %v, want [low_fps]", resets)
	}
}

// TestNavigationLoopResets verifies a short route loop resets, while store
// navigation starts a fresh history.
func TestNavigationLoopResets(t *testing.T) {
	f := newFixture(t)
	if err := f.k.Command("start", ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.k.Navigate("/exercises/raise")
	f.k.Navigate("/results")
	if err := f.k.Command("next", ""); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, reset := f.k.Navigate("/exercises/raise"); reset {
		t.Fatal("history should be cleared by store navigation")
	}

	f.k.Navigate("/exercises/catch")
	reason, reset := f.k.Navigate("/exercises/raise")
	if !reset || reason != session.ReasonNavigationLoop {
		t.Fatalf("Navigate = %q, %v; want navigation_loop reset", reason, reset)
	}
	if s := f.k.Snapshot(); s.AppState != exercise.StateStart {
		t.Errorf("state = %s, want start", s.AppState)
	}

	if reason, reset := f.k.Navigate("/exercises/undefined"); !reset || reason != session.ReasonInvalidRoute {
		t.Errorf("invalid route = %q, %v", reason, reset)
	}
}

// TestCommands verifies argument handling and error mapping of named
// commands.
func TestCommands(t *testing.T) {
	f := newFixture(t)

	if err := f.k.Command("dance", ""); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown: %v", err)
	}
	if err := f.k.Command("start", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.k.Command("goto", "x"); err == nil {
		t.Error("goto with bad index should fail")
	}
	if err := f.k.Command("goto", "7"); !errors.Is(err, exercise.ErrInvalidTransition) {
		t.Errorf("goto out of range: %v", err)
	}
	if err := f.k.Command("pain", ""); !errors.Is(err, ErrNotRecording) {
		t.Errorf("pain: %v", err)
	}
	if err := f.k.Command("record", ""); !errors.Is(err, tracking.ErrNoCurrentFrame) {
		t.Errorf("record without a frame: %v", err)
	}
	if f.k.Snapshot().Recording {
		t.Error("recording should stop when the reference cannot be saved")
	}
	if err := f.k.Command("select", "catch"); err != nil {
		t.Errorf("select: %v", err)
	}
	if got := f.k.Snapshot().CurrentExerciseIndex; got != 1 {
		t.Errorf("index = %d, want 1", got)
	}
	if err := f.k.Command("skip", ""); err != nil {
		t.Errorf("skip: %v", err)
	}
	if err := f.k.Command("results", ""); err != nil {
		t.Errorf("results: %v", err)
	}
	if err := f.k.Command("reset", ""); err != nil {
		t.Errorf("reset: %v", err)
	}
	if len(f.k.Exercises()) != 2 {
		t.Errorf("exercises = %d, want 2", len(f.k.Exercises()))
	}
}

// TestWriteOverlayWithoutRenderer verifies the overlay reports nothing when
// no renderer is configured.
func TestWriteOverlayWithoutRenderer(t *testing.T) {
	f := newFixture(t)
	ok, err := f.k.WriteOverlayPNG(io.Discard)
	if ok || err != nil {
		t.Errorf("WriteOverlayPNG = %v, %v", ok, err)
	}
}

// TestResetRacingStartKeepsJoint verifies a low frame rate reset delivered
// slowly while ok starts the experience does not leave the adapter without
// a joint.
func TestResetRacingStartKeepsJoint(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f := newFixtureWith(t, func(s *session.Store) {
		s.Subscribe(func(ev session.Event) {
			if ev.Type == session.EventExperienceReset {
				once.Do(func() {
					close(entered)
					<-release
				})
			}
		})
	})

	resetDone := make(chan struct{})
	go func() {
		f.store.ResetExperience(ReasonLowFPS)
		close(resetDone)
	}()
	<-entered

	startDone := make(chan struct{})
	go func() {
		f.k.HandleAction(remote.ActionOK)
		close(startDone)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-resetDone
	<-startDone

	s := f.k.Snapshot()
	if s.AppState != exercise.StateExercises || s.CurrentExercise == nil || s.CurrentExercise.ID != "raise" {
		t.Fatalf("snapshot = %+v, want exercises on raise", s)
	}

	f.deliver(0.5, 0.8, 33*time.Millisecond)
	f.k.HandleAction(remote.ActionOK)
	f.deliver(0.8, 0.5, 33*time.Millisecond)
	s = f.k.Snapshot()
	if s.LiveAngle != 90 || s.AccumulatedAngle != 90 {
		t.Errorf("live = %d accumulated = %v, want 90", s.LiveAngle, s.AccumulatedAngle)
	}
}

// TestResetReachesLaggingClient verifies a client that stopped reading
// during a burst of angle updates still receives the reset.
func TestResetReachesLaggingClient(t *testing.T) {
	f := newFixture(t)
	msgs, cancel := f.k.Subscribe()
	defer cancel()

	if err := f.k.Command("start", ""); err != nil {
		t.Fatal(err)
	}
	f.deliver(0.5, 0.8, 33*time.Millisecond)
	if err := f.k.Command("record", ""); err != nil {
		t.Fatal(err)
	}
	for range 70 {
		f.deliver(0.8, 0.5, 33*time.Millisecond)
	}
	if err := f.k.Command("reset", ""); err != nil {
		t.Fatal(err)
	}

	reset := false
	for len(msgs) > 0 {
		var m Message
		if err := json.Unmarshal(<-msgs, &m); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if m.Event != nil && m.Event.Type == session.EventExperienceReset {
			reset = m.Event.Reload
		}
	}
	if !reset {
		t.Error("experience_reset with reload was not delivered")
	}
}
