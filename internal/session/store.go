// Package session is the kiosk's session controller. It owns the exercise
// state machine, the per-attempt measurement accumulators and the recovery
// entry point, and publishes every change to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/romkiosk/internal/exercise"
	"github.com/claude/romkiosk/internal/models"
)

// DefaultPersistTimeout bounds one best-effort result save.
const DefaultPersistTimeout = 5 * time.Second

// UserStateStarted is recorded when a session key is minted.
const UserStateStarted = "started"

// Persister stores completed results. Failures are logged by the store and
// never retried.
type Persister interface {
	SaveResult(ctx context.Context, row models.ResultRow) error
	RegisterUser(ctx context.Context, key, state string) error
}

// CollectionSource derives fresh exercise collections.
type CollectionSource interface {
	Collection() models.ExerciseCollection
}

// Snapshot is a point-in-time copy of the session for presentation.
type Snapshot struct {
	AppState             exercise.AppState         `json:"appState"`
	CurrentExerciseIndex int                       `json:"currentExerciseIndex"`
	CurrentExercise      *models.Exercise          `json:"currentExercise"`
	UserKey              string                    `json:"userKey,omitempty"`
	Exercises            models.ExerciseCollection `json:"exercises"`
	Progress             exercise.Progress         `json:"progress"`
	LiveAngle            int                       `json:"liveAngle"`
	AccumulatedAngle     float64                   `json:"accumulatedAngle"`
	PainMomentAngles     []float64                 `json:"painMomentAngles"`
	Recording            bool                      `json:"recording"`
	Path                 string                    `json:"path"`
}

// Options configures a Store.
type Options struct {
	Persister      Persister
	PersistTimeout time.Duration

	// NewUserKey mints session keys; defaults to random UUIDs.
	NewUserKey func() string
}

// Store is the session context passed to every component that reads or
// mutates the session. It is safe for concurrent use.
type Store struct {
	source         CollectionSource
	persister      Persister
	persistTimeout time.Duration
	newUserKey     func() string
	log            *slog.Logger

	// op is held for a whole mutation including delivery of its events, so
	// subscribers see events in the order the changes were applied.
	op sync.Mutex

	mu          sync.Mutex
	machine     *exercise.Machine
	liveAngle   int
	accumulated float64
	pain        []float64
	recording   bool
	game        *models.GameResult

	subMu       sync.RWMutex
	subscribers []func(Event)

	pending sync.WaitGroup
}

// NewStore creates a store in the start state over a collection derived
// from source.
func NewStore(source CollectionSource, opts Options, log *slog.Logger) *Store {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	if opts.NewUserKey == nil {
		opts.NewUserKey = func() string { return uuid.NewString() }
	}
	return &Store{
		source:         source,
		persister:      opts.Persister,
		persistTimeout: opts.PersistTimeout,
		newUserKey:     opts.NewUserKey,
		log:            log,
		machine:        exercise.NewMachine(source.Collection()),
		pain:           []float64{},
	}
}

// Subscribe registers fn for every future event. Events are delivered
// synchronously, in mutation order, outside the state lock. fn may read
// the store but must not mutate it.
func (s *Store) Subscribe(fn func(Event)) {
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.subMu.Unlock()
}

func (s *Store) publish(events ...Event) {
	s.subMu.RLock()
	subs := slices.Clone(s.subscribers)
	s.subMu.RUnlock()
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// resetAttempt clears the per-attempt accumulators. Callers hold s.mu.
func (s *Store) resetAttempt() {
	s.accumulated = 0
	s.pain = []float64{}
	s.recording = false
	s.game = nil
}

func (s *Store) navEvent(t EventType) Event {
	ev := Event{Type: t, Index: s.machine.Index(), Path: pathFor(s.machine)}
	if cur := s.machine.Current(); cur != nil {
		ev.ExerciseID = cur.ID
	}
	return ev
}

// StartExperience mints a new session key and enters the first exercise.
func (s *Store) StartExperience() error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	key := s.newUserKey()
	if err := s.machine.StartExperience(key); err != nil {
		s.mu.Unlock()
		return err
	}
	s.resetAttempt()
	ev := s.navEvent(EventExperienceStarted)
	s.mu.Unlock()

	s.persistAsync("registering user", func(ctx context.Context, p Persister) error {
		return p.RegisterUser(ctx, key, UserStateStarted)
	})
	s.publish(ev)
	return nil
}

// StartCurrentExercise begins a new attempt at the current exercise.
func (s *Store) StartCurrentExercise() error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if err := s.machine.StartCurrent(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.resetAttempt()
	ev := s.navEvent(EventExerciseStarted)
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// StartRecording begins accumulating angles for the current attempt,
// starting the exercise first if needed.
func (s *Store) StartRecording() error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	cur := s.machine.Current()
	if cur == nil {
		s.mu.Unlock()
		return exercise.ErrNoCurrentExercise
	}
	var events []Event
	if cur.Status == models.StatusNotStarted {
		if err := s.machine.StartCurrent(); err != nil {
			s.mu.Unlock()
			return err
		}
		s.resetAttempt()
		events = append(events, s.navEvent(EventExerciseStarted))
	} else if cur.Status != models.StatusInProgress {
		s.mu.Unlock()
		return fmt.Errorf("%w: recording on %s exercise", exercise.ErrInvalidTransition, cur.Status)
	}
	s.recording = true
	ev := s.navEvent(EventRecording)
	ev.Recording = true
	events = append(events, ev)
	s.mu.Unlock()

	s.publish(events...)
	return nil
}

// StopRecording stops accumulating; the accumulated values are kept until
// the attempt ends.
func (s *Store) StopRecording() {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	was := s.recording
	s.recording = false
	ev := s.navEvent(EventRecording)
	s.mu.Unlock()

	if was {
		s.publish(ev)
	}
}

// RecordAngle updates the live angle. While recording, the accumulated
// angle is the attempt's maximum.
func (s *Store) RecordAngle(deg int) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.liveAngle = deg
	if s.recording && float64(deg) > s.accumulated {
		s.accumulated = float64(deg)
	}
	ev := Event{Type: EventAngle, Index: s.machine.Index(), Angle: deg, Recording: s.recording}
	s.mu.Unlock()

	s.publish(ev)
}

// MarkPainMoment records the live angle as painful. It reports false when
// not recording.
func (s *Store) MarkPainMoment() bool {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return false
	}
	s.pain = append(s.pain, float64(s.liveAngle))
	ev := s.navEvent(EventPainMarked)
	ev.Angle = s.liveAngle
	s.mu.Unlock()

	s.publish(ev)
	return true
}

// ReportGameResult stores the outcome of the current game attempt for the
// next CompleteCurrentExercise.
func (s *Store) ReportGameResult(g models.GameResult) {
	s.mu.Lock()
	s.game = &g
	s.mu.Unlock()
}

// CompleteCurrentExercise attaches the attempt's results to the current
// exercise, marks it completed, clears the accumulators and saves the
// result in the background.
func (s *Store) CompleteCurrentExercise() (models.Results, error) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	cur := s.machine.Current()
	if cur == nil {
		s.mu.Unlock()
		return nil, exercise.ErrNoCurrentExercise
	}

	var results models.Results
	switch cur.Type {
	case models.TypeGame:
		g := models.GameResult{}
		if s.game != nil {
			g = *s.game
		}
		results = g
	default:
		results = models.RangeOfMotionResult{
			AchievedAngle: s.accumulated,
			PainAnglesDeg: slices.Clone(s.pain),
		}
	}

	if cur.Status == models.StatusNotStarted {
		if err := s.machine.StartCurrent(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	if err := s.machine.CompleteCurrent(results); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.resetAttempt()
	ev := s.navEvent(EventExerciseCompleted)
	ev.Results = results
	row := models.NewResultRow(cur.ID, s.machine.UserKey(), results)
	s.mu.Unlock()

	s.persistAsync("saving result", func(ctx context.Context, p Persister) error {
		return p.SaveResult(ctx, row)
	})
	s.publish(ev)
	return results, nil
}

// SkipCurrentExercise marks the current exercise skipped.
func (s *Store) SkipCurrentExercise() error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if err := s.machine.SkipCurrent(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.resetAttempt()
	ev := s.navEvent(EventExerciseSkipped)
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// NextExercise advances; past the last exercise it shows the results.
func (s *Store) NextExercise() error {
	return s.navigate(func(m *exercise.Machine) error { return m.Next() })
}

// PreviousExercise steps back, wrapping to the last exercise.
func (s *Store) PreviousExercise() error {
	return s.navigate(func(m *exercise.Machine) error { return m.Previous() })
}

// GoToExercise selects exercise i; it reports false when nothing changed.
func (s *Store) GoToExercise(i int) bool {
	err := s.navigate(func(m *exercise.Machine) error {
		if !m.GoToExercise(i) {
			return errNoop
		}
		return nil
	})
	return err == nil
}

// SetCurrentExercise selects the exercise with the given id.
func (s *Store) SetCurrentExercise(id string) bool {
	s.mu.Lock()
	i := s.machine.IndexOf(id)
	s.mu.Unlock()
	if i < 0 {
		return false
	}
	return s.GoToExercise(i)
}

// ShowResults ends the exercises phase.
func (s *Store) ShowResults() error {
	return s.navigate(func(m *exercise.Machine) error { return m.ShowResults() })
}

var errNoop = errors.New("no change")

func (s *Store) navigate(step func(*exercise.Machine) error) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	if err := step(s.machine); err != nil {
		s.mu.Unlock()
		return err
	}
	s.resetAttempt()
	t := EventExerciseChanged
	if s.machine.State() == exercise.StateResults {
		t = EventResultsShown
	}
	ev := s.navEvent(t)
	s.mu.Unlock()

	s.publish(ev)
	return nil
}

// ResetExperience returns the kiosk to the start state with a freshly
// derived collection, clearing every session field. reason is reported to
// subscribers.
func (s *Store) ResetExperience(reason string) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.machine.Reset(s.source.Collection())
	s.resetAttempt()
	s.liveAngle = 0
	ev := Event{Type: EventExperienceReset, Path: PathStart, Reason: reason, Reload: true}
	s.mu.Unlock()

	s.log.Info("experience reset", "reason", reason)
	s.publish(ev)
}

// CurrentExercise returns a copy of the current exercise, or nil outside
// the exercises phase.
func (s *Store) CurrentExercise() *models.Exercise {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// Snapshot copies the session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		AppState:             s.machine.State(),
		CurrentExerciseIndex: s.machine.Index(),
		CurrentExercise:      s.machine.Current(),
		UserKey:              s.machine.UserKey(),
		Exercises:            s.machine.Exercises(),
		Progress:             s.machine.Progress(),
		LiveAngle:            s.liveAngle,
		AccumulatedAngle:     s.accumulated,
		PainMomentAngles:     slices.Clone(s.pain),
		Recording:            s.recording,
		Path:                 pathFor(s.machine),
	}
}

// persistAsync runs fn against the persister in its own goroutine. Errors
// are logged and dropped.
func (s *Store) persistAsync(what string, fn func(context.Context, Persister) error) {
	if s.persister == nil {
		return
	}
	p := s.persister
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()
		if err := fn(ctx, p); err != nil {
			s.log.Warn(what+" failed", "error", err)
		}
	}()
}

// Wait blocks until in-flight persistence calls finish.
func (s *Store) Wait() {
	s.pending.Wait()
}
