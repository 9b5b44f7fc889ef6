package exercise

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/claude/romkiosk/internal/models"
)

// reloadDelay coalesces the burst of events editors emit on save.
const reloadDelay = 500 * time.Millisecond

type catalogFile struct {
	Exercises []catalogEntry `yaml:"exercises"`
}

type catalogEntry struct {
	models.Exercise `yaml:",inline"`
	Side            string             `yaml:"side"`
	Joint           *models.JointQuery `yaml:"joint"`
}

// defaultJoints maps a body category to the right-side pivot and point.
// Left-side variants use the mirrored landmarks.
var defaultJoints = map[string][2]models.JointQuery{
	"shoulder": {
		{Pivot: models.RightShoulder, Point: models.RightElbow},
		{Pivot: models.LeftShoulder, Point: models.LeftElbow},
	},
	"elbow": {
		{Pivot: models.RightElbow, Point: models.RightWrist},
		{Pivot: models.LeftElbow, Point: models.LeftWrist},
	},
	"hip": {
		{Pivot: models.RightHip, Point: models.RightKnee},
		{Pivot: models.LeftHip, Point: models.LeftKnee},
	},
	"knee": {
		{Pivot: models.RightKnee, Point: models.RightAnkle},
		{Pivot: models.LeftKnee, Point: models.LeftAnkle},
	},
	"wrist": {
		{Pivot: models.RightWrist, Point: models.RightIndex},
		{Pivot: models.LeftWrist, Point: models.LeftIndex},
	},
}

// ParseCatalog decodes and validates a YAML exercise list.
func ParseCatalog(data []byte) (models.ExerciseCollection, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing exercise catalog: %w", err)
	}
	if len(f.Exercises) == 0 {
		return nil, fmt.Errorf("exercise catalog has no exercises")
	}

	seen := make(map[string]bool, len(f.Exercises))
	out := make(models.ExerciseCollection, 0, len(f.Exercises))
	for i, entry := range f.Exercises {
		e, err := entry.resolve()
		if err != nil {
			return nil, fmt.Errorf("exercise %d: %w", i, err)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("exercise %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out, nil
}

func (c catalogEntry) resolve() (models.Exercise, error) {
	e := c.Exercise
	if e.ID == "" {
		return e, fmt.Errorf("id is required")
	}
	if e.Name == "" {
		e.Name = e.ID
	}
	if e.Type == "" {
		e.Type = models.TypeRangeOfMotion
	}
	if !e.Type.Valid() {
		return e, fmt.Errorf("%s: unknown type %q", e.ID, e.Type)
	}

	switch e.GoalType {
	case models.GoalRepetitions, models.GoalDuration:
	case "":
		e.GoalType = models.GoalRepetitions
		if e.RepetitionsGoal == nil && e.DurationSecondsGoal != nil {
			e.GoalType = models.GoalDuration
		}
	default:
		return e, fmt.Errorf("%s: unknown goal_type %q", e.ID, e.GoalType)
	}

	if c.Joint != nil {
		e.Joint = *c.Joint
	} else if e.Type == models.TypeRangeOfMotion {
		joints, ok := defaultJoints[strings.ToLower(e.Category)]
		if !ok {
			return e, fmt.Errorf("%s: joint is required for category %q", e.ID, e.Category)
		}
		switch strings.ToLower(c.Side) {
		case "", "right":
			e.Joint = joints[0]
		case "left":
			e.Joint = joints[1]
		default:
			return e, fmt.Errorf("%s: unknown side %q", e.ID, c.Side)
		}
	}
	if e.Type == models.TypeRangeOfMotion && !e.Joint.Valid(models.PoseLandmarkCount) {
		return e, fmt.Errorf("%s: joint %d/%d outside pose landmarks", e.ID, e.Joint.Pivot, e.Joint.Point)
	}

	e.Status = models.StatusNotStarted
	e.Results = nil
	return e, nil
}

// Catalog is the static exercise configuration. A file-backed catalog can
// be reloaded; the new list applies to collections derived afterwards.
type Catalog struct {
	path string

	mu        sync.RWMutex
	exercises models.ExerciseCollection
}

// NewCatalog wraps an in-memory collection.
func NewCatalog(c models.ExerciseCollection) *Catalog {
	return &Catalog{exercises: c.Clone()}
}

// LoadCatalog reads and validates the catalog file at path.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog file. On error the previous list is kept.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("reading exercise catalog: %w", err)
	}
	exercises, err := ParseCatalog(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.exercises = exercises
	c.mu.Unlock()
	return nil
}

// Collection returns a fresh collection: every status not_started and no
// results.
func (c *Catalog) Collection() models.ExerciseCollection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exercises.Clone()
}

// Watch reloads the catalog whenever its file changes, until ctx is done.
// onReload, if set, receives each successfully loaded collection.
func (c *Catalog) Watch(ctx context.Context, log *slog.Logger, onReload func(models.ExerciseCollection)) error {
	if c.path == "" {
		return fmt.Errorf("catalog has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating catalog watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(c.path)
	if err != nil {
		return fmt.Errorf("resolving catalog path: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching catalog: %w", err)
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer.Reset(reloadDelay)
		case <-timer.C:
			if err := c.Reload(); err != nil {
				log.Error("reloading exercise catalog", "path", c.path, "error", err)
				continue
			}
			log.Info("exercise catalog reloaded", "path", c.path)
			if onReload != nil {
				onReload(c.Collection())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("catalog watcher error", "error", err)
		}
	}
}
