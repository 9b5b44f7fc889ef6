// Package upload copies results from a kiosk's local database to a central
// romkiosk server.
package upload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/storage"
)

// Stats tracks upload progress.
type Stats struct {
	ResultsTotal    int
	ResultsUploaded int
	ResultsSkipped  int
	ResultsErrored  int
}

// Source is the local side of the sync.
type Source interface {
	QueryResults(ctx context.Context, f storage.ResultFilter) ([]models.ResultRow, error)
}

// Sender is the remote side of the sync.
type Sender interface {
	CreateResult(ctx context.Context, row models.ResultRow) (int64, error)
}

// Uploader sends every result the state database has not seen yet.
type Uploader struct {
	source    Source
	sender    Sender
	state     *StateDB
	name      string
	dryRun    bool
	batchSize int
	log       *slog.Logger
	stats     Stats
}

// New creates an Uploader. name identifies the source database in the
// state DB; sender may be nil in dry-run mode.
func New(source Source, sender Sender, state *StateDB, name string, dryRun bool, batchSize int, log *slog.Logger) *Uploader {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Uploader{
		source:    source,
		sender:    sender,
		state:     state,
		name:      name,
		dryRun:    dryRun,
		batchSize: batchSize,
		log:       log,
	}
}

// Run pages through local results in id order. A result that fails to
// upload is counted and retried on the next run; later results still go.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	after := int64(0)
	for {
		batch, err := u.source.QueryResults(ctx, storage.ResultFilter{AfterID: after, Limit: u.batchSize})
		if err != nil {
			return &u.stats, fmt.Errorf("reading local results: %w", err)
		}
		if len(batch) == 0 {
			return &u.stats, nil
		}
		for _, row := range batch {
			if err := ctx.Err(); err != nil {
				return &u.stats, err
			}
			u.stats.ResultsTotal++
			if err := u.uploadOne(ctx, row); err != nil {
				u.stats.ResultsErrored++
				u.log.Warn("uploading result failed", "id", row.ID, "exercise", row.ExerciseID, "error", err)
			}
			after = row.ID
		}
	}
}

func (u *Uploader) uploadOne(ctx context.Context, row models.ResultRow) error {
	done, err := u.state.IsUploaded(u.name, row.ID)
	if err != nil {
		return fmt.Errorf("checking state: %w", err)
	}
	if done {
		u.stats.ResultsSkipped++
		return nil
	}
	if u.dryRun {
		u.log.Info("would upload", "id", row.ID, "exercise", row.ExerciseID, "angle", row.AchievedAngle)
		return nil
	}

	localID := row.ID
	row.ID = 0
	remoteID, err := u.sender.CreateResult(ctx, row)
	if err != nil {
		return err
	}
	if err := u.state.MarkUploaded(u.name, localID, remoteID); err != nil {
		return fmt.Errorf("recording upload: %w", err)
	}
	u.stats.ResultsUploaded++
	return nil
}
