package mcp

import (
	"context"

	"github.com/claude/romkiosk/internal/exercise"
	"github.com/claude/romkiosk/internal/models"
	"github.com/claude/romkiosk/internal/storage"
)

// DataSource abstracts the results store for MCP tools. Both *storage.DB
// (local) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	QueryResults(ctx context.Context, f storage.ResultFilter) ([]models.ResultRow, error)
	RecentResults(ctx context.Context, limit int) ([]models.ResultRow, error)
	ResultSummaries(ctx context.Context, exerciseID string) ([]storage.ExerciseSummary, error)
}

// ExerciseSource lists the configured exercises.
type ExerciseSource interface {
	Exercises(ctx context.Context) (models.ExerciseCollection, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)

// CatalogSource serves exercises from a local catalog file.
type CatalogSource struct {
	Catalog *exercise.Catalog
}

func (c CatalogSource) Exercises(context.Context) (models.ExerciseCollection, error) {
	return c.Catalog.Collection(), nil
}
