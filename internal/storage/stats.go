package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ExerciseSummary aggregates the stored results of one exercise.
type ExerciseSummary struct {
	ExerciseID string    `json:"exercise_id"`
	Count      int       `json:"count"`
	MaxAngle   float64   `json:"max_angle"`
	AvgAngle   float64   `json:"avg_angle"`
	MaxScore   *float64  `json:"max_score,omitempty"`
	PainMarks  int       `json:"pain_marks"`
	LastAt     time.Time `json:"last_at"`
}

// DataStats holds aggregate statistics about everything stored.
type DataStats struct {
	TotalResults int64             `json:"total_results"`
	TotalUsers   int64             `json:"total_users"`
	Earliest     *time.Time        `json:"earliest,omitempty"`
	Latest       *time.Time        `json:"latest,omitempty"`
	Exercises    []ExerciseSummary `json:"exercises"`
}

// ResultSummaries returns per-exercise summaries, ordered by exercise id.
// An empty exerciseID summarizes every exercise.
func (db *DB) ResultSummaries(ctx context.Context, exerciseID string) ([]ExerciseSummary, error) {
	rows, err := db.QueryResults(ctx, ResultFilter{ExerciseID: exerciseID})
	if err != nil {
		return nil, err
	}

	angles := map[string][]float64{}
	byID := map[string]*ExerciseSummary{}
	for _, r := range rows {
		s, ok := byID[r.ExerciseID]
		if !ok {
			s = &ExerciseSummary{ExerciseID: r.ExerciseID}
			byID[r.ExerciseID] = s
		}
		s.Count++
		s.PainMarks += len(r.PainAnglesDeg)
		if r.CreatedAt.After(s.LastAt) {
			s.LastAt = r.CreatedAt
		}
		if r.AchievedScore != nil && (s.MaxScore == nil || *r.AchievedScore > *s.MaxScore) {
			score := *r.AchievedScore
			s.MaxScore = &score
		}
		angles[r.ExerciseID] = append(angles[r.ExerciseID], r.AchievedAngle)
	}

	out := make([]ExerciseSummary, 0, len(byID))
	for id, s := range byID {
		a := angles[id]
		s.MaxAngle = floats.Max(a)
		s.AvgAngle = stat.Mean(a, nil)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExerciseID < out[j].ExerciseID })
	return out, nil
}

// GetDataStats returns totals and per-exercise summaries.
func (db *DB) GetDataStats(ctx context.Context) (*DataStats, error) {
	stats := &DataStats{}

	var first, last timestamp
	err := db.conn.queryRow(ctx, `
		SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM results`).Scan(&stats.TotalResults, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("counting results: %w", err)
	}
	if !first.IsZero() {
		stats.Earliest = &first.Time
	}
	if !last.IsZero() {
		stats.Latest = &last.Time
	}

	if err := db.conn.queryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	stats.Exercises, err = db.ResultSummaries(ctx, "")
	if err != nil {
		return nil, err
	}
	return stats, nil
}
