package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/claude/romkiosk/internal/models"
)

// ResultFilter narrows QueryResults. Zero values match everything.
type ResultFilter struct {
	ExerciseID string
	UserKey    string
	AfterID    int64
	Limit      int
}

const resultColumns = `id, exercise_id, user_key, achieved_repetitions, achieved_seconds,
	achieved_angle, achieved_accuracy, achieved_score, game_duration, hands_detected,
	pain_angles_deg, created_at`

// InsertResult stores one exercise outcome and returns its id. The pain
// angles are stored as a JSON array string.
func (db *DB) InsertResult(ctx context.Context, r models.ResultRow) (int64, error) {
	if r.ExerciseID == "" {
		return 0, fmt.Errorf("exerciseId is required")
	}
	pain := r.PainAnglesDeg
	if pain == nil {
		pain = []float64{}
	}
	painJSON, err := json.Marshal(pain)
	if err != nil {
		return 0, fmt.Errorf("encoding pain angles: %w", err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	var id int64
	err = db.conn.queryRow(ctx, `
		INSERT INTO results (exercise_id, user_key, achieved_repetitions, achieved_seconds,
			achieved_angle, achieved_accuracy, achieved_score, game_duration, hands_detected,
			pain_angles_deg, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		r.ExerciseID, r.UserKey, r.AchievedRepetitions, r.AchievedSeconds,
		r.AchievedAngle, r.AchievedAccuracy, r.AchievedScore, r.GameDuration, r.HandsDetected,
		string(painJSON), db.timeArg(created),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting result: %w", err)
	}
	return id, nil
}

// QueryResults returns results in id order, oldest first.
func (db *DB) QueryResults(ctx context.Context, f ResultFilter) ([]models.ResultRow, error) {
	var (
		where []string
		args  []any
	)
	if f.ExerciseID != "" {
		where = append(where, "exercise_id = ?")
		args = append(args, f.ExerciseID)
	}
	if f.UserKey != "" {
		where = append(where, "user_key = ?")
		args = append(args, f.UserKey)
	}
	if f.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, f.AfterID)
	}

	q := "SELECT " + resultColumns + " FROM results"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rs, err := db.conn.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rs.Close()

	out := []models.ResultRow{}
	for rs.Next() {
		r, err := scanResult(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return out, nil
}

// RecentResults returns the newest results, newest first.
func (db *DB) RecentResults(ctx context.Context, limit int) ([]models.ResultRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rs, err := db.conn.query(ctx,
		"SELECT "+resultColumns+" FROM results ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent results: %w", err)
	}
	defer rs.Close()

	out := []models.ResultRow{}
	for rs.Next() {
		r, err := scanResult(rs)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

func scanResult(s row) (models.ResultRow, error) {
	var (
		r       models.ResultRow
		pain    string
		created timestamp
	)
	err := s.Scan(&r.ID, &r.ExerciseID, &r.UserKey, &r.AchievedRepetitions, &r.AchievedSeconds,
		&r.AchievedAngle, &r.AchievedAccuracy, &r.AchievedScore, &r.GameDuration, &r.HandsDetected,
		&pain, &created)
	if err != nil {
		return r, fmt.Errorf("scanning result: %w", err)
	}
	r.CreatedAt = created.Time
	r.PainAnglesDeg = []float64{}
	if pain != "" {
		if err := json.Unmarshal([]byte(pain), &r.PainAnglesDeg); err != nil {
			return r, fmt.Errorf("decoding pain angles of result %d: %w", r.ID, err)
		}
	}
	return r, nil
}
