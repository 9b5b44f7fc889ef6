package models

import "time"

// ResultRow is a persisted exercise outcome. Game fields are nil for
// range-of-motion rows and vice versa.
type ResultRow struct {
	ID                  int64     `json:"id"`
	ExerciseID          string    `json:"exerciseId"`
	UserKey             string    `json:"userKey,omitempty"`
	AchievedRepetitions *int      `json:"achievedRepetitions,omitempty"`
	AchievedSeconds     *int      `json:"achievedSeconds,omitempty"`
	AchievedAngle       float64   `json:"achievedAngle"`
	AchievedAccuracy    *float64  `json:"achievedAccuracy,omitempty"`
	AchievedScore       *float64  `json:"achievedScore,omitempty"`
	GameDuration        *int      `json:"gameDuration,omitempty"`
	HandsDetected       *bool     `json:"handsDetected,omitempty"`
	PainAnglesDeg       []float64 `json:"painAnglesDeg"`
	CreatedAt           time.Time `json:"createdAt,omitzero"`
}

// NewResultRow flattens a tagged result into its persisted form.
func NewResultRow(exerciseID, userKey string, r Results) ResultRow {
	row := ResultRow{ExerciseID: exerciseID, UserKey: userKey, PainAnglesDeg: []float64{}}
	switch v := r.(type) {
	case RangeOfMotionResult:
		row.AchievedAngle = v.AchievedAngle
		if v.PainAnglesDeg != nil {
			row.PainAnglesDeg = append([]float64(nil), v.PainAnglesDeg...)
		}
	case GameResult:
		score, acc, dur, hands := v.Score, v.Accuracy, v.DurationSeconds, v.HandsDetected
		row.AchievedScore = &score
		row.AchievedAccuracy = &acc
		row.GameDuration = &dur
		row.AchievedSeconds = &dur
		row.HandsDetected = &hands
	}
	return row
}

// UserRow is a kiosk session registration.
type UserRow struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}
