package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/claude/romkiosk/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Options{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "kiosk.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

// TestMigrateIsIdempotent verifies migrations can run twice and report the
// applied version.
func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(nil); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	v, dirty, err := db.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if v != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", v, dirty)
	}
}

// TestOpenRejectsUnknownDriver verifies the driver is validated.
func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "mysql"}); err == nil {
		t.Error("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), Options{Driver: DriverSQLite}); err == nil {
		t.Error("expected error for missing sqlite path")
	}
}

// TestResultRoundTrip verifies pain angles survive the JSON string column
// and nullable game columns stay nil for range-of-motion rows.
func TestResultRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rom := models.NewResultRow("shoulder", "key-1", models.RangeOfMotionResult{AchievedAngle: 87, PainAnglesDeg: []float64{40, 65.5}})
	game := models.NewResultRow("game", "key-1", models.GameResult{Score: 12, Accuracy: 0.75, DurationSeconds: 30, HandsDetected: true})

	id1, err := db.InsertResult(ctx, rom)
	if err != nil {
		t.Fatalf("InsertResult: %v", err)
	}
	id2, err := db.InsertResult(ctx, game)
	if err != nil {
		t.Fatalf("InsertResult: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("ids %d, %d not increasing", id1, id2)
	}

	got, err := db.QueryResults(ctx, ResultFilter{})
	if err != nil {
		t.Fatalf("QueryResults: %v", err)
	}
	rom.ID, game.ID = id1, id2
	want := []models.ResultRow{rom, game}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(models.ResultRow{}, "CreatedAt")); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	for _, r := range got {
		if time.Since(r.CreatedAt) > time.Minute {
			t.Errorf("result %d created_at = %v", r.ID, r.CreatedAt)
		}
	}
}

// TestQueryResultsFilters verifies exercise, after-id and limit filters.
func TestQueryResultsFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i, ex := range []string{"a", "b", "a", "a"} {
		row := models.NewResultRow(ex, "", models.RangeOfMotionResult{AchievedAngle: float64(10 * (i + 1))})
		if _, err := db.InsertResult(ctx, row); err != nil {
			t.Fatalf("InsertResult: %v", err)
		}
	}

	got, err := db.QueryResults(ctx, ResultFilter{ExerciseID: "a"})
	if err != nil {
		t.Fatalf("QueryResults: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d results for a, want 3", len(got))
	}

	got, err = db.QueryResults(ctx, ResultFilter{AfterID: 2, Limit: 1})
	if err != nil {
		t.Fatalf("QueryResults: %v", err)
	}
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("after 2 limit 1 = %+v, want id 3", got)
	}

	recent, err := db.RecentResults(ctx, 2)
	if err != nil {
		t.Fatalf("RecentResults: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != 4 {
		t.Errorf("recent = %+v, want ids 4,3", recent)
	}
}

// TestInsertResultRequiresExercise verifies rows without an exercise id are
// rejected.
func TestInsertResultRequiresExercise(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.InsertResult(context.Background(), models.ResultRow{}); err == nil {
		t.Error("expected error")
	}
}

// TestInsertUserUpserts verifies a repeated key updates the state in place.
func TestInsertUserUpserts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.InsertUser(ctx, "key-1", "started")
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	again, err := db.InsertUser(ctx, "key-1", "finished")
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if again.ID != first.ID || again.State != "finished" {
		t.Errorf("upsert = %+v, want id %d state finished", again, first.ID)
	}
	if _, err := db.InsertUser(ctx, "key-2", "started"); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}

	users, err := db.QueryUsers(ctx)
	if err != nil {
		t.Fatalf("QueryUsers: %v", err)
	}
	if len(users) != 2 || users[0].Key != "key-2" {
		t.Errorf("users = %+v", users)
	}
	if _, err := db.InsertUser(ctx, "", "started"); err == nil {
		t.Error("expected error for empty key")
	}
}

// TestResultSummaries verifies max and mean angles per exercise.
func TestResultSummaries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	insert := func(r models.ResultRow) {
		t.Helper()
		if _, err := db.InsertResult(ctx, r); err != nil {
			t.Fatalf("InsertResult: %v", err)
		}
	}
	insert(models.NewResultRow("knee", "", models.RangeOfMotionResult{AchievedAngle: 60, PainAnglesDeg: []float64{30}}))
	insert(models.NewResultRow("knee", "", models.RangeOfMotionResult{AchievedAngle: 90}))
	insert(models.NewResultRow("game", "", models.GameResult{Score: 5}))
	insert(models.NewResultRow("game", "", models.GameResult{Score: 9}))

	got, err := db.ResultSummaries(ctx, "")
	if err != nil {
		t.Fatalf("ResultSummaries: %v", err)
	}
	nine := 9.0
	want := []ExerciseSummary{
		{ExerciseID: "game", Count: 2, MaxScore: &nine},
		{ExerciseID: "knee", Count: 2, MaxAngle: 90, AvgAngle: 75, PainMarks: 1},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(ExerciseSummary{}, "LastAt")); diff != "" {
		t.Errorf("summaries mismatch (-want +got):\n%s", diff)
	}

	stats, err := db.GetDataStats(ctx)
	if err != nil {
		t.Fatalf("GetDataStats: %v", err)
	}
	if stats.TotalResults != 4 || stats.Earliest == nil || stats.Latest == nil {
		t.Errorf("stats = %+v", stats)
	}
}

// TestGetDataStatsEmpty verifies an empty database reports no time range.
func TestGetDataStatsEmpty(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetDataStats(context.Background())
	if err != nil {
		t.Fatalf("GetDataStats: %v", err)
	}
	if stats.TotalResults != 0 || stats.Earliest != nil || len(stats.Exercises) != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestLocalPersister verifies the persister writes through to the database.
func TestLocalPersister(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := LocalPersister{DB: db}
	if err := p.RegisterUser(ctx, "key-9", "started"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if err := p.SaveResult(ctx, models.NewResultRow("elbow", "key-9", models.RangeOfMotionResult{AchievedAngle: 120})); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	got, err := db.QueryResults(ctx, ResultFilter{UserKey: "key-9"})
	if err != nil {
		t.Fatalf("QueryResults: %v", err)
	}
	if len(got) != 1 || got[0].AchievedAngle != 120 {
		t.Errorf("results = %+v", got)
	}
}

// TestRebind verifies placeholder numbering for PostgreSQL.
func TestRebind(t *testing.T) {
	got := rebind("SELECT a FROM t WHERE b = ? AND c > ? LIMIT ?")
	want := "SELECT a FROM t WHERE b = $1 AND c > $2 LIMIT $3"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	if got := pgxURL("postgres://u:p@h:5432/db?sslmode=disable"); got != "pgx5://u:p@h:5432/db?sslmode=disable" {
		t.Errorf("pgxURL = %q", got)
	}
}
