package ingest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lanternworks/vitalsync/internal/database"
	"github.com/lanternworks/vitalsync/internal/owners"
	"github.com/lanternworks/vitalsync/internal/records"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "ingest-test.db")
	db, err := database.OpenSQLite(databasePath, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	ownerService, err := owners.NewService(owners.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build owner service: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Owners: ownerService})
	if err != nil {
		t.Fatalf("failed to build ingest service: %v", err)
	}
	return service
}

func mustUserID(t *testing.T, value string) records.UserID {
	t.Helper()
	id, err := records.NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func testWorkout(uuid string, start time.Time) WorkoutSubmission {
	distance := 5000.0
	energy := 320.0
	return WorkoutSubmission{
		UUID:           uuid,
		WorkoutType:    "running",
		StartedAt:      start,
		EndedAt:        start.Add(30 * time.Minute),
		DistanceMeters: &distance,
		EnergyKcal:     &energy,
		SourceName:     "Watch",
	}
}

func testMetric(uuid string, start time.Time) MetricSubmission {
	return MetricSubmission{
		UUID:       uuid,
		MetricType: "heart_rate",
		Value:      68,
		Unit:       "bpm",
		StartedAt:  start,
		EndedAt:    start,
	}
}

func testRing(date string, moveActual float64) RingSubmission {
	return RingSubmission{
		Date:                  date,
		MoveGoalKcal:          500,
		MoveActualKcal:        moveActual,
		MovePercent:           moveActual / 500 * 100,
		ExerciseGoalMinutes:   30,
		ExerciseActualMinutes: 22,
		ExercisePercent:       73.3,
		StandGoalHours:        12,
		StandActualHours:      9,
		StandPercent:          75,
	}
}
