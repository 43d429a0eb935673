package anchors

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanternworks/vitalsync/internal/database"
	"github.com/lanternworks/vitalsync/internal/records"
)

func newTestService(t *testing.T, clock func() time.Time) *Service {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "anchors-test.db")
	db, err := database.OpenSQLite(databasePath, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to build anchor service: %v", err)
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

func mustDataType(t *testing.T, value string) records.DataType {
	t.Helper()
	dataType, err := records.NewDataType(value)
	if err != nil {
		t.Fatalf("unexpected data type error: %v", err)
	}
	return dataType
}

func TestGetReturnsAbsenceWithoutError(t *testing.T) {
	service := newTestService(t, nil)

	anchor, found, err := service.Get(context.Background(), mustUserID(t, "user-1"), mustDataType(t, "workouts"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected no anchor, got %+v", anchor)
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service := newTestService(t, func() time.Time { return fixed })
	userID := mustUserID(t, "user-1")
	dataType := mustDataType(t, "workouts")

	if _, err := service.Put(context.Background(), userID, dataType, `{"token":"abc"}`); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	anchor, found, err := service.Get(context.Background(), userID, dataType)
	if err != nil || !found {
		t.Fatalf("expected stored anchor, got found=%v err=%v", found, err)
	}
	if anchor.Payload != `{"token":"abc"}` {
		t.Fatalf("unexpected payload: %q", anchor.Payload)
	}
	if !anchor.LastSyncAt.Equal(fixed) {
		t.Fatalf("unexpected last sync time: %v", anchor.LastSyncAt)
	}
}

func TestPutReplacesExistingAnchor(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service := newTestService(t, func() time.Time { return current })
	userID := mustUserID(t, "user-1")
	dataType := mustDataType(t, "heart_rate")

	if _, err := service.Put(context.Background(), userID, dataType, "first"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	current = current.Add(time.Hour)
	if _, err := service.Put(context.Background(), userID, dataType, "second"); err != nil {
		t.Fatalf("unexpected replace error: %v", err)
	}

	anchor, found, err := service.Get(context.Background(), userID, dataType)
	if err != nil || !found {
		t.Fatalf("expected stored anchor, got found=%v err=%v", found, err)
	}
	if anchor.Payload != "second" {
		t.Fatalf("expected replacement payload, got %q", anchor.Payload)
	}
	if !anchor.LastSyncAt.Equal(current) {
		t.Fatalf("expected refreshed timestamp, got %v", anchor.LastSyncAt)
	}
}

func TestAnchorsAreScopedPerPair(t *testing.T) {
	service := newTestService(t, nil)
	userID := mustUserID(t, "user-1")

	if _, err := service.Put(context.Background(), userID, mustDataType(t, "workouts"), "workout-cursor"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if _, err := service.Put(context.Background(), userID, mustDataType(t, "step_count"), "step-cursor"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if _, err := service.Put(context.Background(), mustUserID(t, "user-2"), mustDataType(t, "workouts"), "other-owner"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	anchor, found, err := service.Get(context.Background(), userID, mustDataType(t, "workouts"))
	if err != nil || !found {
		t.Fatalf("expected stored anchor, got found=%v err=%v", found, err)
	}
	if anchor.Payload != "workout-cursor" {
		t.Fatalf("anchor leaked across pairs: %q", anchor.Payload)
	}
}
