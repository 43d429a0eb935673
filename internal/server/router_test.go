package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lanternworks/vitalsync/internal/anchors"
	"github.com/lanternworks/vitalsync/internal/dashboard"
	"github.com/lanternworks/vitalsync/internal/database"
	"github.com/lanternworks/vitalsync/internal/ingest"
	"github.com/lanternworks/vitalsync/internal/owners"
)

const testAPIKey = "test-shared-secret"

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	databasePath := filepath.Join(t.TempDir(), "server-test.db")
	db, err := database.OpenSQLite(databasePath, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	ownerService, err := owners.NewService(owners.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build owner service: %v", err)
	}
	ingestService, err := ingest.NewService(ingest.ServiceConfig{Database: db, Owners: ownerService})
	if err != nil {
		t.Fatalf("failed to build ingest service: %v", err)
	}
	anchorService, err := anchors.NewService(anchors.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build anchor service: %v", err)
	}
	dashboardService, err := dashboard.NewService(dashboard.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build dashboard service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		IngestService:    ingestService,
		AnchorService:    anchorService,
		DashboardService: dashboardService,
		OwnerService:     ownerService,
		APIKey:           testAPIKey,
		DefaultOwner:     "default",
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func performJSON(t *testing.T, handler http.Handler, method, target, apiKey string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, target, reader)
	request.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		request.Header.Set(APIKeyHeader, apiKey)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return body
}

func workoutBody(uuids ...string) map[string]interface{} {
	workouts := make([]map[string]interface{}, 0, len(uuids))
	start := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	for i, uuid := range uuids {
		workoutStart := start.Add(time.Duration(i) * time.Hour)
		workouts = append(workouts, map[string]interface{}{
			"healthkit_uuid": uuid,
			"workout_type":   "running",
			"start_time":     workoutStart.Format(time.RFC3339),
			"end_time":       workoutStart.Add(30 * time.Minute).Format(time.RFC3339),
		})
	}
	return map[string]interface{}{"owner": "default", "workouts": workouts}
}

func TestHealthRequiresNoAuth(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodGet, "/health", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestMissingAPIKeyIsUnauthorized(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", "", workoutBody("w-1"))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["error"] != "missing_api_key" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestWrongAPIKeyIsForbidden(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", "wrong-secret", workoutBody("w-1"))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["error"] != "invalid_api_key" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSubmitWorkoutsFullSuccess(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, workoutBody("w-1", "w-2"))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["synced"] != float64(2) || body["skipped"] != float64(0) {
		t.Fatalf("unexpected body: %v", body)
	}
	if errorsField, ok := body["errors"].([]interface{}); !ok || len(errorsField) != 0 {
		t.Fatalf("expected empty errors array, got %v", body["errors"])
	}
}

func TestSubmitWorkoutsDuplicateIsStill200(t *testing.T) {
	handler := newTestHandler(t)

	if recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, workoutBody("w-1")); recorder.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", recorder.Code)
	}
	recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, workoutBody("w-1"))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for all-duplicates batch, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["synced"] != float64(0) || body["skipped"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSubmitWorkoutsPartialFailureIs207(t *testing.T) {
	handler := newTestHandler(t)

	payload := workoutBody("w-good")
	start := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	payload["workouts"] = append(payload["workouts"].([]map[string]interface{}), map[string]interface{}{
		"healthkit_uuid": "w-bad",
		"workout_type":   "running",
		"start_time":     start.Format(time.RFC3339),
		"end_time":       start.Add(-time.Hour).Format(time.RFC3339),
	})

	recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, payload)
	if recorder.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["synced"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
	errorsField, ok := body["errors"].([]interface{})
	if !ok || len(errorsField) != 1 {
		t.Fatalf("expected one record error, got %v", body["errors"])
	}
}

func TestSubmitWorkoutsAllFailedIs500(t *testing.T) {
	handler := newTestHandler(t)

	start := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	payload := map[string]interface{}{
		"owner": "default",
		"workouts": []map[string]interface{}{{
			"healthkit_uuid": "w-bad",
			"workout_type":   "running",
			"start_time":     start.Format(time.RFC3339),
			"end_time":       start.Add(-time.Hour).Format(time.RFC3339),
		}},
	}
	recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, payload)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
}

func TestSubmitWorkoutsEmptyBatchIs400(t *testing.T) {
	handler := newTestHandler(t)

	payload := map[string]interface{}{"owner": "default", "workouts": []map[string]interface{}{}}
	recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, payload)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if body := decodeBody(t, recorder); body["error"] != "empty_batch" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSubmitWorkoutsMalformedJSONIs400(t *testing.T) {
	handler := newTestHandler(t)

	request := httptest.NewRequest(http.MethodPost, "/sync/workouts", bytes.NewReader([]byte("{not json")))
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(APIKeyHeader, testAPIKey)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestSubmitMetrics(t *testing.T) {
	handler := newTestHandler(t)

	start := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	payload := map[string]interface{}{
		"owner": "default",
		"metrics": []map[string]interface{}{{
			"healthkit_uuid": "m-1",
			"metric_type":    "heart_rate",
			"value":          68,
			"unit":           "bpm",
			"start_time":     start.Format(time.RFC3339),
			"end_time":       start.Format(time.RFC3339),
		}},
	}
	recorder := performJSON(t, handler, http.MethodPost, "/sync/health-metrics", testAPIKey, payload)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if body := decodeBody(t, recorder); body["synced"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSubmitRingsReplaceCountsAsUpdated(t *testing.T) {
	handler := newTestHandler(t)

	ringsPayload := func(moveActual float64) map[string]interface{} {
		return map[string]interface{}{
			"owner": "default",
			"activity_rings": []map[string]interface{}{{
				"date":             "2025-03-10",
				"move_goal_kcal":   500,
				"move_actual_kcal": moveActual,
				"move_percent":     moveActual / 5,
			}},
		}
	}

	if recorder := performJSON(t, handler, http.MethodPost, "/sync/activity-rings", testAPIKey, ringsPayload(300)); recorder.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", recorder.Code)
	}
	recorder := performJSON(t, handler, http.MethodPost, "/sync/activity-rings", testAPIKey, ringsPayload(450))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["updated"] != float64(1) || body["synced"] != float64(0) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAnchorPutThenGet(t *testing.T) {
	handler := newTestHandler(t)

	putPayload := map[string]interface{}{
		"owner":       "default",
		"data_type":   "workouts",
		"anchor_data": `{"token":"abc"}`,
	}
	recorder := performJSON(t, handler, http.MethodPost, "/sync/anchors", testAPIKey, putPayload)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performJSON(t, handler, http.MethodGet, "/sync/anchors/default/workouts", testAPIKey, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["anchor_data"] != `{"token":"abc"}` {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["data_type"] != "workouts" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAnchorAbsenceIs404(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodGet, "/sync/anchors/default/workouts", testAPIKey, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestDashboardRecentDefaults(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodGet, "/dashboard/recent", testAPIKey, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty window, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["days"] != float64(dashboard.DefaultWindowDays) {
		t.Fatalf("expected default window, got %v", body["days"])
	}
	if workouts, ok := body["workouts"].([]interface{}); !ok || len(workouts) != 0 {
		t.Fatalf("expected empty workout list, got %v", body["workouts"])
	}
}

func TestDashboardRecentInvalidDays(t *testing.T) {
	handler := newTestHandler(t)

	for _, days := range []string{"0", "-1", "91", "abc"} {
		recorder := performJSON(t, handler, http.MethodGet, "/dashboard/recent?days="+days, testAPIKey, nil)
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("days=%s: expected 400, got %d", days, recorder.Code)
		}
	}
}

func TestWorkoutDetailEndToEnd(t *testing.T) {
	handler := newTestHandler(t)

	if recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, workoutBody("w-detail")); recorder.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", recorder.Code)
	}

	recorder := performJSON(t, handler, http.MethodGet, "/workout/w-detail", testAPIKey, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["healthkit_uuid"] != "w-detail" || body["workout_type"] != "running" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestWorkoutDetailNotFound(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodGet, "/workout/missing", testAPIKey, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestWorkoutRouteEndToEnd(t *testing.T) {
	handler := newTestHandler(t)

	start := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	payload := map[string]interface{}{
		"owner": "default",
		"workouts": []map[string]interface{}{{
			"healthkit_uuid": "w-route",
			"workout_type":   "running",
			"start_time":     start.Format(time.RFC3339),
			"end_time":       start.Add(30 * time.Minute).Format(time.RFC3339),
			"route": []map[string]interface{}{
				{"lat": 41.88, "lon": -87.63, "timestamp": start.Format(time.RFC3339)},
				{"lat": 41.90, "lon": -87.61, "timestamp": start.Add(time.Minute).Format(time.RFC3339)},
			},
		}},
	}
	if recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, payload); recorder.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", recorder.Code)
	}

	recorder := performJSON(t, handler, http.MethodGet, "/workout/w-route/route", testAPIKey, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["point_count"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["min_latitude"] != 41.88 || body["max_longitude"] != -87.61 {
		t.Fatalf("unexpected bounds: %v", body)
	}
}

func TestWorkoutRouteMissingIs404(t *testing.T) {
	handler := newTestHandler(t)

	if recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, workoutBody("w-indoor")); recorder.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", recorder.Code)
	}
	recorder := performJSON(t, handler, http.MethodGet, "/workout/w-indoor/route", testAPIKey, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestDeleteOwnerCascades(t *testing.T) {
	handler := newTestHandler(t)

	if recorder := performJSON(t, handler, http.MethodPost, "/sync/workouts", testAPIKey, workoutBody("w-1")); recorder.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", recorder.Code)
	}

	recorder := performJSON(t, handler, http.MethodDelete, "/owners/default", testAPIKey, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = performJSON(t, handler, http.MethodGet, "/workout/w-1", testAPIKey, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected workout gone after owner deletion, got %d", recorder.Code)
	}
}

func TestDeleteUnknownOwnerIs404(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodDelete, "/owners/nobody", testAPIKey, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestMissingDependenciesRejected(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatal("expected dependency validation error")
	}
	if _, err := NewHTTPHandler(Dependencies{APIKey: "secret"}); err == nil {
		t.Fatal("expected dependency validation error")
	}
}
