package healthsource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lanternworks/vitalsync/internal/records"
)

// ExportDirSource reads health-export snapshot files dropped into a
// directory by the phone-side export app. Every *.json file holds one
// exportDocument; records can repeat across files, deduplication happens
// downstream at the store.
//
// Its anchor payload is a JSON blob of the newest record timestamp seen.
// The format is private to this package.
type ExportDirSource struct {
	dir   string
	clock func() time.Time
}

// NewExportDirSource constructs a source over the given export directory.
func NewExportDirSource(dir string, clock func() time.Time) (*ExportDirSource, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("healthsource: export directory is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &ExportDirSource{dir: dir, clock: clock}, nil
}

type exportDocument struct {
	ExportedAt time.Time       `json:"exported_at"`
	Workouts   []exportWorkout `json:"workouts"`
	Metrics    []exportMetric  `json:"metrics"`
	Rings      []exportRing    `json:"activity_rings"`
}

type exportWorkout struct {
	HealthKitUUID   string               `json:"healthkit_uuid"`
	WorkoutType     string               `json:"workout_type"`
	StartTime       time.Time            `json:"start_time"`
	EndTime         time.Time            `json:"end_time"`
	DurationSeconds *float64             `json:"duration_s,omitempty"`
	DistanceMeters  *float64             `json:"distance_m,omitempty"`
	EnergyKcal      *float64             `json:"energy_kcal,omitempty"`
	AvgHeartRate    *float64             `json:"avg_heart_rate,omitempty"`
	MaxHeartRate    *float64             `json:"max_heart_rate,omitempty"`
	SourceName      string               `json:"source_name,omitempty"`
	DeviceName      string               `json:"device_name,omitempty"`
	Metadata        map[string]string    `json:"metadata,omitempty"`
	Route           []records.RoutePoint `json:"route,omitempty"`
}

type exportMetric struct {
	HealthKitUUID string            `json:"healthkit_uuid"`
	MetricType    string            `json:"metric_type"`
	Value         float64           `json:"value"`
	Unit          string            `json:"unit"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	SourceName    string            `json:"source_name,omitempty"`
	DeviceName    string            `json:"device_name,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type exportRing struct {
	Date                  string  `json:"date"`
	MoveGoalKcal          float64 `json:"move_goal_kcal"`
	MoveActualKcal        float64 `json:"move_actual_kcal"`
	MovePercent           float64 `json:"move_percent"`
	ExerciseGoalMinutes   float64 `json:"exercise_goal_min"`
	ExerciseActualMinutes float64 `json:"exercise_actual_min"`
	ExercisePercent       float64 `json:"exercise_percent"`
	StandGoalHours        float64 `json:"stand_goal_hours"`
	StandActualHours      float64 `json:"stand_actual_hours"`
	StandPercent          float64 `json:"stand_percent"`
}

// anchorPayload is the private cursor format of this source.
type anchorPayload struct {
	LastSeen time.Time `json:"last_seen"`
}

// cursorStart resolves the cursor to a window start. The second return
// reports whether the position came from a stored anchor: anchored reads are
// inclusive of the boundary, because a record can first appear in a later
// export file with a start time exactly equal to the anchor position, and an
// exclusive filter would drop it forever. Re-returning the boundary records
// is harmless; the store skips them as duplicates.
func (s *ExportDirSource) cursorStart(cursor Cursor) (time.Time, bool, error) {
	if cursor.Anchor != "" {
		var payload anchorPayload
		if err := json.Unmarshal([]byte(cursor.Anchor), &payload); err != nil {
			return time.Time{}, false, fmt.Errorf("healthsource: decode anchor: %w", err)
		}
		return payload.LastSeen, true, nil
	}
	lookback := cursor.Lookback
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	return s.clock().UTC().Add(-lookback), false, nil
}

func inWindow(startTime, start time.Time, anchored bool) bool {
	if anchored {
		return !startTime.Before(start)
	}
	return startTime.After(start)
}

func encodeAnchor(lastSeen time.Time) string {
	encoded, err := json.Marshal(anchorPayload{LastSeen: lastSeen})
	if err != nil {
		return ""
	}
	return string(encoded)
}

// Workouts returns workouts created since the cursor position. An anchored
// cursor includes the boundary itself so nothing is lost between exports.
func (s *ExportDirSource) Workouts(ctx context.Context, cursor Cursor) (WorkoutBatch, error) {
	start, anchored, err := s.cursorStart(cursor)
	if err != nil {
		return WorkoutBatch{}, err
	}

	documents, err := s.readDocuments(ctx)
	if err != nil {
		return WorkoutBatch{}, err
	}

	seen := map[string]struct{}{}
	batch := WorkoutBatch{NextAnchor: cursor.Anchor}
	newest := start
	for _, document := range documents {
		for _, workout := range document.Workouts {
			if !inWindow(workout.StartTime, start, anchored) {
				continue
			}
			if _, ok := seen[workout.HealthKitUUID]; ok {
				continue
			}
			seen[workout.HealthKitUUID] = struct{}{}
			batch.Workouts = append(batch.Workouts, WorkoutSample{
				UUID:            workout.HealthKitUUID,
				WorkoutType:     workout.WorkoutType,
				StartedAt:       workout.StartTime,
				EndedAt:         workout.EndTime,
				DurationSeconds: workout.DurationSeconds,
				DistanceMeters:  workout.DistanceMeters,
				EnergyKcal:      workout.EnergyKcal,
				AvgHeartRate:    workout.AvgHeartRate,
				MaxHeartRate:    workout.MaxHeartRate,
				SourceName:      workout.SourceName,
				DeviceName:      workout.DeviceName,
				Metadata:        workout.Metadata,
				Route:           workout.Route,
			})
			if workout.StartTime.After(newest) {
				newest = workout.StartTime
			}
		}
	}
	sort.Slice(batch.Workouts, func(i, j int) bool {
		return batch.Workouts[i].StartedAt.Before(batch.Workouts[j].StartedAt)
	})
	if len(batch.Workouts) > 0 {
		batch.NextAnchor = encodeAnchor(newest)
	}
	return batch, nil
}

// Metrics returns samples of one metric type created since the cursor
// position, with the same inclusive boundary handling as Workouts.
func (s *ExportDirSource) Metrics(ctx context.Context, metricType string, cursor Cursor) (MetricBatch, error) {
	start, anchored, err := s.cursorStart(cursor)
	if err != nil {
		return MetricBatch{}, err
	}

	documents, err := s.readDocuments(ctx)
	if err != nil {
		return MetricBatch{}, err
	}

	seen := map[string]struct{}{}
	batch := MetricBatch{NextAnchor: cursor.Anchor}
	newest := start
	for _, document := range documents {
		for _, metric := range document.Metrics {
			if metric.MetricType != metricType {
				continue
			}
			if !inWindow(metric.StartTime, start, anchored) {
				continue
			}
			if _, ok := seen[metric.HealthKitUUID]; ok {
				continue
			}
			seen[metric.HealthKitUUID] = struct{}{}
			batch.Metrics = append(batch.Metrics, MetricSample{
				UUID:       metric.HealthKitUUID,
				MetricType: metric.MetricType,
				Value:      metric.Value,
				Unit:       metric.Unit,
				StartedAt:  metric.StartTime,
				EndedAt:    metric.EndTime,
				SourceName: metric.SourceName,
				DeviceName: metric.DeviceName,
				Metadata:   metric.Metadata,
			})
			if metric.StartTime.After(newest) {
				newest = metric.StartTime
			}
		}
	}
	sort.Slice(batch.Metrics, func(i, j int) bool {
		return batch.Metrics[i].StartedAt.Before(batch.Metrics[j].StartedAt)
	})
	if len(batch.Metrics) > 0 {
		batch.NextAnchor = encodeAnchor(newest)
	}
	return batch, nil
}

// Rings returns ring summaries dated inside the trailing window. Later
// export files win when the same date appears more than once, so a re-export
// of today's rings replaces the earlier snapshot.
func (s *ExportDirSource) Rings(ctx context.Context, window time.Duration) ([]RingSample, error) {
	if window <= 0 {
		window = 14 * 24 * time.Hour
	}
	earliest := s.clock().UTC().Add(-window).Format("2006-01-02")

	documents, err := s.readDocuments(ctx)
	if err != nil {
		return nil, err
	}

	byDate := map[string]RingSample{}
	for _, document := range documents {
		for _, ring := range document.Rings {
			if ring.Date < earliest {
				continue
			}
			byDate[ring.Date] = RingSample{
				Date:                  ring.Date,
				MoveGoalKcal:          ring.MoveGoalKcal,
				MoveActualKcal:        ring.MoveActualKcal,
				MovePercent:           ring.MovePercent,
				ExerciseGoalMinutes:   ring.ExerciseGoalMinutes,
				ExerciseActualMinutes: ring.ExerciseActualMinutes,
				ExercisePercent:       ring.ExercisePercent,
				StandGoalHours:        ring.StandGoalHours,
				StandActualHours:      ring.StandActualHours,
				StandPercent:          ring.StandPercent,
			}
		}
	}

	rings := make([]RingSample, 0, len(byDate))
	for _, ring := range byDate {
		rings = append(rings, ring)
	}
	sort.Slice(rings, func(i, j int) bool { return rings[i].Date < rings[j].Date })
	return rings, nil
}

// readDocuments loads every export file in ascending name order, so files
// named by export timestamp replay oldest first.
func (s *ExportDirSource) readDocuments(ctx context.Context) ([]exportDocument, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("healthsource: read export dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	documents := make([]exportDocument, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("healthsource: read export %s: %w", name, err)
		}
		var document exportDocument
		if err := json.Unmarshal(raw, &document); err != nil {
			return nil, fmt.Errorf("healthsource: decode export %s: %w", name, err)
		}
		documents = append(documents, document)
	}
	return documents, nil
}
