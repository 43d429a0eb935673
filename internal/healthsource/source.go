// Package healthsource abstracts the upstream health-data producer the sync
// agent extracts from. The agent only sees the Source interface; anchor
// payloads are produced and consumed inside the concrete implementation and
// cross the rest of the system as uninterpreted strings.
package healthsource

import (
	"context"
	"time"

	"github.com/lanternworks/vitalsync/internal/records"
)

// Cursor positions an incremental query. When Anchor is empty the source
// falls back to the Lookback window relative to now.
type Cursor struct {
	Anchor   string
	Lookback time.Duration
}

// WorkoutSample is one workout as reported by the upstream source.
type WorkoutSample struct {
	UUID            string
	WorkoutType     string
	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds *float64
	DistanceMeters  *float64
	EnergyKcal      *float64
	AvgHeartRate    *float64
	MaxHeartRate    *float64
	SourceName      string
	DeviceName      string
	Metadata        map[string]string
	Route           []records.RoutePoint
}

// MetricSample is one health metric sample as reported by the source.
type MetricSample struct {
	UUID       string
	MetricType string
	Value      float64
	Unit       string
	StartedAt  time.Time
	EndedAt    time.Time
	SourceName string
	DeviceName string
	Metadata   map[string]string
}

// RingSample is one day's activity-ring summary as reported by the source.
// Percent values are computed by the source and passed through untouched.
type RingSample struct {
	Date                  string
	MoveGoalKcal          float64
	MoveActualKcal        float64
	MovePercent           float64
	ExerciseGoalMinutes   float64
	ExerciseActualMinutes float64
	ExercisePercent       float64
	StandGoalHours        float64
	StandActualHours      float64
	StandPercent          float64
}

// WorkoutBatch is the result of an incremental workout query. NextAnchor is
// the cursor to persist once the batch has been durably accepted downstream.
type WorkoutBatch struct {
	Workouts   []WorkoutSample
	NextAnchor string
}

// MetricBatch is the result of an incremental metric query.
type MetricBatch struct {
	Metrics    []MetricSample
	NextAnchor string
}

// Source is the upstream health-data producer.
type Source interface {
	// Workouts returns workouts created since the cursor position.
	Workouts(ctx context.Context, cursor Cursor) (WorkoutBatch, error)
	// Metrics returns samples of one metric type created since the cursor position.
	Metrics(ctx context.Context, metricType string, cursor Cursor) (MetricBatch, error)
	// Rings returns daily summaries inside the trailing window. Ring values
	// for the current day change as the day progresses, so there is no
	// cursor: the window is always re-read in full.
	Rings(ctx context.Context, window time.Duration) ([]RingSample, error)
}
