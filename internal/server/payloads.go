package server

import (
	"time"

	"github.com/lanternworks/vitalsync/internal/ingest"
	"github.com/lanternworks/vitalsync/internal/records"
)

// workoutPayload is the wire form of one workout record. Timestamps are
// ISO-8601; optional numeric fields are omitted when absent.
type workoutPayload struct {
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

func (p workoutPayload) toSubmission() ingest.WorkoutSubmission {
	return ingest.WorkoutSubmission{
		UUID:            p.HealthKitUUID,
		WorkoutType:     p.WorkoutType,
		StartedAt:       p.StartTime,
		EndedAt:         p.EndTime,
		DurationSeconds: p.DurationSeconds,
		DistanceMeters:  p.DistanceMeters,
		EnergyKcal:      p.EnergyKcal,
		AvgHeartRate:    p.AvgHeartRate,
		MaxHeartRate:    p.MaxHeartRate,
		SourceName:      p.SourceName,
		DeviceName:      p.DeviceName,
		Metadata:        p.Metadata,
		Route:           p.Route,
	}
}

// metricPayload is the wire form of one health metric sample.
type metricPayload struct {
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

func (p metricPayload) toSubmission() ingest.MetricSubmission {
	return ingest.MetricSubmission{
		UUID:       p.HealthKitUUID,
		MetricType: p.MetricType,
		Value:      p.Value,
		Unit:       p.Unit,
		StartedAt:  p.StartTime,
		EndedAt:    p.EndTime,
		SourceName: p.SourceName,
		DeviceName: p.DeviceName,
		Metadata:   p.Metadata,
	}
}

// ringPayload is the wire form of one daily activity-ring summary. Percent
// values arrive precomputed by the producer and are stored verbatim.
type ringPayload struct {
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

func (p ringPayload) toSubmission() ingest.RingSubmission {
	return ingest.RingSubmission{
		Date:                  p.Date,
		MoveGoalKcal:          p.MoveGoalKcal,
		MoveActualKcal:        p.MoveActualKcal,
		MovePercent:           p.MovePercent,
		ExerciseGoalMinutes:   p.ExerciseGoalMinutes,
		ExerciseActualMinutes: p.ExerciseActualMinutes,
		ExercisePercent:       p.ExercisePercent,
		StandGoalHours:        p.StandGoalHours,
		StandActualHours:      p.StandActualHours,
		StandPercent:          p.StandPercent,
	}
}
