package ingest

import (
	"time"

	"github.com/lanternworks/vitalsync/internal/records"
)

// recordOutcome classifies what happened to a single record.
type recordOutcome int

const (
	outcomeFailed recordOutcome = iota
	outcomeCreated
	outcomeSkipped
	outcomeUpdated
)

// RecordError identifies one failed record within a batch.
type RecordError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// BatchResult aggregates per-record outcomes for one submitted batch.
// Duplicates and replacements are counted separately from failures.
type BatchResult struct {
	Synced  int           `json:"synced"`
	Skipped int           `json:"skipped"`
	Updated int           `json:"updated"`
	Errors  []RecordError `json:"errors"`
}

// Outcome classifies the batch for response-status mapping.
type Outcome int

const (
	// OutcomeSuccess means no record failed.
	OutcomeSuccess Outcome = iota
	// OutcomePartial means some records failed while others were applied.
	OutcomePartial
	// OutcomeAllFailed means every record in the batch failed.
	OutcomeAllFailed
)

// Outcome derives the batch classification. Skipped duplicates and updates
// count as applied records.
func (r BatchResult) Outcome() Outcome {
	if len(r.Errors) == 0 {
		return OutcomeSuccess
	}
	if r.Synced+r.Skipped+r.Updated == 0 {
		return OutcomeAllFailed
	}
	return OutcomePartial
}

// WorkoutSubmission is one workout record in producer form.
type WorkoutSubmission struct {
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

func (s WorkoutSubmission) toRow(userID records.UserID) (records.Workout, error) {
	uuid, err := records.NewRecordUUID(s.UUID)
	if err != nil {
		return records.Workout{}, err
	}
	metadata, err := records.EncodeMetadata(s.Metadata)
	if err != nil {
		return records.Workout{}, err
	}

	duration := s.EndedAt.Sub(s.StartedAt).Seconds()
	if s.DurationSeconds != nil {
		duration = *s.DurationSeconds
	}

	row := records.Workout{
		UserID:          userID.String(),
		HealthKitUUID:   uuid.String(),
		WorkoutType:     s.WorkoutType,
		StartedAt:       s.StartedAt.UTC(),
		EndedAt:         s.EndedAt.UTC(),
		DurationSeconds: duration,
		DistanceMeters:  s.DistanceMeters,
		EnergyKcal:      s.EnergyKcal,
		AvgHeartRate:    s.AvgHeartRate,
		MaxHeartRate:    s.MaxHeartRate,
		SourceName:      s.SourceName,
		DeviceName:      s.DeviceName,
		MetadataJSON:    metadata,
	}
	if err := row.Validate(); err != nil {
		return records.Workout{}, err
	}
	return row, nil
}

// MetricSubmission is one health metric sample in producer form.
type MetricSubmission struct {
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

func (s MetricSubmission) toRow(userID records.UserID) (records.HealthMetric, error) {
	uuid, err := records.NewRecordUUID(s.UUID)
	if err != nil {
		return records.HealthMetric{}, err
	}
	metadata, err := records.EncodeMetadata(s.Metadata)
	if err != nil {
		return records.HealthMetric{}, err
	}

	row := records.HealthMetric{
		UserID:        userID.String(),
		HealthKitUUID: uuid.String(),
		MetricType:    s.MetricType,
		Value:         s.Value,
		Unit:          s.Unit,
		StartedAt:     s.StartedAt.UTC(),
		EndedAt:       s.EndedAt.UTC(),
		SourceName:    s.SourceName,
		DeviceName:    s.DeviceName,
		MetadataJSON:  metadata,
	}
	if err := row.Validate(); err != nil {
		return records.HealthMetric{}, err
	}
	return row, nil
}

// RingSubmission is one daily activity-ring summary in producer form.
// Percent values are stored verbatim; the producer computes them.
type RingSubmission struct {
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

func (s RingSubmission) toRow(userID records.UserID, now time.Time) (records.ActivityRing, error) {
	if err := records.ValidateRingDate(s.Date); err != nil {
		return records.ActivityRing{}, err
	}
	return records.ActivityRing{
		UserID:                userID.String(),
		RingDate:              s.Date,
		MoveGoalKcal:          s.MoveGoalKcal,
		MoveActualKcal:        s.MoveActualKcal,
		MovePercent:           s.MovePercent,
		ExerciseGoalMinutes:   s.ExerciseGoalMinutes,
		ExerciseActualMinutes: s.ExerciseActualMinutes,
		ExercisePercent:       s.ExercisePercent,
		StandGoalHours:        s.StandGoalHours,
		StandActualHours:      s.StandActualHours,
		StandPercent:          s.StandPercent,
		UpdatedAt:             now,
	}, nil
}
