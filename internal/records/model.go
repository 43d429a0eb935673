package records

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

const (
	minPlausibleHeartRate = 20
	maxPlausibleHeartRate = 250
)

var (
	// ErrInvalidUserID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("records: invalid user id")
	// ErrInvalidRecordUUID indicates that an externally assigned record identifier is unusable.
	ErrInvalidRecordUUID = errors.New("records: invalid record uuid")
	// ErrInvalidDataType indicates that a sync data-type label is empty or exceeds storage bounds.
	ErrInvalidDataType = errors.New("records: invalid data type")
	// ErrInvalidTimeRange indicates that a record ends before it starts.
	ErrInvalidTimeRange = errors.New("records: end precedes start")
	// ErrNegativeDuration indicates an explicitly provided negative duration.
	ErrNegativeDuration = errors.New("records: negative duration")
	// ErrImplausibleHeartRate indicates a heart rate outside the accepted range.
	ErrImplausibleHeartRate = errors.New("records: heart rate outside plausible range")
)

// UserID represents a validated owner identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// RecordUUID represents a validated externally assigned record identifier.
// The upstream source owns the format; only emptiness and length are checked.
type RecordUUID string

// NewRecordUUID validates raw input and returns a RecordUUID.
func NewRecordUUID(rawInput string) (RecordUUID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRecordUUID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRecordUUID, maxIdentifierLength)
	}
	return RecordUUID(trimmed), nil
}

// String returns the underlying string identifier.
func (id RecordUUID) String() string {
	return string(id)
}

// DataType represents a validated sync data-type label, e.g. "workouts" or "heart_rate".
type DataType string

// NewDataType validates raw input and returns a DataType.
func NewDataType(rawInput string) (DataType, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDataType)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDataType, maxIdentifierLength)
	}
	return DataType(trimmed), nil
}

// String returns the underlying string label.
func (dt DataType) String() string {
	return string(dt)
}

// Workout models a persisted workout session. Rows are append-only; the
// (user_id, healthkit_uuid) pair is the deduplication key.
type Workout struct {
	ID              uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_workouts_user_uuid,priority:1;index:idx_workouts_user_started,priority:1"`
	HealthKitUUID   string    `gorm:"column:healthkit_uuid;size:190;not null;uniqueIndex:idx_workouts_user_uuid,priority:2"`
	WorkoutType     string    `gorm:"column:workout_type;size:120;not null"`
	StartedAt       time.Time `gorm:"column:started_at;not null;index:idx_workouts_user_started,priority:2"`
	EndedAt         time.Time `gorm:"column:ended_at;not null"`
	DurationSeconds float64   `gorm:"column:duration_s;not null"`
	DistanceMeters  *float64  `gorm:"column:distance_m"`
	EnergyKcal      *float64  `gorm:"column:energy_kcal"`
	AvgHeartRate    *float64  `gorm:"column:avg_heart_rate"`
	MaxHeartRate    *float64  `gorm:"column:max_heart_rate"`
	SourceName      string    `gorm:"column:source_name;size:190;not null;default:''"`
	DeviceName      string    `gorm:"column:device_name;size:190;not null;default:''"`
	MetadataJSON    string    `gorm:"column:metadata_json;type:text;not null;default:''"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Workout) TableName() string {
	return "workouts"
}

// Validate enforces the workout time-range and plausibility invariants.
func (w Workout) Validate() error {
	if w.EndedAt.Before(w.StartedAt) {
		return fmt.Errorf("%w: %s before %s", ErrInvalidTimeRange, w.EndedAt.Format(time.RFC3339), w.StartedAt.Format(time.RFC3339))
	}
	if w.DurationSeconds < 0 {
		return fmt.Errorf("%w: %f", ErrNegativeDuration, w.DurationSeconds)
	}
	for _, rate := range []*float64{w.AvgHeartRate, w.MaxHeartRate} {
		if rate == nil {
			continue
		}
		if *rate < minPlausibleHeartRate || *rate > maxPlausibleHeartRate {
			return fmt.Errorf("%w: %f", ErrImplausibleHeartRate, *rate)
		}
	}
	return nil
}

// WorkoutRoute stores the GPS trace owned by exactly one workout. Created in
// the same transaction as its parent and never updated afterwards.
type WorkoutRoute struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	WorkoutID    uint      `gorm:"column:workout_id;not null;uniqueIndex:idx_routes_workout"`
	PointsJSON   string    `gorm:"column:points_json;type:text;not null"`
	PointCount   int       `gorm:"column:point_count;not null"`
	MinLatitude  float64   `gorm:"column:min_latitude;not null"`
	MaxLatitude  float64   `gorm:"column:max_latitude;not null"`
	MinLongitude float64   `gorm:"column:min_longitude;not null"`
	MaxLongitude float64   `gorm:"column:max_longitude;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (WorkoutRoute) TableName() string {
	return "workout_routes"
}

// HealthMetric models a single time-series health sample. Rows are
// append-only; the (user_id, healthkit_uuid) pair is the deduplication key.
type HealthMetric struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_metrics_user_uuid,priority:1;index:idx_metrics_user_type_start,priority:1"`
	HealthKitUUID string    `gorm:"column:healthkit_uuid;size:190;not null;uniqueIndex:idx_metrics_user_uuid,priority:2"`
	MetricType    string    `gorm:"column:metric_type;size:120;not null;index:idx_metrics_user_type_start,priority:2"`
	Value         float64   `gorm:"column:value;not null"`
	Unit          string    `gorm:"column:unit;size:64;not null"`
	StartedAt     time.Time `gorm:"column:started_at;not null;index:idx_metrics_user_type_start,priority:3"`
	EndedAt       time.Time `gorm:"column:ended_at;not null"`
	SourceName    string    `gorm:"column:source_name;size:190;not null;default:''"`
	DeviceName    string    `gorm:"column:device_name;size:190;not null;default:''"`
	MetadataJSON  string    `gorm:"column:metadata_json;type:text;not null;default:''"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (HealthMetric) TableName() string {
	return "health_metrics"
}

// Validate enforces the metric time-range invariant.
func (m HealthMetric) Validate() error {
	if m.EndedAt.Before(m.StartedAt) {
		return fmt.Errorf("%w: %s before %s", ErrInvalidTimeRange, m.EndedAt.Format(time.RFC3339), m.StartedAt.Format(time.RFC3339))
	}
	if strings.TrimSpace(m.MetricType) == "" {
		return errors.New("records: metric type required")
	}
	return nil
}

// ActivityRing holds one calendar day's activity-ring values for an owner.
// Unlike workouts and metrics this family is mutable: re-submission for an
// existing (user_id, ring_date) pair replaces every ring field, because the
// upstream values for the current day change as the day progresses. Percent
// values are stored as provided by the producer and are not clamped.
type ActivityRing struct {
	ID                    uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID                string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_rings_user_date,priority:1"`
	RingDate              string    `gorm:"column:ring_date;size:10;not null;uniqueIndex:idx_rings_user_date,priority:2"`
	MoveGoalKcal          float64   `gorm:"column:move_goal_kcal;not null"`
	MoveActualKcal        float64   `gorm:"column:move_actual_kcal;not null"`
	MovePercent           float64   `gorm:"column:move_percent;not null"`
	ExerciseGoalMinutes   float64   `gorm:"column:exercise_goal_min;not null"`
	ExerciseActualMinutes float64   `gorm:"column:exercise_actual_min;not null"`
	ExercisePercent       float64   `gorm:"column:exercise_percent;not null"`
	StandGoalHours        float64   `gorm:"column:stand_goal_hours;not null"`
	StandActualHours      float64   `gorm:"column:stand_actual_hours;not null"`
	StandPercent          float64   `gorm:"column:stand_percent;not null"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ActivityRing) TableName() string {
	return "activity_rings"
}

const ringDateLayout = "2006-01-02"

// ValidateRingDate checks that a ring date is a calendar date in YYYY-MM-DD form.
func ValidateRingDate(value string) error {
	if _, err := time.Parse(ringDateLayout, value); err != nil {
		return fmt.Errorf("records: invalid ring date %q: %w", value, err)
	}
	return nil
}

// SyncAnchor stores the opaque resume cursor for one (owner, data-type) pair.
// The payload format is private to the producer; the store never parses it.
type SyncAnchor struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID     string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_anchors_user_type,priority:1"`
	DataType   string    `gorm:"column:data_type;size:190;not null;uniqueIndex:idx_anchors_user_type,priority:2"`
	AnchorData string    `gorm:"column:anchor_data;type:text;not null"`
	LastSyncAt time.Time `gorm:"column:last_sync_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (SyncAnchor) TableName() string {
	return "sync_anchors"
}
