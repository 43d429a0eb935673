package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lanternworks/vitalsync/internal/records"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultWindowDays is used when the caller does not specify a window.
	DefaultWindowDays = 7
	// MaxWindowDays bounds the recent-view window.
	MaxWindowDays = 90
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	// ErrNotFound indicates the requested workout or route does not exist.
	// Absence is a first-class outcome, distinct from storage failure.
	ErrNotFound = errors.New("dashboard: not found")
)

// ServiceConfig describes the dependencies of the read-side query service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service answers the visualization front-end's read queries.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the dashboard query service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("dashboard: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// WorkoutSummary is the list-view projection of a workout.
type WorkoutSummary struct {
	HealthKitUUID   string    `json:"healthkit_uuid"`
	WorkoutType     string    `json:"workout_type"`
	StartedAt       time.Time `json:"start_time"`
	EndedAt         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_s"`
	DistanceMeters  *float64  `json:"distance_m,omitempty"`
	EnergyKcal      *float64  `json:"energy_kcal,omitempty"`
	HasRoute        bool      `json:"has_route"`
}

// RingSummary is the list-view projection of one day's activity rings.
type RingSummary struct {
	Date            string  `json:"date"`
	MoveGoalKcal    float64 `json:"move_goal_kcal"`
	MoveActualKcal  float64 `json:"move_actual_kcal"`
	MovePercent     float64 `json:"move_percent"`
	ExercisePercent float64 `json:"exercise_percent"`
	StandPercent    float64 `json:"stand_percent"`
}

// Totals aggregates the window's workouts.
type Totals struct {
	WorkoutCount     int     `json:"workout_count"`
	TotalDurationS   float64 `json:"total_duration_s"`
	TotalDistanceM   float64 `json:"total_distance_m"`
	TotalEnergyKcal  float64 `json:"total_energy_kcal"`
	DaysWithActivity int     `json:"days_with_activity"`
	WindowStart      string  `json:"window_start"`
	WindowEnd        string  `json:"window_end"`
}

// RecentView is the dashboard's rolling-window snapshot. Empty windows are a
// valid result: empty lists with zero-valued totals, never an error.
type RecentView struct {
	Days     int              `json:"days"`
	Workouts []WorkoutSummary `json:"workouts"`
	Rings    []RingSummary    `json:"rings"`
	Totals   Totals           `json:"totals"`
}

// ClampWindowDays normalizes a requested window to [1, MaxWindowDays],
// falling back to the default for non-positive input.
func ClampWindowDays(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	if days > MaxWindowDays {
		return MaxWindowDays
	}
	return days
}

// Recent returns workouts, rings and aggregate totals for the trailing
// window of the given number of days.
func (s *Service) Recent(ctx context.Context, userID records.UserID, days int) (RecentView, error) {
	days = ClampWindowDays(days)
	windowEnd := s.clock().UTC()
	windowStart := windowEnd.AddDate(0, 0, -days)

	var workoutRows []records.Workout
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND started_at >= ?", userID.String(), windowStart).
		Order("started_at DESC").
		Find(&workoutRows).Error
	if err != nil {
		s.logger.Error("recent workouts query failed", zap.String("user_id", userID.String()), zap.Error(err))
		return RecentView{}, fmt.Errorf("dashboard: recent workouts: %w", err)
	}

	routed, err := s.routedWorkoutIDs(ctx, workoutRows)
	if err != nil {
		return RecentView{}, err
	}

	view := RecentView{
		Days:     days,
		Workouts: make([]WorkoutSummary, 0, len(workoutRows)),
		Rings:    []RingSummary{},
	}
	activeDays := map[string]struct{}{}
	for _, row := range workoutRows {
		view.Workouts = append(view.Workouts, WorkoutSummary{
			HealthKitUUID:   row.HealthKitUUID,
			WorkoutType:     row.WorkoutType,
			StartedAt:       row.StartedAt,
			EndedAt:         row.EndedAt,
			DurationSeconds: row.DurationSeconds,
			DistanceMeters:  row.DistanceMeters,
			EnergyKcal:      row.EnergyKcal,
			HasRoute:        routed[row.ID],
		})
		view.Totals.WorkoutCount++
		view.Totals.TotalDurationS += row.DurationSeconds
		if row.DistanceMeters != nil {
			view.Totals.TotalDistanceM += *row.DistanceMeters
		}
		if row.EnergyKcal != nil {
			view.Totals.TotalEnergyKcal += *row.EnergyKcal
		}
		activeDays[row.StartedAt.Format("2006-01-02")] = struct{}{}
	}
	view.Totals.DaysWithActivity = len(activeDays)
	view.Totals.WindowStart = windowStart.Format("2006-01-02")
	view.Totals.WindowEnd = windowEnd.Format("2006-01-02")

	var ringRows []records.ActivityRing
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND ring_date >= ?", userID.String(), windowStart.Format("2006-01-02")).
		Order("ring_date DESC").
		Find(&ringRows).Error
	if err != nil {
		s.logger.Error("recent rings query failed", zap.String("user_id", userID.String()), zap.Error(err))
		return RecentView{}, fmt.Errorf("dashboard: recent rings: %w", err)
	}
	for _, row := range ringRows {
		view.Rings = append(view.Rings, RingSummary{
			Date:            row.RingDate,
			MoveGoalKcal:    row.MoveGoalKcal,
			MoveActualKcal:  row.MoveActualKcal,
			MovePercent:     row.MovePercent,
			ExercisePercent: row.ExercisePercent,
			StandPercent:    row.StandPercent,
		})
	}

	return view, nil
}

func (s *Service) routedWorkoutIDs(ctx context.Context, workouts []records.Workout) (map[uint]bool, error) {
	routed := make(map[uint]bool, len(workouts))
	if len(workouts) == 0 {
		return routed, nil
	}
	ids := make([]uint, 0, len(workouts))
	for _, row := range workouts {
		ids = append(ids, row.ID)
	}
	var routes []records.WorkoutRoute
	if err := s.db.WithContext(ctx).Select("workout_id").Where("workout_id IN ?", ids).Find(&routes).Error; err != nil {
		return nil, fmt.Errorf("dashboard: route lookup: %w", err)
	}
	for _, route := range routes {
		routed[route.WorkoutID] = true
	}
	return routed, nil
}

// WorkoutDetail is the full projection of one workout.
type WorkoutDetail struct {
	WorkoutSummary
	AvgHeartRate *float64          `json:"avg_heart_rate,omitempty"`
	MaxHeartRate *float64          `json:"max_heart_rate,omitempty"`
	SourceName   string            `json:"source_name,omitempty"`
	DeviceName   string            `json:"device_name,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Workout returns the detail view of a single workout, or ErrNotFound.
func (s *Service) Workout(ctx context.Context, userID records.UserID, workoutUUID records.RecordUUID) (WorkoutDetail, error) {
	row, err := s.workoutRow(ctx, userID, workoutUUID)
	if err != nil {
		return WorkoutDetail{}, err
	}

	metadata, err := records.DecodeMetadata(row.MetadataJSON)
	if err != nil {
		return WorkoutDetail{}, err
	}
	var routeCount int64
	if err := s.db.WithContext(ctx).Model(&records.WorkoutRoute{}).Where("workout_id = ?", row.ID).Count(&routeCount).Error; err != nil {
		return WorkoutDetail{}, fmt.Errorf("dashboard: route count: %w", err)
	}

	return WorkoutDetail{
		WorkoutSummary: WorkoutSummary{
			HealthKitUUID:   row.HealthKitUUID,
			WorkoutType:     row.WorkoutType,
			StartedAt:       row.StartedAt,
			EndedAt:         row.EndedAt,
			DurationSeconds: row.DurationSeconds,
			DistanceMeters:  row.DistanceMeters,
			EnergyKcal:      row.EnergyKcal,
			HasRoute:        routeCount > 0,
		},
		AvgHeartRate: row.AvgHeartRate,
		MaxHeartRate: row.MaxHeartRate,
		SourceName:   row.SourceName,
		DeviceName:   row.DeviceName,
		Metadata:     metadata,
	}, nil
}

// RouteView is the decoded GPS trace for one workout.
type RouteView struct {
	HealthKitUUID string               `json:"healthkit_uuid"`
	PointCount    int                  `json:"point_count"`
	MinLatitude   float64              `json:"min_latitude"`
	MaxLatitude   float64              `json:"max_latitude"`
	MinLongitude  float64              `json:"min_longitude"`
	MaxLongitude  float64              `json:"max_longitude"`
	Points        []records.RoutePoint `json:"points"`
}

// Route returns the GPS trace for a workout. ErrNotFound covers both an
// unknown workout and a workout recorded without GPS data.
func (s *Service) Route(ctx context.Context, userID records.UserID, workoutUUID records.RecordUUID) (RouteView, error) {
	row, err := s.workoutRow(ctx, userID, workoutUUID)
	if err != nil {
		return RouteView{}, err
	}

	var route records.WorkoutRoute
	err = s.db.WithContext(ctx).Where("workout_id = ?", row.ID).Take(&route).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RouteView{}, ErrNotFound
	}
	if err != nil {
		return RouteView{}, fmt.Errorf("dashboard: route query: %w", err)
	}

	points, err := records.DecodePoints(route.PointsJSON)
	if err != nil {
		return RouteView{}, err
	}
	return RouteView{
		HealthKitUUID: row.HealthKitUUID,
		PointCount:    route.PointCount,
		MinLatitude:   route.MinLatitude,
		MaxLatitude:   route.MaxLatitude,
		MinLongitude:  route.MinLongitude,
		MaxLongitude:  route.MaxLongitude,
		Points:        points,
	}, nil
}

func (s *Service) workoutRow(ctx context.Context, userID records.UserID, workoutUUID records.RecordUUID) (records.Workout, error) {
	var row records.Workout
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND healthkit_uuid = ?", userID.String(), workoutUUID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return records.Workout{}, ErrNotFound
	}
	if err != nil {
		return records.Workout{}, fmt.Errorf("dashboard: workout query: %w", err)
	}
	return row, nil
}
