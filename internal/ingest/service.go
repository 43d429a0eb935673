package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lanternworks/vitalsync/internal/owners"
	"github.com/lanternworks/vitalsync/internal/records"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingOwners   = errors.New("owner service is required")
	noOpLogger         = zap.NewNop()

	// ErrEmptyBatch indicates a structurally invalid submission with no records.
	ErrEmptyBatch = errors.New("ingest: batch must contain at least one record")
)

// ServiceError carries an operation-scoped failure code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation-scoped failure code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "ingest.service.new"
	opSubmitWorkouts = "ingest.submit_workouts"
	opSubmitMetrics  = "ingest.submit_metrics"
	opSubmitRings    = "ingest.submit_rings"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the ingestion service.
type ServiceConfig struct {
	Database *gorm.DB
	Owners   *owners.Service
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service applies owner-scoped batches of health records to the store,
// tracking a per-record outcome so callers can distinguish new records,
// harmless duplicates, replacements, and genuine failures.
type Service struct {
	db     *gorm.DB
	owners *owners.Service
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the ingestion service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Owners == nil {
		return nil, newServiceError(opServiceNew, "missing_owner_service", errMissingOwners)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, owners: cfg.Owners, clock: clock, logger: logger}, nil
}

// SubmitWorkouts applies a batch of workout submissions. Each record runs in
// its own transaction so one malformed record cannot roll back its siblings.
// A conflict on the deduplication key counts as skipped, never as a failure,
// and the first-seen route wins: a duplicate workout's route is not touched.
func (s *Service) SubmitWorkouts(ctx context.Context, userID records.UserID, submissions []WorkoutSubmission) (BatchResult, error) {
	if len(submissions) == 0 {
		return BatchResult{}, newServiceError(opSubmitWorkouts, "empty_batch", ErrEmptyBatch)
	}
	if err := s.owners.Ensure(ctx, userID); err != nil {
		s.logError(opSubmitWorkouts, "owner_ensure_failed", err, zap.String("user_id", userID.String()))
		return BatchResult{}, newServiceError(opSubmitWorkouts, "owner_ensure_failed", err)
	}

	result := BatchResult{}
	for _, submission := range submissions {
		outcome, err := s.applyWorkout(ctx, userID, submission)
		s.tally(&result, submission.UUID, outcome, err)
		if err != nil {
			s.logError(opSubmitWorkouts, "record_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("healthkit_uuid", submission.UUID))
		}
	}
	return result, nil
}

func (s *Service) applyWorkout(ctx context.Context, userID records.UserID, submission WorkoutSubmission) (recordOutcome, error) {
	row, err := submission.toRow(userID)
	if err != nil {
		return outcomeFailed, err
	}

	outcome := outcomeFailed
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "healthkit_uuid"}},
			DoNothing: true,
		}).Create(&row)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			outcome = outcomeSkipped
			return nil
		}

		if len(submission.Route) > 0 {
			route, err := records.NewWorkoutRoute(row.ID, submission.Route)
			if err != nil {
				return err
			}
			if err := tx.Create(&route).Error; err != nil {
				return err
			}
		}
		outcome = outcomeCreated
		return nil
	})
	if txErr != nil {
		return outcomeFailed, txErr
	}
	return outcome, nil
}

// SubmitMetrics applies a batch of health metric samples with the same
// per-record transaction and duplicate-skip semantics as workouts.
func (s *Service) SubmitMetrics(ctx context.Context, userID records.UserID, submissions []MetricSubmission) (BatchResult, error) {
	if len(submissions) == 0 {
		return BatchResult{}, newServiceError(opSubmitMetrics, "empty_batch", ErrEmptyBatch)
	}
	if err := s.owners.Ensure(ctx, userID); err != nil {
		s.logError(opSubmitMetrics, "owner_ensure_failed", err, zap.String("user_id", userID.String()))
		return BatchResult{}, newServiceError(opSubmitMetrics, "owner_ensure_failed", err)
	}

	result := BatchResult{}
	for _, submission := range submissions {
		outcome, err := s.applyMetric(ctx, userID, submission)
		s.tally(&result, submission.UUID, outcome, err)
		if err != nil {
			s.logError(opSubmitMetrics, "record_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("healthkit_uuid", submission.UUID))
		}
	}
	return result, nil
}

func (s *Service) applyMetric(ctx context.Context, userID records.UserID, submission MetricSubmission) (recordOutcome, error) {
	row, err := submission.toRow(userID)
	if err != nil {
		return outcomeFailed, err
	}

	outcome := outcomeFailed
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "healthkit_uuid"}},
			DoNothing: true,
		}).Create(&row)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			outcome = outcomeSkipped
		} else {
			outcome = outcomeCreated
		}
		return nil
	})
	if txErr != nil {
		return outcomeFailed, txErr
	}
	return outcome, nil
}

// SubmitRings applies a batch of daily activity-ring summaries. This family
// is mutable: a conflict on (owner, date) replaces every ring field and
// refreshes the modification timestamp.
func (s *Service) SubmitRings(ctx context.Context, userID records.UserID, submissions []RingSubmission) (BatchResult, error) {
	if len(submissions) == 0 {
		return BatchResult{}, newServiceError(opSubmitRings, "empty_batch", ErrEmptyBatch)
	}
	if err := s.owners.Ensure(ctx, userID); err != nil {
		s.logError(opSubmitRings, "owner_ensure_failed", err, zap.String("user_id", userID.String()))
		return BatchResult{}, newServiceError(opSubmitRings, "owner_ensure_failed", err)
	}

	result := BatchResult{}
	for _, submission := range submissions {
		outcome, err := s.applyRing(ctx, userID, submission)
		s.tally(&result, submission.Date, outcome, err)
		if err != nil {
			s.logError(opSubmitRings, "record_failed", err,
				zap.String("user_id", userID.String()),
				zap.String("ring_date", submission.Date))
		}
	}
	return result, nil
}

func (s *Service) applyRing(ctx context.Context, userID records.UserID, submission RingSubmission) (recordOutcome, error) {
	now := s.clock().UTC()
	row, err := submission.toRow(userID, now)
	if err != nil {
		return outcomeFailed, err
	}

	outcome := outcomeFailed
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing records.ActivityRing
		err := tx.Where("user_id = ? AND ring_date = ?", row.UserID, row.RingDate).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			outcome = outcomeCreated
			return nil
		case err != nil:
			return err
		default:
			updates := map[string]interface{}{
				"move_goal_kcal":      row.MoveGoalKcal,
				"move_actual_kcal":    row.MoveActualKcal,
				"move_percent":        row.MovePercent,
				"exercise_goal_min":   row.ExerciseGoalMinutes,
				"exercise_actual_min": row.ExerciseActualMinutes,
				"exercise_percent":    row.ExercisePercent,
				"stand_goal_hours":    row.StandGoalHours,
				"stand_actual_hours":  row.StandActualHours,
				"stand_percent":       row.StandPercent,
				"updated_at":          now,
			}
			if err := tx.Model(&records.ActivityRing{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}
			outcome = outcomeUpdated
			return nil
		}
	})
	if txErr != nil {
		return outcomeFailed, txErr
	}
	return outcome, nil
}

func (s *Service) tally(result *BatchResult, key string, outcome recordOutcome, err error) {
	if err != nil {
		result.Errors = append(result.Errors, RecordError{Key: key, Message: err.Error()})
		return
	}
	switch outcome {
	case outcomeCreated:
		result.Synced++
	case outcomeSkipped:
		result.Skipped++
	case outcomeUpdated:
		result.Updated++
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("ingest service error", attrs...)
}
