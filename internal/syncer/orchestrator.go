// Package syncer drives the end-to-end incremental sync cycle: read the
// last anchor, query the upstream source for changes since it, submit the
// batch to the ingestion service, and advance the anchor only after the
// server has durably accepted the data.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lanternworks/vitalsync/internal/apiclient"
	"github.com/lanternworks/vitalsync/internal/healthsource"
	"go.uber.org/zap"
)

const (
	// DataTypeWorkouts is the anchor label for the workout family.
	DataTypeWorkouts = "workouts"

	defaultLookback   = 30 * 24 * time.Hour
	defaultHistorical = 730 * 24 * time.Hour
	defaultRingWindow = 14 * 24 * time.Hour
)

var (
	// ErrSyncInProgress signals that a trigger arrived while a run was
	// already active. Triggers collapse to one effective run; this is not a
	// failure.
	ErrSyncInProgress = errors.New("syncer: sync already in progress")
	// ErrServerUnreachable aborts a run whose preflight health check failed.
	ErrServerUnreachable = errors.New("syncer: ingestion service unreachable")

	errMissingSource = errors.New("syncer: source is required")
	errMissingAPI    = errors.New("syncer: api client is required")
	errMissingOwner  = errors.New("syncer: owner is required")
)

// API is the ingestion-service surface the orchestrator depends on.
type API interface {
	Health(ctx context.Context) error
	SubmitWorkouts(ctx context.Context, owner string, workouts []apiclient.WorkoutRecord) (apiclient.BatchResult, error)
	SubmitMetrics(ctx context.Context, owner string, metrics []apiclient.MetricRecord) (apiclient.BatchResult, error)
	SubmitRings(ctx context.Context, owner string, rings []apiclient.RingRecord) (apiclient.BatchResult, error)
	GetAnchor(ctx context.Context, owner, dataType string) (apiclient.Anchor, bool, error)
	PutAnchor(ctx context.Context, owner, dataType, payload string) error
}

// Config describes the orchestrator's injected dependencies. There are no
// package-level singletons; the composition root owns the instance.
type Config struct {
	Source             healthsource.Source
	API                API
	Owner              string
	MetricTypes        []string
	Lookback           time.Duration
	HistoricalLookback time.Duration
	RingWindow         time.Duration
	Clock              func() time.Time
	Logger             *zap.Logger
}

// Status is a snapshot of the orchestrator's visible state.
type Status struct {
	InProgress bool
	LastSyncAt time.Time
	LastError  string
}

// Orchestrator coordinates extraction from the upstream source and
// submission to the ingestion service. At most one run is active at a time.
type Orchestrator struct {
	source             healthsource.Source
	api                API
	owner              string
	metricTypes        []string
	lookback           time.Duration
	historicalLookback time.Duration
	ringWindow         time.Duration
	clock              func() time.Time
	logger             *zap.Logger

	running atomic.Bool

	mu         sync.Mutex
	lastSyncAt time.Time
	lastError  string
}

// New constructs the orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	if cfg.API == nil {
		return nil, errMissingAPI
	}
	if cfg.Owner == "" {
		return nil, errMissingOwner
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	historical := cfg.HistoricalLookback
	if historical <= 0 {
		historical = defaultHistorical
	}
	ringWindow := cfg.RingWindow
	if ringWindow <= 0 {
		ringWindow = defaultRingWindow
	}
	return &Orchestrator{
		source:             cfg.Source,
		api:                cfg.API,
		owner:              cfg.Owner,
		metricTypes:        cfg.MetricTypes,
		lookback:           lookback,
		historicalLookback: historical,
		ringWindow:         ringWindow,
		clock:              clock,
		logger:             logger,
	}, nil
}

// TriggerSync runs one incremental sync cycle. Every trigger source enters
// here, whether manual, periodic or platform-driven; a trigger during an
// active run returns ErrSyncInProgress and does nothing.
func (o *Orchestrator) TriggerSync(ctx context.Context) error {
	return o.run(ctx, o.lookback, true)
}

// TriggerHistoricalImport runs one bulk-import cycle over the fixed
// historical window, ignoring stored anchors.
func (o *Orchestrator) TriggerHistoricalImport(ctx context.Context) error {
	return o.run(ctx, o.historicalLookback, false)
}

// Status reports the last visible sync outcome.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		InProgress: o.running.Load(),
		LastSyncAt: o.lastSyncAt,
		LastError:  o.lastError,
	}
}

func (o *Orchestrator) run(ctx context.Context, lookback time.Duration, useAnchors bool) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer o.running.Store(false)

	runLogger := o.logger.With(zap.String("run_id", uuid.NewString()), zap.String("owner", o.owner))

	if err := o.api.Health(ctx); err != nil {
		message := fmt.Sprintf("preflight failed: %v", err)
		runLogger.Warn("sync run aborted", zap.Error(err))
		o.recordFailure(message)
		return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}

	var stepErrors []error

	if err := o.syncWorkouts(ctx, runLogger, lookback, useAnchors); err != nil {
		stepErrors = append(stepErrors, fmt.Errorf("workouts: %w", err))
	}
	for _, metricType := range o.metricTypes {
		if err := o.syncMetric(ctx, runLogger, metricType, lookback, useAnchors); err != nil {
			stepErrors = append(stepErrors, fmt.Errorf("metric %s: %w", metricType, err))
		}
	}
	if err := o.syncRings(ctx, runLogger); err != nil {
		stepErrors = append(stepErrors, fmt.Errorf("activity rings: %w", err))
	}

	if len(stepErrors) > 0 {
		combined := errors.Join(stepErrors...)
		o.recordFailure(combined.Error())
		runLogger.Warn("sync run finished with errors", zap.Int("failed_steps", len(stepErrors)))
		return combined
	}

	o.recordSuccess()
	runLogger.Info("sync run complete")
	return nil
}

// syncWorkouts performs one data-type step: anchor → query → submit →
// advance anchor. The anchor only moves after the server reported full or
// partial success, so a totally failed submission is retried from the same
// window on the next run.
func (o *Orchestrator) syncWorkouts(ctx context.Context, logger *zap.Logger, lookback time.Duration, useAnchor bool) error {
	cursor, err := o.loadCursor(ctx, DataTypeWorkouts, lookback, useAnchor)
	if err != nil {
		return err
	}

	batch, err := o.source.Workouts(ctx, cursor)
	if err != nil {
		return fmt.Errorf("source query: %w", err)
	}
	if len(batch.Workouts) == 0 {
		logger.Debug("no new workouts")
		return nil
	}

	wire := make([]apiclient.WorkoutRecord, 0, len(batch.Workouts))
	for _, sample := range batch.Workouts {
		wire = append(wire, apiclient.WorkoutRecord{
			HealthKitUUID:   sample.UUID,
			WorkoutType:     sample.WorkoutType,
			StartTime:       sample.StartedAt,
			EndTime:         sample.EndedAt,
			DurationSeconds: sample.DurationSeconds,
			DistanceMeters:  sample.DistanceMeters,
			EnergyKcal:      sample.EnergyKcal,
			AvgHeartRate:    sample.AvgHeartRate,
			MaxHeartRate:    sample.MaxHeartRate,
			SourceName:      sample.SourceName,
			DeviceName:      sample.DeviceName,
			Metadata:        sample.Metadata,
			Route:           sample.Route,
		})
	}

	result, err := o.api.SubmitWorkouts(ctx, o.owner, wire)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	logger.Info("workouts submitted",
		zap.Int("synced", result.Synced),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Errors)))

	return o.advanceAnchor(ctx, DataTypeWorkouts, batch.NextAnchor)
}

func (o *Orchestrator) syncMetric(ctx context.Context, logger *zap.Logger, metricType string, lookback time.Duration, useAnchor bool) error {
	cursor, err := o.loadCursor(ctx, metricType, lookback, useAnchor)
	if err != nil {
		return err
	}

	batch, err := o.source.Metrics(ctx, metricType, cursor)
	if err != nil {
		return fmt.Errorf("source query: %w", err)
	}
	if len(batch.Metrics) == 0 {
		logger.Debug("no new samples", zap.String("metric_type", metricType))
		return nil
	}

	wire := make([]apiclient.MetricRecord, 0, len(batch.Metrics))
	for _, sample := range batch.Metrics {
		wire = append(wire, apiclient.MetricRecord{
			HealthKitUUID: sample.UUID,
			MetricType:    sample.MetricType,
			Value:         sample.Value,
			Unit:          sample.Unit,
			StartTime:     sample.StartedAt,
			EndTime:       sample.EndedAt,
			SourceName:    sample.SourceName,
			DeviceName:    sample.DeviceName,
			Metadata:      sample.Metadata,
		})
	}

	result, err := o.api.SubmitMetrics(ctx, o.owner, wire)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	logger.Info("metrics submitted",
		zap.String("metric_type", metricType),
		zap.Int("synced", result.Synced),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Errors)))

	return o.advanceAnchor(ctx, metricType, batch.NextAnchor)
}

// syncRings re-derives the rolling window on every run; there is no anchor
// for the mutable ring family.
func (o *Orchestrator) syncRings(ctx context.Context, logger *zap.Logger) error {
	rings, err := o.source.Rings(ctx, o.ringWindow)
	if err != nil {
		return fmt.Errorf("source query: %w", err)
	}
	if len(rings) == 0 {
		logger.Debug("no ring summaries in window")
		return nil
	}

	wire := make([]apiclient.RingRecord, 0, len(rings))
	for _, ring := range rings {
		wire = append(wire, apiclient.RingRecord{
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
		})
	}

	result, err := o.api.SubmitRings(ctx, o.owner, wire)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	logger.Info("activity rings submitted",
		zap.Int("synced", result.Synced),
		zap.Int("updated", result.Updated),
		zap.Int("failed", len(result.Errors)))
	return nil
}

func (o *Orchestrator) loadCursor(ctx context.Context, dataType string, lookback time.Duration, useAnchor bool) (healthsource.Cursor, error) {
	cursor := healthsource.Cursor{Lookback: lookback}
	if !useAnchor {
		return cursor, nil
	}
	anchor, found, err := o.api.GetAnchor(ctx, o.owner, dataType)
	if err != nil {
		return healthsource.Cursor{}, fmt.Errorf("anchor lookup: %w", err)
	}
	if found {
		cursor.Anchor = anchor.AnchorData
	}
	return cursor, nil
}

func (o *Orchestrator) advanceAnchor(ctx context.Context, dataType, nextAnchor string) error {
	if nextAnchor == "" {
		return nil
	}
	if err := o.api.PutAnchor(ctx, o.owner, dataType, nextAnchor); err != nil {
		return fmt.Errorf("anchor persist: %w", err)
	}
	return nil
}

func (o *Orchestrator) recordSuccess() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastSyncAt = o.clock().UTC()
	o.lastError = ""
}

func (o *Orchestrator) recordFailure(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastError = message
}
