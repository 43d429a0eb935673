package anchors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lanternworks/vitalsync/internal/records"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
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
	opServiceNew = "anchors.service.new"
	opGetAnchor  = "anchors.get"
	opPutAnchor  = "anchors.put"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Anchor is the stored cursor state for one (owner, data-type) pair. The
// payload is opaque; its format belongs to the producer that wrote it.
type Anchor struct {
	UserID     records.UserID
	DataType   records.DataType
	Payload    string
	LastSyncAt time.Time
}

// ServiceConfig describes the dependencies of the anchor tracker.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service persists per-(owner, data-type) resume cursors so incremental
// extraction can pick up where the last successful sync stopped.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the anchor tracker.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
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

// Get returns the stored anchor for the pair. Absence is not an error: the
// second return is false when no anchor has ever been recorded, which tells
// the caller to run a full initial sync instead of an incremental one.
func (s *Service) Get(ctx context.Context, userID records.UserID, dataType records.DataType) (Anchor, bool, error) {
	var row records.SyncAnchor
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND data_type = ?", userID.String(), dataType.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Anchor{}, false, nil
	}
	if err != nil {
		s.logger.Error("anchor lookup failed",
			zap.String("operation", opGetAnchor),
			zap.String("user_id", userID.String()),
			zap.String("data_type", dataType.String()),
			zap.Error(err))
		return Anchor{}, false, newServiceError(opGetAnchor, "query_failed", err)
	}
	return Anchor{
		UserID:     userID,
		DataType:   dataType,
		Payload:    row.AnchorData,
		LastSyncAt: row.LastSyncAt,
	}, true, nil
}

// Put upserts the anchor for the pair, replacing the payload and refreshing
// the last-sync timestamp. The write is atomic per key; concurrent writers
// resolve last-write-wins through the storage conflict clause.
func (s *Service) Put(ctx context.Context, userID records.UserID, dataType records.DataType, payload string) (Anchor, error) {
	now := s.clock().UTC()
	row := records.SyncAnchor{
		UserID:     userID.String(),
		DataType:   dataType.String(),
		AnchorData: payload,
		LastSyncAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "data_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"anchor_data":  payload,
			"last_sync_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		s.logger.Error("anchor upsert failed",
			zap.String("operation", opPutAnchor),
			zap.String("user_id", userID.String()),
			zap.String("data_type", dataType.String()),
			zap.Error(err))
		return Anchor{}, newServiceError(opPutAnchor, "upsert_failed", err)
	}
	return Anchor{
		UserID:     userID,
		DataType:   dataType,
		Payload:    payload,
		LastSyncAt: now,
	}, nil
}
