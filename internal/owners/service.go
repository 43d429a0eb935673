package owners

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lanternworks/vitalsync/internal/records"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates the requested owner has never synced any data.
var ErrNotFound = errors.New("owners: not found")

// Owner captures a data-producing identity. Every synced entity references
// an owner; deleting the owner cascades to all of its records.
type Owner struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	FirstSeenAt time.Time `gorm:"column:first_seen_at;not null"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;not null"`
}

// TableName exposes the table backing owners.
func (Owner) TableName() string {
	return "owners"
}

// ServiceConfig describes the dependencies required for owner management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages the owner registry and owner-scoped cascading deletion.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	known sync.Map
}

// NewService constructs the owner service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("owners: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// Ensure registers the owner if it has not been seen before and refreshes
// its last-seen timestamp. Safe to call on every ingested batch; a process
// local cache short-circuits repeat calls within the same run of the server.
func (s *Service) Ensure(ctx context.Context, userID records.UserID) error {
	key := userID.String()
	if _, ok := s.known.Load(key); ok {
		return nil
	}

	now := s.now().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"last_seen_at": now}),
	}).Create(&Owner{UserID: key, FirstSeenAt: now, LastSeenAt: now}).Error
	if err != nil {
		return fmt.Errorf("owners: ensure %s: %w", key, err)
	}

	s.known.Store(key, struct{}{})
	return nil
}

// Get returns the stored owner row or ErrNotFound.
func (s *Service) Get(ctx context.Context, userID records.UserID) (Owner, error) {
	var owner Owner
	err := s.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Owner{}, ErrNotFound
	}
	if err != nil {
		return Owner{}, fmt.Errorf("owners: get %s: %w", userID.String(), err)
	}
	return owner, nil
}

// List returns all registered owners ordered by first sync time.
func (s *Service) List(ctx context.Context) ([]Owner, error) {
	var owners []Owner
	if err := s.db.WithContext(ctx).Order("first_seen_at ASC").Find(&owners).Error; err != nil {
		return nil, fmt.Errorf("owners: list: %w", err)
	}
	return owners, nil
}

// Delete removes the owner and every entity it produced: workouts and their
// routes, health metrics, activity rings, and sync anchors, all in one
// transaction. Returns ErrNotFound when the owner was never registered.
func (s *Service) Delete(ctx context.Context, userID records.UserID) error {
	key := userID.String()
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner Owner
		err := tx.Where("user_id = ?", key).Take(&owner).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		routeSubquery := tx.Model(&records.Workout{}).Select("id").Where("user_id = ?", key)
		if err := tx.Where("workout_id IN (?)", routeSubquery).Delete(&records.WorkoutRoute{}).Error; err != nil {
			return err
		}
		for _, model := range []interface{}{
			&records.Workout{},
			&records.HealthMetric{},
			&records.ActivityRing{},
			&records.SyncAnchor{},
		} {
			if err := tx.Where("user_id = ?", key).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Where("user_id = ?", key).Delete(&Owner{}).Error
	})
	if txErr != nil {
		if errors.Is(txErr, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("owners: delete %s: %w", key, txErr)
	}

	s.known.Delete(key)
	return nil
}
