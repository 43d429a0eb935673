package database

import (
	"errors"
	"time"

	"github.com/lanternworks/vitalsync/internal/records"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillRouteBounds = "2026-05-20_backfill_route_bounds"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillRouteBounds, apply: backfillRouteBounds},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillRouteBounds recomputes bounding boxes for route rows written before
// bounds were stored alongside the points.
func backfillRouteBounds(db *gorm.DB) error {
	var routes []records.WorkoutRoute
	err := db.Where("min_latitude = 0 AND max_latitude = 0 AND min_longitude = 0 AND max_longitude = 0").
		Find(&routes).Error
	if err != nil {
		return err
	}

	for _, route := range routes {
		points, err := records.DecodePoints(route.PointsJSON)
		if err != nil || len(points) == 0 {
			continue
		}
		bounds, err := records.ComputeBounds(points)
		if err != nil {
			continue
		}
		updates := map[string]interface{}{
			"min_latitude":  bounds.MinLatitude,
			"max_latitude":  bounds.MaxLatitude,
			"min_longitude": bounds.MinLongitude,
			"max_longitude": bounds.MaxLongitude,
			"point_count":   len(points),
		}
		if err := db.Model(&records.WorkoutRoute{}).Where("id = ?", route.ID).Updates(updates).Error; err != nil {
			return err
		}
	}
	return nil
}
