package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plangrid/internal/records"
)

const migrationCollapseMultiFlagPreferences = "2026-09-01_collapse_multi_flag_preferences"

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
		{name: migrationCollapseMultiFlagPreferences, apply: collapseMultiFlagPreferences},
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

// collapseMultiFlagPreferences keeps only the highest priority flag on rows with several set.
func collapseMultiFlagPreferences(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			where string
			clear []string
		}{
			{where: "must_schedule = ?", clear: []string{"must_not_schedule", "prefers_to_schedule", "prefers_not_to_schedule"}},
			{where: "must_not_schedule = ?", clear: []string{"prefers_to_schedule", "prefers_not_to_schedule"}},
			{where: "prefers_to_schedule = ?", clear: []string{"prefers_not_to_schedule"}},
		}
		for _, step := range steps {
			updates := make(map[string]any, len(step.clear))
			for _, column := range step.clear {
				updates[column] = false
			}
			if err := tx.Model(&records.Preference{}).Where(step.where, true).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
