package pkg

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/brightclass/assessment-engine/internal/config"
	"github.com/brightclass/assessment-engine/internal/models"
)

// InitDatabase opens the Postgres connection, runs migrations and creates
// the indexes GORM cannot express in tags.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		// Unique violations surface as gorm.ErrDuplicatedKey, which the
		// attempt admission path relies on
		TranslateError: true,
	}
	if cfg.Environment != "production" {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(
		&models.TestDefinition{},
		&models.Attempt{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// One open attempt per student per test; concurrent starts race on this
	// index and the loser gets a duplicate key error.
	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_one_in_progress
		 ON attempts (test_id, student_id)
		 WHERE status = 'in_progress'`,
	).Error; err != nil {
		return nil, fmt.Errorf("failed to create partial unique index: %w", err)
	}

	return db, nil
}
