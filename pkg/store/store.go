package store

import (
	"fmt"
	"log"

	"orderpreview/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to postgres and optionally migrates the diagnostics tables.
func Open(dsn string, autoMigrate bool) (*gorm.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if autoMigrate {
		Migrate(db)
	}
	return db, nil
}

// Migrate runs AutoMigrate per model so a failure on one does not block the others.
func Migrate(db *gorm.DB) {
	if err := db.AutoMigrate(&models.PreviewRun{}); err != nil {
		log.Printf("migration warning (preview_runs): %v", err)
	}
	if err := db.AutoMigrate(&models.RunWarning{}); err != nil {
		log.Printf("migration warning (run_warnings): %v", err)
	}
	if err := db.AutoMigrate(&models.CorrectionEntry{}); err != nil {
		log.Printf("migration warning (correction_entries): %v", err)
	}
	if err := db.AutoMigrate(&models.StageTiming{}); err != nil {
		log.Printf("migration warning (stage_timings): %v", err)
	}
}
