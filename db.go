package main

import (
	"errors"
	"log"

	"orderpreview/pkg/config"
	"orderpreview/pkg/store"

	"gorm.io/gorm"
)

// initDB opens the diagnostics database. It returns nil when no DSN is set:
// the service then runs without persisted diagnostics.
func initDB(s config.Settings) *gorm.DB {
	db, err := store.Open(s.DSN, s.AutoMigrate)
	if errors.Is(err, store.ErrNoDSN) {
		log.Printf("DB_DSN is not set; diagnostics will not be persisted")
		return nil
	}
	if err != nil {
		log.Fatal("failed to connect postgres database:", err)
	}
	return db
}
