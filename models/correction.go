package models

import "time"

// CorrectionEntry is one line of the fuzzy correction audit log.
type CorrectionEntry struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	RunID     string `gorm:"size:36;index;not null"`
	Row       int
	Field     string `gorm:"size:32;not null"`
	Original  string `gorm:"size:255"`
	Corrected string `gorm:"size:255"`
	Applied   bool   `gorm:"default:false"`
	Warning   string `gorm:"size:512"`
}
