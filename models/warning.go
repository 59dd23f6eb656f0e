package models

import "time"

// RunWarning is a row scoped warning surfaced to the caller. Row 0 is the order itself.
type RunWarning struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	RunID     string `gorm:"size:36;index;not null"`
	Row       int    `gorm:"index"`
	Kind      string `gorm:"size:32;index;not null"`
	Message   string `gorm:"size:1024"`
}
