package models

import "time"

// PreviewRun is one extraction or preview request and its outcome.
type PreviewRun struct {
	ID            string `gorm:"primaryKey;size:36"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Source        string `gorm:"size:16;index;not null"` // screenshot | tsv
	Input         string `gorm:"size:512"`
	LayoutVersion string `gorm:"size:64;index"`
	Status        string `gorm:"size:16;index;not null"` // ok | failed
	ErrorKind     string `gorm:"size:32;index"`
	Error         string `gorm:"size:1024"`
	RowCount      int
	PlacedCount   int
	WarningCount  int
	PreviewPath   string `gorm:"size:512"`
	WorkDir       string `gorm:"size:512"`
	ElapsedMS     int64
	// StatsExceeded marks extractions that overran their latency target.
	StatsExceeded bool              `gorm:"default:false"`
	Warnings      []RunWarning      `gorm:"foreignKey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Corrections   []CorrectionEntry `gorm:"foreignKey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Timings       []StageTiming     `gorm:"foreignKey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}
