package models

// StageTiming is the elapsed time of one pipeline stage (or OCR column) of a run.
type StageTiming struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"size:36;index;not null"`
	Stage     string `gorm:"size:64;not null"`
	ElapsedMS int64
}
