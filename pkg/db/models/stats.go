package models

import "time"

// FileStats holds the computed text statistics of a file. Its presence is the
// marker that stats computation for FileID must not be repeated.
type FileStats struct {
	ID     uint   `gorm:"primaryKey"`
	FileID string `gorm:"type:text;not null;uniqueIndex"`

	ParagraphCount int `gorm:"not null;default:0"`
	WordCount      int `gorm:"not null;default:0"`
	CharCount      int `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (FileStats) TableName() string {
	return "file_stats"
}
