package models

import (
	"time"
)

// File is the metadata recorded for an ingested blob. It is created once and
// never updated by the pipeline.
type File struct {
	ID     uint   `gorm:"primaryKey"`
	FileID string `gorm:"type:text;not null;uniqueIndex"`

	// File metadata
	OriginalName    string  `gorm:"type:text;not null"`
	ContentType     string  `gorm:"type:text"`
	Size            int64   `gorm:"not null"`
	StorageLocation string  `gorm:"type:text;not null"`
	UserID          *string `gorm:"type:text;index"`

	CreatedAt time.Time
}

func (File) TableName() string {
	return "files"
}

// Owner returns the owning user or an empty string.
func (f *File) Owner() string {
	if f.UserID == nil {
		return ""
	}
	return *f.UserID
}
