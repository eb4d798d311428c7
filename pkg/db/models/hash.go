package models

import "time"

// FileHash records the content digest of a file that completed duplicate
// detection. At most one row exists per FileID; the rows together form the
// corpus searched for matches.
type FileHash struct {
	ID            uint   `gorm:"primaryKey"`
	FileID        string `gorm:"type:text;not null;uniqueIndex"`
	HashAlgorithm string `gorm:"type:varchar(64);not null;index:idx_filehash_digest,priority:1"`
	HashValue     string `gorm:"type:varchar(255);not null;index:idx_filehash_digest,priority:2"`

	CreatedAt time.Time
}

func (FileHash) TableName() string {
	return "file_hashes"
}

// DigestOwner names the first file that recorded a digest. The unique key on
// (HashAlgorithm, HashValue) lets concurrent detectors race on the insert: the
// winner owns the digest, every loser is a duplicate of it.
type DigestOwner struct {
	ID            uint   `gorm:"primaryKey"`
	HashAlgorithm string `gorm:"type:varchar(64);not null;uniqueIndex:idx_digest_owner,priority:1"`
	HashValue     string `gorm:"type:varchar(255);not null;uniqueIndex:idx_digest_owner,priority:2"`
	FileID        string `gorm:"type:text;not null"`

	CreatedAt time.Time
}

func (DigestOwner) TableName() string {
	return "digest_owners"
}
