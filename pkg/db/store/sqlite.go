package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mwantia/filecheck/pkg/db/migrations"
	"github.com/mwantia/filecheck/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteStore implements MetadataStore using SQLite
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// DB returns the underlying GORM database instance
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path         string
	MaxOpenConns int
	LogLevel     logger.LogLevel
}

// NewSQLiteStore creates a new SQLite-backed metadata store
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Default to silent logging
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Silent
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(cfg.Path)), &gorm.Config{
		Logger:         logger.Default.LogMode(cfg.LogLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: cfg.Path,
	}, nil
}

// sqliteDSN enables a busy timeout so that concurrent writers queue instead of
// failing with SQLITE_BUSY.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Connect initializes the database connection
func (s *SQLiteStore) Connect(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(1) // SQLite only supports 1 writer
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrations.NewMigrator(s.db).Migrate(ctx)
}

// MigrationStatus lists every known migration and whether it is applied
func (s *SQLiteStore) MigrationStatus(ctx context.Context) ([]migrations.MigrationStatus, error) {
	return migrations.NewMigrator(s.db).Status(ctx)
}

// Rollback reverts the most recently applied migration
func (s *SQLiteStore) Rollback(ctx context.Context) error {
	return migrations.NewMigrator(s.db).Rollback(ctx)
}

// Health checks database connectivity
func (s *SQLiteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Transaction(ctx context.Context, fn func(tx MetadataStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SQLiteStore{db: tx, path: s.path})
	})
}

// File operations

func (s *SQLiteStore) CreateFile(ctx context.Context, file *models.File) error {
	return s.db.WithContext(ctx).Create(file).Error
}

func (s *SQLiteStore) GetFile(ctx context.Context, fileID string) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&file).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &file, nil
}

func (s *SQLiteStore) ListFiles(ctx context.Context, limit, offset int) ([]models.File, error) {
	var files []models.File
	query := s.db.WithContext(ctx).Order("id ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&files).Error
	return files, err
}

// Stats operations

// CreateStats inserts stats unless a row for the same file already exists.
// The returned bool reports whether this call created the row.
func (s *SQLiteStore) CreateStats(ctx context.Context, stats *models.FileStats) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "file_id"}}, DoNothing: true}).
		Create(stats)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *SQLiteStore) GetStats(ctx context.Context, fileID string) (*models.FileStats, error) {
	var stats models.FileStats
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&stats).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &stats, nil
}

func (s *SQLiteStore) StatsExists(ctx context.Context, fileID string) (bool, error) {
	return s.exists(ctx, &models.FileStats{}, "file_id = ?", fileID)
}

// Hash operations

// CreateHash inserts the hash record unless the file already has one.
func (s *SQLiteStore) CreateHash(ctx context.Context, hash *models.FileHash) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "file_id"}}, DoNothing: true}).
		Create(hash)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *SQLiteStore) HashExists(ctx context.Context, fileID string) (bool, error) {
	return s.exists(ctx, &models.FileHash{}, "file_id = ?", fileID)
}

func (s *SQLiteStore) GetHash(ctx context.Context, fileID string) (*models.FileHash, error) {
	var hash models.FileHash
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).First(&hash).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &hash, nil
}

// FindHashesByDigest returns every hash record for the digest, oldest first.
func (s *SQLiteStore) FindHashesByDigest(ctx context.Context, algorithm, value string) ([]models.FileHash, error) {
	var hashes []models.FileHash
	err := s.db.WithContext(ctx).
		Where("hash_algorithm = ? AND hash_value = ?", algorithm, value).
		Order("id ASC").
		Find(&hashes).Error
	return hashes, err
}

// Digest ownership

// ClaimDigest records owner as the first file seen with its digest. It returns
// false without error when another file already owns the digest.
func (s *SQLiteStore) ClaimDigest(ctx context.Context, owner *models.DigestOwner) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash_algorithm"}, {Name: "hash_value"}},
			DoNothing: true,
		}).
		Create(owner)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *SQLiteStore) GetDigestOwner(ctx context.Context, algorithm, value string) (*models.DigestOwner, error) {
	var owner models.DigestOwner
	err := s.db.WithContext(ctx).
		Where("hash_algorithm = ? AND hash_value = ?", algorithm, value).
		First(&owner).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &owner, nil
}

func (s *SQLiteStore) exists(ctx context.Context, model any, query string, args ...any) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(model).Where(query, args...).Limit(1).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
