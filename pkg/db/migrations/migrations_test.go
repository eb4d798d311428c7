package migrations

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mwantia/filecheck/pkg/db/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "migrations.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMigrator(db)

	require.NoError(t, m.Migrate(ctx))
	require.NoError(t, m.Migrate(ctx))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %d should be applied", s.Version)
	}

	assert.True(t, db.Migrator().HasTable(&models.File{}))
	assert.True(t, db.Migrator().HasTable(&models.FileStats{}))
	assert.True(t, db.Migrator().HasTable(&models.FileHash{}))
	assert.True(t, db.Migrator().HasTable(&models.DigestOwner{}))
	assert.True(t, db.Migrator().HasIndex(&models.FileHash{}, "idx_filehash_digest"))
}

func TestDigestOwnerBackfill(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMigrator(db)
	m.migrations = allMigrations()[:1]
	require.NoError(t, m.Migrate(ctx))

	now := time.Now().UTC()
	require.NoError(t, db.Create(&models.FileHash{FileID: "a", HashAlgorithm: "SHA-256", HashValue: "aa", CreatedAt: now}).Error)
	require.NoError(t, db.Create(&models.FileHash{FileID: "b", HashAlgorithm: "SHA-256", HashValue: "aa", CreatedAt: now}).Error)
	require.NoError(t, db.Create(&models.FileHash{FileID: "c", HashAlgorithm: "SHA-256", HashValue: "cc", CreatedAt: now}).Error)

	m.migrations = allMigrations()
	require.NoError(t, m.Migrate(ctx))

	var owners []models.DigestOwner
	require.NoError(t, db.Order("hash_value").Find(&owners).Error)
	require.Len(t, owners, 2)
	assert.Equal(t, "a", owners[0].FileID)
	assert.Equal(t, "c", owners[1].FileID)
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMigrator(db)
	require.NoError(t, m.Migrate(ctx))

	require.NoError(t, m.Rollback(ctx))
	assert.False(t, db.Migrator().HasTable(&models.DigestOwner{}))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)
}

func TestStatusBeforeFirstMigration(t *testing.T) {
	ctx := context.Background()
	m := NewMigrator(openTestDB(t))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.False(t, s.Applied, "migration %d", s.Version)
	}

	assert.Error(t, m.Rollback(ctx))
}
