package store

import (
	"context"
	"errors"

	"github.com/mwantia/filecheck/pkg/db/models"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// MetadataStore defines the interface for database operations
type MetadataStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error

	// Transaction runs fn against a store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx MetadataStore) error) error

	// File operations
	CreateFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, fileID string) (*models.File, error)
	ListFiles(ctx context.Context, limit, offset int) ([]models.File, error)

	// Stats operations
	CreateStats(ctx context.Context, stats *models.FileStats) (bool, error)
	GetStats(ctx context.Context, fileID string) (*models.FileStats, error)
	StatsExists(ctx context.Context, fileID string) (bool, error)

	// Hash operations
	CreateHash(ctx context.Context, hash *models.FileHash) (bool, error)
	HashExists(ctx context.Context, fileID string) (bool, error)
	GetHash(ctx context.Context, fileID string) (*models.FileHash, error)
	FindHashesByDigest(ctx context.Context, algorithm, value string) ([]models.FileHash, error)

	// Digest ownership
	ClaimDigest(ctx context.Context, owner *models.DigestOwner) (bool, error)
	GetDigestOwner(ctx context.Context, algorithm, value string) (*models.DigestOwner, error)
}
