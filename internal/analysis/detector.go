package analysis

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"

	"github.com/mwantia/filecheck/pkg/db/models"
	"github.com/mwantia/filecheck/pkg/db/store"
	"github.com/mwantia/filecheck/pkg/events"
	"github.com/mwantia/filecheck/pkg/failure"
	"github.com/mwantia/filecheck/pkg/log"
)

// DefaultAlgorithm is the digest used when none is configured.
const DefaultAlgorithm = "SHA-256"

var algorithms = map[string]func() hash.Hash{
	"SHA-256": sha256.New,
	"SHA-512": sha512.New,
}

// EventPublisher publishes pipeline events.
type EventPublisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Detector finds files whose content exactly matches an earlier file.
type Detector struct {
	store     store.MetadataStore
	publisher EventPublisher
	algorithm string
	newHash   func() hash.Hash

	Logger log.LoggerService `fabric:"logger:detector"`
}

// NewDetector fails with a Configuration error for an unknown algorithm.
func NewDetector(st store.MetadataStore, publisher EventPublisher, algorithm string, logger log.LoggerService) (*Detector, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	algorithm = strings.ToUpper(algorithm)
	newHash, ok := algorithms[algorithm]
	if !ok {
		return nil, failure.Configuration.New("unsupported digest algorithm '%s'", algorithm)
	}

	return &Detector{
		store:     st,
		publisher: publisher,
		algorithm: algorithm,
		newHash:   newHash,
		Logger:    logger,
	}, nil
}

func (d *Detector) Algorithm() string {
	return d.algorithm
}

// Digest returns the lowercase hex digest of the UTF-8 bytes of text.
func (d *Detector) Digest(text string) string {
	h := d.newHash()
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// CheckAndRecord records the digest of text for fileID and publishes whether
// an earlier file had the same digest. It returns nil without publishing when
// fileID was already checked.
//
// The first file to claim a digest owns it. A file that loses the claim is a
// duplicate even when the owner's hash record is not yet visible to it.
func (d *Detector) CheckAndRecord(ctx context.Context, fileID, text string) (*events.DuplicateCheckResult, error) {
	if d.newHash == nil {
		return nil, failure.Configuration.New("no digest algorithm configured")
	}

	digest := d.Digest(text)
	var result *events.DuplicateCheckResult

	err := d.store.Transaction(ctx, func(tx store.MetadataStore) error {
		exists, err := tx.HashExists(ctx, fileID)
		if err != nil {
			return failure.ExternalService.New("failed to look up hash for %s: %w", fileID, err)
		}
		if exists {
			d.Logger.Warn("Duplicate check for %s already performed, skipping", fileID)
			return nil
		}

		won, err := tx.ClaimDigest(ctx, &models.DigestOwner{
			HashAlgorithm: d.algorithm,
			HashValue:     digest,
			FileID:        fileID,
		})
		if err != nil {
			return failure.ExternalService.New("failed to claim digest for %s: %w", fileID, err)
		}

		matched, err := d.firstMatch(ctx, tx, fileID, digest, won)
		if err != nil {
			return err
		}

		created, err := tx.CreateHash(ctx, &models.FileHash{
			FileID:        fileID,
			HashAlgorithm: d.algorithm,
			HashValue:     digest,
		})
		if err != nil {
			return failure.ExternalService.New("failed to record hash for %s: %w", fileID, err)
		}
		if !created {
			d.Logger.Warn("Hash for %s was recorded concurrently, skipping", fileID)
			return nil
		}

		result = &events.DuplicateCheckResult{FileID: fileID}
		if matched != "" {
			result.IsDuplicate = true
			result.MatchedFileID = matched
			result.Similarity = 100.0
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	if result.IsDuplicate {
		d.Logger.Info("File %s duplicates %s", fileID, result.MatchedFileID)
	} else {
		d.Logger.Debug("File %s has no earlier duplicate", fileID)
	}

	if err := d.publisher.Publish(ctx, *result); err != nil {
		return nil, err
	}
	return result, nil
}

// firstMatch returns the oldest other file with digest, falling back to the
// digest owner when the claim was lost.
func (d *Detector) firstMatch(ctx context.Context, tx store.MetadataStore, fileID, digest string, won bool) (string, error) {
	hashes, err := tx.FindHashesByDigest(ctx, d.algorithm, digest)
	if err != nil {
		return "", failure.ExternalService.New("failed to find matches for %s: %w", fileID, err)
	}
	for _, h := range hashes {
		if h.FileID != fileID {
			return h.FileID, nil
		}
	}

	if won {
		return "", nil
	}

	owner, err := tx.GetDigestOwner(ctx, d.algorithm, digest)
	if err != nil {
		return "", failure.ExternalService.New("failed to load digest owner for %s: %w", fileID, err)
	}
	if owner.FileID == fileID {
		return "", nil
	}
	return owner.FileID, nil
}
