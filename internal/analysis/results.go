package analysis

import (
	"context"
	"errors"

	"github.com/mwantia/filecheck/pkg/db/store"
)

// Result is the combined analysis outcome of one file.
type Result struct {
	FileID         string `json:"fileId"                  yaml:"file_id"`
	ParagraphCount int    `json:"paragraphCount"          yaml:"paragraph_count"`
	WordCount      int    `json:"wordCount"               yaml:"word_count"`
	CharCount      int    `json:"charCount"               yaml:"char_count"`

	// Checked is false until duplicate detection recorded a hash.
	Checked       bool   `json:"checked"                 yaml:"checked"`
	IsDuplicate   bool   `json:"isDuplicate"             yaml:"is_duplicate"`
	MatchedFileID string `json:"matchedFileId,omitempty" yaml:"matched_file_id,omitempty"`
	Algorithm     string `json:"algorithm,omitempty"     yaml:"algorithm,omitempty"`
	Digest        string `json:"digest,omitempty"        yaml:"digest,omitempty"`
}

// Results reads analysis outcomes back from the metadata store.
type Results struct {
	store store.MetadataStore
}

func NewResults(st store.MetadataStore) *Results {
	return &Results{store: st}
}

// Get returns store.ErrNotFound until stats have been computed for fileID.
func (r *Results) Get(ctx context.Context, fileID string) (*Result, error) {
	stats, err := r.store.GetStats(ctx, fileID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		FileID:         fileID,
		ParagraphCount: stats.ParagraphCount,
		WordCount:      stats.WordCount,
		CharCount:      stats.CharCount,
	}

	hash, err := r.store.GetHash(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Checked = true
	result.Algorithm = hash.HashAlgorithm
	result.Digest = hash.HashValue

	hashes, err := r.store.FindHashesByDigest(ctx, hash.HashAlgorithm, hash.HashValue)
	if err != nil {
		return nil, err
	}
	for _, h := range hashes {
		if h.ID >= hash.ID {
			break
		}
		if h.FileID != fileID {
			result.IsDuplicate = true
			result.MatchedFileID = h.FileID
			return result, nil
		}
	}

	owner, err := r.store.GetDigestOwner(ctx, hash.HashAlgorithm, hash.HashValue)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if owner != nil && owner.FileID != fileID {
		result.IsDuplicate = true
		result.MatchedFileID = owner.FileID
	}
	return result, nil
}

// Duplicates lists the other files sharing fileID's digest, oldest first.
func (r *Results) Duplicates(ctx context.Context, fileID string) ([]string, error) {
	hash, err := r.store.GetHash(ctx, fileID)
	if err != nil {
		return nil, err
	}

	hashes, err := r.store.FindHashesByDigest(ctx, hash.HashAlgorithm, hash.HashValue)
	if err != nil {
		return nil, err
	}

	var others []string
	for _, h := range hashes {
		if h.FileID != fileID {
			others = append(others, h.FileID)
		}
	}
	return others, nil
}
