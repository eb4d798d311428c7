package analysis

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwantia/filecheck/pkg/db/models"
	"github.com/mwantia/filecheck/pkg/events"
	"github.com/mwantia/filecheck/pkg/failure"
)

func TestNewDetectorAlgorithms(t *testing.T) {
	tests := []struct {
		algorithm string
		want      string
		digestLen int
		valid     bool
	}{
		{"", "SHA-256", 64, true},
		{"SHA-256", "SHA-256", 64, true},
		{"sha-512", "SHA-512", 128, true},
		{"MD5", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			d, err := NewDetector(nil, nil, tt.algorithm, testLogger())
			if !tt.valid {
				require.Error(t, err)
				assert.True(t, failure.Configuration.Has(err))
				assert.False(t, failure.Retryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Algorithm())
			assert.Len(t, d.Digest("hello"), tt.digestLen)
		})
	}
}

func TestDigestIsLowercaseHexSHA256(t *testing.T) {
	d, err := NewDetector(nil, nil, "SHA-256", testLogger())
	require.NoError(t, err)

	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", d.Digest("hello"))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", d.Digest(""))
}

func TestCheckAndRecordSequential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.detector.CheckAndRecord(ctx, "a", "same content")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.False(t, first.IsDuplicate)
	assert.Empty(t, first.MatchedFileID)
	assert.Equal(t, 0.0, first.Similarity)

	second, err := f.detector.CheckAndRecord(ctx, "b", "same content")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, "a", second.MatchedFileID)
	assert.Equal(t, 100.0, second.Similarity)

	third, err := f.detector.CheckAndRecord(ctx, "c", "same content")
	require.NoError(t, err)
	assert.Equal(t, "a", third.MatchedFileID)

	other, err := f.detector.CheckAndRecord(ctx, "d", "different content")
	require.NoError(t, err)
	assert.False(t, other.IsDuplicate)

	assert.Equal(t, []events.DuplicateCheckResult{*first, *second, *third, *other}, f.duplicateEvents(t))
}

func TestCheckAndRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.detector.CheckAndRecord(ctx, "a", "content")
	require.NoError(t, err)
	require.NotNil(t, result)

	again, err := f.detector.CheckAndRecord(ctx, "a", "content")
	require.NoError(t, err)
	assert.Nil(t, again)

	hashes, err := f.store.FindHashesByDigest(ctx, "SHA-256", f.detector.Digest("content"))
	require.NoError(t, err)
	assert.Len(t, hashes, 1)
	assert.Len(t, f.duplicateEvents(t), 1)
}

func TestCheckAndRecordConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ids := []string{"a", "b", "c", "d", "e", "f"}
	results := make([]*events.DuplicateCheckResult, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.detector.CheckAndRecord(ctx, id, "identical")
			assert.NoError(t, err)
			results[i] = result
		}()
	}
	wg.Wait()

	hashes, err := f.store.FindHashesByDigest(ctx, "SHA-256", f.detector.Digest("identical"))
	require.NoError(t, err)
	require.Len(t, hashes, len(ids))

	owner, err := f.store.GetDigestOwner(ctx, "SHA-256", f.detector.Digest("identical"))
	require.NoError(t, err)

	originals := 0
	for _, result := range results {
		require.NotNil(t, result)
		if !result.IsDuplicate {
			originals++
			assert.Equal(t, owner.FileID, result.FileID)
			continue
		}
		assert.Equal(t, owner.FileID, result.MatchedFileID)
	}
	assert.Equal(t, 1, originals)
}

func TestCheckAndRecordLostClaimFallsBackToOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	digest := f.detector.Digest("content")

	// "a" claimed the digest but its hash record is not visible yet.
	won, err := f.store.ClaimDigest(ctx, &models.DigestOwner{HashAlgorithm: "SHA-256", HashValue: digest, FileID: "a"})
	require.NoError(t, err)
	require.True(t, won)

	result, err := f.detector.CheckAndRecord(ctx, "b", "content")
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, "a", result.MatchedFileID)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Envelope) error {
	return failure.ExternalService.New("bus unavailable")
}

func TestCheckAndRecordPublishFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := NewDetector(f.store, failingPublisher{}, "SHA-256", testLogger())
	require.NoError(t, err)

	_, err = d.CheckAndRecord(ctx, "a", "content")
	require.Error(t, err)
	assert.True(t, failure.Retryable(err))

	exists, err := f.store.HashExists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCheckAndRecordWithoutAlgorithm(t *testing.T) {
	_, err := (&Detector{Logger: testLogger()}).CheckAndRecord(context.Background(), "a", "x")
	assert.True(t, failure.Configuration.Has(err))
}
