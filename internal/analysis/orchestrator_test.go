package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwantia/filecheck/pkg/db/store"
	"github.com/mwantia/filecheck/pkg/events"
	"github.com/mwantia/filecheck/pkg/failure"
)

func TestOnUploadedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.upload(t, "a", "Hello world.\n\nGoodbye world.")

	require.NoError(t, f.orchestrator.OnUploaded(ctx, event))
	require.NoError(t, f.orchestrator.OnUploaded(ctx, event))

	stats, err := f.store.GetStats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ParagraphCount)
	assert.Equal(t, 4, stats.WordCount)
	assert.Equal(t, 28, stats.CharCount)

	hashes, err := f.store.FindHashesByDigest(ctx, "SHA-256", f.detector.Digest("Hello world.\n\nGoodbye world."))
	require.NoError(t, err)
	assert.Len(t, hashes, 1)

	assert.Equal(t, []events.StatsCalculated{{FileID: "a", ParagraphCount: 2, WordCount: 4, CharCount: 28}}, f.statsEvents(t))
	assert.Len(t, f.duplicateEvents(t), 1)
}

func TestOnUploadedStillChecksDuplicatesWhenStatsExist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	event := f.upload(t, "a", "content")

	// A failed first pass that saved stats but never recorded a hash.
	require.NoError(t, f.orchestrator.computeStats(ctx, "a", "content"))

	require.NoError(t, f.orchestrator.OnUploaded(ctx, event))

	exists, err := f.store.HashExists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Len(t, f.statsEvents(t), 1)
	assert.Len(t, f.duplicateEvents(t), 1)
}

func TestOnUploadedEmptyFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.orchestrator.OnUploaded(ctx, f.upload(t, "a", "")))

	assert.Equal(t, []events.StatsCalculated{{FileID: "a"}}, f.statsEvents(t))
}

func TestOnUploadedMissingBlobIsRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.orchestrator.OnUploaded(ctx, events.FileUploaded{FileID: "a", StoragePath: "a_missing.txt"})
	require.Error(t, err)
	assert.True(t, failure.ExternalService.Has(err))
	assert.True(t, failure.Retryable(err))
	assert.Contains(t, err.Error(), "a")

	exists, err := f.store.StatsExists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, f.statsEvents(t))
}

func TestOnUploadedConfigurationFaultIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.orchestrator.detector = &Detector{store: f.store, Logger: testLogger()}

	require.NoError(t, f.orchestrator.OnUploaded(ctx, f.upload(t, "a", "content")))

	exists, err := f.store.HashExists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, f.duplicateEvents(t))
}

type panickingReader struct{}

func (panickingReader) Get(context.Context, string) ([]byte, error) {
	panic("reader exploded")
}

func TestOnUploadedPanicIsProcessingFailure(t *testing.T) {
	f := newFixture(t)
	f.orchestrator.blobs = panickingReader{}

	err := f.orchestrator.OnUploaded(context.Background(), events.FileUploaded{FileID: "a", StoragePath: "a_x"})
	require.Error(t, err)
	assert.True(t, failure.Processing.Has(err))
	assert.True(t, failure.Retryable(err))
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	router := events.NewRouter(testLogger())
	f.orchestrator.Register(router, events.TopicUploaded)
	require.NoError(t, router.Subscribe(f.bus, "analyzer"))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- f.bus.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ingested := events.NewPublisher(f.bus, "filecheck/ingest", events.DefaultTopics())
	content := "Hello world.\n\nGoodbye world."

	first := f.upload(t, "first", content)
	require.NoError(t, ingested.Publish(ctx, first))
	require.Eventually(t, func() bool {
		ok, err := f.store.HashExists(ctx, "first")
		return err == nil && ok
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ingested.Publish(ctx, f.upload(t, "second", content)))
	require.Eventually(t, func() bool {
		ok, err := f.store.HashExists(ctx, "second")
		return err == nil && ok
	}, 5*time.Second, 10*time.Millisecond)

	// Redelivery of the first upload changes nothing.
	require.NoError(t, ingested.Publish(ctx, first))
	require.Eventually(t, func() bool { return f.bus.Lag(events.TopicUploaded, "analyzer") == 0 }, 5*time.Second, 10*time.Millisecond)

	stats := f.statsEvents(t)
	require.Len(t, stats, 2)
	for _, event := range stats {
		assert.Equal(t, 2, event.ParagraphCount)
		assert.Equal(t, 4, event.WordCount)
		assert.Equal(t, 28, event.CharCount)
	}

	byFile := map[string]events.DuplicateCheckResult{}
	duplicates := f.duplicateEvents(t)
	require.Len(t, duplicates, 2)
	for _, event := range duplicates {
		byFile[event.FileID] = event
	}
	assert.False(t, byFile["first"].IsDuplicate)
	assert.Equal(t, events.DuplicateCheckResult{FileID: "second", IsDuplicate: true, MatchedFileID: "first", Similarity: 100.0}, byFile["second"])

	result, err := f.results.Get(ctx, "second")
	require.NoError(t, err)
	assert.True(t, result.Checked)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, "first", result.MatchedFileID)
	assert.Equal(t, 28, result.CharCount)

	others, err := f.results.Duplicates(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, others)
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.results.Get(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, f.orchestrator.computeStats(ctx, "a", "one two"))
	result, err := f.results.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, result.Checked)
	assert.Equal(t, 2, result.WordCount)

	_, err = f.results.Duplicates(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, f.orchestrator.OnUploaded(ctx, f.upload(t, "a", "one two")))
	require.NoError(t, f.orchestrator.OnUploaded(ctx, f.upload(t, "b", "one two")))

	original, err := f.results.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, original.Checked)
	assert.False(t, original.IsDuplicate)
	assert.Equal(t, "SHA-256", original.Algorithm)
	assert.Equal(t, f.detector.Digest("one two"), original.Digest)

	copied, err := f.results.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, copied.IsDuplicate)
	assert.Equal(t, "a", copied.MatchedFileID)

	duplicates, err := f.results.Duplicates(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, duplicates)
}
