package agent

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/mwantia/filecheck/internal/config/server"
	"github.com/mwantia/filecheck/pkg/failure"
	"github.com/mwantia/filecheck/pkg/log"
)

func testConfig(t *testing.T) *config.BaseServerConfig {
	t.Helper()

	cfg := config.GetServerDefault()
	dir := t.TempDir()
	cfg.Metadata.SQLite.Path = filepath.Join(dir, "filecheck.db")
	cfg.Blob.Root = filepath.Join(dir, "blobs")
	cfg.Bus.RetryBackoff = "10ms"
	cfg.ShutdownTimeout = "5s"
	cfg.Log.Level = "debug"
	return &cfg
}

func TestAgentPipeline(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	cfg := testConfig(t)

	a := NewAgentWithLogger(cfg, log.NewLoggerServiceWithWriter("filecheck", cfg.Log, &out))
	require.NoError(t, a.Setup(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	content := []byte("Hello world.\n\nGoodbye world.")
	first, err := a.Ingest.Ingest(ctx, content, "first.txt", "text/plain", "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		result, err := a.Results.Get(ctx, first.FileID)
		return err == nil && result.Checked
	}, 5*time.Second, 10*time.Millisecond)

	second, err := a.Ingest.Ingest(ctx, content, "second.txt", "text/plain", "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		result, err := a.Results.Get(ctx, second.FileID)
		return err == nil && result.Checked
	}, 5*time.Second, 10*time.Millisecond)

	result, err := a.Results.Get(ctx, second.FileID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ParagraphCount)
	assert.Equal(t, 4, result.WordCount)
	assert.Equal(t, 28, result.CharCount)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, first.FileID, result.MatchedFileID)

	cancel()
	require.NoError(t, <-done)

	shutdown, cancelShutdown := context.WithTimeout(ctx, 5*time.Second)
	defer cancelShutdown()
	require.NoError(t, a.Cleanup(shutdown))

	assert.Contains(t, out.String(), "[filecheck/detector]")
	assert.Contains(t, out.String(), "[filecheck/analysis]")
	assert.Contains(t, out.String(), "[filecheck/ingest]")
}

func TestAgentRejectsUnknownDigest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.DigestAlgorithm = "MD5"

	a := NewAgentWithLogger(cfg, log.NewLoggerServiceWithWriter("filecheck", cfg.Log, &bytes.Buffer{}))
	err := a.Setup(context.Background())
	require.Error(t, err)
	assert.True(t, failure.Configuration.Has(err))
	require.NoError(t, a.Cleanup(context.Background()))
}

func TestAgentRunRequiresSetup(t *testing.T) {
	cfg := testConfig(t)
	a := NewAgentWithLogger(cfg, log.NewLoggerServiceWithWriter("filecheck", cfg.Log, &bytes.Buffer{}))

	assert.Error(t, a.Run(context.Background()))
}

func TestAgentServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	a := NewAgentWithLogger(cfg, log.NewLoggerServiceWithWriter("filecheck", cfg.Log, &bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestAgentPendingMemoryBus(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := NewAgentWithLogger(cfg, log.NewLoggerServiceWithWriter("filecheck", cfg.Log, &bytes.Buffer{}))

	_, err := a.Pending(ctx)
	assert.Error(t, err)

	require.NoError(t, a.Setup(ctx))
	t.Cleanup(func() { a.Cleanup(context.Background()) })

	_, err = a.Ingest.Ingest(ctx, []byte("queued"), "queued.txt", "text/plain", "")
	require.NoError(t, err)

	pending, err := a.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	require.Eventually(t, func() bool {
		pending, err := a.Pending(ctx)
		return err == nil && pending == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestAgentRedisBus(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Bus.Type = "redis"
	cfg.Bus.Redis.Address = mr.Addr()
	cfg.Bus.Redis.Block = "50ms"

	a := NewAgentWithLogger(cfg, log.NewLoggerServiceWithWriter("filecheck", cfg.Log, &bytes.Buffer{}))
	require.NoError(t, a.Setup(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	file, err := a.Ingest.Ingest(ctx, []byte("over redis"), "redis.txt", "text/plain", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		result, err := a.Results.Get(ctx, file.FileID)
		return err == nil && result.Checked
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		pending, err := a.Pending(ctx)
		return err == nil && pending == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, a.Cleanup(context.Background()))
}
