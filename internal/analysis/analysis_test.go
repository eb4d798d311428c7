package analysis

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	config "github.com/mwantia/filecheck/internal/config/server"
	"github.com/mwantia/filecheck/pkg/blob"
	"github.com/mwantia/filecheck/pkg/bus"
	"github.com/mwantia/filecheck/pkg/db/store"
	"github.com/mwantia/filecheck/pkg/events"
	"github.com/mwantia/filecheck/pkg/log"
)

type fixture struct {
	store        *store.SQLiteStore
	blobs        *blob.Store
	bus          *bus.MemoryBus
	detector     *Detector
	orchestrator *Orchestrator
	results      *Results
}

func testLogger() log.LoggerService {
	return log.NewLoggerServiceWithWriter("analysis", config.LogServerConfig{Level: "debug"}, io.Discard)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLiteStore(store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "analysis.db")})
	require.NoError(t, err)
	require.NoError(t, st.Connect(ctx))
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	b, err := bus.NewMemoryBus(bus.Options{Partitions: 4, Logger: testLogger()})
	require.NoError(t, err)

	publisher := events.NewPublisher(b, "filecheck/analysis", events.DefaultTopics())
	detector, err := NewDetector(st, publisher, DefaultAlgorithm, testLogger())
	require.NoError(t, err)

	blobs := blob.NewStore(afero.NewMemMapFs())
	return &fixture{
		store:        st,
		blobs:        blobs,
		bus:          b,
		detector:     detector,
		orchestrator: NewOrchestrator(st, blobs, detector, publisher, testLogger()),
		results:      NewResults(st),
	}
}

// upload stores content as a blob and returns the event announcing it.
func (f *fixture) upload(t *testing.T, fileID, content string) events.FileUploaded {
	t.Helper()

	location, err := f.blobs.Put(context.Background(), fileID, "doc.txt", []byte(content))
	require.NoError(t, err)

	return events.FileUploaded{
		FileID:           fileID,
		OriginalFilename: "doc.txt",
		ContentType:      "text/plain",
		Size:             int64(len(content)),
		StoragePath:      location,
	}
}

func (f *fixture) statsEvents(t *testing.T) []events.StatsCalculated {
	t.Helper()

	var out []events.StatsCalculated
	for _, msg := range f.bus.Messages(events.TopicStats) {
		var event events.StatsCalculated
		_, err := events.Decode(msg.Payload, &event)
		require.NoError(t, err)
		out = append(out, event)
	}
	return out
}

func (f *fixture) duplicateEvents(t *testing.T) []events.DuplicateCheckResult {
	t.Helper()

	var out []events.DuplicateCheckResult
	for _, msg := range f.bus.Messages(events.TopicDuplicates) {
		var event events.DuplicateCheckResult
		_, err := events.Decode(msg.Payload, &event)
		require.NoError(t, err)
		out = append(out, event)
	}
	return out
}
