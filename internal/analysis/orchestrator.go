package analysis

import (
	"context"
	"fmt"

	"github.com/mwantia/filecheck/pkg/db/models"
	"github.com/mwantia/filecheck/pkg/db/store"
	"github.com/mwantia/filecheck/pkg/events"
	"github.com/mwantia/filecheck/pkg/failure"
	"github.com/mwantia/filecheck/pkg/log"
)

// BlobReader fetches stored file contents by location.
type BlobReader interface {
	Get(ctx context.Context, location string) ([]byte, error)
}

// Orchestrator drives a file from Uploaded through StatsComputed to
// DuplicateChecked. Every step is gated by the records already present in the
// metadata store, so replaying an event at any point is safe.
type Orchestrator struct {
	store     store.MetadataStore
	blobs     BlobReader
	detector  *Detector
	publisher EventPublisher

	Logger log.LoggerService `fabric:"logger:analysis"`
}

func NewOrchestrator(st store.MetadataStore, blobs BlobReader, detector *Detector, publisher EventPublisher, logger log.LoggerService) *Orchestrator {
	return &Orchestrator{
		store:     st,
		blobs:     blobs,
		detector:  detector,
		publisher: publisher,
		Logger:    logger,
	}
}

// Register routes uploaded events on topic to OnUploaded.
func (o *Orchestrator) Register(router *events.Router, topic string) {
	events.Handle(router, topic, o.OnUploaded)
}

// OnUploaded handles one uploaded event. A Configuration fault is logged and
// swallowed so the event is acknowledged; all other failures are returned
// classified, with unclassified ones wrapped as Processing.
func (o *Orchestrator) OnUploaded(ctx context.Context, event events.FileUploaded) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = failure.Processing.New("panic while analysing %s: %v", event.FileID, r)
		}
		if err != nil && !failure.Classified(err) {
			err = failure.Processing.New("unexpected error while analysing %s: %w", event.FileID, err)
		}
		if failure.Configuration.Has(err) {
			o.Logger.Error("Aborting analysis of %s: %v", event.FileID, err)
			err = nil
		}
	}()

	o.Logger.Info("Processing file %s", event.FileID)

	exists, err := o.store.StatsExists(ctx, event.FileID)
	if err != nil {
		return failure.ExternalService.New("failed to look up stats for %s: %w", event.FileID, err)
	}

	data, err := o.blobs.Get(ctx, event.StoragePath)
	if err != nil {
		return failure.ExternalService.New("failed to fetch content of %s: %w", event.FileID, err)
	}
	text := DecodeText(data)

	if exists {
		o.Logger.Warn("Statistics for %s already calculated, skipping", event.FileID)
	} else if err := o.computeStats(ctx, event.FileID, text); err != nil {
		return err
	}

	if _, err := o.detector.CheckAndRecord(ctx, event.FileID, text); err != nil {
		return err
	}

	o.Logger.Debug("Finished processing file %s", event.FileID)
	return nil
}

func (o *Orchestrator) computeStats(ctx context.Context, fileID, text string) error {
	stats := ComputeStats(text)

	created, err := o.store.CreateStats(ctx, &models.FileStats{
		FileID:         fileID,
		ParagraphCount: stats.ParagraphCount,
		WordCount:      stats.WordCount,
		CharCount:      stats.CharCount,
	})
	if err != nil {
		return failure.ExternalService.New("failed to save stats for %s: %w", fileID, err)
	}
	if !created {
		o.Logger.Warn("Statistics for %s were saved concurrently, skipping", fileID)
		return nil
	}

	o.Logger.Info("Saved statistics for %s: %d paragraphs, %d words, %d characters",
		fileID, stats.ParagraphCount, stats.WordCount, stats.CharCount)

	err = o.publisher.Publish(ctx, events.StatsCalculated{
		FileID:         fileID,
		ParagraphCount: stats.ParagraphCount,
		WordCount:      stats.WordCount,
		CharCount:      stats.CharCount,
	})
	if err != nil {
		return fmt.Errorf("stats of %s: %w", fileID, err)
	}
	return nil
}
