// Package ingest accepts files into the pipeline: it stores the blob, records
// the metadata and announces the upload.
package ingest

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mwantia/filecheck/pkg/db/models"
	"github.com/mwantia/filecheck/pkg/db/store"
	"github.com/mwantia/filecheck/pkg/events"
	"github.com/mwantia/filecheck/pkg/failure"
	"github.com/mwantia/filecheck/pkg/log"
)

// BlobStore persists file contents.
type BlobStore interface {
	Put(ctx context.Context, id, name string, data []byte) (string, error)
	Get(ctx context.Context, location string) ([]byte, error)
	Exists(ctx context.Context, location string) (bool, error)
	Delete(ctx context.Context, location string) error
}

// EventPublisher publishes pipeline events.
type EventPublisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

type Service struct {
	store     store.MetadataStore
	blobs     BlobStore
	publisher EventPublisher
	limiter   *rate.Limiter
	newID     func() string

	Logger log.LoggerService `fabric:"logger:ingest"`
}

// NewService creates the ingestion service. A nil limiter accepts uploads
// without throttling.
func NewService(st store.MetadataStore, blobs BlobStore, publisher EventPublisher, limiter *rate.Limiter, logger log.LoggerService) *Service {
	return &Service{
		store:     st,
		blobs:     blobs,
		publisher: publisher,
		limiter:   limiter,
		newID:     uuid.NewString,
		Logger:    logger,
	}
}

// NewLimiter returns a token bucket for perSecond uploads, or nil when
// perSecond is zero.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Ingest stores data under a fresh file identifier. The blob and metadata are
// committed before the uploaded event is published; a publish failure leaves
// both in place and is returned to the caller.
func (s *Service) Ingest(ctx context.Context, data []byte, originalName, contentType, userID string) (*models.File, error) {
	name, err := CleanFilename(originalName)
	if err != nil {
		s.Logger.Warn("Rejected upload: %v", err)
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, failure.ExternalService.New("upload of '%s' throttled: %w", name, err)
		}
	}

	if len(data) == 0 {
		s.Logger.Warn("Accepting empty file '%s'", name)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	fileID := s.newID()
	location, err := s.blobs.Put(ctx, fileID, name, data)
	if err != nil {
		return nil, failure.ExternalService.New("failed to store '%s': %w", name, err)
	}
	s.Logger.Info("Stored file '%s' as %s", name, location)

	file := &models.File{
		FileID:          fileID,
		OriginalName:    name,
		ContentType:     contentType,
		Size:            int64(len(data)),
		StorageLocation: location,
	}
	if userID != "" {
		file.UserID = &userID
	}

	if err := s.store.CreateFile(ctx, file); err != nil {
		if derr := s.blobs.Delete(ctx, location); derr != nil {
			s.Logger.Error("Failed to remove orphaned blob %s: %v", location, derr)
		}
		return nil, failure.ExternalService.New("failed to save metadata for %s: %w", fileID, err)
	}
	s.Logger.Info("Saved metadata for %s", fileID)

	if err := s.publisher.Publish(ctx, uploadedEvent(file)); err != nil {
		s.Logger.Error("File %s is stored but its upload was not announced: %v", fileID, err)
		return nil, err
	}

	s.Logger.Debug("Announced upload of %s", fileID)
	return file, nil
}

// Announce republishes the uploaded event of a stored file, for records whose
// original announcement failed. Consumers skip work already recorded, so
// announcing an analysed file again is harmless. A record whose blob is gone
// is InvalidInput.
func (s *Service) Announce(ctx context.Context, fileID string) (*models.File, error) {
	file, err := s.Metadata(ctx, fileID)
	if err != nil {
		return nil, err
	}

	ok, err := s.blobs.Exists(ctx, file.StorageLocation)
	if err != nil {
		return nil, failure.ExternalService.New("failed to look up contents of %s: %w", fileID, err)
	}
	if !ok {
		return nil, failure.InvalidInput.New("contents of %s are missing at %s", fileID, file.StorageLocation)
	}

	if err := s.publisher.Publish(ctx, uploadedEvent(file)); err != nil {
		s.Logger.Error("Failed to announce %s again: %v", fileID, err)
		return nil, err
	}

	s.Logger.Info("Announced upload of %s again", fileID)
	return file, nil
}

func uploadedEvent(file *models.File) events.FileUploaded {
	return events.FileUploaded{
		FileID:           file.FileID,
		OriginalFilename: file.OriginalName,
		ContentType:      file.ContentType,
		Size:             file.Size,
		StoragePath:      file.StorageLocation,
		UserID:           file.Owner(),
	}
}

// Metadata returns the record of fileID, or store.ErrNotFound.
func (s *Service) Metadata(ctx context.Context, fileID string) (*models.File, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, failure.ExternalService.New("failed to load metadata for %s: %w", fileID, err)
	}
	return file, nil
}

// Download returns the record and contents of fileID.
func (s *Service) Download(ctx context.Context, fileID string) (*models.File, []byte, error) {
	file, err := s.Metadata(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.blobs.Get(ctx, file.StorageLocation)
	if err != nil {
		return nil, nil, failure.ExternalService.New("failed to read contents of %s: %w", fileID, err)
	}
	return file, data, nil
}

// List returns file records in ingestion order.
func (s *Service) List(ctx context.Context, limit, offset int) ([]models.File, error) {
	files, err := s.store.ListFiles(ctx, limit, offset)
	if err != nil {
		return nil, failure.ExternalService.New("failed to list files: %w", err)
	}
	return files, nil
}

// CleanFilename normalises separators and keeps the base name. Names that
// contain a parent directory sequence or reduce to nothing are InvalidInput.
func CleanFilename(name string) (string, error) {
	normalised := strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	if strings.Contains(normalised, "..") {
		return "", failure.InvalidInput.New("filename '%s' contains an invalid path sequence", name)
	}

	base := path.Base(path.Clean("/" + normalised))
	if base == "/" || base == "." || base == "" {
		return "", failure.InvalidInput.New("filename '%s' is empty", name)
	}
	return base, nil
}
