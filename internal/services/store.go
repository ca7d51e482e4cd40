package services

import (
	"context"
	"time"

	"abocaments-api/internal/models"
)

// ReportStore is the queryable store holding reports and their media.
// Implementations return errors.ErrNotFound for unknown ids.
type ReportStore interface {
	// CreateReport persists a report together with its media placeholders in one atomic write.
	CreateReport(ctx context.Context, report *models.Report, media []*models.ReportMedia) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListMedia(ctx context.Context, reportID string) ([]*models.ReportMedia, error)
	CountRecentBySubmitter(ctx context.Context, submitterHash string, since time.Time) (int, error)
	// UpdateReport re-reads the report and applies mutate atomically. If mutate
	// returns an error nothing is written and the error is returned as is.
	UpdateReport(ctx context.Context, id string, mutate func(*models.Report) error) (*models.Report, error)
	ListUnreconciledMedia(ctx context.Context, limit int) ([]*models.ReportMedia, error)
	UpdateMedia(ctx context.Context, media *models.ReportMedia) error
}

// GeocodeStore persists reverse-geocoding results keyed by rounded coordinates.
type GeocodeStore interface {
	GetGeocode(ctx context.Context, key string) (*models.GeocodeCacheEntry, error)
	UpsertGeocode(ctx context.Context, entry *models.GeocodeCacheEntry) error
}

// BlobStore holds the uploaded photos. Clients write directly with an
// issued capability; this service only reads.
type BlobStore interface {
	IssueUploadCapability(ctx context.Context, path, contentType string, ttl time.Duration) (models.UploadCapability, error)
	FetchFile(ctx context.Context, path string) ([]byte, error)
}
