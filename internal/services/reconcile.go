package services

import (
	"context"
	"log"
	"os"
	"time"

	"abocaments-api/internal/utils"
)

// ReconcileStats counts what a reconciliation pass did.
type ReconcileStats struct {
	Updated int
	Missing int
	Errors  int
}

// MediaReconciler fills size and dimensions of uploaded placeholders.
type MediaReconciler struct {
	store  ReportStore
	blobs  BlobStore
	logger *log.Logger
	now    func() time.Time
}

func NewMediaReconciler(store ReportStore, blobs BlobStore) *MediaReconciler {
	return &MediaReconciler{
		store:  store,
		blobs:  blobs,
		logger: log.New(os.Stdout, "[Reconcile] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Run handles up to limit placeholders with zero size. Placeholders whose
// blob was never uploaded are counted as missing and left untouched.
func (mr *MediaReconciler) Run(ctx context.Context, limit int, dryRun bool) (ReconcileStats, error) {
	var stats ReconcileStats

	pending, err := mr.store.ListUnreconciledMedia(ctx, limit)
	if err != nil {
		return stats, err
	}

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		data, err := mr.blobs.FetchFile(ctx, m.StoragePath)
		if err != nil {
			mr.logger.Printf("No upload for %s: %v", m.StoragePath, err)
			stats.Missing++
			continue
		}

		width, height, err := utils.ImageDimensions(data, m.ContentType)
		if err != nil {
			// Size is still worth recording for unreadable images.
			mr.logger.Printf("Failed to read dimensions of %s: %v", m.StoragePath, err)
			stats.Errors++
		}

		if dryRun {
			mr.logger.Printf("[DRY] Would update %s: %d bytes, %dx%d", m.StoragePath, len(data), width, height)
			stats.Updated++
			continue
		}

		m.SizeBytes = int64(len(data))
		m.Width, m.Height = width, height
		m.UpdatedAt = mr.now().UTC()
		if err := mr.store.UpdateMedia(ctx, m); err != nil {
			mr.logger.Printf("Failed to update %s: %v", m.StoragePath, err)
			stats.Errors++
			continue
		}
		mr.logger.Printf("Updated %s: %d bytes, %dx%d", m.StoragePath, len(data), width, height)
		stats.Updated++
	}

	return stats, nil
}
