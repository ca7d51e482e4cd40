package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/lifecycle"
	"abocaments-api/internal/models"
)

var mediaExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/heic": "heic",
}

// AdmittedReport is a validated, geofenced admission ready to be persisted.
type AdmittedReport struct {
	Lat               float64
	Lon               float64
	DistanceM         int
	InsideServiceArea bool
	Description       string
	Category          models.Category
	AddressLabel      string
	SubmitterHash     string
	DeviceId          string
	PhotoCount        int
	ContentType       string
}

// CapabilityIssuer persists admitted reports and issues one upload
// capability per expected photo.
type CapabilityIssuer struct {
	store     ReportStore
	blobs     BlobStore
	uploadTTL time.Duration
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

func NewCapabilityIssuer(store ReportStore, blobs BlobStore, uploadTTL time.Duration) *CapabilityIssuer {
	return &CapabilityIssuer{
		store:     store,
		blobs:     blobs,
		uploadTTL: uploadTTL,
		logger:    log.New(os.Stdout, "[Capability] ", log.LstdFlags),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// MediaPath is the deterministic storage path of photo index of a report.
func MediaPath(reportID string, index int, contentType string) string {
	ext, ok := mediaExtensions[contentType]
	if !ok {
		ext = "bin"
	}
	return fmt.Sprintf("reports/%s/%d.%s", reportID, index, ext)
}

// Issue signs every capability first and only then writes the report and its
// placeholders in one atomic store call, so a signing failure leaves nothing behind.
func (ci *CapabilityIssuer) Issue(ctx context.Context, admitted AdmittedReport) (*models.AdmissionResponse, error) {
	id := ci.newID()
	now := ci.now().UTC()

	caps := make([]models.UploadCapability, 0, admitted.PhotoCount)
	media := make([]*models.ReportMedia, 0, admitted.PhotoCount)
	for i := 0; i < admitted.PhotoCount; i++ {
		path := MediaPath(id, i, admitted.ContentType)
		capability, err := ci.blobs.IssueUploadCapability(ctx, path, admitted.ContentType, ci.uploadTTL)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInternal, "failed to issue upload capability", err)
		}
		caps = append(caps, capability)
		media = append(media, &models.ReportMedia{
			Id:          strconv.Itoa(i),
			ReportId:    id,
			Index:       i,
			StoragePath: path,
			ContentType: admitted.ContentType,
			CreatedAt:   now,
		})
	}

	report := &models.Report{
		Id:                id,
		CreatedAt:         now,
		UpdatedAt:         now,
		Status:            lifecycle.StatusPendingReview,
		Lat:               admitted.Lat,
		Lon:               admitted.Lon,
		DistanceM:         admitted.DistanceM,
		InsideServiceArea: admitted.InsideServiceArea,
		AddressLabel:      admitted.AddressLabel,
		Description:       admitted.Description,
		Category:          admitted.Category,
		SubmitterHash:     admitted.SubmitterHash,
		DeviceId:          admitted.DeviceId,
		PhotoCount:        admitted.PhotoCount,
	}

	if err := ci.store.CreateReport(ctx, report, media); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to persist report", err)
	}

	ci.logger.Printf("Created report %s with %d upload capabilities", id, len(caps))
	return &models.AdmissionResponse{ReportId: id, UploadCapabilities: caps}, nil
}
