package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/models"
	"abocaments-api/internal/utils"
)

// Attachment is the photo sent to the agency with a dispatch.
type Attachment struct {
	Media       *models.ReportMedia
	File        *utils.Prepared
	CapturedAt  time.Time
	HasCaptured bool
}

// Filename is the name the attachment is submitted under.
func (a *Attachment) Filename() string {
	return fmt.Sprintf("%s-%d.jpg", a.Media.ReportId, a.Media.Index)
}

type AttachmentService struct {
	blobs        BlobStore
	maxDimension int
	logger       *log.Logger
}

func NewAttachmentService(blobs BlobStore, maxDimension int) *AttachmentService {
	return &AttachmentService{
		blobs:        blobs,
		maxDimension: maxDimension,
		logger:       log.New(os.Stdout, "[Attachment] ", log.LstdFlags),
	}
}

// First returns the first media item, in index order, that downloads and
// decodes. Items never uploaded or not decodable are skipped.
func (s *AttachmentService) First(ctx context.Context, media []*models.ReportMedia) (*Attachment, error) {
	for _, m := range media {
		data, err := s.blobs.FetchFile(ctx, m.StoragePath)
		if err != nil {
			s.logger.Printf("Skipping %s: %v", m.StoragePath, err)
			continue
		}

		prepared, err := utils.PrepareAttachment(data, m.ContentType, s.maxDimension)
		if err != nil {
			s.logger.Printf("Skipping %s: %v", m.StoragePath, err)
			continue
		}

		att := &Attachment{Media: m, File: prepared}
		if t, err := utils.CaptureTime(data, m.ContentType); err == nil {
			att.CapturedAt = t
			att.HasCaptured = true
		}
		return att, nil
	}
	return nil, errors.New(errors.ErrNoMedia, "no media available")
}
