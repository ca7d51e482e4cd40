package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/metrics"
	"abocaments-api/internal/models"
)

// Agency submits a report with its attachment to the external agency.
type Agency interface {
	Submit(ctx context.Context, report *models.Report, att *Attachment) AgencyResult
}

// DispatchService forwards approved reports to the agency.
type DispatchService struct {
	lifecycle   *LifecycleService
	store       ReportStore
	attachments *AttachmentService
	agency      Agency
	logger      *log.Logger
	now         func() time.Time
}

func NewDispatchService(lifecycle *LifecycleService, store ReportStore, attachments *AttachmentService, agency Agency) *DispatchService {
	return &DispatchService{
		lifecycle:   lifecycle,
		store:       store,
		attachments: attachments,
		agency:      agency,
		logger:      log.New(os.Stdout, "[Dispatch] ", log.LstdFlags),
		now:         time.Now,
	}
}

// Dispatch claims the report with pending_review -> approved_sending, sends
// it, and finishes at sent. Any failure after the claim reverts the report
// to pending_review with lastError set.
func (s *DispatchService) Dispatch(ctx context.Context, id string) (*models.DispatchResponse, error) {
	report, err := s.lifecycle.BeginDispatch(ctx, id)
	if err != nil {
		metrics.IncDispatch("refused")
		return nil, err
	}

	media, err := s.store.ListMedia(ctx, id)
	if err != nil {
		s.revert(ctx, id, "failed to load media")
		metrics.IncDispatch("error")
		return nil, errors.Wrap(errors.ErrInternal, "failed to load media", err)
	}

	att, err := s.attachments.First(ctx, media)
	if err != nil {
		s.revert(ctx, id, "no media available")
		metrics.IncDispatch("no_media")
		return nil, err
	}

	start := s.now()
	result := s.agency.Submit(ctx, report, att)
	metrics.ObserveDispatchLatency(s.now().Sub(start))

	switch r := result.(type) {
	case AgencySuccess:
		if _, err := s.lifecycle.CompleteDispatch(context.WithoutCancel(ctx), id, r.IncidentID); err != nil {
			// The agency has the report; the operator needs the id to reconcile by hand.
			s.logger.Printf("Report %s accepted by agency as %s but not marked sent: %v", id, r.IncidentID, err)
			metrics.IncDispatch("error")
			return nil, errors.Wrap(errors.ErrInternal, "report sent but status update failed", err)
		}
		s.logger.Printf("Report %s sent, incident %s", id, r.IncidentID)
		metrics.IncDispatch("sent")
		return &models.DispatchResponse{Success: true, ExternalCorrelationId: r.IncidentID}, nil

	case AgencyFailure:
		reason := "agency rejected the submission: " + r.String()
		s.revert(ctx, id, reason)
		metrics.IncDispatch("failed")
		return nil, errors.New(errors.ErrUpstream, reason)

	default:
		s.revert(ctx, id, "unexpected agency result")
		metrics.IncDispatch("error")
		return nil, errors.New(errors.ErrInternal, fmt.Sprintf("unexpected agency result %T", result))
	}
}

// revert runs the compensating transition even if the request was cancelled.
func (s *DispatchService) revert(ctx context.Context, id, reason string) {
	if _, err := s.lifecycle.FailDispatch(context.WithoutCancel(ctx), id, reason); err != nil {
		s.logger.Printf("Failed to revert report %s after %q: %v", id, reason, err)
		return
	}
	s.logger.Printf("Report %s reverted to pending_review: %s", id, reason)
}
