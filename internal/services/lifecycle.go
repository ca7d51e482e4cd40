package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/lifecycle"
	"abocaments-api/internal/metrics"
	"abocaments-api/internal/models"
)

const (
	maxLastErrorLen = 500
	MaxReplyTextLen = 5000
	MaxReplyFromLen = 200
)

// LifecycleService is the only writer of report status. Every transition is
// applied inside ReportStore.UpdateReport, which re-reads the current status
// first, so a transition whose precondition no longer holds fails instead of
// overwriting a concurrent change.
type LifecycleService struct {
	store  ReportStore
	logger *log.Logger
	now    func() time.Time
}

func NewLifecycleService(store ReportStore) *LifecycleService {
	return &LifecycleService{
		store:  store,
		logger: log.New(os.Stdout, "[Lifecycle] ", log.LstdFlags),
		now:    time.Now,
	}
}

func (s *LifecycleService) Get(ctx context.Context, id string) (*models.Report, error) {
	return s.store.GetReport(ctx, id)
}

// Detail returns the report with its media in index order.
func (s *LifecycleService) Detail(ctx context.Context, id string) (*models.ReportDetail, error) {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	media, err := s.store.ListMedia(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to load media", err)
	}
	return &models.ReportDetail{Report: report, Media: media}, nil
}

func (s *LifecycleService) transition(ctx context.Context, id string, to lifecycle.Status, apply func(*models.Report)) (*models.Report, error) {
	var event string
	report, err := s.store.UpdateReport(ctx, id, func(r *models.Report) error {
		if !lifecycle.CanTransition(r.Status, to) {
			return errors.New(errors.ErrInvalidTransition, fmt.Sprintf("cannot move report from %s to %s", r.Status, to))
		}
		event = lifecycle.EventForTransition(r.Status, to)
		r.Status = to
		r.UpdatedAt = s.now().UTC()
		if apply != nil {
			apply(r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(event)
	s.logger.Printf("Report %s: %s -> %s", id, event, to)
	return report, nil
}

// BeginDispatch moves pending_review -> approved_sending atomically. A second
// concurrent dispatch for the same report gets ErrInvalidTransition.
func (s *LifecycleService) BeginDispatch(ctx context.Context, id string) (*models.Report, error) {
	return s.transition(ctx, id, lifecycle.StatusApprovedSending, nil)
}

func (s *LifecycleService) CompleteDispatch(ctx context.Context, id, incidentID string) (*models.Report, error) {
	return s.transition(ctx, id, lifecycle.StatusSent, func(r *models.Report) {
		r.FccIncidentId = incidentID
		r.DispatchedAt = r.UpdatedAt
		r.LastError = ""
	})
}

// FailDispatch is the compensating edge approved_sending -> pending_review.
func (s *LifecycleService) FailDispatch(ctx context.Context, id, reason string) (*models.Report, error) {
	if reason == "" {
		reason = "dispatch failed"
	}
	return s.transition(ctx, id, lifecycle.StatusPendingReview, func(r *models.Report) {
		r.LastError = truncateRunes(reason, maxLastErrorLen)
	})
}

func (s *LifecycleService) Reject(ctx context.Context, id string) (*models.Report, error) {
	return s.transition(ctx, id, lifecycle.StatusRejected, nil)
}

func (s *LifecycleService) Delete(ctx context.Context, id string) (*models.Report, error) {
	return s.transition(ctx, id, lifecycle.StatusDeleted, nil)
}

// RecordReply stores the reply on any existing report. Only sent and replied
// reports move (or stay) at replied; every other status is left unchanged.
func (s *LifecycleService) RecordReply(ctx context.Context, id, text, from string) (*models.Report, error) {
	var event string
	report, err := s.store.UpdateReport(ctx, id, func(r *models.Report) error {
		now := s.now().UTC()
		r.ReplyText = truncateRunes(text, MaxReplyTextLen)
		r.ReplyFrom = truncateRunes(from, MaxReplyFromLen)
		r.ReplyAt = now
		r.UpdatedAt = now
		event = ""
		if lifecycle.AcceptsReply(r.Status) {
			event = lifecycle.EventForTransition(r.Status, lifecycle.StatusReplied)
			r.Status = lifecycle.StatusReplied
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if event != "" {
		metrics.IncTransition(event)
		s.logger.Printf("Report %s: %s -> %s", id, event, report.Status)
	} else {
		s.logger.Printf("Report %s: reply stored, status %s left unchanged", id, report.Status)
	}
	return report, nil
}
