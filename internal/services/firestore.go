package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/models"
)

const mediaSubcollection = "media"

type FirestoreService struct {
	client             *firestore.Client
	reportsCollection  string
	geocodesCollection string
}

func NewFirestoreService(client *firestore.Client, reportsCollection, geocodesCollection string) *FirestoreService {
	return &FirestoreService{
		client:             client,
		reportsCollection:  reportsCollection,
		geocodesCollection: geocodesCollection,
	}
}

func (fs *FirestoreService) reportRef(id string) *firestore.DocumentRef {
	return fs.client.Collection(fs.reportsCollection).Doc(id)
}

// Creates the report document and its media sub-collection in one transaction.
func (fs *FirestoreService) CreateReport(ctx context.Context, report *models.Report, media []*models.ReportMedia) error {
	ref := fs.reportRef(report.Id)
	err := fs.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(ref, report); err != nil {
			return err
		}
		for _, md := range media {
			if err := tx.Create(ref.Collection(mediaSubcollection).Doc(md.Id), md); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// Retrieves a report by document ID.
func (fs *FirestoreService) GetReport(ctx context.Context, id string) (*models.Report, error) {
	doc, err := fs.reportRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.New(errors.ErrNotFound, "report not found")
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report models.Report
	if err := doc.DataTo(&report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// Lists the media placeholders of a report ordered by index.
func (fs *FirestoreService) ListMedia(ctx context.Context, reportID string) ([]*models.ReportMedia, error) {
	iter := fs.reportRef(reportID).Collection(mediaSubcollection).OrderBy("index", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var results []*models.ReportMedia
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate media: %w", err)
		}

		var md models.ReportMedia
		if err := doc.DataTo(&md); err != nil {
			return nil, fmt.Errorf("failed to parse media %s: %w", doc.Ref.ID, err)
		}
		results = append(results, &md)
	}
	return results, nil
}

// Counts reports of one submitter created at or after since, using a server-side aggregation.
func (fs *FirestoreService) CountRecentBySubmitter(ctx context.Context, submitterHash string, since time.Time) (int, error) {
	query := fs.client.Collection(fs.reportsCollection).
		Where("submitterHash", "==", submitterHash).
		Where("createdAt", ">=", since)

	results, err := query.NewAggregationQuery().WithCount("recent").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}

	raw, ok := results["recent"]
	if !ok {
		return 0, fmt.Errorf("count aggregation missing from result")
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count aggregation type %T", raw)
	}
	return int(value.GetIntegerValue()), nil
}

// Re-reads the report inside a transaction and writes it back after mutate.
// Firestore retries the transaction on contention, so mutate must be
// side-effect free apart from changing the report.
func (fs *FirestoreService) UpdateReport(ctx context.Context, id string, mutate func(*models.Report) error) (*models.Report, error) {
	ref := fs.reportRef(id)
	var updated models.Report

	err := fs.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.New(errors.ErrNotFound, "report not found")
			}
			return err
		}

		var report models.Report
		if err := doc.DataTo(&report); err != nil {
			return fmt.Errorf("failed to parse report: %w", err)
		}
		if err := mutate(&report); err != nil {
			return err
		}
		updated = report
		return tx.Set(ref, &report)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Lists media rows across all reports whose upload has not been reconciled yet.
func (fs *FirestoreService) ListUnreconciledMedia(ctx context.Context, limit int) ([]*models.ReportMedia, error) {
	query := fs.client.CollectionGroup(mediaSubcollection).Where("sizeBytes", "==", 0)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var results []*models.ReportMedia
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate media: %w", err)
		}

		var md models.ReportMedia
		if err := doc.DataTo(&md); err != nil {
			log.Printf("[Firestore] Skipping unreadable media document %s: %v", doc.Ref.Path, err)
			continue
		}
		results = append(results, &md)
	}
	return results, nil
}

func (fs *FirestoreService) UpdateMedia(ctx context.Context, media *models.ReportMedia) error {
	ref := fs.reportRef(media.ReportId).Collection(mediaSubcollection).Doc(media.Id)
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "sizeBytes", Value: media.SizeBytes},
		{Path: "width", Value: media.Width},
		{Path: "height", Value: media.Height},
		{Path: "updatedAt", Value: media.UpdatedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.New(errors.ErrNotFound, "media not found")
		}
		return fmt.Errorf("failed to update media: %w", err)
	}
	return nil
}

func (fs *FirestoreService) geocodeRef(key string) *firestore.DocumentRef {
	// "/" is not allowed in document ids; keys only contain digits, '-', '.' and ','.
	return fs.client.Collection(fs.geocodesCollection).Doc(key)
}

func (fs *FirestoreService) GetGeocode(ctx context.Context, key string) (*models.GeocodeCacheEntry, error) {
	doc, err := fs.geocodeRef(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.New(errors.ErrNotFound, "geocode entry not found")
		}
		return nil, fmt.Errorf("failed to get geocode entry: %w", err)
	}

	var entry models.GeocodeCacheEntry
	if err := doc.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("failed to parse geocode entry: %w", err)
	}
	return &entry, nil
}

func (fs *FirestoreService) UpsertGeocode(ctx context.Context, entry *models.GeocodeCacheEntry) error {
	if _, err := fs.geocodeRef(entry.Key).Set(ctx, entry); err != nil {
		return fmt.Errorf("failed to upsert geocode entry %s: %w", strconv.Quote(entry.Key), err)
	}
	return nil
}
