package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/metrics"
	"abocaments-api/internal/models"
)

const (
	maxDescriptionLen  = 2000
	maxDeviceIDLen     = 128
	maxAddressLabelLen = 200
	rateLimitWindow    = time.Hour
	defaultContentType = "image/jpeg"
)

type AdmissionConfig struct {
	Geofence         Geofence
	MaxPhotos        int
	RateLimitPerHour int
	HashSalt         string
}

// AdmissionService validates inbound reports before anything is persisted.
type AdmissionService struct {
	cfg      AdmissionConfig
	store    ReportStore
	issuer   *CapabilityIssuer
	geocoder *GeocodingService
	logger   *log.Logger
	now      func() time.Time
}

func NewAdmissionService(cfg AdmissionConfig, store ReportStore, issuer *CapabilityIssuer, geocoder *GeocodingService) *AdmissionService {
	return &AdmissionService{
		cfg:      cfg,
		store:    store,
		issuer:   issuer,
		geocoder: geocoder,
		logger:   log.New(os.Stdout, "[Admission] ", log.LstdFlags),
		now:      time.Now,
	}
}

// HashSubmitter returns the one-way digest stored instead of the client address.
func HashSubmitter(salt, address string) string {
	sum := sha256.Sum256([]byte(salt + "|" + strings.TrimSpace(address)))
	return hex.EncodeToString(sum[:])
}

// Admit runs honeypot, validation, geofence and rate-limit checks in that
// order and hands the admitted payload to the capability issuer.
func (s *AdmissionService) Admit(ctx context.Context, req models.AdmissionRequest) (*models.AdmissionResponse, error) {
	// Bots get a success-shaped answer with an id that resolves to nothing.
	if strings.TrimSpace(req.Honeypot) != "" {
		s.logger.Printf("Honeypot filled, discarding submission")
		metrics.IncAdmission("honeypot")
		return &models.AdmissionResponse{
			ReportId:           uuid.NewString(),
			UploadCapabilities: []models.UploadCapability{},
		}, nil
	}

	admitted, err := s.validate(req)
	if err != nil {
		metrics.IncAdmission("invalid")
		return nil, err
	}

	distance, inside := s.cfg.Geofence.Check(admitted.Lat, admitted.Lon)
	if !inside {
		metrics.IncAdmission("geofence")
		return nil, errors.New(errors.ErrGeofence, fmt.Sprintf("location is %d m from the service area center, outside the %.0f m radius", distance, s.cfg.Geofence.RadiusM))
	}
	admitted.DistanceM = distance
	admitted.InsideServiceArea = inside

	// Read-then-insert without a lock: concurrent submissions from the same
	// address can both pass. Accepted approximation.
	admitted.SubmitterHash = HashSubmitter(s.cfg.HashSalt, req.ClientAddress)
	since := s.now().UTC().Add(-rateLimitWindow)
	count, err := s.store.CountRecentBySubmitter(ctx, admitted.SubmitterHash, since)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to check rate limit", err)
	}
	if count >= s.cfg.RateLimitPerHour {
		metrics.IncAdmission("rate_limited")
		return nil, errors.New(errors.ErrRateLimited, fmt.Sprintf("at most %d reports per hour are accepted", s.cfg.RateLimitPerHour))
	}

	if admitted.AddressLabel == "" && s.geocoder != nil {
		admitted.AddressLabel = s.geocoder.Lookup(ctx, admitted.Lat, admitted.Lon)
	}

	resp, err := s.issuer.Issue(ctx, admitted)
	if err != nil {
		metrics.IncAdmission("error")
		return nil, err
	}
	metrics.IncAdmission("admitted")
	return resp, nil
}

func (s *AdmissionService) validate(req models.AdmissionRequest) (AdmittedReport, error) {
	if req.Lat == nil || req.Lon == nil {
		return AdmittedReport{}, errors.New(errors.ErrValidation, "lat and lon are required")
	}
	lat, lon := *req.Lat, *req.Lon
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return AdmittedReport{}, errors.New(errors.ErrValidation, "lat must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return AdmittedReport{}, errors.New(errors.ErrValidation, "lon must be between -180 and 180")
	}

	category := models.Category(strings.ToLower(strings.TrimSpace(req.Category)))
	if !category.Valid() {
		return AdmittedReport{}, errors.New(errors.ErrValidation, "category must be one of waste, litter")
	}

	if req.PhotoCount < 1 || req.PhotoCount > s.cfg.MaxPhotos {
		return AdmittedReport{}, errors.New(errors.ErrValidation, fmt.Sprintf("photo_count must be between 1 and %d", s.cfg.MaxPhotos))
	}

	description := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return AdmittedReport{}, errors.New(errors.ErrValidation, fmt.Sprintf("description must be at most %d characters", maxDescriptionLen))
	}

	deviceID := strings.TrimSpace(req.DeviceId)
	if len(deviceID) > maxDeviceIDLen {
		return AdmittedReport{}, errors.New(errors.ErrValidation, fmt.Sprintf("device_id must be at most %d characters", maxDeviceIDLen))
	}

	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if contentType == "" {
		contentType = defaultContentType
	}
	if _, ok := mediaExtensions[contentType]; !ok {
		return AdmittedReport{}, errors.New(errors.ErrValidation, "content_type must be one of image/jpeg, image/png, image/webp, image/heic")
	}

	return AdmittedReport{
		Lat:          lat,
		Lon:          lon,
		Description:  description,
		Category:     category,
		AddressLabel: truncateRunes(strings.TrimSpace(req.AddressLabel), maxAddressLabelLen),
		DeviceId:     deviceID,
		PhotoCount:   req.PhotoCount,
		ContentType:  contentType,
	}, nil
}

// truncateRunes caps s at n characters without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
