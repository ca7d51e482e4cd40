package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/lifecycle"
	"abocaments-api/internal/models"
)

type admissionFixture struct {
	svc   *AdmissionService
	store *MemoryStore
	clock *fakeClock
}

func newAdmissionFixture(t *testing.T, blobs BlobStore) *admissionFixture {
	t.Helper()
	store := NewMemoryStore()
	if blobs == nil {
		blobs = NewMemoryBlobStore("http://localhost:8080")
	}
	clock := newFakeClock()

	issuer := NewCapabilityIssuer(store, blobs, 15*time.Minute)
	issuer.now = clock.Now

	svc := NewAdmissionService(AdmissionConfig{
		Geofence:         testGeofence,
		MaxPhotos:        3,
		RateLimitPerHour: 10,
		HashSalt:         "salt",
	}, store, issuer, nil)
	svc.now = clock.Now

	return &admissionFixture{svc: svc, store: store, clock: clock}
}

func ptr(f float64) *float64 { return &f }

func validRequest() models.AdmissionRequest {
	return models.AdmissionRequest{
		Lat:           ptr(41.9800),
		Lon:           ptr(2.8220),
		Category:      "waste",
		PhotoCount:    2,
		Description:   "Matalassos i mobles abandonats",
		ClientAddress: "192.0.2.10",
	}
}

func (f *admissionFixture) reportCount() int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return len(f.store.reports)
}

func (f *admissionFixture) mediaCount() int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	n := 0
	for _, rows := range f.store.media {
		n += len(rows)
	}
	return n
}

func TestAdmitCreatesPendingReportWithPlaceholders(t *testing.T) {
	f := newAdmissionFixture(t, nil)

	resp, err := f.svc.Admit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if len(resp.UploadCapabilities) != 2 {
		t.Fatalf("got %d capabilities, want 2", len(resp.UploadCapabilities))
	}
	for i, c := range resp.UploadCapabilities {
		wantPath := fmt.Sprintf("reports/%s/%d.jpg", resp.ReportId, i)
		if c.Path != wantPath {
			t.Errorf("capability %d path = %q, want %q", i, c.Path, wantPath)
		}
		if c.Capability == "" || c.Method != "PUT" {
			t.Errorf("capability %d incomplete: %+v", i, c)
		}
	}

	report := mustGet(t, f.store, resp.ReportId)
	if report.Status != lifecycle.StatusPendingReview {
		t.Errorf("status = %s, want pending_review", report.Status)
	}
	if !report.InsideServiceArea {
		t.Error("expected inside_service_area = true")
	}
	want := int(math.Round(HaversineMeters(testGeofence.CenterLat, testGeofence.CenterLon, 41.98, 2.822)))
	if report.DistanceM != want {
		t.Errorf("distance = %d, want %d", report.DistanceM, want)
	}
	if report.SubmitterHash == "" || strings.Contains(report.SubmitterHash, "192.0.2.10") {
		t.Errorf("submitter hash %q must be a digest", report.SubmitterHash)
	}

	media, _ := f.store.ListMedia(context.Background(), resp.ReportId)
	if len(media) != 2 {
		t.Fatalf("got %d media rows, want 2", len(media))
	}
	for i, m := range media {
		if m.Index != i || m.SizeBytes != 0 || m.Width != 0 || m.Height != 0 {
			t.Errorf("media %d is not a zero-size placeholder: %+v", i, m)
		}
		if m.StoragePath != resp.UploadCapabilities[i].Path {
			t.Errorf("media %d path %q does not match capability %q", i, m.StoragePath, resp.UploadCapabilities[i].Path)
		}
	}
}

func TestAdmitRejectsOutsideServiceArea(t *testing.T) {
	f := newAdmissionFixture(t, nil)

	req := validRequest()
	req.Lat, req.Lon = ptr(41.3874), ptr(2.1686) // Barcelona

	_, err := f.svc.Admit(context.Background(), req)
	if !errors.Is(err, errors.ErrGeofence) {
		t.Fatalf("Admit() error = %v, want ErrGeofence", err)
	}
	if f.reportCount() != 0 || f.mediaCount() != 0 {
		t.Errorf("geofenced admission left %d reports and %d media", f.reportCount(), f.mediaCount())
	}
}

func TestAdmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.AdmissionRequest)
	}{
		{"missing lat", func(r *models.AdmissionRequest) { r.Lat = nil }},
		{"lat out of range", func(r *models.AdmissionRequest) { r.Lat = ptr(90.5) }},
		{"lon out of range", func(r *models.AdmissionRequest) { r.Lon = ptr(-180.1) }},
		{"nan lat", func(r *models.AdmissionRequest) { r.Lat = ptr(math.NaN()) }},
		{"unknown category", func(r *models.AdmissionRequest) { r.Category = "graffiti" }},
		{"zero photos", func(r *models.AdmissionRequest) { r.PhotoCount = 0 }},
		{"too many photos", func(r *models.AdmissionRequest) { r.PhotoCount = 4 }},
		{"long description", func(r *models.AdmissionRequest) { r.Description = strings.Repeat("a", 2001) }},
		{"unsupported content type", func(r *models.AdmissionRequest) { r.ContentType = "image/gif" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdmissionFixture(t, nil)
			req := validRequest()
			tt.mutate(&req)

			_, err := f.svc.Admit(context.Background(), req)
			if !errors.Is(err, errors.ErrValidation) {
				t.Fatalf("Admit() error = %v, want ErrValidation", err)
			}
			if f.reportCount() != 0 {
				t.Error("validation failure persisted a report")
			}
		})
	}
}

func TestAdmitAcceptsBoundaryValues(t *testing.T) {
	f := newAdmissionFixture(t, nil)
	req := validRequest()
	req.PhotoCount = 3
	req.Category = " Litter "
	req.ContentType = "IMAGE/PNG"

	resp, err := f.svc.Admit(context.Background(), req)
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if len(resp.UploadCapabilities) != 3 {
		t.Errorf("got %d capabilities, want 3", len(resp.UploadCapabilities))
	}
	if !strings.HasSuffix(resp.UploadCapabilities[0].Path, ".png") {
		t.Errorf("path %q should carry the png extension", resp.UploadCapabilities[0].Path)
	}
	if r := mustGet(t, f.store, resp.ReportId); r.Category != models.CategoryLitter {
		t.Errorf("category = %q, want litter", r.Category)
	}
}

func TestAdmitHoneypotPersistsNothing(t *testing.T) {
	f := newAdmissionFixture(t, nil)
	req := validRequest()
	req.Honeypot = "http://spam.example"
	// Even invalid input gets the success shape once the honeypot is filled.
	req.Lat = ptr(0)

	resp, err := f.svc.Admit(context.Background(), req)
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if resp.ReportId == "" {
		t.Error("expected a fabricated report id")
	}
	if resp.UploadCapabilities == nil || len(resp.UploadCapabilities) != 0 {
		t.Errorf("expected an empty, non-nil capability list, got %#v", resp.UploadCapabilities)
	}
	if f.reportCount() != 0 || f.mediaCount() != 0 {
		t.Error("honeypot submission persisted data")
	}
	if _, err := f.store.GetReport(context.Background(), resp.ReportId); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("fabricated id should resolve to nothing, got %v", err)
	}
}

func TestAdmitRateLimitWindow(t *testing.T) {
	f := newAdmissionFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := f.svc.Admit(ctx, validRequest()); err != nil {
			t.Fatalf("admission %d: %v", i+1, err)
		}
		f.clock.Advance(time.Minute)
	}

	_, err := f.svc.Admit(ctx, validRequest())
	if !errors.Is(err, errors.ErrRateLimited) {
		t.Fatalf("11th admission error = %v, want ErrRateLimited", err)
	}

	// A different address is unaffected.
	other := validRequest()
	other.ClientAddress = "198.51.100.7"
	if _, err := f.svc.Admit(ctx, other); err != nil {
		t.Fatalf("other submitter: %v", err)
	}

	// First admission was at T+0; at T+61m it has left the window.
	f.clock.Advance(51 * time.Minute)
	if _, err := f.svc.Admit(ctx, validRequest()); err != nil {
		t.Fatalf("admission after the window: %v", err)
	}
}

type failingBlobStore struct {
	failAt int
	calls  int
}

func (b *failingBlobStore) FetchFile(ctx context.Context, path string) ([]byte, error) {
	return nil, errors.New(errors.ErrNotFound, "blob not found")
}

func (b *failingBlobStore) IssueUploadCapability(ctx context.Context, path, contentType string, ttl time.Duration) (models.UploadCapability, error) {
	b.calls++
	if b.calls > b.failAt {
		return models.UploadCapability{}, fmt.Errorf("signing key unavailable")
	}
	return models.UploadCapability{Path: path, Capability: "signed", Method: "PUT"}, nil
}

func TestAdmitCapabilityFailureLeavesNothing(t *testing.T) {
	f := newAdmissionFixture(t, &failingBlobStore{failAt: 1})

	_, err := f.svc.Admit(context.Background(), validRequest())
	if !errors.Is(err, errors.ErrInternal) {
		t.Fatalf("Admit() error = %v, want ErrInternal", err)
	}
	if f.reportCount() != 0 || f.mediaCount() != 0 {
		t.Error("capability failure left a partial report")
	}
}

func TestHashSubmitter(t *testing.T) {
	a := HashSubmitter("salt", "192.0.2.10")
	if a != HashSubmitter("salt", " 192.0.2.10 ") {
		t.Error("hash should ignore surrounding whitespace")
	}
	if a == HashSubmitter("pepper", "192.0.2.10") {
		t.Error("hash should depend on the salt")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestGeofenceCheck(t *testing.T) {
	g := Geofence{CenterLat: 0, CenterLon: 0, RadiusM: 111195}

	// One degree of latitude on a 6371 km sphere is 111195 m.
	d, inside := g.Check(1, 0)
	if d != 111195 || !inside {
		t.Errorf("Check(1, 0) = %d, %v; want 111195, true", d, inside)
	}
	if _, inside := g.Check(1.001, 0); inside {
		t.Error("point just beyond the radius reported inside")
	}
	if d, inside := g.Check(0, 0); d != 0 || !inside {
		t.Errorf("center = %d, %v", d, inside)
	}
}
