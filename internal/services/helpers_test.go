package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"abocaments-api/internal/lifecycle"
	"abocaments-api/internal/models"
)

var testGeofence = Geofence{CenterLat: 41.9794, CenterLon: 2.8214, RadiusM: 8000}

// fakeClock is a settable time source shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// noThrottle lets every upstream call through immediately.
type noThrottle struct{}

func (noThrottle) Wait(ctx context.Context) error { return ctx.Err() }

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// seedReport stores a report in the given status with photoCount jpeg placeholders.
func seedReport(t *testing.T, store *MemoryStore, id string, status lifecycle.Status, photoCount int) *models.Report {
	t.Helper()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	report := &models.Report{
		Id:                id,
		CreatedAt:         now,
		UpdatedAt:         now,
		Status:            status,
		Lat:               41.98,
		Lon:               2.822,
		DistanceM:         86,
		InsideServiceArea: true,
		Description:       "Runes al costat del riu",
		Category:          models.CategoryWaste,
		SubmitterHash:     HashSubmitter("salt", "192.0.2.10"),
		PhotoCount:        photoCount,
	}
	var media []*models.ReportMedia
	for i := 0; i < photoCount; i++ {
		media = append(media, &models.ReportMedia{
			Id:          string(rune('0' + i)),
			ReportId:    id,
			Index:       i,
			StoragePath: MediaPath(id, i, "image/jpeg"),
			ContentType: "image/jpeg",
			CreatedAt:   now,
		})
	}
	if err := store.CreateReport(context.Background(), report, media); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return report
}

func mustGet(t *testing.T, store ReportStore, id string) *models.Report {
	t.Helper()
	r, err := store.GetReport(context.Background(), id)
	if err != nil {
		t.Fatalf("GetReport(%s): %v", id, err)
	}
	return r
}
