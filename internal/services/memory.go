package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"abocaments-api/internal/errors"
	"abocaments-api/internal/models"
)

// MemoryStore is an in-process ReportStore and GeocodeStore used for local
// development and tests. A single mutex makes every update a compare-and-set.
type MemoryStore struct {
	mu       sync.Mutex
	reports  map[string]models.Report
	media    map[string][]models.ReportMedia
	geocodes map[string]models.GeocodeCacheEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports:  make(map[string]models.Report),
		media:    make(map[string][]models.ReportMedia),
		geocodes: make(map[string]models.GeocodeCacheEntry),
	}
}

func (m *MemoryStore) CreateReport(ctx context.Context, report *models.Report, media []*models.ReportMedia) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reports[report.Id]; exists {
		return fmt.Errorf("report %s already exists", report.Id)
	}
	rows := make([]models.ReportMedia, 0, len(media))
	for _, md := range media {
		rows = append(rows, *md)
	}
	m.reports[report.Id] = *report
	m.media[report.Id] = rows
	return nil
}

func (m *MemoryStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "report not found")
	}
	return &r, nil
}

func (m *MemoryStore) ListMedia(ctx context.Context, reportID string) ([]*models.ReportMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.media[reportID]
	out := make([]*models.ReportMedia, 0, len(rows))
	for i := range rows {
		md := rows[i]
		out = append(out, &md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *MemoryStore) CountRecentBySubmitter(ctx context.Context, submitterHash string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.reports {
		if r.SubmitterHash == submitterHash && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) UpdateReport(ctx context.Context, id string, mutate func(*models.Report) error) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "report not found")
	}
	if err := mutate(&r); err != nil {
		return nil, err
	}
	m.reports[id] = r
	return &r, nil
}

func (m *MemoryStore) ListUnreconciledMedia(ctx context.Context, limit int) ([]*models.ReportMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.ReportMedia
	for _, rows := range m.media {
		for i := range rows {
			if rows[i].SizeBytes != 0 {
				continue
			}
			md := rows[i]
			out = append(out, &md)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoragePath < out[j].StoragePath })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateMedia(ctx context.Context, media *models.ReportMedia) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.media[media.ReportId]
	for i := range rows {
		if rows[i].Id == media.Id {
			rows[i] = *media
			return nil
		}
	}
	return errors.New(errors.ErrNotFound, "media not found")
}

func (m *MemoryStore) GetGeocode(ctx context.Context, key string) (*models.GeocodeCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.geocodes[key]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "geocode entry not found")
	}
	return &e, nil
}

func (m *MemoryStore) UpsertGeocode(ctx context.Context, entry *models.GeocodeCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.geocodes[entry.Key] = *entry
	return nil
}

// MemoryBlobStore keeps blobs in memory and issues single-use upload tokens.
// It serves PUT /uploads/<path>?token=<token> so local clients can upload.
type MemoryBlobStore struct {
	mu      sync.Mutex
	baseURL string
	blobs   map[string][]byte
	tokens  map[string]memoryToken
	now     func() time.Time
}

type memoryToken struct {
	path    string
	expires time.Time
}

func NewMemoryBlobStore(baseURL string) *MemoryBlobStore {
	return &MemoryBlobStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		blobs:   make(map[string][]byte),
		tokens:  make(map[string]memoryToken),
		now:     time.Now,
	}
}

func (b *MemoryBlobStore) IssueUploadCapability(ctx context.Context, path, contentType string, ttl time.Duration) (models.UploadCapability, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return models.UploadCapability{}, fmt.Errorf("failed to generate upload token: %w", err)
	}
	token := hex.EncodeToString(raw[:])

	b.mu.Lock()
	b.tokens[token] = memoryToken{path: path, expires: b.now().Add(ttl)}
	b.mu.Unlock()

	return models.UploadCapability{
		Path:       path,
		Capability: b.baseURL + "/uploads/" + path + "?token=" + url.QueryEscape(token),
		Method:     http.MethodPut,
		Headers:    map[string]string{"Content-Type": contentType},
	}, nil
}

// Redeem consumes the token and stores data at path.
func (b *MemoryBlobStore) Redeem(path, token string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, issued := range b.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) != 1 {
			continue
		}
		delete(b.tokens, t)
		if issued.path != path || b.now().After(issued.expires) {
			return errors.New(errors.ErrUnauthorized, "upload capability invalid or expired")
		}
		b.blobs[path] = append([]byte(nil), data...)
		return nil
	}
	return errors.New(errors.ErrUnauthorized, "upload capability invalid or expired")
}

// Put stores a blob without a capability.
func (b *MemoryBlobStore) Put(path string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[path] = append([]byte(nil), data...)
}

func (b *MemoryBlobStore) FetchFile(ctx context.Context, path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.blobs[path]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "blob not found")
	}
	return append([]byte(nil), data...), nil
}

func (b *MemoryBlobStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/uploads/")
	data, err := io.ReadAll(io.LimitReader(r.Body, 20<<20))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	if err := b.Redeem(path, r.URL.Query().Get("token"), data); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
