package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"abocaments-api/internal/metrics"
	"abocaments-api/internal/models"
)

const (
	geocodeKeyPrecision = 5
	labelSegments       = 3
	maxThrottleWait     = 2 * time.Second
)

// Performs reverse geocoding against a Nominatim-compatible API with a
// two-level cache (in-process TTL cache, then the persistent store) and an
// upstream throttle. Lookups never fail: upstream problems yield "".
type GeocodingService struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	throttle   Throttle
	cache      *CacheService
	store      GeocodeStore
	logger     *log.Logger
	now        func() time.Time
}

// Models the subset of Nominatim's response that we care about.
type NominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func NewGeocodingService(endpoint, userAgent string, throttle Throttle, cache *CacheService, store GeocodeStore) *GeocodingService {
	return &GeocodingService{
		endpoint:   endpoint,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		throttle:   throttle,
		cache:      cache,
		store:      store,
		logger:     log.New(os.Stdout, "[Geocode] ", log.LstdFlags),
		now:        time.Now,
	}
}

// GeocodeKey rounds coordinates to 5 decimals (about 1.1 m).
func GeocodeKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', geocodeKeyPrecision, 64) + "," + strconv.FormatFloat(lon, 'f', geocodeKeyPrecision, 64)
}

// Lookup returns the address label for the coordinates.
// The function:
//  1. rounds the coordinates to the cache key
//  2. checks the in-process cache, then the persistent store
//  3. waits on the throttle (one upstream call per second)
//  4. calls the upstream API and keeps the first three display name segments
//  5. stores the result in both caches
func (g *GeocodingService) Lookup(ctx context.Context, lat, lon float64) string {
	key := GeocodeKey(lat, lon)

	if g.cache != nil {
		if label, ok := g.cache.Get(key); ok {
			metrics.IncGeocodeLookup("hit")
			return label
		}
	}

	if g.store != nil {
		entry, err := g.store.GetGeocode(ctx, key)
		if err == nil && entry != nil {
			if g.cache != nil {
				g.cache.Set(key, entry.Label)
			}
			metrics.IncGeocodeLookup("hit")
			return entry.Label
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, maxThrottleWait)
	err := g.throttle.Wait(waitCtx)
	cancel()
	if err != nil {
		g.logger.Printf("Throttle wait aborted for %s: %v", key, err)
		metrics.IncGeocodeLookup("error")
		return ""
	}

	rlat, _ := strconv.ParseFloat(strconv.FormatFloat(lat, 'f', geocodeKeyPrecision, 64), 64)
	rlon, _ := strconv.ParseFloat(strconv.FormatFloat(lon, 'f', geocodeKeyPrecision, 64), 64)

	label, err := g.fetchLabel(ctx, rlat, rlon)
	if err != nil {
		g.logger.Printf("Upstream lookup failed for %s: %v", key, err)
		metrics.IncGeocodeLookup("error")
		return ""
	}
	metrics.IncGeocodeLookup("miss")

	if g.cache != nil {
		g.cache.Set(key, label)
	}
	if g.store != nil {
		entry := &models.GeocodeCacheEntry{Key: key, Lat: rlat, Lon: rlon, Label: label, UpdatedAt: g.now().UTC()}
		if err := g.store.UpsertGeocode(ctx, entry); err != nil {
			g.logger.Printf("Failed to persist %s: %v", key, err)
		}
	}

	return label
}

// Performs the actual HTTP request and parses the response.
func (g *GeocodingService) fetchLabel(ctx context.Context, lat, lon float64) (string, error) {
	u, err := url.Parse(g.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "18")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}

	// Nominatim's usage policy requires an identifying User-Agent.
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept-Language", "ca,es;q=0.8,en;q=0.5")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var data NominatimResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", err
	}
	if data.Error != "" {
		return "", fmt.Errorf("geocoder error: %s", data.Error)
	}

	return ShortLabel(data.DisplayName), nil
}

// ShortLabel keeps the first three comma-separated segments of a display name.
func ShortLabel(displayName string) string {
	parts := strings.Split(displayName, ",")
	var kept []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, p)
		if len(kept) == labelSegments {
			break
		}
	}
	return strings.Join(kept, ", ")
}
