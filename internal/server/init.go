package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"abocaments-api/internal/config"
	"abocaments-api/internal/handlers"
	"abocaments-api/internal/metrics"
	"abocaments-api/internal/middleware"
	"abocaments-api/internal/router"
	"abocaments-api/internal/services"
)

const (
	geocodeInterval   = time.Second
	geocodeThrottleID = "abocaments:geocode:slot"
)

// Services holds all initialized services for the application
type Services struct {
	Reports     services.ReportStore
	Geocodes    services.GeocodeStore
	Blobs       services.BlobStore
	Cache       *services.CacheService
	Geocoding   *services.GeocodingService
	Admission   *services.AdmissionService
	Lifecycle   *services.LifecycleService
	Dispatch    *services.DispatchService
	Replies     *services.ReplyNormalizer
	MemoryBlobs *services.MemoryBlobStore // Set only for the memory backend

	closers []func() error
}

// Close releases clients opened by InitServices.
func (s *Services) Close() {
	if s.Cache != nil {
		s.Cache.Close()
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Printf("[Server] Close error: %v", err)
		}
	}
}

// Firebase client options from the configured credentials.
func clientOptions(cfg *config.Config) []option.ClientOption {
	if cfg.FirebaseCredentialsJSON != "" {
		// Use JSON credentials from environment variable (preferred for Vercel)
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON))}
	}
	// Use credentials file (for local development)
	return []option.ClientOption{option.WithCredentialsFile(cfg.FirebaseCredentialsPath)}
}

// InitStores opens the report, geocode and blob stores for the configured backend.
func InitStores(ctx context.Context, cfg *config.Config) (*Services, error) {
	svcs := &Services{}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Println("[Server] Using in-memory stores; data is lost on restart")
		mem := services.NewMemoryStore()
		blobs := services.NewMemoryBlobStore(fmt.Sprintf("http://localhost:%s", cfg.Port))
		svcs.Reports, svcs.Geocodes = mem, mem
		svcs.Blobs, svcs.MemoryBlobs = blobs, blobs

	case config.BackendFirestore:
		opts := clientOptions(cfg)

		// Initialize Firebase Storage client
		storageClient, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}

		// Initialize Firestore client
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProjectID, opts...)
		if err != nil {
			storageClient.Close()
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}

		fs := services.NewFirestoreService(firestoreClient, cfg.ReportsCollection, cfg.GeocodeCollection)
		svcs.Reports, svcs.Geocodes = fs, fs
		svcs.Blobs = services.NewStorageService(storageClient, cfg.FirebaseBucketName)
		svcs.closers = append(svcs.closers, firestoreClient.Close, storageClient.Close)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return svcs, nil
}

// InitServices initializes all application services based on configuration.
// Returns the initialized services or an error if initialization fails.
func InitServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	svcs, err := InitStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var throttle services.Throttle = services.NewLocalThrottle(geocodeInterval)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[Server] Redis unreachable (%v), geocoding throttle stays per instance", err)
			rdb.Close()
		} else {
			log.Println("[Server] Geocoding throttle shared through Redis")
			throttle = services.NewRedisThrottle(rdb, geocodeThrottleID, geocodeInterval)
			svcs.closers = append(svcs.closers, rdb.Close)
		}
	}

	svcs.Cache = services.NewCacheService(cfg.GeocodeCacheTTL, cfg.GeocodeCacheCleanupInterval)
	svcs.Geocoding = services.NewGeocodingService(cfg.GeocoderURL, cfg.GeocoderUserAgent, throttle, svcs.Cache, svcs.Geocodes)

	admissionGeocoder := svcs.Geocoding
	if !cfg.GeocodeOnAdmission {
		admissionGeocoder = nil
	}
	issuer := services.NewCapabilityIssuer(svcs.Reports, svcs.Blobs, cfg.UploadURLTTL)
	svcs.Admission = services.NewAdmissionService(services.AdmissionConfig{
		Geofence: services.Geofence{
			CenterLat: cfg.ServiceCenterLat,
			CenterLon: cfg.ServiceCenterLon,
			RadiusM:   cfg.ServiceRadiusM,
		},
		MaxPhotos:        cfg.MaxPhotos,
		RateLimitPerHour: cfg.RateLimitPerHour,
		HashSalt:         cfg.SubmitterHashSalt,
	}, svcs.Reports, issuer, admissionGeocoder)

	svcs.Lifecycle = services.NewLifecycleService(svcs.Reports)

	agency := services.NewAgencyClient(services.AgencyConfig{
		Endpoint:    cfg.AgencyEndpoint,
		Timeout:     cfg.AgencyTimeout,
		Phone:       cfg.AgencyPhone,
		ContactName: cfg.AgencyContactName,
		ReplyLocal:  cfg.AgencyReplyLocal,
		ReplyDomain: cfg.AgencyReplyDomain,
		Language:    cfg.AgencyLanguage,
	})
	attachments := services.NewAttachmentService(svcs.Blobs, cfg.AttachmentMaxDimension)
	svcs.Dispatch = services.NewDispatchService(svcs.Lifecycle, svcs.Reports, attachments, agency)

	svcs.Replies = services.NewReplyNormalizer(NewReplyForwarder(cfg, svcs.Lifecycle))

	return svcs, nil
}

// NewReplyForwarder posts to REPLY_CALLBACK_URL when set, otherwise records
// replies in this process.
func NewReplyForwarder(cfg *config.Config, lifecycle *services.LifecycleService) services.ReplyForwarder {
	if cfg.ReplyCallbackURL != "" {
		return services.NewHTTPReplyForwarder(cfg.ReplyCallbackURL, cfg.ReplyWebhookSecret)
	}
	return services.NewLocalReplyForwarder(lifecycle)
}

// CreateHandler creates an HTTP handler with all middleware applied
func CreateHandler(svcs *Services, cfg *config.Config) http.Handler {
	metrics.Register()

	// Initialize handlers
	h := handlers.New(svcs.Admission, svcs.Lifecycle, svcs.Dispatch, svcs.Geocoding, svcs.Replies)

	opts := router.Options{
		OperatorJWTSecret:  cfg.OperatorJWTSecret,
		OperatorRole:       cfg.OperatorRole,
		ReplyWebhookSecret: cfg.ReplyWebhookSecret,
		InboundEmailSecret: cfg.InboundEmailSecret,
		PublicLimiter:      middleware.NewRateLimiter(rate.Limit(cfg.PublicRPS), cfg.PublicBurst),
	}
	if svcs.MemoryBlobs != nil {
		opts.Uploads = svcs.MemoryBlobs
	}

	// Setup router with middleware
	mux := router.Setup(h, opts)

	// Apply global middleware, outermost last
	wrappedHandler := middleware.Recover(mux)
	wrappedHandler = metrics.Instrument(wrappedHandler)
	wrappedHandler = middleware.Logger(wrappedHandler)
	wrappedHandler = middleware.RequestID(wrappedHandler)
	wrappedHandler = middleware.CORS(wrappedHandler, cfg.AllowedOrigins)

	return wrappedHandler
}
