package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type Config struct {
	Port                    string
	StoreBackend            string // firestore or memory
	FirebaseProjectID       string
	FirebaseBucketName      string
	FirebaseCredentialsPath string
	FirebaseCredentialsJSON string // For Vercel: raw JSON string
	ReportsCollection       string
	GeocodeCollection       string
	AllowedOrigins          []string
	IsVercel                bool // Detected via VERCEL env var

	// Admission
	ServiceCenterLat  float64
	ServiceCenterLon  float64
	ServiceRadiusM    float64
	MaxPhotos         int
	RateLimitPerHour  int
	SubmitterHashSalt string
	UploadURLTTL      time.Duration
	PublicRPS         float64
	PublicBurst       int

	// Operators and webhooks
	OperatorJWTSecret  string
	OperatorRole       string
	ReplyWebhookSecret string
	InboundEmailSecret string
	ReplyCallbackURL   string // empty: replies are recorded in-process

	// Agency
	AgencyEndpoint         string
	AgencyTimeout          time.Duration
	AgencyPhone            string
	AgencyContactName      string
	AgencyReplyLocal       string
	AgencyReplyDomain      string
	AgencyLanguage         string
	AttachmentMaxDimension int

	// Geocoding
	GeocoderURL                 string
	GeocoderUserAgent           string
	GeocodeCacheTTL             time.Duration
	GeocodeCacheCleanupInterval time.Duration
	GeocodeOnAdmission          bool // fill empty address labels during admission

	// Optional shared geocoding throttle
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads configuration from environment variables and .env file.
// It loads the .env file if present, then populates the Config struct.
// Returns an error if required configuration is missing.
func Load() (*Config, error) {
	LoadEnvFile()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads the .env file if it exists (ignore error if file doesn't exist)
func LoadEnvFile() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

// FromEnv builds a Config from the current environment without validating it.
func FromEnv() *Config {
	return &Config{
		Port:                    getEnv("PORT", "8080"),
		StoreBackend:            strings.ToLower(getEnv("STORE_BACKEND", BackendFirestore)),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseBucketName:      getEnv("FIREBASE_BUCKET_NAME", ""),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "firebase-service-account.json"),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
		ReportsCollection:       getEnv("FIRESTORE_REPORTS_COLLECTION", "reports"),
		GeocodeCollection:       getEnv("FIRESTORE_GEOCODE_COLLECTION", "geocode_cache"),
		AllowedOrigins:          getList("ALLOWED_ORIGINS", []string{"*"}),
		IsVercel:                getEnv("VERCEL", "") != "",

		ServiceCenterLat:  getFloatEnv("SERVICE_CENTER_LAT", 41.9794),
		ServiceCenterLon:  getFloatEnv("SERVICE_CENTER_LON", 2.8214),
		ServiceRadiusM:    getFloatEnv("SERVICE_RADIUS_M", 8000),
		MaxPhotos:         getIntEnv("MAX_PHOTOS", 3),
		RateLimitPerHour:  getIntEnv("RATE_LIMIT_PER_HOUR", 10),
		SubmitterHashSalt: getEnv("SUBMITTER_HASH_SALT", ""),
		UploadURLTTL:      getDurationEnv("UPLOAD_URL_TTL", 15*time.Minute),
		PublicRPS:         getFloatEnv("PUBLIC_RPS", 1),
		PublicBurst:       getIntEnv("PUBLIC_BURST", 5),

		OperatorJWTSecret:  getEnv("OPERATOR_JWT_SECRET", ""),
		OperatorRole:       getEnv("OPERATOR_ROLE", "operator"),
		ReplyWebhookSecret: getEnv("REPLY_WEBHOOK_SECRET", ""),
		InboundEmailSecret: getEnv("INBOUND_EMAIL_SECRET", ""),
		ReplyCallbackURL:   getEnv("REPLY_CALLBACK_URL", ""),

		AgencyEndpoint:         getEnv("AGENCY_ENDPOINT", ""),
		AgencyTimeout:          getDurationEnv("AGENCY_TIMEOUT", 20*time.Second),
		AgencyPhone:            getEnv("AGENCY_PHONE", ""),
		AgencyContactName:      getEnv("AGENCY_CONTACT_NAME", ""),
		AgencyReplyLocal:       getEnv("AGENCY_REPLY_LOCAL", ""),
		AgencyReplyDomain:      getEnv("AGENCY_REPLY_DOMAIN", ""),
		AgencyLanguage:         getEnv("AGENCY_LANGUAGE", "ca"),
		AttachmentMaxDimension: getIntEnv("ATTACHMENT_MAX_DIMENSION", 2048),

		GeocoderURL:                 getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org/reverse"),
		GeocoderUserAgent:           getEnv("GEOCODER_USER_AGENT", ""),
		GeocodeCacheTTL:             getDurationEnv("GEOCODE_CACHE_TTL", 24*time.Hour),
		GeocodeCacheCleanupInterval: getDurationEnv("GEOCODE_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		GeocodeOnAdmission:          getBoolEnv("GEOCODE_ON_ADMISSION", true),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}

	if c.ServiceCenterLat < -90 || c.ServiceCenterLat > 90 || c.ServiceCenterLon < -180 || c.ServiceCenterLon > 180 {
		return fmt.Errorf("SERVICE_CENTER_LAT/SERVICE_CENTER_LON are out of range")
	}
	if c.ServiceRadiusM <= 0 {
		return fmt.Errorf("SERVICE_RADIUS_M must be positive")
	}
	if c.MaxPhotos < 1 {
		return fmt.Errorf("MAX_PHOTOS must be at least 1")
	}
	if c.RateLimitPerHour < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_HOUR must be at least 1")
	}
	if c.SubmitterHashSalt == "" {
		return fmt.Errorf("SUBMITTER_HASH_SALT is required")
	}
	if c.UploadURLTTL <= 0 {
		return fmt.Errorf("UPLOAD_URL_TTL must be positive")
	}
	if c.OperatorJWTSecret == "" {
		return fmt.Errorf("OPERATOR_JWT_SECRET is required")
	}
	if c.ReplyWebhookSecret == "" {
		return fmt.Errorf("REPLY_WEBHOOK_SECRET is required")
	}
	if c.AgencyEndpoint == "" {
		return fmt.Errorf("AGENCY_ENDPOINT is required")
	}
	if c.AgencyReplyLocal == "" || c.AgencyReplyDomain == "" {
		return fmt.Errorf("AGENCY_REPLY_LOCAL and AGENCY_REPLY_DOMAIN are required")
	}
	if c.GeocoderUserAgent == "" {
		return fmt.Errorf("GEOCODER_USER_AGENT is required")
	}
	if c.GeocodeCacheTTL <= 0 {
		return fmt.Errorf("GEOCODE_CACHE_TTL must be positive")
	}
	if c.GeocodeCacheCleanupInterval <= 0 {
		return fmt.Errorf("GEOCODE_CACHE_CLEANUP_INTERVAL must be positive")
	}
	return nil
}

// ValidateStore checks the store backend settings. Firebase settings are
// only required by the firestore backend.
func (c *Config) ValidateStore() error {
	switch c.StoreBackend {
	case BackendFirestore:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required")
		}
		if c.FirebaseBucketName == "" {
			return fmt.Errorf("FIREBASE_BUCKET_NAME is required")
		}
		if c.FirebaseCredentialsJSON == "" && c.FirebaseCredentialsPath == "" {
			return fmt.Errorf("either FIREBASE_CREDENTIALS_JSON or FIREBASE_CREDENTIALS_PATH must be set")
		}
		if c.ReportsCollection == "" || c.GeocodeCollection == "" {
			return fmt.Errorf("FIRESTORE_REPORTS_COLLECTION and FIRESTORE_GEOCODE_COLLECTION are required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendFirestore, BackendMemory, c.StoreBackend)
	}
	return nil
}

// Retrieves an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// Retrieves a duration from environment variable or returns a default value.
// It supports both time.Duration format (e.g., "10m", "12h") and integer minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// Retrieves a comma-separated list from environment variable or returns a default value.
// Entries are trimmed and empty entries dropped.
func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Retrieves a boolean from environment variable or returns a default value.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
