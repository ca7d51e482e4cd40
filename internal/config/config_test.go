package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SUBMITTER_HASH_SALT", "salt")
	t.Setenv("OPERATOR_JWT_SECRET", "jwt-secret")
	t.Setenv("REPLY_WEBHOOK_SECRET", "webhook-secret")
	t.Setenv("AGENCY_ENDPOINT", "https://agency.example.org/incidents")
	t.Setenv("AGENCY_REPLY_LOCAL", "avisos")
	t.Setenv("AGENCY_REPLY_DOMAIN", "example.org")
	t.Setenv("GEOCODER_USER_AGENT", "abocaments-test/1.0")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.RateLimitPerHour != 10 {
		t.Errorf("RateLimitPerHour = %d, want 10", cfg.RateLimitPerHour)
	}
	if cfg.UploadURLTTL != 15*time.Minute {
		t.Errorf("UploadURLTTL = %v, want 15m", cfg.UploadURLTTL)
	}
	if !cfg.GeocodeOnAdmission {
		t.Error("GeocodeOnAdmission should default to true")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v, want [*]", cfg.AllowedOrigins)
	}
}

func TestFromEnvParsesTypedValues(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVICE_RADIUS_M", "2500.5")
	t.Setenv("MAX_PHOTOS", "5")
	t.Setenv("AGENCY_TIMEOUT", "45s")
	t.Setenv("GEOCODE_CACHE_TTL", "30") // integer minutes
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.org, ,https://b.example.org")
	t.Setenv("GEOCODE_ON_ADMISSION", "false")

	cfg := FromEnv()
	if cfg.ServiceRadiusM != 2500.5 {
		t.Errorf("ServiceRadiusM = %v", cfg.ServiceRadiusM)
	}
	if cfg.MaxPhotos != 5 {
		t.Errorf("MaxPhotos = %d", cfg.MaxPhotos)
	}
	if cfg.AgencyTimeout != 45*time.Second {
		t.Errorf("AgencyTimeout = %v", cfg.AgencyTimeout)
	}
	if cfg.GeocodeCacheTTL != 30*time.Minute {
		t.Errorf("GeocodeCacheTTL = %v", cfg.GeocodeCacheTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.org" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.GeocodeOnAdmission {
		t.Error("GeocodeOnAdmission should be false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "sqlite"}, "STORE_BACKEND"},
		{"firestore needs project", map[string]string{"STORE_BACKEND": "firestore"}, "FIREBASE_PROJECT_ID"},
		{"salt required", map[string]string{"SUBMITTER_HASH_SALT": ""}, "SUBMITTER_HASH_SALT"},
		{"radius positive", map[string]string{"SERVICE_RADIUS_M": "-1"}, "SERVICE_RADIUS_M"},
		{"jwt secret required", map[string]string{"OPERATOR_JWT_SECRET": ""}, "OPERATOR_JWT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := FromEnv().Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
