package config

import (
	"os"
	"strings"
	"time"
)

// CatalogConfig carries the catalog-specific knobs on top of the shared
// platform config.
type CatalogConfig struct {
	// UploadBaseURL is the asset gateway endpoint signed cover-upload
	// URLs point at.
	UploadBaseURL string
	// UploadTTL bounds how long a signed upload URL stays valid.
	UploadTTL time.Duration
	// ScheduleInterval is how often the publish scheduler polls for
	// due chapters.
	ScheduleInterval time.Duration
}

func LoadCatalog() CatalogConfig {
	cfg := CatalogConfig{
		UploadBaseURL:    strings.TrimSpace(os.Getenv("UPLOAD_BASE_URL")),
		UploadTTL:        15 * time.Minute,
		ScheduleInterval: time.Minute,
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = "http://assets:8085/upload"
	}
	if raw := strings.TrimSpace(os.Getenv("UPLOAD_TTL")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.UploadTTL = d
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SCHEDULE_INTERVAL")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.ScheduleInterval = d
		}
	}
	return cfg
}
