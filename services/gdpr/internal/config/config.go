package config

import (
	"os"
	"strings"
	"time"
)

type GDPRConfig struct {
	// DataRequestTTL bounds how long a data-access request stays open.
	DataRequestTTL time.Duration
	// DeletionGrace is the window during which a deletion request can
	// still be cancelled before the purge runs.
	DeletionGrace time.Duration
	SweepInterval time.Duration
}

func LoadGDPR() GDPRConfig {
	return GDPRConfig{
		DataRequestTTL: parseDurationWithDefault(os.Getenv("DATA_REQUEST_TTL"), 30*24*time.Hour),
		DeletionGrace:  parseDurationWithDefault(os.Getenv("DELETION_GRACE"), 14*24*time.Hour),
		SweepInterval:  parseDurationWithDefault(os.Getenv("SWEEP_INTERVAL"), time.Hour),
	}
}

func parseDurationWithDefault(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
