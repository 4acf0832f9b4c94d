package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ActivityConfig carries the calendar conventions and backing-store DSNs
// for the activity service.
type ActivityConfig struct {
	// WeekStart is the first day of the writing-challenge week.
	// Default Sunday, matching the product's original convention.
	WeekStart time.Weekday
	// Loc is the time zone all calendar-day arithmetic runs in.
	Loc *time.Location
	// RedisDSN backs event dedup when set.
	RedisDSN string
	// Production forbids the in-memory idempotency fallback.
	Production bool
}

func LoadActivity() (ActivityConfig, error) {
	cfg := ActivityConfig{
		WeekStart:  time.Sunday,
		Loc:        time.Local,
		RedisDSN:   strings.TrimSpace(os.Getenv("REDIS_DSN")),
		Production: strings.EqualFold(strings.TrimSpace(os.Getenv("APP_ENV")), "production"),
	}

	switch ws := strings.ToLower(strings.TrimSpace(os.Getenv("ACTIVITY_WEEK_START"))); ws {
	case "", "sunday":
	case "monday":
		cfg.WeekStart = time.Monday
	default:
		return ActivityConfig{}, fmt.Errorf("ACTIVITY_WEEK_START must be sunday or monday, got %q", ws)
	}

	if tz := strings.TrimSpace(os.Getenv("ACTIVITY_TZ")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return ActivityConfig{}, fmt.Errorf("ACTIVITY_TZ: %w", err)
		}
		cfg.Loc = loc
	}
	return cfg, nil
}
