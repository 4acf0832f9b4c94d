package config

import (
	"os"
	"strings"
	"time"
)

type SearchConfig struct {
	MeiliURL        string
	MeiliAPIKey     string
	ReindexInterval time.Duration
	// ReindexOnce runs a full reindex at startup before serving.
	ReindexOnce bool
}

func LoadSearch() SearchConfig {
	meiliURL := strings.TrimSpace(os.Getenv("MEILI_URL"))
	if meiliURL == "" {
		meiliURL = "http://meilisearch:7700"
	}

	interval := 24 * time.Hour
	if v := strings.TrimSpace(os.Getenv("REINDEX_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		}
	}

	once := os.Getenv("REINDEX_ONCE")
	return SearchConfig{
		MeiliURL:        meiliURL,
		MeiliAPIKey:     strings.TrimSpace(os.Getenv("MEILI_API_KEY")),
		ReindexInterval: interval,
		ReindexOnce:     once == "true" || once == "1",
	}
}
