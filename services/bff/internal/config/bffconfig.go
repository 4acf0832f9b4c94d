package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Upstream is one backend service the gateway fronts.
type Upstream struct {
	Name   string
	Target *url.URL
	// Prefixes are the path prefixes routed to this upstream.
	Prefixes []string
}

type BFFConfig struct {
	Upstreams []Upstream

	RateLimitRPS   float64
	RateLimitBurst int
	CacheTTLSec    int
}

// upstream env vars with their compose-network defaults and routes.
var upstreamDefs = []struct {
	name     string
	envVar   string
	def      string
	prefixes []string
}{
	{"auth", "AUTH_URL", "http://auth:8081", []string{"/v1/auth", "/v1/me"}},
	{"catalog", "CATALOG_URL", "http://catalog:8082", []string{"/v1/books", "/v1/chapters"}},
	{"social", "SOCIAL_URL", "http://social:8083", []string{"/v1/comments", "/v1/likes", "/v1/follows", "/v1/feed"}},
	{"activity", "ACTIVITY_URL", "http://activity:8084", []string{"/v1/reading-progress", "/v1/activity"}},
	{"search", "SEARCH_URL", "http://search:8085", []string{"/v1/search"}},
	{"gdpr", "GDPR_URL", "http://gdpr:8086", []string{"/v1/gdpr"}},
}

func LoadBFF() (BFFConfig, error) {
	cfg := BFFConfig{
		RateLimitRPS:   floatEnv("RATE_LIMIT_RPS", 20),
		RateLimitBurst: intEnv("RATE_LIMIT_BURST", 40),
		CacheTTLSec:    intEnv("CACHE_TTL_SEC", 60),
	}

	for _, def := range upstreamDefs {
		raw := strings.TrimSpace(os.Getenv(def.envVar))
		if raw == "" {
			raw = def.def
		}
		target, err := url.Parse(raw)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return BFFConfig{}, fmt.Errorf("%s: invalid url %q", def.envVar, raw)
		}
		cfg.Upstreams = append(cfg.Upstreams, Upstream{Name: def.name, Target: target, Prefixes: def.prefixes})
	}
	return cfg, nil
}

func intEnv(name string, def int) int {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func floatEnv(name string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}
