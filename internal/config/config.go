// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	SessionTTL            time.Duration
	MaxConversationLength int
	SweepInterval         time.Duration

	Cache   CacheConfig
	Routing RoutingConfig

	// AnswerServiceURL enables the external answer-composition service.
	// Empty means specialists answer with their own phrasing.
	AnswerServiceURL     string
	AnswerServiceTimeout time.Duration
}

// CacheConfig holds the per-family cache TTLs.
type CacheConfig struct {
	OrderTTL       time.Duration
	EmailSearchTTL time.Duration
	FAQSearchTTL   time.Duration
	AgentStateTTL  time.Duration
	FAQSearchLimit int
}

// RoutingConfig holds the routing thresholds.
type RoutingConfig struct {
	OrderThreshold     float64
	FAQThreshold       float64
	FallbackConfidence float64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/supportd.db"),

		SessionTTL:            getEnvDuration("SESSION_TTL", time.Hour),
		MaxConversationLength: getEnvInt("MAX_CONVERSATION_LENGTH", 50),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", time.Minute),

		Cache: CacheConfig{
			OrderTTL:       getEnvDuration("ORDER_CACHE_TTL", 30*time.Minute),
			EmailSearchTTL: getEnvDuration("EMAIL_SEARCH_CACHE_TTL", 10*time.Minute),
			FAQSearchTTL:   getEnvDuration("FAQ_CACHE_TTL", time.Hour),
			AgentStateTTL:  getEnvDuration("AGENT_STATE_TTL", time.Hour),
			FAQSearchLimit: getEnvInt("FAQ_SEARCH_LIMIT", 5),
		},
		Routing: RoutingConfig{
			OrderThreshold:     getEnvFloat("ROUTING_ORDER_THRESHOLD", 0.3),
			FAQThreshold:       getEnvFloat("ROUTING_FAQ_THRESHOLD", 0.2),
			FallbackConfidence: getEnvFloat("ROUTING_FALLBACK_CONFIDENCE", 0.5),
		},

		AnswerServiceURL:     getEnv("ANSWER_SERVICE_URL", ""),
		AnswerServiceTimeout: getEnvDuration("ANSWER_SERVICE_TIMEOUT", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.MaxConversationLength <= 0 {
		return fmt.Errorf("MAX_CONVERSATION_LENGTH must be > 0")
	}
	if c.Cache.FAQSearchLimit <= 0 {
		return fmt.Errorf("FAQ_SEARCH_LIMIT must be > 0")
	}
	if c.Routing.OrderThreshold <= 0 || c.Routing.FAQThreshold <= 0 {
		return fmt.Errorf("routing thresholds must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("90s", "1h") or a bare
// number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
