package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	ServiceName          string
	ExactBaseURL         string
	ExactClientID        string
	ExactClientSecret    string
	RedirectURI          string
	MrAuthURL            string
	RefreshInterval      time.Duration
	RefreshRetryInterval time.Duration
	RefreshFailFast      bool
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ServiceName:          getEnv("SERVICE_NAME", "exactauth"),
		ExactBaseURL:         getEnv("EXACT_BASE_URL", "https://start.exactonline.nl"),
		ExactClientID:        os.Getenv("EXACT_CLIENT_ID"),
		ExactClientSecret:    os.Getenv("EXACT_CLIENT_SECRET"),
		RedirectURI:          os.Getenv("EXACT_REDIRECT_URI"),
		MrAuthURL:            os.Getenv("MRAUTH_URL"),
		RefreshInterval:      getDuration("REFRESH_INTERVAL", 15*time.Second),
		RefreshRetryInterval: getDuration("REFRESH_RETRY_INTERVAL", 5*time.Second),
		RefreshFailFast:      getBool("REFRESH_FAIL_FAST", false),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ExactClientID == "" || cfg.ExactClientSecret == "" {
		return Config{}, fmt.Errorf("EXACT_CLIENT_ID and EXACT_CLIENT_SECRET are required")
	}
	if cfg.RedirectURI == "" {
		return Config{}, fmt.Errorf("EXACT_REDIRECT_URI is required")
	}
	if cfg.MrAuthURL == "" {
		return Config{}, fmt.Errorf("MRAUTH_URL is required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
