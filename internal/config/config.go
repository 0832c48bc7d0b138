// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the pipeline binaries need to talk to their
// external collaborators.
type Config struct {
	// Language-model provider.
	GeminiAPIKey string
	GeminiModel  string

	// Image provider.
	IdeogramAPIKey string

	// Durable storage.
	AWSRegion string
	S3Bucket  string

	// Course-authoring platform.
	PlatformBaseURL string
	PlatformToken   string // optional default bearer token
	PlatformOrgID   string

	// Fan-out tuning.
	MaxParallelism int
	JobTimeout     time.Duration
	MaxRetries     int

	// HTTP server.
	ListenAddr string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore error if .env doesn't exist

	cfg := &Config{
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     envOr("GEMINI_MODEL", "gemini-2.5-flash"),
		IdeogramAPIKey:  os.Getenv("IDEOGRAM_API_KEY"),
		AWSRegion:       envOr("AWS_REGION", "us-east-1"),
		S3Bucket:        envOr("S3_BUCKET_NAME", "courseforge-assets"),
		PlatformBaseURL: envOr("PLATFORM_BASE_URL", "https://admin.lisaapp.net"),
		PlatformToken:   os.Getenv("PLATFORM_AUTHORIZATION_TOKEN"),
		PlatformOrgID:   os.Getenv("PLATFORM_ORG_ID"),
		MaxParallelism:  envInt("COURSEFORGE_MAX_PARALLELISM", 4),
		JobTimeout:      envDuration("COURSEFORGE_JOB_TIMEOUT", 90*time.Second),
		MaxRetries:      envInt("COURSEFORGE_MAX_RETRIES", 2),
		ListenAddr:      envOr("COURSEFORGE_LISTEN_ADDR", ":8080"),
	}

	if cfg.MaxParallelism < 1 {
		return nil, fmt.Errorf("COURSEFORGE_MAX_PARALLELISM must be at least 1")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
