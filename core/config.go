package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// Text provider credentials (all optional - the dispatcher skips
	// providers whose key is absent)
	GoogleAPIKey     string
	ChatAPIKey       string
	ChatAPIKeyBackup string

	// Image provider credentials (optional - image generation degrades
	// to text rendering when absent)
	ImageAPIKey string

	// Provider endpoints and models
	GeminiModel string
	ChatBaseURL string
	ChatModel   string
	ImageGenURL string

	// Image generation parameters
	ImageGenWidth  int
	ImageGenHeight int
	ImageGenSteps  int

	// Scene prompt generation
	SceneTwoStage bool

	// Server configuration
	Port                 int
	DatabasePath         string
	MigrationsPath       string
	DefaultUserEmail     string
	AllowSelfSignedCerts bool

	// Timeouts
	AITimeout       time.Duration
	DownloadTimeout time.Duration
}

// Helper function to get environment variable with default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Helper function to parse integer environment variable with default value
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Helper function to parse duration environment variable with default value
func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. No credential is strictly required: every AI provider is
// optional, and the pipeline degrades gracefully down to text rendering.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		GoogleAPIKey:     os.Getenv("GOOGLE_API_KEY"),
		ChatAPIKey:       os.Getenv("CHAT_API_KEY"),
		ChatAPIKeyBackup: os.Getenv("CHAT_API_KEY_BACKUP"),
		ImageAPIKey:      os.Getenv("IMAGE_API_KEY"),

		GeminiModel: getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		ChatBaseURL: getEnvOrDefault("CHAT_BASE_URL", "https://api.scitely.com/v1"),
		ChatModel:   getEnvOrDefault("CHAT_MODEL", "deepseek-v3.2"),
		ImageGenURL: getEnvOrDefault("IMAGE_GEN_URL", "https://gateway.pixazo.ai/flux-1-schnell/v1/getData"),

		ImageGenWidth:  parseIntEnv("IMAGE_GEN_WIDTH", 1024),
		ImageGenHeight: parseIntEnv("IMAGE_GEN_HEIGHT", 448),
		ImageGenSteps:  parseIntEnv("IMAGE_GEN_STEPS", 14),

		SceneTwoStage: getEnvOrDefault("SCENE_TWO_STAGE", "true") == "true",

		Port:                 parseIntEnv("PORT", 8080),
		DatabasePath:         getEnvOrDefault("DATABASE_PATH", "eink.sqlite"),
		MigrationsPath:       getEnvOrDefault("MIGRATIONS_PATH", "file://store/migrations"),
		DefaultUserEmail:     getEnvOrDefault("DEFAULT_USER_EMAIL", "owner@localhost"),
		AllowSelfSignedCerts: getEnvOrDefault("ALLOW_SELF_SIGNED_CERTS", "false") == "true",

		AITimeout:       parseDurationEnv("AI_TIMEOUT", 30*time.Second),
		DownloadTimeout: parseDurationEnv("DOWNLOAD_TIMEOUT", 60*time.Second),
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.ImageGenWidth <= 0 || cfg.ImageGenHeight <= 0 {
		return nil, fmt.Errorf("IMAGE_GEN_WIDTH/IMAGE_GEN_HEIGHT must be positive, got %dx%d",
			cfg.ImageGenWidth, cfg.ImageGenHeight)
	}
	if cfg.ImageGenSteps < 1 || cfg.ImageGenSteps > 100 {
		return nil, fmt.Errorf("IMAGE_GEN_STEPS must be between 1 and 100, got %d", cfg.ImageGenSteps)
	}

	return cfg, nil
}

// GetHTTPClient returns an HTTP client with the specified timeout configured with TLS settings
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}

// GetDefaultHTTPClient returns an HTTP client with default timeout (30s) configured with TLS settings
func GetDefaultHTTPClient(cfg *Config) *http.Client {
	return GetHTTPClient(cfg, 30*time.Second)
}
