package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort   int
	DatabasePath string
	UploadDir    string // Filesystem root for profile images (file.upload-dir)
	JWTSecret    string
	TokenTTL     time.Duration
	Production   bool
	LogLevel     string

	// Orphan image sweeper.
	OrphanSweepSchedule string
	OrphanGracePeriod   time.Duration

	DiskCheckInterval time.Duration

	CORSAllowedOrigins []string
}

// Load loads configuration from environment variables or sets defaults.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, err
	}

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		return nil, err
	}

	grace, err := time.ParseDuration(getEnv("ORPHAN_GRACE_PERIOD", "30m"))
	if err != nil {
		return nil, err
	}

	diskInterval, err := time.ParseDuration(getEnv("DISK_CHECK_INTERVAL", "5m"))
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerPort:          port,
		DatabasePath:        getEnv("DATABASE_PATH", "./blog.db"),
		UploadDir:           getEnv("FILE_UPLOAD_DIR", "./uploads/profiles"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		TokenTTL:            ttl,
		Production:          getEnv("APP_ENV", "development") == "production",
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		OrphanSweepSchedule: getEnv("ORPHAN_SWEEP_SCHEDULE", "@every 1h"),
		OrphanGracePeriod:   grace,
		DiskCheckInterval:   diskInterval,
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
