// internal/config/config.go
//
// Environment-driven server configuration.
// main loads .env (godotenv) before calling Load, so values from the file and
// the real environment are read the same way here.

package config

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultSecret     = "dev_secret_change_me"
	defaultRecordsDSN = "file:scramble_results?mode=memory&cache=shared"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Port         string
	LogLevel     string
	LogFormat    string // "json" (default) or "console"
	ClientOrigin string

	JWTSecret  string
	TokenTTL   time.Duration
	CookieName string
	Production bool

	DailySalt   string
	PhrasesFile string // optional override of the embedded phrase table
	RecordsDSN  string
}

// Load reads the configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		Port:         getEnv("PORT", "5175"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		ClientOrigin: getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		JWTSecret:    getEnv("JWT_SECRET", defaultSecret),
		TokenTTL:     time.Duration(envInt("PLAYER_TOKEN_DAYS", 180)) * 24 * time.Hour,
		CookieName:   getEnv("COOKIE_NAME", "scramble_player"),
		Production:   os.Getenv("APP_ENV") == "production",
		DailySalt:    getEnv("DAILY_SALT", "local_dev_salt"),
		PhrasesFile:  os.Getenv("PHRASES_FILE"),
		RecordsDSN:   getEnv("RECORDS_DSN", defaultRecordsDSN),
	}
}

// InsecureSecret reports whether the JWT secret is still the development default.
func (c Config) InsecureSecret() bool { return c.JWTSecret == defaultSecret }

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// envInt parses k as a positive integer, falling back to def.
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
