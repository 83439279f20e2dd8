// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Default catalog endpoints. Overridable for testing against recorded
// payloads or a stub server.
const (
	defaultGamerPowerAPI = "https://www.gamerpower.com/api/giveaways"
	defaultEpicAPI       = "https://store-site-backend-static.ak.epicgames.com/freeGamesPromotions"
)

// Config holds the application configuration.
type Config struct {
	AppHost             string
	AppPort             int
	DatabasePath        string
	LogLevel            string
	GamerPowerAPI       string
	EpicAPI             string
	PollIntervalMinutes int

	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioSMSFrom      string
	TwilioWhatsAppFrom string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present; real environment variables
// take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppHost:            envOrDefault("APP_HOST", "0.0.0.0"),
		DatabasePath:       envOrDefault("DATABASE_PATH", "./data/watcher.db"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		GamerPowerAPI:      envOrDefault("GAMERPOWER_API", defaultGamerPowerAPI),
		EpicAPI:            envOrDefault("EPIC_API", defaultEpicAPI),
		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioSMSFrom:      os.Getenv("TWILIO_SMS_FROM"),
		TwilioWhatsAppFrom: os.Getenv("TWILIO_WHATSAPP_FROM"),
	}

	port, err := envIntOrDefault("APP_PORT", 8000)
	if err != nil {
		return nil, err
	}
	cfg.AppPort = port

	interval, err := envIntOrDefault("POLL_INTERVAL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MINUTES must be positive, got %d", interval)
	}
	cfg.PollIntervalMinutes = interval

	return cfg, nil
}

// TwilioEnabled reports whether Twilio credentials are configured. Without
// them the messaging layer falls back to log-only delivery.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}
