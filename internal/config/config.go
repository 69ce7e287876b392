package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Conversation flow
	ChatFlow    string
	ThankYouURL string

	// Lead submission (Google Apps Script spreadsheet endpoint)
	SheetsScriptURL string
	CampaignName    string

	// WhatsApp handoff
	WhatsAppURL string

	// Session lifecycle
	SessionIdleTTL  time.Duration
	SessionSweep    time.Duration
	AllowedOrigins  []string
	AdminJWTSecret  string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	TranscriptStore bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		ChatFlow:    strings.ToLower(strings.TrimSpace(getEnv("CHAT_FLOW", "symptoms"))),
		ThankYouURL: getEnv("THANK_YOU_URL", "/thank-you"),

		SheetsScriptURL: getEnv("SHEETS_SCRIPT_URL", ""),
		CampaignName:    getEnv("CAMPAIGN_NAME", "Chatbot"),

		WhatsAppURL: getEnv("WHATSAPP_URL", "https://wa.me/971551548684"),

		SessionIdleTTL:  getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
		SessionSweep:    getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		TranscriptStore: getEnvAsBool("TRANSCRIPT_STORE_ENABLED", true),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated environment variable.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
