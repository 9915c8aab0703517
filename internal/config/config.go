// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Session settings
	JWTSecret     string
	JWTExpiration time.Duration
	SessionFile   string

	// Delivery settings: "sim" schedules local receipt timers, "nats" bridges
	// receipts and inbound messages over a NATS connection.
	DeliveryMode string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Simulated delivery delays
	DeliverDelay     time.Duration
	ReadDelay        time.Duration
	ReplyDelayBase   time.Duration
	ReplyDelayJitter time.Duration

	// Reply generation: "canned" or "openai"
	ReplyProvider string
	OpenAIAPIKey  string
	ReplyModel    string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Session
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 24*time.Hour),
		SessionFile:   getEnv("SESSION_FILE", "session.json"),

		// Delivery
		DeliveryMode: getEnv("DELIVERY_MODE", "sim"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Simulated delays
		DeliverDelay:     getDurationEnv("DELIVER_DELAY", time.Second),
		ReadDelay:        getDurationEnv("READ_DELAY", 3*time.Second),
		ReplyDelayBase:   getDurationEnv("REPLY_DELAY_BASE", 2*time.Second),
		ReplyDelayJitter: getDurationEnv("REPLY_DELAY_JITTER", 3*time.Second),

		// Replies
		ReplyProvider: getEnv("REPLY_PROVIDER", "canned"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		ReplyModel:    getEnv("REPLY_MODEL", "gpt-4o-mini"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
