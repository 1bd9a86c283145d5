package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	// ClinicTimezone is the IANA zone used to derive "now" and "today"
	// for booking validation.
	ClinicTimezone string
	// ClinicHoursJSON overrides the built-in weekday hours table, e.g.
	// {"monday": "09:00-18:00", "sunday": "closed"}.
	ClinicHoursJSON string

	// Concurrency gate tuning.
	GateWorkers     int
	GateQueueSize   int
	DedupTTL        time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	SenderLockWait  time.Duration
	GateSweepEvery  time.Duration

	// Maintenance sweep tuning.
	CompletionSweepEvery time.Duration
	ReminderSweepEvery   time.Duration

	MirrorQueueSize int
	// AdminChatID is the chat identifier the booking mirror posts to.
	// Empty disables the mirror.
	AdminChatID string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ClinicTimezone:  getEnv("CLINIC_TIMEZONE", "Asia/Almaty"),
		ClinicHoursJSON: getEnv("CLINIC_HOURS_JSON", ""),

		GateWorkers:     getEnvAsInt("GATE_WORKERS", 10),
		GateQueueSize:   getEnvAsInt("GATE_QUEUE_SIZE", 256),
		DedupTTL:        getEnvAsDuration("DEDUP_TTL", 5*time.Minute),
		RateLimitMax:    getEnvAsInt("RATE_LIMIT_MAX", 20),
		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		SenderLockWait:  getEnvAsDuration("SENDER_LOCK_WAIT", 30*time.Second),
		GateSweepEvery:  getEnvAsDuration("GATE_SWEEP_EVERY", time.Minute),

		CompletionSweepEvery: getEnvAsDuration("COMPLETION_SWEEP_EVERY", 30*time.Minute),
		ReminderSweepEvery:   getEnvAsDuration("REMINDER_SWEEP_EVERY", 10*time.Minute),

		MirrorQueueSize: getEnvAsInt("MIRROR_QUEUE_SIZE", 128),
		AdminChatID:     getEnv("ADMIN_CHAT_ID", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
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
