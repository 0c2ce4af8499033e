package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Scheduler  SchedulerConfig
	Classifier ClassifierConfig
	Intake     IntakeConfig
	Auth       AuthConfig
	Attachment AttachmentConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// RedisConfig holds the session-store / rate-limiter connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port string
}

// SchedulerConfig holds the SLA / escalation scheduler tunables
type SchedulerConfig struct {
	TickInterval  time.Duration // ESCALATION_TICK_SECONDS (default 5m)
	LadderL1Days  float64       // overdue beyond this: dept_head
	LadderL2Days  float64       // overdue beyond this: admin
	LadderL3Days  float64       // overdue beyond this: commissioner
	AutoCloseDays int           // resolved-without-signoff window (default 7)
	// MaxConsecutiveFailures marks a complaint needs-manual-attention and
	// stops automatic retries after this many failing ticks in a row.
	MaxConsecutiveFailures int
	// DisputeSLAFactor scales the original SLA window on an approved dispute.
	DisputeSLAFactor float64
	// PerComplaintTimeout bounds a single candidate so a slow one does not
	// starve the tick.
	PerComplaintTimeout time.Duration
}

// ClassifierConfig holds the external-model adapter settings
type ClassifierConfig struct {
	APIKey              string
	Model               string
	Timeout             time.Duration // fail closed past this (default 5s)
	ConfidenceThreshold float64       // below this: needs manual routing (default 0.7)
}

// IntakeConfig holds conversational-intake tunables
type IntakeConfig struct {
	SessionTTL          time.Duration
	RateLimitPerMinute  int
	DefaultSLADays      int // used until classification assigns a department window
}

// AuthConfig holds identity settings
type AuthConfig struct {
	JWTSecret    string
	TokenHours   int
}

// AttachmentConfig holds the attachment handle / fetch-URL settings
type AttachmentConfig struct {
	SigningSecret string
	URLTTL        time.Duration
	BaseURL       string
}

// LoadConfig loads configuration from environment variables with the
// committed defaults.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			User:     getEnv("DB_USER", "jansunwai"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   getEnv("DB_NAME", "jansunwai"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("PORT", getEnv("SERVER_PORT", "8080")),
		},
		Scheduler: SchedulerConfig{
			TickInterval:           time.Duration(getEnvInt("ESCALATION_TICK_SECONDS", 300)) * time.Second,
			LadderL1Days:           getEnvFloat("ESCALATION_L1_DAYS", 1),
			LadderL2Days:           getEnvFloat("ESCALATION_L2_DAYS", 3),
			LadderL3Days:           getEnvFloat("ESCALATION_L3_DAYS", 7),
			AutoCloseDays:          getEnvInt("AUTOCLOSE_DAYS", 7),
			MaxConsecutiveFailures: getEnvInt("SCHEDULER_MAX_FAILURES", 3),
			DisputeSLAFactor:       getEnvFloat("DISPUTE_SLA_FACTOR", 0.5),
			PerComplaintTimeout:    time.Duration(getEnvInt("SCHEDULER_COMPLAINT_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Classifier: ClassifierConfig{
			APIKey:              os.Getenv("ANTHROPIC_API_KEY"),
			Model:               getEnv("CLASSIFIER_MODEL", "claude-3-5-haiku-latest"),
			Timeout:             time.Duration(getEnvInt("CLASSIFIER_TIMEOUT_SECONDS", 5)) * time.Second,
			ConfidenceThreshold: getEnvFloat("CLASSIFIER_CONFIDENCE_THRESHOLD", 0.7),
		},
		Intake: IntakeConfig{
			SessionTTL:         time.Duration(getEnvInt("INTAKE_SESSION_TTL_MINUTES", 30)) * time.Minute,
			RateLimitPerMinute: getEnvInt("INTAKE_RATE_LIMIT_PER_MINUTE", 10),
			DefaultSLADays:     getEnvInt("DEFAULT_SLA_DAYS", 7),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			TokenHours: getEnvInt("JWT_EXPIRY_HOURS", 24),
		},
		Attachment: AttachmentConfig{
			SigningSecret: getEnv("ATTACHMENT_SIGNING_SECRET", "dev-attachment-secret"),
			URLTTL:        time.Duration(getEnvInt("ATTACHMENT_URL_TTL_MINUTES", 15)) * time.Minute,
			BaseURL:       getEnv("ATTACHMENT_BASE_URL", "http://localhost:8080/attachments"),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
