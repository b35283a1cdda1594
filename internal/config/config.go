package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime setting read from the environment.
type Config struct {
	AppEnv         string
	LogLevel       string
	HTTPListenAddr string
	PublicBasePath string

	MetricsNamespace string

	DatabaseURL string
	DBSchema    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	TranscribeBaseURL string
	TranscribeAPIKey  string
	TranscribeTimeout time.Duration

	WhatsAppStorePath string
	WhatsAppInstance  string
	WhatsAppLogLevel  string
	GatewayToken      string

	SessionLockTTL  time.Duration
	MaxToolRounds   int
	HandoffPause    time.Duration
	ActionWindow    int
	ActionThreshold float64

	Locale string
}

// Load builds Config from environment variables, applying defaults for
// everything optional. DATABASE_URL is the only hard requirement.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   getEnv("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "juliabot"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBSchema:    getEnv("DB_SCHEMA", "public"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   getEnv("LLM_MODEL", "gpt-4o-mini"),

		TranscribeBaseURL: getEnv("TRANSCRIBE_BASE_URL", ""),
		TranscribeAPIKey:  os.Getenv("TRANSCRIBE_API_KEY"),

		WhatsAppStorePath: getEnv("WHATSAPP_STORE_PATH", "data/wa.db"),
		WhatsAppInstance:  getEnv("WHATSAPP_INSTANCE", "default"),
		WhatsAppLogLevel:  getEnv("WHATSAPP_LOG_LEVEL", "WARN"),
		GatewayToken:      os.Getenv("GATEWAY_WEBHOOK_TOKEN"),

		Locale: getEnv("LOCALE", "pt-BR"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = getEnvBool("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.LLMTimeout, err = getEnvDuration("LLM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.TranscribeTimeout, err = getEnvDuration("TRANSCRIBE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionLockTTL, err = getEnvDuration("SESSION_LOCK_TTL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HandoffPause, err = getEnvDuration("HANDOFF_PAUSE", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxToolRounds, err = getEnvInt("MAX_TOOL_ROUNDS", 8); err != nil {
		return nil, err
	}
	if cfg.ActionWindow, err = getEnvInt("ACTION_WINDOW", 5); err != nil {
		return nil, err
	}
	if cfg.ActionThreshold, err = getEnvFloat("ACTION_CONFIDENCE_THRESHOLD", 0.5); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
