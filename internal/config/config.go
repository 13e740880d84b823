package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/a11ylint/a11ylint-server/internal/model"
)

var knownWeakSecrets = []string{
	"change-me", "secret", "password", "encryption-key", "a_super_secret_key",
}

type Config struct {
	Port                   int    `env:"PORT" envDefault:"3001"`
	EncryptionKey          string `env:"ENCRYPTION_KEY"`
	SessionBackend         string `env:"SESSION_BACKEND" envDefault:"cookie"`
	RedisURL               string `env:"REDIS_URL"`
	DatabaseURL            string `env:"DATABASE_URL"`
	FrontendURL            string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	GeminiAPIURL           string `env:"GEMINI_API_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel            string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-lite"`
	AnalysisTimeoutSeconds int    `env:"ANALYSIS_TIMEOUT_SECONDS" envDefault:"60"`
	AnalyzeRateLimitPerMin int    `env:"ANALYZE_RATE_LIMIT_PER_MIN" envDefault:"20"`
	SweepIntervalSeconds   int    `env:"SWEEP_INTERVAL_SECONDS" envDefault:"300"`
	Environment            string `env:"ENVIRONMENT"`
	NodeEnv                string `env:"NODE_ENV"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	StaticDir              string `env:"STATIC_DIR"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Backend() model.SessionBackend {
	return model.SessionBackend(strings.ToLower(strings.TrimSpace(c.SessionBackend)))
}

func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return CleanupJobInterval
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// IsProduction honours ENVIRONMENT first and falls back to NODE_ENV so the
// same deployment settings work for both servers.
func (c *Config) IsProduction() bool {
	envName := c.Environment
	if envName == "" {
		envName = c.NodeEnv
	}
	switch strings.ToLower(envName) {
	case "production", "prod":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	backend := c.Backend()
	if !backend.Valid() {
		return fmt.Errorf("SESSION_BACKEND must be one of cookie, memory, redis, postgres (got %q)", c.SessionBackend)
	}
	if backend == model.SessionBackendRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=redis")
	}
	if backend == model.SessionBackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when SESSION_BACKEND=postgres")
	}
	if c.AnalysisTimeoutSeconds <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT_SECONDS must be positive")
	}
	if c.AnalysisTimeout() >= ServerRequestTimeout {
		return fmt.Errorf("ANALYSIS_TIMEOUT_SECONDS must be below the %s request timeout (got %ds)",
			ServerRequestTimeout, c.AnalysisTimeoutSeconds)
	}

	// The key is checked lazily per request, so a missing one only degrades
	// session endpoints.
	if c.EncryptionKey == "" {
		if backend != model.SessionBackendMemory {
			log.Warn().Str("backend", string(backend)).Msg("ENCRYPTION_KEY is empty: sessions cannot be established until it is set")
		}
	} else if err := validateSecret("ENCRYPTION_KEY", c.EncryptionKey); err != nil {
		log.Warn().Err(err).Msg("weak encryption key")
	}

	if c.IsProduction() {
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if strings.HasPrefix(c.FrontendURL, "http://") {
			log.Warn().Str("origin", c.FrontendURL).Msg("FRONTEND_URL is not HTTPS in production")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s should be at least 32 characters (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default", name)
		}
	}
	return nil
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
