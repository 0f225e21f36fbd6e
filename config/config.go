// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the server.
type Config struct {
	Addr     string `env:"NEBULA_ADDR"      envDefault:":8080"       validate:"required"`
	Env      string `env:"NEBULA_ENV"       envDefault:"development" validate:"oneof=development production"`
	LogLevel string `env:"NEBULA_LOG_LEVEL" envDefault:"info"        validate:"oneof=debug info warn error"`

	// Empty selects the in-memory store.
	DatabaseURL string `env:"NEBULA_DATABASE_URL"`
	// Empty disables the message cache.
	RedisAddr string `env:"NEBULA_REDIS_ADDR"`

	TypingBackend  string        `env:"NEBULA_TYPING_BACKEND"  envDefault:"memory" validate:"oneof=memory redis"`
	TypingWindow   time.Duration `env:"NEBULA_TYPING_WINDOW"   envDefault:"10s"    validate:"gt=0"`
	PresenceWindow time.Duration `env:"NEBULA_PRESENCE_WINDOW" envDefault:"2m"     validate:"gt=0"`

	Bot Bot
}

// Bot configures the bot participant and its text-generation backend.
type Bot struct {
	ID           string        `env:"NEBULA_BOT_ID"            envDefault:"0000-0000-AI" validate:"required"`
	Name         string        `env:"NEBULA_BOT_NAME"          envDefault:"Nebula AI"    validate:"required"`
	Provider     string        `env:"NEBULA_BOT_PROVIDER"      validate:"omitempty,oneof=openai anthropic static"`
	Model        string        `env:"NEBULA_BOT_MODEL"`
	APIKey       string        `env:"NEBULA_BOT_API_KEY"`
	BaseURL      string        `env:"NEBULA_BOT_BASE_URL"      validate:"omitempty,url"`
	Timeout      time.Duration `env:"NEBULA_BOT_TIMEOUT"       envDefault:"30s" validate:"gt=0"`
	History      int           `env:"NEBULA_BOT_HISTORY"       envDefault:"5"   validate:"gte=1,lte=50"`
	Workers      int           `env:"NEBULA_BOT_WORKERS"       envDefault:"4"   validate:"gte=1"`
	Queue        int           `env:"NEBULA_BOT_QUEUE"         envDefault:"256" validate:"gte=0"`
	MaxTokens    int64         `env:"NEBULA_BOT_MAX_TOKENS"    envDefault:"512" validate:"gte=1"`
	SystemPrompt string        `env:"NEBULA_BOT_SYSTEM_PROMPT"`
	Fallback     string        `env:"NEBULA_BOT_FALLBACK"      envDefault:"I'm having a bit of a glitch in the matrix right now. 🌌 Try again later!"`
}

// Load reads a .env file if one exists, then parses and validates the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the configuration from the environment.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the production requirements.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.IsProduction() && c.DatabaseURL == "" {
		return errors.New("invalid config: NEBULA_DATABASE_URL is required in production")
	}
	if c.TypingBackend == "redis" && c.RedisAddr == "" {
		return errors.New("invalid config: NEBULA_TYPING_BACKEND=redis needs NEBULA_REDIS_ADDR")
	}
	if p := c.Bot.ResolvedProvider(); (p == "openai" || p == "anthropic") && c.Bot.APIKey == "" {
		return fmt.Errorf("invalid config: NEBULA_BOT_PROVIDER=%s needs NEBULA_BOT_API_KEY", p)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ResolvedProvider returns the generator backend to use. It defaults to
// OpenAI when a key is configured and to the static generator otherwise.
func (b Bot) ResolvedProvider() string {
	if b.Provider != "" {
		return b.Provider
	}
	if b.APIKey != "" {
		return "openai"
	}
	return "static"
}
