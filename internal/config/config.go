package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultLogLevel = "info"
	DefaultLogFile  = "logs/webuibot.log"
)

// Config holds every setting for webuibot. Values come from environment
// variables, optionally pre-populated from a .env file. The struct is
// immutable after Load.
type Config struct {
	TelegramToken  string // TELEGRAM_BOT_TOKEN
	ChatEndpoint   string // OPWEBUI_CHAT_ENDPOINT
	AuthToken      string // OPWEBUI_JWT_TOKEN
	Model          string // OPWEBUI_MODEL
	CollectionID   string // OPWEBUI_COLLECTION_ID (optional)
	WelcomeMessage string // WELCOME_MESSAGE (optional)
	SystemPrompt   string // SYSTEM_PROMPT (optional)

	LogLevel    string // LOG_LEVEL (optional)
	LogFile     string // LOG_FILE (optional)
	MetricsAddr string // METRICS_ADDR (optional, empty disables the listener)
}

// LoadEnvFile populates the process environment from a dotenv file.
// Variables already set in the environment always win. With an empty path
// the conventional locations are probed and a missing file is fine; an
// explicit path must exist.
func LoadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	for _, candidate := range []string{"config/.env", ".env"} {
		if _, err := os.Stat(candidate); err == nil {
			return godotenv.Load(candidate)
		}
	}
	return nil
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChatEndpoint:   os.Getenv("OPWEBUI_CHAT_ENDPOINT"),
		AuthToken:      os.Getenv("OPWEBUI_JWT_TOKEN"),
		Model:          os.Getenv("OPWEBUI_MODEL"),
		CollectionID:   os.Getenv("OPWEBUI_COLLECTION_ID"),
		WelcomeMessage: os.Getenv("WELCOME_MESSAGE"),
		SystemPrompt:   os.Getenv("SYSTEM_PROMPT"),
		LogLevel:       envOr("LOG_LEVEL", DefaultLogLevel),
		LogFile:        envOr("LOG_FILE", DefaultLogFile),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	if cfg.WelcomeMessage == "" {
		cfg.WelcomeMessage = DefaultWelcome(cfg.Model)
	}

	return cfg, nil
}

// Validate checks that every required setting is present. All missing
// variables are reported in one error so a single restart fixes them all.
func Validate(cfg *Config) error {
	var missing []string
	if cfg.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.ChatEndpoint == "" {
		missing = append(missing, "OPWEBUI_CHAT_ENDPOINT")
	}
	if cfg.AuthToken == "" {
		missing = append(missing, "OPWEBUI_JWT_TOKEN")
	}
	if cfg.Model == "" {
		missing = append(missing, "OPWEBUI_MODEL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DefaultWelcome renders the greeting used when WELCOME_MESSAGE is unset.
func DefaultWelcome(model string) string {
	return fmt.Sprintf("Hello! I'm an AI assistant.\n\n"+
		"Available commands:\n"+
		"/start - Start the bot\n"+
		"/help - Show this help message\n\n"+
		"Just send me any question and I'll answer it using %s model!", model)
}

// Sanitize returns a copy with secrets masked for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	if out.TelegramToken != "" {
		out.TelegramToken = Mask(out.TelegramToken)
	}
	if out.AuthToken != "" {
		out.AuthToken = Mask(out.AuthToken)
	}
	return &out
}

// Mask shortens a secret for display.
func Mask(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// Var is one resolved setting for display.
type Var struct {
	Name  string
	Value string
}

// Vars lists the resolved configuration in declaration order. Pass a
// sanitized config when printing.
func Vars(cfg *Config) []Var {
	return []Var{
		{"TELEGRAM_BOT_TOKEN", cfg.TelegramToken},
		{"OPWEBUI_CHAT_ENDPOINT", cfg.ChatEndpoint},
		{"OPWEBUI_JWT_TOKEN", cfg.AuthToken},
		{"OPWEBUI_MODEL", cfg.Model},
		{"OPWEBUI_COLLECTION_ID", cfg.CollectionID},
		{"WELCOME_MESSAGE", cfg.WelcomeMessage},
		{"SYSTEM_PROMPT", cfg.SystemPrompt},
		{"LOG_LEVEL", cfg.LogLevel},
		{"LOG_FILE", cfg.LogFile},
		{"METRICS_ADDR", cfg.MetricsAddr},
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
