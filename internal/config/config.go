// Package config loads the chatflow YAML configuration file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/widget"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	LogLevel  string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `yaml:"logFormat" validate:"omitempty,oneof=text json"`
	Server    Server `yaml:"server"`
	Redis     Redis  `yaml:"redis"`
	// Seed is a seed document loaded into the store when the server starts.
	Seed string `yaml:"seed"`
	// Widget is validated by the chat command only; the server has no app id.
	Widget widget.Config `yaml:"widget" validate:"-"`
}

// Server configures the collaborator API.
type Server struct {
	Addr            string        `yaml:"addr" validate:"required"`
	PublicURL       string        `yaml:"publicUrl" validate:"omitempty,url"`
	ReviewURL       string        `yaml:"reviewUrl" validate:"omitempty,url"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes" validate:"gt=0"`
	MaxInputBytes   int           `yaml:"maxInputBytes" validate:"gt=0"`
	MessageRate     float64       `yaml:"messageRate" validate:"gte=0"`
	MessageBurst    int           `yaml:"messageBurst" validate:"gte=1"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gt=0"`
}

// Redis selects the redis store. An empty address means the in-memory store.
type Redis struct {
	Addr     string        `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix"`
	FileTTL  time.Duration `yaml:"fileTTL" validate:"gte=0"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Server: Server{
			Addr:            ":8080",
			MaxUploadBytes:  widget.DefaultMaxUploadBytes,
			MaxInputBytes:   widget.DefaultMaxInputBytes,
			MessageRate:     5,
			MessageBurst:    10,
			ShutdownTimeout: 5 * time.Second,
		},
		Redis: Redis{
			Prefix:  "chatflow:",
			FileTTL: 24 * time.Hour,
		},
	}
}

// Load reads path over the defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section except the widget.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateWidget checks the widget section for the chat command.
func (c Config) ValidateWidget() error {
	if err := validate.Struct(c.Widget); err != nil {
		return fmt.Errorf("invalid widget config: %w", err)
	}
	return nil
}

// Logger builds the application logger on Stderr.
func (c Config) Logger() *slog.Logger {
	return logging.NewWithWriter(os.Stderr, c.Level(), logging.Format(c.LogFormat))
}

// Level maps LogLevel onto slog.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
