// Package config loads chart service settings from an optional .env file,
// an optional YAML file and environment variables, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"candleview/internal/model"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// HTTP listener for the chart API and websocket.
	Addr string `yaml:"addr"`

	// Separate listener for /metrics and /healthz. Empty serves them on Addr.
	MetricsAddr string `yaml:"metrics_addr"`

	// Chart input. A file path, an http(s) URL or redis://key.
	Source    string `yaml:"source"`
	Delimiter string `yaml:"delimiter"`

	// Extra specs a load request may name. Source is always allowed.
	Sources []string `yaml:"sources"`

	// Initial chart size.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Overlay defaults.
	Indicator model.IndicatorConfig `yaml:"indicator"`

	// Reload schedule with a seconds field; empty disables reloads.
	ReloadCron string `yaml:"reload_cron"`

	// Infrastructure. Empty values disable the component.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	SQLitePath    string `yaml:"sqlite_path"`

	// Base32 TOTP secret guarding control endpoints.
	ControlTOTPSecret string `yaml:"control_totp_secret"`

	// Alert side channel.
	WebhookURL       string `yaml:"webhook_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Addr:       ":8080",
		Source:     "stock_data.csv",
		Delimiter:  ",",
		Width:      800,
		Height:     600,
		Indicator:  model.DefaultIndicatorConfig(),
		SQLitePath: "data/chart.db",
		LogLevel:   "info",
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty and
// present), then applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] WARNING: .env not loaded: %v", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Addr = getEnv("CHART_ADDR", c.Addr)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.Source = getEnv("CHART_SOURCE", c.Source)
	c.Delimiter = getEnv("CHART_DELIMITER", c.Delimiter)
	c.Sources = getEnvList("CHART_SOURCES", c.Sources)
	c.Width = getEnvInt("CHART_WIDTH", c.Width)
	c.Height = getEnvInt("CHART_HEIGHT", c.Height)

	c.Indicator.Length = getEnvInt("MA_LENGTH", c.Indicator.Length)
	c.Indicator.Color = getEnv("MA_COLOR", c.Indicator.Color)
	c.Indicator.Width = getEnvInt("MA_WIDTH", c.Indicator.Width)

	c.ReloadCron = getEnv("RELOAD_CRON", c.ReloadCron)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.ControlTOTPSecret = getEnv("CONTROL_TOTP_SECRET", c.ControlTOTPSecret)
	c.WebhookURL = getEnv("WEBHOOK_URL", c.WebhookURL)
	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.TelegramChatID)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks ranges and the overlay defaults.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("chart size must not be negative, got %dx%d", c.Width, c.Height)
	}
	if err := c.Indicator.Validate(); err != nil {
		return fmt.Errorf("indicator defaults: %w", err)
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("telegram bot token and chat id must be set together")
	}
	return nil
}

// DelimiterRune returns the field separator.
func (c *Config) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// SourceKind classifies Source as "redis", "http" or "file".
func (c *Config) SourceKind() string {
	return SourceKind(c.Source)
}

// SourceKind classifies a source spec.
func SourceKind(spec string) string {
	switch {
	case strings.HasPrefix(spec, "redis://"):
		return "redis"
	case strings.HasPrefix(spec, "http://"), strings.HasPrefix(spec, "https://"):
		return "http"
	default:
		return "file"
	}
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return fallback
	}
	return n
}
