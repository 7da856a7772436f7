package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Backend struct {
		BaseURL string        `yaml:"base_url" env:"BACKEND_BASE_URL"`
		Timeout time.Duration `yaml:"timeout" env:"BACKEND_TIMEOUT"`
		Proxy   string        `yaml:"proxy" env:"BACKEND_PROXY"`
	} `yaml:"backend"`
	Poll struct {
		StatusInterval   time.Duration `yaml:"status_interval" env:"POLL_STATUS_INTERVAL"`
		LogsInterval     time.Duration `yaml:"logs_interval" env:"POLL_LOGS_INTERVAL"`
		OverviewInterval time.Duration `yaml:"overview_interval" env:"POLL_OVERVIEW_INTERVAL"`
		LogLimit         int           `yaml:"log_limit" env:"POLL_LOG_LIMIT"`
	} `yaml:"poll"`
	Server struct {
		Addr           string   `yaml:"addr" env:"SERVER_ADDR"`
		AllowedOrigins []string `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS" envSeparator:","`
	} `yaml:"server"`
	Telegram struct {
		BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
		ChatID   int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	} `yaml:"database"`
	Log struct {
		Level       string `yaml:"level" env:"LOG_LEVEL"`
		Encoding    string `yaml:"encoding" env:"LOG_ENCODING"`
		Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy" env:"HTTPS_PROXY"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides; unset variables leave file values alone.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// Defaults
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:5000"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 10 * time.Second
	}
	if cfg.Poll.StatusInterval == 0 {
		cfg.Poll.StatusInterval = 5 * time.Second
	}
	if cfg.Poll.LogsInterval == 0 {
		cfg.Poll.LogsInterval = 10 * time.Second
	}
	if cfg.Poll.OverviewInterval == 0 {
		cfg.Poll.OverviewInterval = 30 * time.Second
	}
	if cfg.Poll.LogLimit == 0 {
		cfg.Poll.LogLimit = 50
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8090"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = "json"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	// cron.Every rounds down to whole seconds.
	for name, d := range map[string]time.Duration{
		"poll.status_interval":   c.Poll.StatusInterval,
		"poll.logs_interval":     c.Poll.LogsInterval,
		"poll.overview_interval": c.Poll.OverviewInterval,
	} {
		if d < time.Second {
			return fmt.Errorf("%s must be at least 1s, got %s", name, d)
		}
	}
	if c.Poll.LogLimit <= 0 {
		return fmt.Errorf("poll.log_limit must be positive")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// TelegramEnabled reports whether the Telegram console should run.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}
