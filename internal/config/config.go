package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Provider struct {
		BaseURL           string        `yaml:"base_url"`
		APIKey            string        `yaml:"api_key"`
		Market            string        `yaml:"market"`
		Locale            string        `yaml:"locale"`
		RequestsPerMinute int           `yaml:"requests_per_minute"`
		Workers           int           `yaml:"workers"`
		Timeout           time.Duration `yaml:"timeout"`
	} `yaml:"provider"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
		Table      string `yaml:"table"`
	} `yaml:"database"`
	Ingest struct {
		LookbackDays int `yaml:"lookback_days"`
	} `yaml:"ingest"`
	Screen struct {
		Policy       string  `yaml:"policy"`
		Window       int     `yaml:"window"`
		Pct          float64 `yaml:"pct"`
		MinVolume    float64 `yaml:"min_volume"`
		LookbackDays int     `yaml:"lookback_days"`
		Workers      int     `yaml:"workers"`
	} `yaml:"screen"`
	Calendar struct {
		Holidays []string `yaml:"holidays"`
	} `yaml:"calendar"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. A missing file is not an error.
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

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("POLYGON_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		c.Schedule.DailyCron = v
	}
	if v := os.Getenv("LOOKBACK_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.Ingest.LookbackDays = days
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.polygon.io"
	}
	if c.Provider.Market == "" {
		c.Provider.Market = "stocks"
	}
	if c.Provider.Locale == "" {
		c.Provider.Locale = "us"
	}
	if c.Provider.RequestsPerMinute == 0 {
		c.Provider.RequestsPerMinute = 5 // free tier
	}
	if c.Provider.Workers == 0 {
		c.Provider.Workers = 1
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "tickers.db"
	}
	if c.Database.Table == "" {
		c.Database.Table = "tickers"
	}
	if c.Ingest.LookbackDays == 0 {
		c.Ingest.LookbackDays = 14
	}
	if c.Screen.Policy == "" {
		c.Screen.Policy = "trailing"
	}
	if c.Screen.Window == 0 {
		if c.Screen.Policy == "rolling" {
			c.Screen.Window = 5
		} else {
			c.Screen.Window = 10
		}
	}
	if c.Screen.Pct == 0 {
		c.Screen.Pct = 2
	}
	if c.Screen.MinVolume == 0 && c.Screen.Policy == "rolling" {
		c.Screen.MinVolume = 1_000_000
	}
	if c.Screen.Workers == 0 {
		c.Screen.Workers = 4
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 30 17 * * 1-5"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks that all required fields are set and values are in range.
func (c *Config) Validate() error {
	if c.Screen.Policy != "trailing" && c.Screen.Policy != "rolling" {
		return fmt.Errorf("screen.policy must be trailing or rolling, got %q", c.Screen.Policy)
	}
	if c.Screen.Window < 1 {
		return fmt.Errorf("screen.window must be at least 1")
	}
	if c.Screen.Pct <= 0 || c.Screen.Pct >= 100 {
		return fmt.Errorf("screen.pct must be in (0, 100)")
	}
	if c.Ingest.LookbackDays < 0 {
		return fmt.Errorf("ingest.lookback_days must not be negative")
	}
	if c.Provider.RequestsPerMinute < 0 {
		return fmt.Errorf("provider.requests_per_minute must not be negative")
	}
	if c.Provider.Workers < 1 {
		return fmt.Errorf("provider.workers must be at least 1")
	}
	for _, h := range c.Calendar.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			return fmt.Errorf("calendar.holidays: %q is not YYYY-MM-DD", h)
		}
	}
	return nil
}

// ValidateProvider checks the fields needed to talk to the market data provider.
func (c *Config) ValidateProvider() error {
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required (or set POLYGON_API_KEY)")
	}
	return nil
}

// TelegramEnabled reports whether screen reports should be pushed to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
