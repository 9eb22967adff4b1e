package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Data struct {
		Dir         string `yaml:"dir"`          // root of the raw feed subdirectories
		ActionsFile string `yaml:"actions_file"` // corporate-action CSV export
	} `yaml:"data"`
	Pipeline struct {
		Precedence []string `yaml:"precedence"` // source tags, highest first
		Workers    int      `yaml:"workers"`
		Symbols    []string `yaml:"symbols"` // allow-list; empty = all
	} `yaml:"pipeline"`
	Fetch struct {
		CalendarMIC string        `yaml:"calendar_mic"`
		Sleep       time.Duration `yaml:"sleep"`
	} `yaml:"fetch"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Export struct {
		AdjustedCSV string `yaml:"adjusted_csv"`
	} `yaml:"export"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is fine; everything has a default
// except credentials, which stay empty and disable their feature.
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

	// Environment variable overrides
	if v := os.Getenv("BHAV_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("BHAV_ACTIONS_FILE"); v != "" {
		cfg.Data.ActionsFile = v
	}
	if v := os.Getenv("BHAV_SYMBOLS"); v != "" {
		cfg.Pipeline.Symbols = splitList(v)
	}
	if v := os.Getenv("BHAV_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = n
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		cfg.Schedule.DailyCron = v
	}

	// Defaults
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Data.ActionsFile == "" {
		cfg.Data.ActionsFile = "data/CF-CA-equities.csv"
	}
	if cfg.Fetch.CalendarMIC == "" {
		cfg.Fetch.CalendarMIC = "xbom"
	}
	if cfg.Fetch.Sleep == 0 {
		cfg.Fetch.Sleep = 500 * time.Millisecond
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/bhav.db"
	}
	if cfg.Export.AdjustedCSV == "" {
		cfg.Export.AdjustedCSV = "data/bhav_adjusted_prices.csv"
	}
	if cfg.Schedule.DailyCron == "" {
		// Weekday evenings, after the exchange publishes the daily files.
		cfg.Schedule.DailyCron = "0 0 20 * * 1-5"
	}

	return cfg, nil
}

// Validate checks field consistency. Telegram credentials are optional as a
// pair: either both set or both empty.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must not be negative")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	for _, tag := range c.Pipeline.Precedence {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("pipeline.precedence contains an empty source tag")
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
