// Package config loads tunegrab settings from defaults, an optional YAML
// file, a .env file and TUNEGRAB_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Search providers.
const (
	ProviderYtDlp = "ytdlp"
	ProviderApify = "apify"
)

// Config defines configuration for the bot.
type Config struct {
	Search   SearchConfig
	Session  SessionConfig
	Download DownloadConfig
	Delivery DeliveryConfig
	Tools    ToolsConfig
	HTTPAddr string
	Log      LogConfig

	// ApifyToken is only read from APIFY_API_TOKEN.
	ApifyToken string
}

// SearchConfig selects and tunes the search provider.
type SearchConfig struct {
	Provider string
	Limit    int
}

// SessionConfig controls result list lifetime.
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// DownloadConfig controls the download pipeline.
type DownloadConfig struct {
	WorkDir string
	Timeout time.Duration
	Bitrate string
}

// DeliveryConfig points at the bucket finished audio is written to.
type DeliveryConfig struct {
	BucketURL string
	Prefix    string
}

// ToolsConfig names the external binaries.
type ToolsConfig struct {
	YtDlp  string
	FFmpeg string
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string
	Pretty bool
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Search: SearchConfig{Provider: ProviderYtDlp, Limit: 5},
		Session: SessionConfig{
			TTL:           10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Download: DownloadConfig{
			WorkDir: "./data",
			Timeout: 5 * time.Minute,
			Bitrate: "192k",
		},
		Delivery: DeliveryConfig{BucketURL: "file://./downloads"},
		Tools:    ToolsConfig{YtDlp: "yt-dlp", FFmpeg: "ffmpeg"},
		HTTPAddr: ":8080",
		Log:      LogConfig{Level: "info"},
	}
}

// yamlConfig mirrors Config with string durations.
type yamlConfig struct {
	Search struct {
		Provider string `yaml:"provider"`
		Limit    int    `yaml:"limit"`
	} `yaml:"search"`
	Session struct {
		TTL           string `yaml:"ttl"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"session"`
	Download struct {
		WorkDir string `yaml:"work_dir"`
		Timeout string `yaml:"timeout"`
		Bitrate string `yaml:"bitrate"`
	} `yaml:"download"`
	Delivery struct {
		BucketURL string `yaml:"bucket_url"`
		Prefix    string `yaml:"prefix"`
	} `yaml:"delivery"`
	Tools struct {
		YtDlp  string `yaml:"ytdlp"`
		FFmpeg string `yaml:"ffmpeg"`
	} `yaml:"tools"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load builds the effective configuration. path may be empty.
// A missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	if yc.Search.Provider != "" {
		cfg.Search.Provider = yc.Search.Provider
	}
	if yc.Search.Limit != 0 {
		cfg.Search.Limit = yc.Search.Limit
	}
	if err := setDuration(&cfg.Session.TTL, yc.Session.TTL, "session.ttl"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.Session.SweepInterval, yc.Session.SweepInterval, "session.sweep_interval"); err != nil {
		return Config{}, err
	}
	if yc.Download.WorkDir != "" {
		cfg.Download.WorkDir = yc.Download.WorkDir
	}
	if err := setDuration(&cfg.Download.Timeout, yc.Download.Timeout, "download.timeout"); err != nil {
		return Config{}, err
	}
	if yc.Download.Bitrate != "" {
		cfg.Download.Bitrate = yc.Download.Bitrate
	}
	if yc.Delivery.BucketURL != "" {
		cfg.Delivery.BucketURL = yc.Delivery.BucketURL
	}
	cfg.Delivery.Prefix = yc.Delivery.Prefix
	if yc.Tools.YtDlp != "" {
		cfg.Tools.YtDlp = yc.Tools.YtDlp
	}
	if yc.Tools.FFmpeg != "" {
		cfg.Tools.FFmpeg = yc.Tools.FFmpeg
	}
	if yc.HTTP.Addr != "" {
		cfg.HTTPAddr = yc.HTTP.Addr
	}
	if yc.Log.Level != "" {
		cfg.Log.Level = yc.Log.Level
	}
	cfg.Log.Pretty = yc.Log.Pretty

	return cfg, nil
}

func setDuration(dst *time.Duration, v, key string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the TUNEGRAB_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("TUNEGRAB_SEARCH_PROVIDER"); v != "" {
		c.Search.Provider = v
	}
	if v := os.Getenv("TUNEGRAB_SEARCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TUNEGRAB_SEARCH_LIMIT: %w", err)
		}
		c.Search.Limit = n
	}
	if err := setDuration(&c.Session.TTL, os.Getenv("TUNEGRAB_SESSION_TTL"), "TUNEGRAB_SESSION_TTL"); err != nil {
		return err
	}
	if err := setDuration(&c.Download.Timeout, os.Getenv("TUNEGRAB_DOWNLOAD_TIMEOUT"), "TUNEGRAB_DOWNLOAD_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("TUNEGRAB_WORK_DIR"); v != "" {
		c.Download.WorkDir = v
	}
	if v := os.Getenv("TUNEGRAB_BUCKET_URL"); v != "" {
		c.Delivery.BucketURL = v
	}
	if v := os.Getenv("TUNEGRAB_YTDLP"); v != "" {
		c.Tools.YtDlp = v
	}
	if v := os.Getenv("TUNEGRAB_FFMPEG"); v != "" {
		c.Tools.FFmpeg = v
	}
	if v := os.Getenv("TUNEGRAB_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("TUNEGRAB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TUNEGRAB_LOG_PRETTY"); v != "" {
		c.Log.Pretty = v == "true" || v == "1"
	}
	c.ApifyToken = os.Getenv("APIFY_API_TOKEN")
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Search.Provider {
	case ProviderYtDlp:
	case ProviderApify:
		if c.ApifyToken == "" {
			return errors.New("config: APIFY_API_TOKEN is required for the apify provider")
		}
	default:
		return fmt.Errorf("config: unknown search provider %q", c.Search.Provider)
	}
	if c.Search.Limit < 1 || c.Search.Limit > 10 {
		return errors.New("config: search.limit must be between 1 and 10")
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session.ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("config: session.sweep_interval must be positive")
	}
	if c.Download.Timeout <= 0 {
		return errors.New("config: download.timeout must be positive")
	}
	if c.Download.WorkDir == "" {
		return errors.New("config: download.work_dir is required")
	}
	if c.Delivery.BucketURL == "" {
		return errors.New("config: delivery.bucket_url is required")
	}
	return nil
}
