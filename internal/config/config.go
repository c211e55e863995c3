package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Reader   ReaderConfig   `mapstructure:"reader"`
	Model    ModelConfig    `mapstructure:"model"`
	Parser   ParserConfig   `mapstructure:"parser"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ReaderConfig holds Jina Reader API configuration
type ReaderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	TargetURL    string        `mapstructure:"target_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	AttemptDelay time.Duration `mapstructure:"attempt_delay"`
	UserAgent    string        `mapstructure:"user_agent"`
	PingURL      string        `mapstructure:"ping_url"`
	SkipPing     bool          `mapstructure:"skip_ping"`
}

// ModelConfig holds the language model configuration
type ModelConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Name    string        `mapstructure:"name"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ParserConfig holds chunking configuration for the model calls.
// Chunks == 0 derives the count from MaxChunkChars.
type ParserConfig struct {
	Chunks        int `mapstructure:"chunks"`
	MaxChunkChars int `mapstructure:"max_chunk_chars"`
}

// StorageConfig holds artifact and snapshot configuration
type StorageConfig struct {
	DataDir         string      `mapstructure:"data_dir"`
	HistoryDir      string      `mapstructure:"history_dir"`
	FilePermissions os.FileMode `mapstructure:"file_permissions"`
	DirPermissions  os.FileMode `mapstructure:"dir_permissions"`
	S3              S3Config    `mapstructure:"s3"`
}

// S3Config holds the optional snapshot mirror. Empty bucket disables it.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

// MonitorConfig holds odds movement detection configuration
type MonitorConfig struct {
	MinChange float64 `mapstructure:"min_change"`
	TopK      int     `mapstructure:"top_k"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error. Variables already set are left untouched.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from file and environment variables.
// An empty or missing path yields defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("POLYSCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional key names used by the upstream services
	_ = v.BindEnv("model.api_key", "POLYSCRIBE_MODEL_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("reader.api_key", "POLYSCRIBE_READER_API_KEY", "JINA_API_KEY")
	_ = v.BindEnv("telegram.bot_token", "POLYSCRIBE_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "POLYSCRIBE_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Reader defaults
	v.SetDefault("reader.base_url", "https://r.jina.ai")
	v.SetDefault("reader.target_url", "https://polymarket.com/")
	v.SetDefault("reader.timeout", "60s")
	v.SetDefault("reader.attempt_delay", "2s")
	v.SetDefault("reader.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("reader.ping_url", "https://example.com")
	v.SetDefault("reader.skip_ping", false)

	// Model defaults
	v.SetDefault("model.name", "gemini-1.5-flash")
	v.SetDefault("model.timeout", "5m")

	// Parser defaults
	v.SetDefault("parser.chunks", 0)
	v.SetDefault("parser.max_chunk_chars", 30000)

	// Storage defaults
	v.SetDefault("storage.data_dir", ".")
	v.SetDefault("storage.history_dir", "history")
	v.SetDefault("storage.file_permissions", 0o644)
	v.SetDefault("storage.dir_permissions", 0o755)
	v.SetDefault("storage.s3.region", "us-east-1")

	// Monitor defaults
	v.SetDefault("monitor.min_change", 0.01)
	v.SetDefault("monitor.top_k", 10)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid.
// The model API key is checked separately by RequireModelKey because only
// the intelligence stage needs it.
func (c *Config) Validate() error {
	// Validate Reader config
	if c.Reader.BaseURL == "" {
		return fmt.Errorf("reader.base_url is required")
	}
	if c.Reader.TargetURL == "" {
		return fmt.Errorf("reader.target_url is required")
	}
	if c.Reader.Timeout <= 0 {
		return fmt.Errorf("reader.timeout must be positive")
	}
	if c.Reader.AttemptDelay < 0 {
		return fmt.Errorf("reader.attempt_delay must not be negative")
	}

	// Validate Model config
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}

	// Validate Parser config
	if c.Parser.Chunks < 0 {
		return fmt.Errorf("parser.chunks must not be negative")
	}
	if c.Parser.Chunks == 0 && c.Parser.MaxChunkChars < 1000 {
		return fmt.Errorf("parser.max_chunk_chars must be at least 1000 when parser.chunks is 0")
	}

	// Validate Storage config
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.HistoryDir == "" {
		return fmt.Errorf("storage.history_dir is required")
	}
	if c.Storage.S3.Bucket != "" && c.Storage.S3.Region == "" {
		return fmt.Errorf("storage.s3.region is required when storage.s3.bucket is set")
	}

	// Validate Monitor config
	if c.Monitor.MinChange < 0.0 || c.Monitor.MinChange > 1.0 {
		return fmt.Errorf("monitor.min_change must be between 0.0 and 1.0")
	}
	if c.Monitor.TopK < 1 {
		return fmt.Errorf("monitor.top_k must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// RequireModelKey reports whether a model API key is configured.
func (c *Config) RequireModelKey() error {
	if c.Model.APIKey == "" {
		return fmt.Errorf("model API key is required: set GEMINI_API_KEY, model.api_key or --gemini-key")
	}
	return nil
}
