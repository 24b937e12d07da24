package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/MimeLyc/srt-batch-translator/internal/batcher"
	"github.com/MimeLyc/srt-batch-translator/pkg/log"
)

const (
	defaultLLMAPIURL = "http://127.0.0.1:1234/v1"
	defaultDBName    = "srt-translator.db"
	defaultLockName  = "srt-translator.lock"
)

// Config holds all application configuration
// Values come from built-in defaults, an optional config file, the
// environment (and a .env file), then functional options, in that order.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (optional for local servers)
// - LLM_API_URL: API endpoint URL (default: http://127.0.0.1:1234/v1)
// - LLM_MODEL: Model name to use (default: first model listed by the server)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 2000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Request timeout in seconds (default: 120)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
//
// Translate Configuration:
// - TARGET_LANGUAGE: BCP-47 tag of the output language (default: ja)
// - MAX_BATCH_CHARS: Character budget per request (default: 2000)
// - WATCH_DIRS: Comma separated directories scanned on schedule (optional)
// - CRON_EXPR: Scan schedule (default: 0 * * * *)
// - JOB_WORKERS: Number of queue workers (default: 1)
//
// HTTP Configuration:
// - HTTP_ADDR: Listen address (default: :8080)
// - CORS_ORIGINS: Comma separated allowed origins (optional)
//
// System Configuration:
// - DATA_DIR: Database and lock directory (default: ./data)
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - SETTINGS_FILE: Runtime settings JSON file (default: DATA_DIR/settings.json)
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Translate TranslateConfig `json:"translate"`
	HTTP      HTTPConfig      `json:"http"`
	System    SystemConfig    `json:"system"`
}

// LLMConfig holds the configuration for LLM client
// Supports any OpenAI-compatible provider
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

type TranslateConfig struct {
	TargetLanguage language.Tag `json:"target_language"`
	MaxBatchChars  int          `json:"max_batch_chars"`
	WatchDirs      []string     `json:"watch_dirs"`
	CronExpr       string       `json:"cron_expr"`
	Workers        int          `json:"workers"`
}

type HTTPConfig struct {
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins"`
}

// SystemConfig holds the system configuration
type SystemConfig struct {
	DataDir      string `json:"data_dir"`
	LogLevel     string `json:"log_level"`
	SettingsFile string `json:"settings_file"`
}

// DBPath is the SQLite database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, defaultDBName)
}

// LockPath is the single-instance lock file inside the data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.System.DataDir, defaultLockName)
}

// ScanEnabled reports whether scheduled directory scans are configured.
func (c *Config) ScanEnabled() bool {
	return len(c.Translate.WatchDirs) > 0
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	return build(fileConfig{}, opts...)
}

// Load overlays the config file at path (TOML or YAML, chosen by extension)
// on the defaults before reading the environment. An empty path behaves
// like NewFromEnv.
func Load(path string, opts ...Option) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return NewFromEnv(opts...)
	}
	fc, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return build(fc, opts...)
}

func build(fc fileConfig, opts ...Option) (*Config, error) {
	loadDotEnv()

	targetLanguage, err := language.Parse(getEnvString("TARGET_LANGUAGE", orString(fc.Translate.TargetLanguage, "ja")))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_LANGUAGE: %w", err)
	}

	dataDir := getEnvString("DATA_DIR", orString(fc.System.DataDir, "./data"))
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", fc.LLM.APIKey),
			APIURL:      getEnvString("LLM_API_URL", orString(fc.LLM.APIURL, defaultLLMAPIURL)),
			Model:       getEnvString("LLM_MODEL", fc.LLM.Model),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", orInt(fc.LLM.MaxTokens, 2000)),
			Temperature: getEnvFloat("LLM_TEMPERATURE", orFloat(fc.LLM.Temperature, 0.3)),
			Timeout:     getEnvInt("LLM_TIMEOUT", orInt(fc.LLM.Timeout, 120)),
			SiteURL:     getEnvString("LLM_SITE_URL", fc.LLM.SiteURL),
			AppName:     getEnvString("LLM_APP_NAME", fc.LLM.AppName),
		},
		Translate: TranslateConfig{
			TargetLanguage: targetLanguage,
			MaxBatchChars:  batcher.ParseMaxChars(getEnvString("MAX_BATCH_CHARS", strconv.Itoa(fc.Translate.MaxBatchChars))),
			WatchDirs:      getEnvList("WATCH_DIRS", fc.Translate.WatchDirs),
			CronExpr:       getEnvString("CRON_EXPR", orString(fc.Translate.CronExpr, "0 * * * *")),
			Workers:        getEnvInt("JOB_WORKERS", orInt(fc.Translate.Workers, 1)),
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", orString(fc.HTTP.Addr, ":8080")),
			CORSOrigins: getEnvList("CORS_ORIGINS", fc.HTTP.CORSOrigins),
		},
		System: SystemConfig{
			DataDir:      dataDir,
			LogLevel:     getEnvString("LOG_LEVEL", orString(fc.System.LogLevel, "info")),
			SettingsFile: getEnvString("SETTINGS_FILE", orString(fc.System.SettingsFile, filepath.Join(dataDir, "settings.json"))),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: llm=%s model=%q target=%s batch=%d watch=%v",
		config.LLM.APIURL, config.LLM.Model, config.Translate.TargetLanguage,
		config.Translate.MaxBatchChars, config.Translate.WatchDirs)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.LLM.APIURL) == "" {
		return fmt.Errorf("LLM_API_URL is required")
	}
	if c.Translate.TargetLanguage == language.Und {
		return fmt.Errorf("TARGET_LANGUAGE is required")
	}
	if c.Translate.Workers < 1 {
		return fmt.Errorf("JOB_WORKERS must be greater than 0")
	}
	if c.ScanEnabled() {
		if _, err := cron.ParseStandard(c.Translate.CronExpr); err != nil {
			return fmt.Errorf("invalid CRON_EXPR: %w", err)
		}
	}
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	return nil
}

// loadDotEnv reads ./.env when present. Existing variables win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to load .env file: %v", err)
	}
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return splitList(value)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	ret := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ret = append(ret, p)
		}
	}
	return ret
}

func orString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func orInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func orFloat(value *float64, fallback float64) float64 {
	if value != nil {
		return *value
	}
	return fallback
}
