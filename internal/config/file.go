package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for config files. Zero values mean "not set".
type fileConfig struct {
	LLM struct {
		APIKey      string   `toml:"api_key" yaml:"api_key"`
		APIURL      string   `toml:"api_url" yaml:"api_url"`
		Model       string   `toml:"model" yaml:"model"`
		MaxTokens   int      `toml:"max_tokens" yaml:"max_tokens"`
		Temperature *float64 `toml:"temperature" yaml:"temperature"`
		Timeout     int      `toml:"timeout" yaml:"timeout"`
		SiteURL     string   `toml:"site_url" yaml:"site_url"`
		AppName     string   `toml:"app_name" yaml:"app_name"`
	} `toml:"llm" yaml:"llm"`
	Translate struct {
		TargetLanguage string   `toml:"target_language" yaml:"target_language"`
		MaxBatchChars  int      `toml:"max_batch_chars" yaml:"max_batch_chars"`
		WatchDirs      []string `toml:"watch_dirs" yaml:"watch_dirs"`
		CronExpr       string   `toml:"cron_expr" yaml:"cron_expr"`
		Workers        int      `toml:"workers" yaml:"workers"`
	} `toml:"translate" yaml:"translate"`
	HTTP struct {
		Addr        string   `toml:"addr" yaml:"addr"`
		CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	} `toml:"http" yaml:"http"`
	System struct {
		DataDir      string `toml:"data_dir" yaml:"data_dir"`
		LogLevel     string `toml:"log_level" yaml:"log_level"`
		SettingsFile string `toml:"settings_file" yaml:"settings_file"`
	} `toml:"system" yaml:"system"`
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fc); err != nil {
			return fc, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return fc, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	default:
		return fc, fmt.Errorf("unsupported config file extension %q", ext)
	}
	return fc, nil
}
