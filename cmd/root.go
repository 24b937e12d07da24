package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/srt-batch-translator/internal/config"
	"github.com/MimeLyc/srt-batch-translator/pkg/log"
)

// commandContext carries the persistent flags and the configuration
// resolved from them.
type commandContext struct {
	configFlag   string
	logLevelFlag string
	logFileFlag  string

	cfg     *config.Config
	logFile *log.FileLogger
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "srt-translator",
		Short:         "Translate SRT subtitles with an OpenAI-compatible LLM server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.setupLogging(cfg)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFileFlag, "log-file", "", "Append logs to this file instead of stderr")

	rootCmd.AddCommand(newTranslateCommand(ctx))
	rootCmd.AddCommand(newModelsCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}

// ensureConfig loads the configuration once. Runtime settings saved by a
// previous serve run are applied on top when the settings file exists.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, err := config.Load(c.configFlag)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	settings, err := config.LoadRuntimeSettingsFile(cfg.System.SettingsFile)
	switch {
	case err == nil:
		path := cfg.System.SettingsFile
		cfg, err = config.Load(c.configFlag, config.WithRuntimeSettings(settings))
		if err != nil {
			return nil, fmt.Errorf("apply runtime settings from %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("load runtime settings: %w", err)
	}

	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) setupLogging(cfg *config.Config) error {
	levelName := cfg.System.LogLevel
	if strings.TrimSpace(c.logLevelFlag) != "" {
		levelName = c.logLevelFlag
	}
	level := log.ParseLevel(levelName)

	if strings.TrimSpace(c.logFileFlag) == "" {
		log.SetLogger(log.NewWriterLogger(os.Stderr, level))
		return nil
	}

	fileLogger, err := log.NewFileLogger(c.logFileFlag, level)
	if err != nil {
		return err
	}
	c.logFile = fileLogger
	log.SetLogger(fileLogger.Logger)
	return nil
}

func (c *commandContext) close() {
	if c.logFile != nil {
		_ = c.logFile.Close()
		c.logFile = nil
	}
}

func trimmedOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
