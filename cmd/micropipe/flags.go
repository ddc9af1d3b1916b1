package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	PipelineDir     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("MICROPIPE_CONFIG", ""),
		"Path to node configuration file, JSON or YAML (env: MICROPIPE_CONFIG)")

	fs.StringVar(&cfg.PipelineDir, "pipelines",
		getEnv("MICROPIPE_PIPELINES", ""),
		"Directory of pipeline configuration files; overrides pipelineDir (env: MICROPIPE_PIPELINES)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("MICROPIPE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: MICROPIPE_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("MICROPIPE_LOG_FORMAT", "json"),
		"Log format: json, text (env: MICROPIPE_LOG_FORMAT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("MICROPIPE_SHUTDOWN_TIMEOUT", 0),
		"Per-environment shutdown timeout, 0 keeps the node setting (env: MICROPIPE_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and pipelines, then exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - single-node stream processing runtime

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run every pipeline in a directory with default node settings
  %s --pipelines=/etc/micropipe/pipelines

  # Run with a node configuration and debug logging
  %s --config=node.yaml --log-level=debug --log-format=text

  # Validate configuration and pipelines only
  %s --config=node.yaml --validate

Node settings can also be overridden with MICROPIPE_* variables,
for example MICROPIPE_NODE_ID or MICROPIPE_NATS_URL.

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
