// Package main is the entry point for the qkrun redirector.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/vyrodovalexey/qkrun/internal/config"
	"github.com/vyrodovalexey/qkrun/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const defaultConfigPath = "configs/qkrun.yaml"

// cliFlags holds command line flags.
type cliFlags struct {
	configPath     string
	configExplicit bool
	logLevel       string
	logFormat      string
	listen         string
	showVersion    bool
}

func main() {
	flags, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	cfg, err := loadAndValidateConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting qkrun",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("listen", cfg.Server.Listen),
		observability.String("store", cfg.Store.Type),
	)

	app, err := initApplication(cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize application", observability.Error(err))
		return
	}

	run(app, logger)
}

// parseFlags parses command line flags. Every flag falls back to a QKRUN_*
// environment variable.
func parseFlags(flagSet *flag.FlagSet, args []string) (cliFlags, error) {
	var f cliFlags

	flagSet.StringVar(&f.configPath, "config", getEnvOrDefault("QKRUN_CONFIG", defaultConfigPath),
		"Path to configuration file")
	flagSet.StringVar(&f.logLevel, "log-level", getEnvOrDefault("QKRUN_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the config file")
	flagSet.StringVar(&f.logFormat, "log-format", getEnvOrDefault("QKRUN_LOG_FORMAT", ""),
		"Log format (json, console); overrides the config file")
	flagSet.StringVar(&f.listen, "listen", getEnvOrDefault("QKRUN_LISTEN", ""),
		"Listen address; overrides the config file")
	flagSet.BoolVar(&f.showVersion, "version", false, "Show version information")

	if err := flagSet.Parse(args); err != nil {
		return f, err
	}

	f.configExplicit = os.Getenv("QKRUN_CONFIG") != ""
	flagSet.Visit(func(fl *flag.Flag) {
		if fl.Name == "config" {
			f.configExplicit = true
		}
	})

	return f, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "qkrun version %s\n", version)
	_, _ = fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	_, _ = fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(cfg config.LoggingConfig) (observability.Logger, error) {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
}

// loadAndValidateConfig loads the configuration file, applies flag overrides
// and validates the result. A missing file is only an error when the path was
// given explicitly.
func loadAndValidateConfig(flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !flags.configExplicit:
		cfg = config.Default()
	default:
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	applyFlagOverrides(cfg, flags)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config, flags cliFlags) {
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	if flags.listen != "" {
		cfg.Server.Listen = flags.listen
	}
}

// fatalWithSync logs at fatal level after flushing buffered entries.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	_ = logger.Sync()
	logger.Fatal(msg, fields...)
}
