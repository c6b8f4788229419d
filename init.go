package stopkeep

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/raykavin/stopkeep/logger/zerolog"
)

const (
	// Default configuration values
	defaultLogLevel      = "debug"
	defaultLogTimeFormat = "2006-01-02 15:04:05"
	defaultLogColored    = "true"
	defaultLogJSON       = "false"
)

// Environment variable names
const (
	envLogLevel      = "STOPKEEP_LOG_LEVEL"
	envLogTimeFormat = "STOPKEEP_LOG_TIME_FORMAT"
	envLogColor      = "STOPKEEP_LOG_COLOR"
	envLogJSON       = "STOPKEEP_LOG_JSON"
)

func init() {
	// Initialize the logger with configuration from environment variables
	log, err := initEnvLogger()
	if err != nil {
		panic(err)
	}

	DefaultLog = zerolog.NewAdapter(log.Logger)
}

// initEnvLogger creates a new logger instance configured from environment variables
func initEnvLogger() (*zerolog.Logger, error) {
	logLevel := getEnvWithDefault(envLogLevel, defaultLogLevel)
	logTimeFormat := getEnvWithDefault(envLogTimeFormat, defaultLogTimeFormat)

	logColored, err := parseBoolEnv(envLogColor, defaultLogColored)
	if err != nil {
		return nil, err
	}

	logJSON, err := parseBoolEnv(envLogJSON, defaultLogJSON)
	if err != nil {
		return nil, err
	}

	return zerolog.New(logLevel, logTimeFormat, logColored, logJSON)
}

// initializeLogger rebuilds the service logger when the settings tune it
// beyond the environment defaults. A file sink rotates by size and age.
func initializeLogger(service *Service) error {
	cfg := service.settings.Log
	if cfg.Level == "" && cfg.File == "" {
		return nil
	}

	level := cfg.Level
	if level == "" {
		level = defaultLogLevel
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = defaultLogTimeFormat
	}

	var sinks []io.Writer
	if cfg.File != "" {
		sinks = append(sinks, zerolog.FileSink(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays))
	}

	log, err := zerolog.New(level, timeFormat, cfg.Colored, cfg.JSON, sinks...)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	service.log = zerolog.NewAdapter(log.Logger)
	return nil
}

// getEnvWithDefault returns the value of the environment variable or the default if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseBoolEnv gets a boolean environment variable with a default value
func parseBoolEnv(key, defaultValue string) (bool, error) {
	value := getEnvWithDefault(key, defaultValue)
	return strconv.ParseBool(value)
}
