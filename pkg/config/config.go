package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"calltriage-server/pkg/errors"
	"calltriage-server/pkg/rum"
)

// Config holds the complete server configuration
type Config struct {
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Analysis  AnalysisConfig
	Messaging MessagingConfig
	Logging   LoggingConfig
}

// HTTPConfig holds the HTTP server configuration
type HTTPConfig struct {
	Port            int
	EnableMetrics   bool
	EnableWebSocket bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// TelemetryConfig holds the telemetry backend credentials and site
type TelemetryConfig struct {
	APIKey  string
	AppKey  string
	Site    string
	Timeout time.Duration
}

// AnalysisConfig holds the lifecycle analysis settings
type AnalysisConfig struct {
	// Timezone is the IANA zone events are displayed in
	Timezone string

	// DefaultPageLimit and DefaultMaxPages apply to searches that leave
	// pagination unset
	DefaultPageLimit int
	DefaultMaxPages  int
}

// MessagingConfig holds the AMQP incident publishing configuration
type MessagingConfig struct {
	AMQPUrl       string
	AMQPQueueName string
}

// LoggingConfig holds the logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	OutputFile string
}

// Load loads the configuration from environment variables or .env file
func Load(logger *logrus.Logger) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	// Define possible locations for .env file
	possibleEnvFiles := []string{
		".env",                    // Current directory
		"../.env",                 // Parent directory
		filepath.Join(wd, ".env"), // Absolute path
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr == nil {
			absPath, _ := filepath.Abs(envFile)
			logger.WithField("path", absPath).Debug("Attempting to load .env file")

			if loadErr := godotenv.Load(envFile); loadErr == nil {
				loadedFrom = absPath
				break
			}
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Warn("No .env file found, using environment variables only")
	}

	config := &Config{}

	if err := loadHTTPConfig(logger, &config.HTTP); err != nil {
		return nil, errors.Wrap(err, "failed to load HTTP configuration")
	}
	loadTelemetryConfig(&config.Telemetry)
	loadAnalysisConfig(&config.Analysis)
	loadMessagingConfig(&config.Messaging)
	loadLoggingConfig(&config.Logging)

	if err := validateConfig(logger, config); err != nil {
		return nil, err
	}

	return config, nil
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) error {
	httpPort := getEnvInt("HTTP_PORT", 8080)
	if httpPort < 1 || httpPort > 65535 {
		logger.Warn("Invalid HTTP_PORT value, using default: 8080")
		httpPort = 8080
	}
	config.Port = httpPort

	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
	config.EnableWebSocket = getEnvBool("HTTP_ENABLE_WEBSOCKET", true)
	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 60*time.Second)

	return nil
}

func loadTelemetryConfig(config *TelemetryConfig) {
	config.APIKey = getEnv("DD_API_KEY", "")
	config.AppKey = getEnv("DD_APP_KEY", "")
	config.Site = getEnv("DD_SITE", rum.DefaultSite)
	config.Timeout = getEnvDuration("DD_TIMEOUT", 30*time.Second)
}

func loadAnalysisConfig(config *AnalysisConfig) {
	config.Timezone = getEnv("ANALYSIS_TIMEZONE", "Asia/Seoul")

	config.DefaultPageLimit = getEnvInt("ANALYSIS_PAGE_LIMIT", rum.DefaultPageLimit)
	if config.DefaultPageLimit < 1 || config.DefaultPageLimit > rum.MaxPageLimit {
		config.DefaultPageLimit = rum.DefaultPageLimit
	}

	config.DefaultMaxPages = getEnvInt("ANALYSIS_MAX_PAGES", rum.DefaultMaxPages)
	if config.DefaultMaxPages < 1 || config.DefaultMaxPages > rum.MaxPages {
		config.DefaultMaxPages = rum.DefaultMaxPages
	}
}

func loadMessagingConfig(config *MessagingConfig) {
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.AMQPQueueName = getEnv("AMQP_QUEUE_NAME", "calltriage-incidents")
}

func loadLoggingConfig(config *LoggingConfig) {
	config.Level = getEnv("LOG_LEVEL", "info")
	config.Format = getEnv("LOG_FORMAT", "json")
	config.OutputFile = getEnv("LOG_FILE", "")
}

func validateConfig(logger *logrus.Logger, config *Config) error {
	if config.Telemetry.APIKey == "" || config.Telemetry.AppKey == "" {
		logger.Warn("DD_API_KEY or DD_APP_KEY not set, telemetry searches will fail")
	}

	if _, err := logrus.ParseLevel(config.Logging.Level); err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", config.Logging.Level))
	}

	if config.Messaging.AMQPUrl == "" {
		logger.Info("AMQP_URL not set, incident publishing disabled")
	}

	return nil
}

// ApplyLogging configures the logger according to the loaded settings
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
