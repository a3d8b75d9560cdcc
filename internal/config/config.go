// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"oraclebackend/internal/logger"
)

// Variables available everywhere
var (
	apiBase, apiKey string
	baseDir         string
	dataDirectory   string
	logsDirectory   string

	LogFileFormat              string
	AllowedOrigin              string // For CORS
	DatabaseFile               string
	SnapshotFile               string
	webhookSecret              string
	useMockWebhookVerification bool
)

//
// --- Utility Helpers ---
//

// Helper: get a setting based on ENVIRONMENT (dev or prod)
func GetEnvBasedSetting(base string) string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(env)))
}

// Helper: log which environment is running
func LogCurrentEnvironment() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	if env == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in production environment")
	}
}

//
// --- Loaders ---
//

// LoadEnv reads .env file
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	} else {
		log.Printf("Current working directory: %s", wd)
	}

	err = godotenv.Load(".env")
	if err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}

	useMockWebhookVerification = os.Getenv("USE_MOCK_WEBHOOK_VERIFICATION") == "true"
}

// LoggerConfig returns a logger.Config struct populated from environment
func LoggerConfig() logger.Config {
	logDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logDir == "" {
		logDir = "./logs"
	}

	logFormat := GetEnvBasedSetting("LOG_FILE_FORMAT")
	if logFormat == "" {
		logFormat = "./logs/oracle_%s.log"
	}

	timezone := os.Getenv("TIME_ZONE")
	if timezone == "" {
		timezone = "Local"
	}

	return logger.Config{
		LogsDirectory: logDir,
		LogFileFormat: logFormat,
		TimeZone:      timezone,
	}
}

// ConfigurePaths sets up folders and paths
func ConfigurePaths() {
	wd, err := os.Getwd()
	if err != nil {
		logger.LogFatal("Failed to get working directory: %v", err)
	}
	baseDir = wd

	dataDir := GetEnvBasedSetting("DATA_DIRECTORY")
	if dataDir != "" {
		dataDirectory = dataDir
	} else {
		dataDirectory = filepath.Join(baseDir, "data")
	}

	logsDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logsDir != "" {
		logsDirectory = logsDir
	} else {
		logsDirectory = filepath.Join(baseDir, "logs")
	}

	DatabaseFile = GetEnvBasedSetting("DATABASE_FILE")
	if DatabaseFile == "" {
		DatabaseFile = filepath.Join(dataDirectory, "oracle.db")
	}

	SnapshotFile = GetEnvBasedSetting("SNAPSHOT_FILE")
	if SnapshotFile == "" {
		SnapshotFile = filepath.Join(dataDirectory, "offerings.json")
	}

	LogFileFormat = filepath.Join(logsDirectory, "oracle_%s.log")
}

// LoadSettlementConfig sets up the settlement provider credentials
func LoadSettlementConfig() error {
	apiBase = GetEnvBasedSetting("SETTLEMENT_API_BASE")
	apiKey = GetEnvBasedSetting("SETTLEMENT_API_KEY")

	if apiBase == "" {
		return fmt.Errorf("settlement provider base URL is missing")
	}
	if apiKey == "" {
		logger.LogWarn("Settlement API key is not set, requests will be unauthenticated")
	}

	webhookSecret = os.Getenv("SETTLEMENT_WEBHOOK_SECRET")
	if webhookSecret == "" && !useMockWebhookVerification {
		logger.LogWarn("SETTLEMENT_WEBHOOK_SECRET is not set, webhook events will be rejected")
	}
	if useMockWebhookVerification {
		logger.LogInfo("Mock webhook verification enabled. Skipping real verification.")
	}

	logger.LogInfo("Settlement provider: %s", apiBase)
	return nil
}

// LoadCORSConfig loads CORS settings
func LoadCORSConfig() {
	AllowedOrigin = GetEnvBasedSetting("ALLOWED_ORIGIN")
	if AllowedOrigin == "" {
		AllowedOrigin = "*" // Allow all - be careful in prod
		logger.LogWarn("ALLOWED_ORIGIN not set, using '*' (allow all origins) - SECURITY RISK")
	} else {
		logger.LogInfo("Allowed Origin: %s", AllowedOrigin)
	}
}

//
// --- Getters (exported) ---
//

func APIBase() string {
	return apiBase
}

func APIKey() string {
	return apiKey
}

func WebhookSecret() string {
	return webhookSecret
}

func UseMockWebhookVerification() bool {
	return useMockWebhookVerification
}
