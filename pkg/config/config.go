package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// GetEnv returns the value of an environment variable, or defaultValue if unset.
func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt parses an environment variable as an integer.
// Returns defaultValue if the variable is not set or parsing fails.
func GetEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logrus.Warnf("Invalid value for %s: %s. Using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// GetEnvDuration parses an environment variable as a time.Duration (e.g., "5s", "250ms").
// Returns defaultValue if the variable is not set or parsing fails.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logrus.Warnf("Invalid duration value for %s: %s. Using default: %v", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
