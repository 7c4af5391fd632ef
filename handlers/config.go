package handlers

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// IsProduction auto-detects production environment
func IsProduction() bool {
	return os.Getenv("APP_ENV") == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// GetAIAPIURL returns the prediction service base URL
func GetAIAPIURL() string {
	return getEnv("AI_API_URL", "http://localhost:8000")
}

func GetAIAPITimeout() time.Duration {
	return getEnvDuration("AI_API_TIMEOUT", 30*time.Second)
}

func GetAPIPort() string {
	return getEnv("API_PORT", "8080")
}

// GetAllowedDiseases returns the closed set of diseases the models know about
func GetAllowedDiseases() []string {
	var diseases []string
	for _, d := range strings.Split(getEnv("ALLOWED_DISEASES", "corona,variole"), ",") {
		if d = strings.TrimSpace(d); d != "" {
			diseases = append(diseases, d)
		}
	}
	return diseases
}

func GetYearBounds() (int, int) {
	return getEnvInt("MIN_YEAR", 2020), getEnvInt("MAX_YEAR", 2030)
}

func GetDashboardCacheTTL() time.Duration {
	return getEnvDuration("DASHBOARD_CACHE_TTL", 5*time.Minute)
}

// GetDatabaseURL returns the history store URL; empty keeps history in memory
func GetDatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// GetRedisURL returns the Redis address; empty uses the in-process cache
func GetRedisURL() string {
	return os.Getenv("REDIS_URL")
}

func GetRedisPassword() string {
	return os.Getenv("REDIS_PASSWORD")
}

func GetArchiveBucket() string {
	return os.Getenv("PREDICTION_ARCHIVE_BUCKET")
}

func GetAWSRegion() string {
	return getEnv("AWS_REGION", "us-east-1")
}

func GetCORSOrigin() string {
	return getEnv("CORS_ORIGIN", "http://localhost:"+GetAPIPort())
}
