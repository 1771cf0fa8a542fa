package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the camera analyze service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port           string
	AllowedOrigins string

	// LLM provider configuration
	LLMProvider  string
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string

	// Image source configuration
	UseGCS       bool
	GCSBucket    string
	ImagesDir    string
	SignedURLTTL time.Duration
	MetadataFile string

	// Analysis configuration
	MaxWorkers   int
	ContextTurns int

	// RabbitMQ configuration (empty URL disables publishing)
	RabbitMQURL        string
	RabbitMQExchange   string
	RabbitMQRoutingKey string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "camera_analyze"),

		// Server defaults
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),

		// LLM defaults
		LLMProvider:  getEnv("LLM_PROVIDER", "openai"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		// Image source defaults
		UseGCS:       getBoolEnv("USE_GCS_STORAGE", false),
		GCSBucket:    getEnv("GCS_BUCKET_NAME", ""),
		ImagesDir:    getEnv("IMAGES_DIR", "camera_images"),
		SignedURLTTL: getDurationEnv("SIGNED_URL_TTL", 60*time.Minute),
		MetadataFile: getEnv("CAMERA_METADATA_FILE", "cameras.csv"),

		// Analysis defaults
		MaxWorkers:   getIntEnv("MAX_WORKERS", 5),
		ContextTurns: getIntEnv("CONTEXT_TURNS", 3),

		// RabbitMQ defaults
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "camera-analyze"),
		RabbitMQRoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "analysis.completed"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv gets a boolean environment variable or returns a default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
