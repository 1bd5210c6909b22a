// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is loaded from the environment once at startup. Call godotenv.Load
// before Load if a .env file should be honored.
type Config struct {
	HTTPAddr string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	AMQPURL string

	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayRate    float64 // sends per second allowed at the transport level

	GeminiAPIKey string
	GeminiModel  string

	SendTimezone  string
	SendStartHour int
	SendEndHour   int

	DispatchTick      time.Duration
	APITick           time.Duration
	GenerationTick    time.Duration
	GenerationTimeout time.Duration

	BufferTarget   int
	APIMinInterval time.Duration
	APIMaxInterval time.Duration
}

func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBName:     getEnv("DB_NAME", "outreach"),

		AMQPURL: getEnv("AMQP_URL", ""),

		GatewayBaseURL: getEnv("GATEWAY_BASE_URL", "http://localhost:3000"),
		GatewayAPIKey:  getEnv("GATEWAY_API_KEY", ""),
		GatewayRate:    getEnvFloat("GATEWAY_RATE", 1.0),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		SendTimezone:  getEnv("SEND_TIMEZONE", "Asia/Jakarta"),
		SendStartHour: getEnvInt("SEND_START_HOUR", 7),
		SendEndHour:   getEnvInt("SEND_END_HOUR", 21),

		DispatchTick:      getEnvDuration("DISPATCH_TICK", 10*time.Second),
		APITick:           getEnvDuration("API_TICK", 10*time.Second),
		GenerationTick:    getEnvDuration("GENERATION_TICK", 10*time.Minute),
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 30*time.Second),

		BufferTarget:   getEnvInt("BUFFER_TARGET", 5),
		APIMinInterval: getEnvDuration("API_MIN_INTERVAL", 120*time.Second),
		APIMaxInterval: getEnvDuration("API_MAX_INTERVAL", 180*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
