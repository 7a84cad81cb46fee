package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server holds the process-level settings read from the environment.
type Server struct {
	Port           string
	ConfigPath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RateLimit      int
	CacheTTL       time.Duration
	LogLevel       string
	GinMode        string
	AllowedOrigins []string
	BatchWorkers   int
}

// LoadEnv loads an optional .env file, then reads the server settings.
// A missing .env file is not an error.
func LoadEnv(files ...string) (Server, error) {
	if err := godotenv.Load(files...); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return Server{}, err
	}
	return ServerFromEnv(), nil
}

// ServerFromEnv reads the server settings from the current environment.
func ServerFromEnv() Server {
	return Server{
		Port:           getEnvOrDefault("PORT", "8080"),
		ConfigPath:     getEnvOrDefault("CONFIG_PATH", "config/models.yaml"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RateLimit:      getEnvInt("RATE_LIMIT_PER_MIN", 60),
		CacheTTL:       getEnvDuration("CACHE_TTL", 15*time.Minute),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		GinMode:        os.Getenv("GIN_MODE"),
		AllowedOrigins: splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
		BatchWorkers:   getEnvInt("BATCH_WORKERS", 4),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
