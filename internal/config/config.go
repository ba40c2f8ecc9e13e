package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	AppPort          string
	DBUser           string
	DBPassword       string
	DBHost           string
	DBPort           string
	DBName           string
	JWTSecret        string
	JWTTTL           time.Duration
	RedisAddr        string
	RedisPass        string
	RedisDB          int
	TransferLockWait time.Duration
	IsProd           bool
}

// LoadConfig reads configuration from the environment, with a .env file as
// fallback for local runs.
func LoadConfig() *Config {
	_ = godotenv.Load()
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:          envOr("APP_PORT", "8080"),
		DBUser:           os.Getenv("DB_USER"),
		DBPassword:       os.Getenv("DB_PASSWORD"),
		DBHost:           envOr("DB_HOST", "127.0.0.1"),
		DBPort:           envOr("DB_PORT", "3306"),
		DBName:           os.Getenv("DB_NAME"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTTTL:           durationOr("JWT_TTL", 24*time.Hour),
		RedisAddr:        envOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass:        os.Getenv("REDIS_PASS"),
		RedisDB:          redisDB,
		TransferLockWait: durationOr("TRANSFER_LOCK_WAIT", 5*time.Second),
		IsProd:           os.Getenv("IS_PROD") == "true",
	}
}

// DSN builds the MySQL data source name.
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
