package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	QueueSweepInterval time.Duration // staleness sweep period
	QueueMaxWait       time.Duration // entries older than this are evicted

	// Battle lifecycle
	AcceptTimeout      time.Duration // guest accept window after creation
	SubmissionThrottle time.Duration // min gap between submissions per user per battle

	// Judge backend
	JudgeURL          string
	JudgeWorkers      int
	JudgeQueueSize    int
	JudgeTimeLimitSec int
	JudgeMemoryMB     int
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:          getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:      parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		CORSAllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},

		QueueSweepInterval: parseDuration(getEnv("QUEUE_SWEEP_INTERVAL", "5m"), 5*time.Minute),
		QueueMaxWait:       parseDuration(getEnv("QUEUE_MAX_WAIT", "30m"), 30*time.Minute),

		AcceptTimeout:      parseDuration(getEnv("BATTLE_ACCEPT_TIMEOUT", "15s"), 15*time.Second),
		SubmissionThrottle: parseDuration(getEnv("SUBMISSION_THROTTLE", "10s"), 10*time.Second),

		JudgeURL:          getEnv("JUDGE_URL", "http://localhost:8081"),
		JudgeWorkers:      parseInt(getEnv("JUDGE_WORKERS", "4"), 4),
		JudgeQueueSize:    parseInt(getEnv("JUDGE_QUEUE_SIZE", "256"), 256),
		JudgeTimeLimitSec: parseInt(getEnv("JUDGE_TIME_LIMIT_SEC", "5"), 5),
		JudgeMemoryMB:     parseInt(getEnv("JUDGE_MEMORY_MB", "256"), 256),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
