package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AllowedOrigin string

	// DatabaseURL selects the postgres backend; when empty the server
	// falls back to the embedded database at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	MetricsTTLSeconds int

	AuthSecret            string
	AccessTokenTTLMinutes int

	BusinessName    string
	BusinessAddress string
	BusinessPhone   string
}

func Load() Config {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	metricsTTL, err := strconv.Atoi(getEnv("METRICS_TTL_SECONDS", "60"))
	if err != nil || metricsTTL < 1 {
		metricsTTL = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SQLitePath:            getEnv("SQLITE_PATH", "kkg_database.sqlite"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		MetricsTTLSeconds:     metricsTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		BusinessName:          getEnv("BUSINESS_NAME", "KISAN KHIDMAT GHAR"),
		BusinessAddress:       getEnv("BUSINESS_ADDRESS", "Chakoora Pulwama, J&K"),
		BusinessPhone:         getEnv("BUSINESS_PHONE", "+91 9622749245"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
