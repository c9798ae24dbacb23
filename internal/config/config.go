package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver     string
		DSN        string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SQLitePath string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Host           string
		Port           string
		AllowedOrigins []string
	}

	Auth struct {
		JWTSecret string
	}

	// Match holds the recommendation scoring policy.
	Match struct {
		WeightSkill    float64
		WeightInterest float64
		WeightIntent   float64
		Threshold      float64
		MaxLimit       int
	}

	Messaging struct {
		MaxContentLen int
		FanOut        string
		OutboxSize    int
		// RoomLease bounds how long a crashed instance can hold a room's
		// sequence point in redis fan-out mode.
		RoomLease time.Duration
	}
}

const (
	FanOutLocal = "local"
	FanOutRedis = "redis"
)

func New() *Config {
	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "campus")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.SQLitePath = getEnvDefault("SQLITE_PATH", "campus.db")
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "campus")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// HTTP gateway
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "127.0.0.1")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")
	cfg.HTTP.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"})

	cfg.Auth.JWTSecret = getEnvDefault("JWT_SECRET", "dev-secret-change-me")

	// Recommendation policy
	cfg.Match.WeightSkill = getEnvFloat("MATCH_W_SKILL", 0.5)
	cfg.Match.WeightInterest = getEnvFloat("MATCH_W_INTEREST", 0.3)
	cfg.Match.WeightIntent = getEnvFloat("MATCH_W_INTENT", 0.2)
	cfg.Match.Threshold = getEnvFloat("MATCH_THRESHOLD", 0.25)
	cfg.Match.MaxLimit = getEnvInt("MATCH_MAX_LIMIT", 100)

	// Messaging
	cfg.Messaging.MaxContentLen = getEnvInt("MSG_MAX_CONTENT", 4000)
	cfg.Messaging.FanOut = strings.ToLower(getEnvDefault("MSG_FANOUT", FanOutLocal))
	cfg.Messaging.OutboxSize = getEnvInt("MSG_OUTBOX_SIZE", 64)
	cfg.Messaging.RoomLease = time.Duration(getEnvInt("MSG_ROOM_LEASE_SECONDS", 10)) * time.Second

	return cfg
}

// Validate reports configuration that would make the service misbehave.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.DB.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	switch c.Messaging.FanOut {
	case FanOutLocal, FanOutRedis:
	default:
		return fmt.Errorf("unsupported MSG_FANOUT %q", c.Messaging.FanOut)
	}
	if c.Match.WeightSkill <= 0 || c.Match.WeightInterest <= 0 || c.Match.WeightIntent <= 0 {
		return errors.New("match weights must be positive")
	}
	if c.Match.MaxLimit <= 0 {
		return errors.New("MATCH_MAX_LIMIT must be positive")
	}
	if c.Messaging.MaxContentLen <= 0 || c.Messaging.OutboxSize <= 0 {
		return errors.New("messaging limits must be positive")
	}
	if c.Messaging.FanOut == FanOutRedis && c.Messaging.RoomLease <= 0 {
		return errors.New("MSG_ROOM_LEASE_SECONDS must be positive with redis fan-out")
	}
	return nil
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvList(k string, def []string) []string {
	raw := getEnvDefault(k, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(k string, def int) int {
	if n, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return n
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(getEnvDefault(k, ""), 64); err == nil {
		return f
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
