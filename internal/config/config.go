package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level      string
		Format     string
		Component  string
		Source     bool
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	DB struct {
		Driver   string
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr      string
		Password  string
		DB        int
		PointsTTL time.Duration
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Host               string
		Port               string
		PublicURL          string
		RateLimitPerMinute int
		// TrustedProxies may set X-Forwarded-For; empty trusts none.
		TrustedProxies []string
	}

	Auth struct {
		JWTSecret string
		TokenTTL  time.Duration
	}

	// Exchange holds the rules of the matching/points game.
	Exchange struct {
		MatchTTL         time.Duration
		ResponseTTL      time.Duration
		MutualBonus      int
		MatchBasePoints  int
		DefaultIncentive int
		PenaltyPoints    int
		SweepInterval    time.Duration
	}
}

func New() *Config {
	// .env is optional; real environment variables always win.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "development")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "survey_exchange")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))
	cfg.Log.File = getEnvDefault("LOG_FILE", "")
	cfg.Log.MaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", 100)
	cfg.Log.MaxBackups = getEnvInt("LOG_MAX_BACKUPS", 3)
	cfg.Log.MaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", 7)

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	}
	if cfg.DB.DSN == "" {
		switch cfg.DB.Driver {
		case "sqlite":
			cfg.DB.DSN = getEnvDefault("SQLITE_PATH", "survey_exchange.db")
		default:
			cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
			cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
			cfg.DB.User = getEnvDefault("DB_USER", "root")
			cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
			cfg.DB.Name = getEnvDefault("DB_NAME", "survey_exchange")

			cfg.DB.DSN = fmt.Sprintf(
				"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
				cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
			)
		}
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.PointsTTL = getEnvDuration("REDIS_POINTS_TTL", time.Hour)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// HTTP verification callback
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "127.0.0.1")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")
	cfg.HTTP.PublicURL = strings.TrimRight(
		getEnvDefault("PUBLIC_URL", "http://"+cfg.HTTP.Host+":"+cfg.HTTP.Port), "/")
	cfg.HTTP.RateLimitPerMinute = getEnvInt("HTTP_RATE_LIMIT_PER_MINUTE", 60)
	cfg.HTTP.TrustedProxies = getEnvList("HTTP_TRUSTED_PROXIES")

	// Auth
	cfg.Auth.JWTSecret = getEnvDefault("JWT_SECRET", "dev-secret-change-me")
	cfg.Auth.TokenTTL = getEnvDuration("JWT_TTL", 30*24*time.Hour)

	// Exchange rules
	cfg.Exchange.MatchTTL = getEnvDuration("MATCH_TTL", 48*time.Hour)
	cfg.Exchange.ResponseTTL = getEnvDuration("RESPONSE_TTL", 48*time.Hour)
	cfg.Exchange.MutualBonus = getEnvInt("MUTUAL_BONUS", 2)
	cfg.Exchange.MatchBasePoints = getEnvInt("MATCH_BASE_POINTS", 10)
	cfg.Exchange.DefaultIncentive = getEnvInt("DEFAULT_INCENTIVE", 10)
	cfg.Exchange.PenaltyPoints = getEnvInt("PENALTY_POINTS", 5)
	cfg.Exchange.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 5*time.Minute)

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvList(k string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(k), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
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
