package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/survey-exchange/internal/config"
)

func clearEnv(t *testing.T, keys ...string) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestNew_Defaults(t *testing.T) {
	clearEnv(t, "DB_DRIVER", "DB_DSN", "MYSQL_DSN", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
		"HTTP_HOST", "HTTP_PORT", "PUBLIC_URL", "MATCH_TTL", "RESPONSE_TTL", "MUTUAL_BONUS",
		"MATCH_BASE_POINTS", "PENALTY_POINTS", "REDIS_POINTS_TTL", "HTTP_TRUSTED_PROXIES")

	cfg := config.New()

	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, "root:root@tcp(localhost:3306)/survey_exchange?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DB.DSN)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.HTTP.PublicURL)
	assert.Equal(t, 48*time.Hour, cfg.Exchange.MatchTTL)
	assert.Equal(t, 48*time.Hour, cfg.Exchange.ResponseTTL)
	assert.Equal(t, 2, cfg.Exchange.MutualBonus)
	assert.Equal(t, 10, cfg.Exchange.MatchBasePoints)
	assert.Equal(t, 5, cfg.Exchange.PenaltyPoints)
	assert.Equal(t, time.Hour, cfg.Redis.PointsTTL)
	assert.Empty(t, cfg.HTTP.TrustedProxies)
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_DSN", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("PUBLIC_URL", "https://exchange.example/")
	t.Setenv("MATCH_TTL", "24h")
	t.Setenv("MUTUAL_BONUS", "3")
	t.Setenv("LOG_SOURCE", "yes")
	t.Setenv("HTTP_TRUSTED_PROXIES", " 10.0.0.1, ,10.1.0.0/16")

	cfg := config.New()

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.DB.DSN)
	assert.Equal(t, "https://exchange.example", cfg.HTTP.PublicURL)
	assert.Equal(t, 24*time.Hour, cfg.Exchange.MatchTTL)
	assert.Equal(t, 3, cfg.Exchange.MutualBonus)
	assert.True(t, cfg.Log.Source)
	assert.Equal(t, []string{"10.0.0.1", "10.1.0.0/16"}, cfg.HTTP.TrustedProxies)
}

// Unparsable values fall back to the defaults.
func TestNew_BadValuesFallBack(t *testing.T) {
	clearEnv(t, "MATCH_TTL", "PENALTY_POINTS")
	t.Setenv("MATCH_TTL", "two days")
	t.Setenv("PENALTY_POINTS", "five")

	cfg := config.New()

	assert.Equal(t, 48*time.Hour, cfg.Exchange.MatchTTL)
	assert.Equal(t, 5, cfg.Exchange.PenaltyPoints)
}
