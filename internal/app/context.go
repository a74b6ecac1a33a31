package app

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/cache"
	"github.com/oggyb/survey-exchange/internal/config"
)

// AppContext holds shared dependencies (DB, Redis, Logger, Clock, etc.)
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Tokens     *auth.TokenManager
}

// New creates a new AppContext. rdb may be nil to run without the totals cache.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, clock clockwork.Clock, logger *slog.Logger) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Clock:      clock,
		Tokens:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, clock),
	}
}
