package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/survey-exchange/internal/config"
	"github.com/oggyb/survey-exchange/internal/db"
)

// PointsUpdatedChannel carries one message per ledger append.
const PointsUpdatedChannel = "points-updated"

type RedisCache struct {
	Client    *redis.Client
	PointsTTL time.Duration
	Logger    *slog.Logger
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	ttl := cfg.Redis.PointsTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{Client: redis.NewClient(opts), PointsTTL: ttl, Logger: slog.Default()}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForPointsTotal generates Redis key for a user's cached point total
func (c *RedisCache) KeyForPointsTotal(userID string) string {
	return fmt.Sprintf("points:total:%s", userID)
}

// KeyForPointsGen generates Redis key for a user's append counter.
// Every ledger append bumps it; a fill only lands if it did not move.
func (c *RedisCache) KeyForPointsGen(userID string) string {
	return fmt.Sprintf("points:gen:%s", userID)
}

// fillTotal sets KEYS[1] = ARGV[1] only while KEYS[2] still equals ARGV[2].
var fillTotal = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[2] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// applyDelta bumps the generation and shifts a cached total in place.
var applyDelta = redis.NewScript(`
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[2])
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("INCRBY", KEYS[1], ARGV[1])
end
return 1
`)

// GetTotal returns the cached total. found is false on a cache miss.
func (c *RedisCache) GetTotal(ctx context.Context, userID string) (total int, found bool, err error) {
	total, found, _, err = c.SnapshotTotal(ctx, userID)
	return total, found, err
}

// SnapshotTotal returns the cached total together with the user's append
// generation. On a miss, pass gen to FillTotal after reading the DB.
// Reads never extend the TTL.
func (c *RedisCache) SnapshotTotal(ctx context.Context, userID string) (total int, found bool, gen int64, err error) {
	vals, err := c.Client.MGet(ctx, c.KeyForPointsTotal(userID), c.KeyForPointsGen(userID)).Result()
	if err != nil {
		return 0, false, 0, err
	}
	if g, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(g, 10, 64); err != nil {
			return 0, false, 0, err
		}
	}
	v, ok := vals[0].(string)
	if !ok {
		return 0, false, gen, nil // cache miss
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, gen, err
	}
	return n, true, gen, nil
}

// FillTotal caches total unless an append happened since gen was read.
// stored reports whether the value was written.
func (c *RedisCache) FillTotal(ctx context.Context, userID string, total int, gen int64) (stored bool, err error) {
	n, err := fillTotal.Run(ctx, c.Client,
		[]string{c.KeyForPointsTotal(userID), c.KeyForPointsGen(userID)},
		total, gen, c.PointsTTL.Milliseconds(),
	).Int()
	return n == 1, err
}

// SetTotal overwrites the cached total unconditionally. Used by reconciliation.
func (c *RedisCache) SetTotal(ctx context.Context, userID string, total int) error {
	return c.Client.Set(ctx, c.KeyForPointsTotal(userID), total, c.PointsTTL).Err()
}

func (c *RedisCache) InvalidateTotal(ctx context.Context, userID string) error {
	return c.Client.Del(ctx, c.KeyForPointsTotal(userID)).Err()
}

// PointsUpdate is the payload published on PointsUpdatedChannel.
type PointsUpdate struct {
	UserID   string       `json:"userId"`
	RecordID string       `json:"recordId"`
	Points   int          `json:"points"`
	Type     db.PointType `json:"type"`
}

// OnPointsAdded shifts the cached total by the record's points and announces
// the change to subscribers. If the shift fails the cached total is dropped.
// Failures are logged only; the ledger remains the source of truth.
func (c *RedisCache) OnPointsAdded(ctx context.Context, rec db.PointRecord) {
	err := applyDelta.Run(ctx, c.Client,
		[]string{c.KeyForPointsTotal(rec.UserID), c.KeyForPointsGen(rec.UserID)},
		rec.Points, c.PointsTTL.Milliseconds(),
	).Err()
	if err != nil {
		c.Logger.Warn("points cache update failed", "user", rec.UserID, "err", err)
		if err := c.InvalidateTotal(ctx, rec.UserID); err != nil {
			c.Logger.Warn("points cache invalidation failed", "user", rec.UserID, "err", err)
		}
	}

	payload, err := json.Marshal(PointsUpdate{
		UserID:   rec.UserID,
		RecordID: rec.ID,
		Points:   rec.Points,
		Type:     rec.Type,
	})
	if err != nil {
		return
	}
	if err := c.Client.Publish(ctx, PointsUpdatedChannel, payload).Err(); err != nil {
		c.Logger.Warn("points-updated publish failed", "user", rec.UserID, "err", err)
	}
}

// SubscribePointsUpdates returns a subscription to PointsUpdatedChannel.
// Callers must Close it.
func (c *RedisCache) SubscribePointsUpdates(ctx context.Context) *redis.PubSub {
	return c.Client.Subscribe(ctx, PointsUpdatedChannel)
}
