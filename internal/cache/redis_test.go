package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/survey-exchange/internal/cache"
	"github.com/oggyb/survey-exchange/internal/config"
	"github.com/oggyb/survey-exchange/internal/db"
)

func setupCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.PointsTTL = time.Minute

	c := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestPointsTotal_SetGetInvalidate(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	_, found, err := c.GetTotal(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetTotal(ctx, "u1", 25))
	total, found, err := c.GetTotal(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 25, total)
	assert.Equal(t, time.Minute, mr.TTL(c.KeyForPointsTotal("u1")))

	// reads do not extend the TTL
	mr.FastForward(40 * time.Second)
	_, found, _ = c.GetTotal(ctx, "u1")
	assert.True(t, found)
	mr.FastForward(40 * time.Second)
	_, found, _ = c.GetTotal(ctx, "u1")
	assert.False(t, found, "entry expires after TTL")

	require.NoError(t, c.SetTotal(ctx, "u1", 5))
	require.NoError(t, c.InvalidateTotal(ctx, "u1"))
	_, found, _ = c.GetTotal(ctx, "u1")
	assert.False(t, found)
}

// A fill computed before an append must not overwrite the append's effect,
// and an append after a fill shifts the cached value.
func TestFillTotal_GenerationGuard(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCache(t)

	_, found, gen, err := c.SnapshotTotal(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	c.OnPointsAdded(ctx, db.PointRecord{ID: "rec-1", UserID: "u1", Points: 5})
	stored, err := c.FillTotal(ctx, "u1", 10, gen)
	require.NoError(t, err)
	assert.False(t, stored, "append happened since the snapshot")
	_, found, _ = c.GetTotal(ctx, "u1")
	assert.False(t, found)

	_, _, gen, err = c.SnapshotTotal(ctx, "u1")
	require.NoError(t, err)
	stored, err = c.FillTotal(ctx, "u1", 15, gen)
	require.NoError(t, err)
	assert.True(t, stored)

	c.OnPointsAdded(ctx, db.PointRecord{ID: "rec-2", UserID: "u1", Points: -3})
	total, found, err := c.GetTotal(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 12, total)
}

func TestOnPointsAdded_ShiftsAndPublishes(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCache(t)

	sub := c.SubscribePointsUpdates(ctx)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	require.NoError(t, c.SetTotal(ctx, "u1", 10))
	c.OnPointsAdded(ctx, db.PointRecord{ID: "rec-1", UserID: "u1", Points: 2, Type: db.PointsMutualBonus})

	total, found, _ := c.GetTotal(ctx, "u1")
	assert.True(t, found)
	assert.Equal(t, 12, total)

	select {
	case msg := <-sub.Channel():
		var upd cache.PointsUpdate
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &upd))
		assert.Equal(t, "u1", upd.UserID)
		assert.Equal(t, "rec-1", upd.RecordID)
		assert.Equal(t, 2, upd.Points)
		assert.Equal(t, db.PointsMutualBonus, upd.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no points-updated message received")
	}
}
