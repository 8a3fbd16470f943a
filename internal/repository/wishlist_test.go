package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/entity"
	"storefront-service/internal/feed"
	"storefront-service/internal/wishlist"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

type keyRecorder struct {
	mu   sync.Mutex
	seen [][]string
}

func (k *keyRecorder) record(keys []string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.seen = append(k.seen, keys)
}

func (k *keyRecorder) last() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.seen) == 0 {
		return nil
	}
	return k.seen[len(k.seen)-1]
}

func TestWishlistListenDeliversCurrentKeysFirst(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	_, err := mr.SAdd("wishlist:u1", "b", "a")
	require.NoError(t, err)

	repo := NewWishlistRepository(rdb, feed.NewRedisFeed(rdb))
	rec := &keyRecorder{}
	sub, err := repo.Listen(context.Background(), "u1", rec.record)
	require.NoError(t, err)
	defer sub.Cancel()

	assert.Equal(t, []string{"a", "b"}, rec.last())
}

func TestWishlistAddRemoveNotifiesListeners(t *testing.T) {
	_, rdb := setupTestRedis(t)
	repo := NewWishlistRepository(rdb, feed.NewRedisFeed(rdb))
	ctx := context.Background()

	rec := &keyRecorder{}
	sub, err := repo.Listen(ctx, "u1", rec.record)
	require.NoError(t, err)
	defer sub.Cancel()
	assert.Empty(t, rec.last())

	item := entity.WishlistItem{Key: "d1", Name: "Dosa", Price: decimal.RequireFromString("45.00"), AddedAt: time.Now().UTC()}
	require.NoError(t, repo.Add(ctx, "u1", item))
	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)

	items, err := repo.Fetch(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Dosa", items[0].Name)
	assert.True(t, items[0].Price.Equal(decimal.NewFromInt(45)))

	require.NoError(t, repo.Remove(ctx, "u1", "d1"))
	require.Eventually(t, func() bool { return len(rec.last()) == 0 }, time.Second, 5*time.Millisecond)

	items, err = repo.Fetch(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWishlistSynchronizerOverRedis(t *testing.T) {
	_, rdb := setupTestRedis(t)
	repo := NewWishlistRepository(rdb, feed.NewRedisFeed(rdb))
	ctx := context.Background()

	s := wishlist.New(repo, 2*time.Second)
	defer s.Close()
	require.NoError(t, s.SetUser(ctx, "u1"))

	dish := entity.Dish{Key: "d1", Name: "Idli", Price: entity.Price{Final: decimal.NewFromInt(40)}}
	require.NoError(t, s.Toggle(ctx, dish))
	assert.True(t, s.Contains("d1"))

	require.NoError(t, s.Toggle(ctx, dish))
	assert.False(t, s.Contains("d1"))
}
