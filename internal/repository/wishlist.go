package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-redis/redis/v8"

	"storefront-service/internal/entity"
	"storefront-service/internal/feed"
)

// WishlistRepository keeps each user's wishlist in redis: a set of dish keys,
// a hash of detail snapshots, and a pub/sub channel announcing changes.
type WishlistRepository struct {
	rdb  *redis.Client
	feed feed.Feed
}

func NewWishlistRepository(rdb *redis.Client, f feed.Feed) *WishlistRepository {
	return &WishlistRepository{rdb: rdb, feed: f}
}

func wishlistKeysKey(userID string) string  { return "wishlist:" + userID }
func wishlistItemsKey(userID string) string { return "wishlist:" + userID + ":items" }
func wishlistChannel(userID string) string  { return "wishlist:" + userID }

// Listen subscribes before reading so no change between the read and the
// subscription is lost. The current key set is delivered before returning,
// and deliveries never overlap.
func (r *WishlistRepository) Listen(ctx context.Context, userID string, fn func(keys []string)) (feed.Subscription, error) {
	var mu sync.Mutex
	deliver := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		keys, err := r.keys(ctx, userID)
		if err != nil {
			return err
		}
		fn(keys)
		return nil
	}

	sub, err := r.feed.Subscribe(ctx, wishlistChannel(userID), func([]byte) {
		if err := deliver(context.Background()); err != nil {
			logger.Error().Err(err).Msgf("Error reading wishlist of user %s", userID)
		}
	})
	if err != nil {
		return nil, err
	}

	if err := deliver(ctx); err != nil {
		sub.Cancel()
		return nil, err
	}
	return sub, nil
}

func (r *WishlistRepository) Add(ctx context.Context, userID string, item entity.WishlistItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, wishlistKeysKey(userID), item.Key)
		pipe.HSet(ctx, wishlistItemsKey(userID), item.Key, data)
		return nil
	})
	if err != nil {
		return err
	}
	return r.notify(ctx, userID)
}

func (r *WishlistRepository) Remove(ctx context.Context, userID, key string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, wishlistKeysKey(userID), key)
		pipe.HDel(ctx, wishlistItemsKey(userID), key)
		return nil
	})
	if err != nil {
		return err
	}
	return r.notify(ctx, userID)
}

// Fetch returns the stored detail snapshots ordered by dish key.
func (r *WishlistRepository) Fetch(ctx context.Context, userID string) ([]entity.WishlistItem, error) {
	raw, err := r.rdb.HGetAll(ctx, wishlistItemsKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	items := make([]entity.WishlistItem, 0, len(raw))
	for key, data := range raw {
		var item entity.WishlistItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("wishlist item %s: %w", key, err)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (r *WishlistRepository) keys(ctx context.Context, userID string) ([]string, error) {
	keys, err := r.rdb.SMembers(ctx, wishlistKeysKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *WishlistRepository) notify(ctx context.Context, userID string) error {
	return r.feed.Publish(ctx, wishlistChannel(userID), []byte("changed"))
}
