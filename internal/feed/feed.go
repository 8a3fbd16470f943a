// Package feed abstracts live push channels as "a sequence of updates I can
// cancel", independent of the transport behind them.
package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Subscription is a live registration. Cancel is idempotent and waits for a
// running handler call; no handler call starts after it returns. A handler
// must not cancel its own subscription.
type Subscription interface {
	Cancel()
}

// Handler receives one notification payload.
type Handler func(payload []byte)

type Feed interface {
	Subscribe(ctx context.Context, channel string, fn Handler) (Subscription, error)
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Func adapts a plain function to a Subscription.
type Func func()

func (f Func) Cancel() {
	if f != nil {
		f()
	}
}

// Once wraps sub so that Cancel runs at most once.
func Once(sub Subscription) Subscription {
	var once sync.Once
	return Func(func() {
		once.Do(sub.Cancel)
	})
}

// RedisFeed delivers notifications over redis pub/sub.
type RedisFeed struct {
	rdb *redis.Client
}

func NewRedisFeed(rdb *redis.Client) *RedisFeed {
	return &RedisFeed{rdb: rdb}
}

// Subscribe returns once redis has confirmed the subscription, so a publish
// issued after Subscribe returns is never missed.
func (f *RedisFeed) Subscribe(ctx context.Context, channel string, fn Handler) (Subscription, error) {
	ps := f.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{ps: ps}
	messages := ps.Channel()
	go func() {
		for msg := range messages {
			if !sub.deliver(fn, []byte(msg.Payload)) {
				return
			}
		}
	}()
	return sub, nil
}

func (f *RedisFeed) Publish(ctx context.Context, channel string, payload []byte) error {
	return f.rdb.Publish(ctx, channel, payload).Err()
}

type redisSubscription struct {
	ps        *redis.PubSub
	mu        sync.Mutex
	cancelled bool
	once      sync.Once
}

// deliver runs fn under the subscription lock and reports false once the
// subscription is cancelled.
func (s *redisSubscription) deliver(fn Handler, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false
	}
	fn(payload)
	return true
}

func (s *redisSubscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()
		s.ps.Close()
	})
}
