// Package wishlist mirrors a customer's remote wishlist. The remote store is
// the source of truth: local membership only changes when the live
// subscription reports it, never optimistically.
package wishlist

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storefront-service/internal/apperr"
	"storefront-service/internal/entity"
	"storefront-service/internal/feed"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

var (
	ErrSignInRequired = apperr.New(apperr.Authorization, "sign in to use your wishlist")
	ErrOutOfStock     = apperr.New(apperr.BusinessRule, "out of stock items cannot be added to the wishlist")
	ErrUpdateFailed   = apperr.New(apperr.Remote, "could not update your wishlist, please try again")
	ErrFetchFailed    = apperr.New(apperr.Remote, "could not load your wishlist, please try again")
	ErrConnectFailed  = apperr.New(apperr.Remote, "could not connect to your wishlist, please try again")
)

// Store is the remote per-user wishlist.
type Store interface {
	// Listen delivers the current key set and then every change until the
	// subscription is cancelled.
	Listen(ctx context.Context, userID string, fn func(keys []string)) (feed.Subscription, error)
	Add(ctx context.Context, userID string, item entity.WishlistItem) error
	Remove(ctx context.Context, userID, key string) error
	Fetch(ctx context.Context, userID string) ([]entity.WishlistItem, error)
}

type Synchronizer struct {
	store          Store
	confirmTimeout time.Duration

	// setMu serializes user switches so an old subscription is always torn
	// down before the next one is opened.
	setMu sync.Mutex

	mu         sync.Mutex
	userID     string
	generation uint64
	sub        feed.Subscription
	keys       map[string]struct{}
	changed    chan struct{}

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New returns a signed-out synchronizer. confirmTimeout bounds how long a
// toggle waits to see its own write come back on the subscription.
func New(store Store, confirmTimeout time.Duration) *Synchronizer {
	return &Synchronizer{
		store:          store,
		confirmTimeout: confirmTimeout,
		keys:           map[string]struct{}{},
		changed:        make(chan struct{}),
		locks:          map[string]*keyLock{},
	}
}

// SetUser switches the mirrored user. An empty userID signs out. The previous
// subscription is cancelled before a new one is established.
func (s *Synchronizer) SetUser(ctx context.Context, userID string) error {
	s.setMu.Lock()
	defer s.setMu.Unlock()

	s.mu.Lock()
	if userID == s.userID && (userID == "" || s.sub != nil) {
		s.mu.Unlock()
		return nil
	}
	old := s.sub
	s.sub = nil
	s.generation++
	gen := s.generation
	s.userID = userID
	s.keys = map[string]struct{}{}
	s.broadcastLocked()
	s.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	if userID == "" {
		return nil
	}

	sub, err := s.store.Listen(ctx, userID, func(keys []string) {
		s.apply(gen, keys)
	})
	if err != nil {
		logger.Error().Err(err).Msgf("Error subscribing to wishlist of user %s", userID)
		return apperr.Wrap(apperr.Remote, err, ErrConnectFailed.Message)
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		sub.Cancel()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// UserID returns the signed-in user, "" when signed out.
func (s *Synchronizer) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Toggle removes dish from the wishlist if present and adds it otherwise.
// It returns after the change is visible locally or confirmTimeout passes.
func (s *Synchronizer) Toggle(ctx context.Context, dish entity.Dish) error {
	userID := s.UserID()
	if userID == "" {
		return ErrSignInRequired
	}
	if !dish.Available() {
		return ErrOutOfStock
	}

	unlock := s.lockKey(dish.Key)
	defer unlock()

	present := s.Contains(dish.Key)
	var err error
	if present {
		err = s.store.Remove(ctx, userID, dish.Key)
	} else {
		price := dish.Price.Final
		if p, perr := dish.CustomerPrice(); perr == nil {
			price = p
		}
		err = s.store.Add(ctx, userID, entity.WishlistItem{
			Key:      dish.Key,
			Name:     dish.Name,
			Price:    price,
			Image:    dish.Image(),
			Discount: dish.Discount,
			Unit:     dish.Unit,
			AddedAt:  time.Now().UTC(),
		})
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error toggling wishlist item %s for user %s", dish.Key, userID)
		return apperr.Wrap(apperr.Remote, err, ErrUpdateFailed.Message)
	}

	if !s.await(ctx, dish.Key, !present) {
		logger.Warn().Msgf("Wishlist change of %s for user %s not confirmed within %s", dish.Key, userID, s.confirmTimeout)
	}
	return nil
}

// Contains reports confirmed membership of key.
func (s *Synchronizer) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Keys returns the confirmed key set, sorted.
func (s *Synchronizer) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Details fetches the stored item snapshots, dropping any whose key is no
// longer in the live set.
func (s *Synchronizer) Details(ctx context.Context) ([]entity.WishlistItem, error) {
	userID := s.UserID()
	if userID == "" {
		return nil, ErrSignInRequired
	}

	items, err := s.store.Fetch(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error fetching wishlist of user %s", userID)
		return nil, apperr.Wrap(apperr.Remote, err, ErrFetchFailed.Message)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.WishlistItem, 0, len(items))
	for _, item := range items {
		if _, ok := s.keys[item.Key]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// Close signs out and cancels the live subscription.
func (s *Synchronizer) Close() {
	_ = s.SetUser(context.Background(), "")
}

func (s *Synchronizer) apply(gen uint64, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	next := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		next[k] = struct{}{}
	}
	s.keys = next
	s.broadcastLocked()
}

func (s *Synchronizer) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// await blocks until membership of key equals want.
func (s *Synchronizer) await(ctx context.Context, key string, want bool) bool {
	timer := time.NewTimer(s.confirmTimeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		_, ok := s.keys[key]
		changed := s.changed
		s.mu.Unlock()
		if ok == want {
			return true
		}

		select {
		case <-changed:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Synchronizer) lockKey(key string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.locksMu.Unlock()
	}
}
