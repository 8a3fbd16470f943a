// Package session is the application context: it fetches app settings once
// at startup and owns one session per signed-in user. A session holds the
// cart, the wishlist mirror and at most one live orders subscription; ending
// it releases all of them.
package session

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storefront-service/internal/cart"
	"storefront-service/internal/entity"
	"storefront-service/internal/feed"
	"storefront-service/internal/pricing"
	"storefront-service/internal/wishlist"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type SettingsFetcher interface {
	Fetch(ctx context.Context) entity.AppSettings
}

// OrderFeed streams a user's orders.
type OrderFeed interface {
	Listen(ctx context.Context, userID string, fn func([]entity.Order)) (feed.Subscription, error)
}

type Manager struct {
	settingsSvc    SettingsFetcher
	rules          pricing.Rules
	wishlists      wishlist.Store
	orders         OrderFeed
	confirmTimeout time.Duration
	now            func() time.Time

	mu       sync.Mutex
	settings entity.AppSettings
	sessions map[string]*Session
}

func NewManager(settingsSvc SettingsFetcher, rules pricing.Rules, wishlists wishlist.Store, orders OrderFeed, confirmTimeout time.Duration) *Manager {
	return &Manager{
		settingsSvc:    settingsSvc,
		rules:          rules,
		wishlists:      wishlists,
		orders:         orders,
		confirmTimeout: confirmTimeout,
		now:            time.Now,
		settings:       entity.DefaultAppSettings(),
		sessions:       map[string]*Session{},
	}
}

// Start fetches the app settings. It never fails; missing settings keep
// their defaults.
func (m *Manager) Start(ctx context.Context) {
	m.RefreshSettings(ctx)
}

// RefreshSettings re-fetches the app settings and applies them to every live cart.
func (m *Manager) RefreshSettings(ctx context.Context) entity.AppSettings {
	settings := m.settingsSvc.Fetch(ctx)

	m.mu.Lock()
	m.settings = settings
	sessions := m.snapshotLocked()
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cart.SetDeliverySettings(settings)
	}
	logger.Info().Msgf("App settings loaded: delivery fee %s, free delivery from %s",
		pricing.Format(settings.DeliveryFee), pricing.Format(settings.FreeDeliveryThreshold))
	return settings
}

func (m *Manager) Settings() entity.AppSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Session returns the user's session, creating it on first use.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, wishlist.ErrSignInRequired
	}

	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		s.touch(m.now())
		m.mu.Unlock()
		return s, nil
	}
	settings := m.settings
	m.mu.Unlock()

	s := &Session{
		UserID:        userID,
		Cart:          cart.New(m.rules, settings),
		Wishlist:      wishlist.New(m.wishlists, m.confirmTimeout),
		orderFeed:     m.orders,
		ordersChanged: make(chan struct{}),
		done:          make(chan struct{}),
	}
	if err := s.Wishlist.SetUser(ctx, userID); err != nil {
		return nil, err
	}
	s.touch(m.now())

	m.mu.Lock()
	if existing, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		s.close()
		existing.touch(m.now())
		return existing, nil
	}
	m.sessions[userID] = s
	m.mu.Unlock()

	logger.Info().Msgf("Session started for user %s", userID)
	return s, nil
}

// End signs the user out, cancelling every live subscription of the session.
func (m *Manager) End(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		s.close()
		logger.Info().Msgf("Session ended for user %s", userID)
	}
}

// EvictIdle ends sessions not used for longer than idle and returns how many
// were ended.
func (m *Manager) EvictIdle(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.lastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
	return len(stale)
}

// Shutdown ends every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.snapshotLocked()
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	logger.Info().Msgf("Closed %d session(s)", len(sessions))
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) snapshotLocked() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

type Session struct {
	UserID   string
	Cart     *cart.Store
	Wishlist *wishlist.Synchronizer

	orderFeed OrderFeed

	// subMu serializes replacing the orders subscription.
	subMu     sync.Mutex
	ordersSub feed.Subscription

	mu            sync.Mutex
	seen          time.Time
	orders        []entity.Order
	ordersChanged chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Orders returns the latest orders snapshot and a channel closed on the next
// change. The first call opens the session's orders subscription.
func (s *Session) Orders(ctx context.Context) ([]entity.Order, <-chan struct{}, error) {
	if err := s.watchOrders(ctx); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Order, len(s.orders))
	copy(out, s.orders)
	return out, s.ordersChanged, nil
}

// stopOrders cancels the orders subscription, if any.
func (s *Session) stopOrders() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.ordersSub != nil {
		s.ordersSub.Cancel()
		s.ordersSub = nil
	}
}

func (s *Session) watchOrders(ctx context.Context) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.ordersSub != nil {
		return nil
	}

	sub, err := s.orderFeed.Listen(ctx, s.UserID, s.applyOrders)
	if err != nil {
		logger.Error().Err(err).Msgf("Error watching orders of user %s", s.UserID)
		return err
	}
	s.ordersSub = sub
	return nil
}

func (s *Session) applyOrders(orders []entity.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = orders
	close(s.ordersChanged)
	s.ordersChanged = make(chan struct{})
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = now
}

func (s *Session) lastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.stopOrders()
		s.Wishlist.Close()
	})
}
