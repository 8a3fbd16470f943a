package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/apperr"
	"storefront-service/internal/cart"
	"storefront-service/internal/entity"
	"storefront-service/internal/feed"
	"storefront-service/internal/pricing"
	"storefront-service/internal/service"
	"storefront-service/internal/session"
	"storefront-service/internal/status"
)

const testSecret = "test-secret"

type fakeCatalog struct {
	dishes   map[string]entity.Dish
	degraded bool
}

func (f *fakeCatalog) FetchCategories(ctx context.Context) ([]entity.Category, bool) {
	return []entity.Category{{ID: "fastfood", Name: "Fast Food"}}, f.degraded
}

func (f *fakeCatalog) FetchBanners(ctx context.Context) ([]entity.Banner, bool) {
	return nil, f.degraded
}

func (f *fakeCatalog) FetchDishes(ctx context.Context, pincode string) ([]entity.Dish, bool) {
	var out []entity.Dish
	for _, key := range []string{"d1", "d2", "d3"} {
		if d, ok := f.dishes[key]; ok && d.AvailableIn(pincode) {
			out = append(out, d)
		}
	}
	return out, f.degraded
}

func (f *fakeCatalog) FetchDish(ctx context.Context, key string) (*entity.Dish, error) {
	d, ok := f.dishes[key]
	if !ok {
		return nil, service.ErrDishUnavailable
	}
	return &d, nil
}

type fakeOrders struct {
	mu       sync.Mutex
	placeErr error
	requests []service.PlaceOrderRequest
	orders   map[string]entity.Order
}

func (f *fakeOrders) Place(ctx context.Context, req service.PlaceOrderRequest, c *cart.Store) (*service.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	order := entity.Order{Key: "o-new", UserID: req.UserID, Status: entity.StatusPlaced, Total: pricing.Format(c.Total())}
	c.Clear()
	return &service.Receipt{OrderKey: order.Key, Order: &order, Duplicate: req.IdempotencyKey == "seen"}, nil
}

func (f *fakeOrders) List(ctx context.Context, userID string) ([]entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entity.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) Get(ctx context.Context, userID, key string) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[key]
	if !ok || o.UserID != userID {
		return nil, service.ErrOrderNotFound
	}
	return &o, nil
}

func (f *fakeOrders) Cancel(ctx context.Context, userID, key, reason string) (*entity.Order, error) {
	o, err := f.Get(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	next, err := status.Cancel(o.Status)
	if err != nil {
		return nil, err
	}
	o.Status = next
	o.CancellationReason = reason
	return o, nil
}

func (f *fakeOrders) Remove(ctx context.Context, userID, key string) error {
	o, err := f.Get(ctx, userID, key)
	if err != nil {
		return err
	}
	return status.CanRemove(o.Status)
}

func (f *fakeOrders) Listen(ctx context.Context, userID string, fn func([]entity.Order)) (feed.Subscription, error) {
	orders, _ := f.List(ctx, userID)
	fn(orders)
	return feed.Func(nil), nil
}

// memoryWishlists confirms writes synchronously.
type memoryWishlists struct {
	mu        sync.Mutex
	items     map[string]map[string]entity.WishlistItem
	listeners map[string][]func([]string)
}

func (m *memoryWishlists) Listen(ctx context.Context, userID string, fn func([]string)) (feed.Subscription, error) {
	m.mu.Lock()
	m.listeners[userID] = append(m.listeners[userID], fn)
	keys := m.keysLocked(userID)
	m.mu.Unlock()
	fn(keys)
	return feed.Func(nil), nil
}

func (m *memoryWishlists) Add(ctx context.Context, userID string, item entity.WishlistItem) error {
	m.mu.Lock()
	if m.items[userID] == nil {
		m.items[userID] = map[string]entity.WishlistItem{}
	}
	m.items[userID][item.Key] = item
	return m.notifyUnlock(userID)
}

func (m *memoryWishlists) Remove(ctx context.Context, userID, key string) error {
	m.mu.Lock()
	delete(m.items[userID], key)
	return m.notifyUnlock(userID)
}

func (m *memoryWishlists) Fetch(ctx context.Context, userID string) ([]entity.WishlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.WishlistItem
	for _, item := range m.items[userID] {
		out = append(out, item)
	}
	return out, nil
}

func (m *memoryWishlists) keysLocked(userID string) []string {
	var keys []string
	for k := range m.items[userID] {
		keys = append(keys, k)
	}
	return keys
}

func (m *memoryWishlists) notifyUnlock(userID string) error {
	keys := m.keysLocked(userID)
	fns := append([]func([]string){}, m.listeners[userID]...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(keys)
	}
	return nil
}

type staticSettings struct{}

func (staticSettings) Fetch(ctx context.Context) entity.AppSettings {
	return entity.DefaultAppSettings()
}

func dish(key, price string, inStock bool) entity.Dish {
	return entity.Dish{
		Key:        key,
		Name:       "Dish " + key,
		Unit:       "1 plate",
		CategoryID: "fastfood",
		Pincode:    entity.PincodeAll,
		Discount:   decimal.Zero,
		Price:      entity.Price{Final: decimal.RequireFromString(price)},
		InStock:    &inStock,
	}
}

type testServer struct {
	e        *echo.Echo
	catalog  *fakeCatalog
	orders   *fakeOrders
	sessions *session.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	catalog := &fakeCatalog{dishes: map[string]entity.Dish{
		"d1": dish("d1", "20.00", true),
		"d2": dish("d2", "35.00", true),
		"d3": dish("d3", "15.00", false),
	}}
	orders := &fakeOrders{orders: map[string]entity.Order{
		"o-placed":    {Key: "o-placed", UserID: "u1", Status: entity.StatusPlaced},
		"o-preparing": {Key: "o-preparing", UserID: "u1", Status: entity.StatusPreparing},
	}}
	wishlists := &memoryWishlists{
		items:     map[string]map[string]entity.WishlistItem{},
		listeners: map[string][]func([]string){},
	}
	sessions := session.NewManager(staticSettings{}, pricing.DefaultRules(), wishlists, orders, time.Second)
	sessions.Start(context.Background())
	t.Cleanup(sessions.Shutdown)

	e := NewRouter(RouterConfig{JWTSecret: testSecret, RateLimit: 1000, RateBurst: 1000},
		NewCatalogHandler(catalog, sessions, "/login"),
		NewStoreHandler(sessions, catalog, "/login"),
		NewOrderHandler(orders, sessions, "/login"),
	)
	return &testServer{e: e, catalog: catalog, orders: orders, sessions: sessions}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := NewToken(testSecret, userID, "Asha", "", time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (s *testServer) do(t *testing.T, method, path, userID, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if userID != "" {
		req.Header.Set(echo.HeaderAuthorization, bearer(t, userID))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndPublicCatalog(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/catalog/dishes?category=fastfood", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["degraded"])
	dishes := body["dishes"].([]interface{})
	require.Len(t, dishes, 3)
	first := dishes[0].(map[string]interface{})
	assert.Equal(t, "20.00", first["customer_price"])
	assert.Equal(t, true, first["available"])

	rec = s.do(t, http.MethodGet, "/settings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#673AB7", decode(t, rec)["theme_color"])
}

func TestDishesDefaultToTokenPincode(t *testing.T) {
	s := newTestServer(t)
	local := dish("d2", "35.00", true)
	local.Pincode = "560001"
	s.catalog.dishes["d2"] = local

	get := func(path, authorization string) []interface{} {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if authorization != "" {
			req.Header.Set(echo.HeaderAuthorization, authorization)
		}
		rec := httptest.NewRecorder()
		s.e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return decode(t, rec)["dishes"].([]interface{})
	}

	token, err := NewToken(testSecret, "u1", "Asha", "110001", time.Hour)
	require.NoError(t, err)

	assert.Len(t, get("/catalog/dishes", ""), 3)
	assert.Len(t, get("/catalog/dishes", "Bearer "+token), 2)
	assert.Len(t, get("/catalog/dishes?pincode=560001", "Bearer "+token), 3)
	assert.Len(t, get("/catalog/dishes", "Bearer not-a-token"), 3)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/cart", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", decode(t, rec)["sign_in"])

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/cart/items", "u1", `{"dish_key":"d1","quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["count"])
	subtotal, err := decimal.NewFromString(body["subtotal"].(string))
	require.NoError(t, err)
	assert.Equal(t, "40.00", pricing.Format(subtotal))
	assert.Equal(t, false, body["valid"])

	rec = s.do(t, http.MethodPatch, "/cart/items/d1", "u1", `{"delta":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["valid"])

	rec = s.do(t, http.MethodPost, "/cart/items", "u1", `{"dish_key":"d1","quantity":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/cart/items", "u1", `{"dish_key":"d3"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/cart/items", "u1", `{"dish_key":"missing"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/cart", "u2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["count"])

	rec = s.do(t, http.MethodDelete, "/cart", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["count"])
}

func TestWishlistToggle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/wishlist/d2/toggle", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["wished"])

	rec = s.do(t, http.MethodGet, "/wishlist/items", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = s.do(t, http.MethodPost, "/wishlist/d2/toggle", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["wished"])

	rec = s.do(t, http.MethodPost, "/wishlist/d3/toggle", "u1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t)
	address := `{"address":{"name":"Asha","phone":"9876543210","pincode":"560001","line":"12 MG Road"}}`

	rec := s.do(t, http.MethodPost, "/orders", "u1", address, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "o-new", decode(t, rec)["order_key"])
	require.Len(t, s.orders.requests, 1)
	assert.Equal(t, "k-1", s.orders.requests[0].IdempotencyKey)
	assert.Equal(t, "u1", s.orders.requests[0].UserID)
	assert.Equal(t, "560001", s.orders.requests[0].Address.Pincode)

	rec = s.do(t, http.MethodPost, "/orders", "u1", address, "Idempotency-Key", "seen")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["duplicate"])
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      int
		retryable bool
	}{
		{"below minimum", apperr.Wrap(apperr.BusinessRule, service.ErrBelowMinimum, "add at least 3 items to place an order"), http.StatusConflict, false},
		{"invalid phone", service.ErrInvalidPhone, http.StatusUnprocessableEntity, false},
		{"submit failed", apperr.Wrap(apperr.Remote, errors.New("db down"), service.ErrSubmitFailed.Message), http.StatusServiceUnavailable, true},
		{"in flight", service.ErrSubmissionInFlight, http.StatusServiceUnavailable, true},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.orders.placeErr = tt.err

			rec := s.do(t, http.MethodPost, "/orders", "u1", `{"address":{}}`)
			require.Equal(t, tt.code, rec.Code)
			body := decode(t, rec)
			if tt.retryable {
				assert.Equal(t, true, body["retryable"])
			} else {
				assert.Nil(t, body["retryable"])
			}
		})
	}
}

func TestOrderRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/orders/o-placed", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Placed", body["progress"].(map[string]interface{})["status"])

	rec = s.do(t, http.MethodGet, "/orders/o-placed", "u2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/orders/o-preparing/cancel", "u1", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/orders/o-placed/cancel", "u1", `{"reason":"changed my mind"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decode(t, rec)["status"])

	rec = s.do(t, http.MethodDelete, "/orders/o-preparing", "u1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/orders", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["orders"], 2)
}

func TestStreamOrders(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/orders/stream", nil)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, "u1"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	assert.Equal(t, "orders", event)

	var orders []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(data), &orders))
	assert.Len(t, orders, 2)
}

func TestEndSession(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/cart", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, s.sessions.Len())

	rec = s.do(t, http.MethodDelete, "/session", "u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.sessions.Len())
}

func TestStreamOrdersEndsWithSession(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/orders/stream", nil)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, "u1"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			break
		}
	}

	rec := s.do(t, http.MethodDelete, "/session", "u1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	closed := make(chan struct{})
	go func() {
		for scanner.Scan() {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("order stream stayed open after the session ended")
	}
}
