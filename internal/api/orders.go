package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"storefront-service/internal/cart"
	"storefront-service/internal/entity"
	"storefront-service/internal/service"
	"storefront-service/internal/session"
	"storefront-service/internal/status"
)

// OrderManager is the order side of the store.
type OrderManager interface {
	Place(ctx context.Context, req service.PlaceOrderRequest, c *cart.Store) (*service.Receipt, error)
	List(ctx context.Context, userID string) ([]entity.Order, error)
	Get(ctx context.Context, userID, key string) (*entity.Order, error)
	Cancel(ctx context.Context, userID, key, reason string) (*entity.Order, error)
	Remove(ctx context.Context, userID, key string) error
}

type OrderHandler struct {
	orders    OrderManager
	sessions  *session.Manager
	signInURL string
}

func NewOrderHandler(orders OrderManager, sessions *session.Manager, signInURL string) *OrderHandler {
	return &OrderHandler{orders: orders, sessions: sessions, signInURL: signInURL}
}

// orderView adds the rendered progress bar to an order.
type orderView struct {
	entity.Order
	ItemCount int              `json:"item_count"`
	Progress  *status.Progress `json:"progress,omitempty"`
}

func newOrderView(o entity.Order) orderView {
	view := orderView{Order: o, ItemCount: o.ItemCount()}
	if c, err := status.Project(o.Status); err == nil {
		p := status.ProgressOf(c)
		view.Progress = &p
	}
	return view
}

func newOrderViews(orders []entity.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o))
	}
	return views
}

// CreateOrder --> POST /orders
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	req := struct {
		Address entity.Address `json:"address"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	s, err := h.sessions.Session(ctx, userID(c))
	if err != nil {
		return fail(c, h.signInURL, err)
	}

	receipt, err := h.orders.Place(ctx, service.PlaceOrderRequest{
		UserID:         s.UserID,
		Address:        req.Address,
		IdempotencyKey: strings.TrimSpace(c.Request().Header.Get("Idempotency-Key")),
	}, s.Cart)
	if err != nil {
		return fail(c, h.signInURL, err)
	}

	code := http.StatusCreated
	if receipt.Duplicate {
		code = http.StatusOK
	}
	return c.JSON(code, receipt)
}

// ListOrders --> /orders
func (h *OrderHandler) ListOrders(c echo.Context) error {
	uid := userID(c)
	if uid == "" {
		return fail(c, h.signInURL, service.ErrSignInRequired)
	}
	orders, err := h.orders.List(c.Request().Context(), uid)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"orders": newOrderViews(orders)})
}

// GetOrder --> /orders/:key
func (h *OrderHandler) GetOrder(c echo.Context) error {
	order, err := h.orders.Get(c.Request().Context(), userID(c), c.Param("key"))
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, newOrderView(*order))
}

// CancelOrder --> POST /orders/:key/cancel
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	req := struct {
		Reason string `json:"reason"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	order, err := h.orders.Cancel(c.Request().Context(), userID(c), c.Param("key"), req.Reason)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, newOrderView(*order))
}

// DeleteOrder --> DELETE /orders/:key
func (h *OrderHandler) DeleteOrder(c echo.Context) error {
	if err := h.orders.Remove(c.Request().Context(), userID(c), c.Param("key")); err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StreamOrders --> /orders/stream
//
// Server-sent events: one "orders" event with the full list now and after
// every change, until the client goes away or the session ends.
func (h *OrderHandler) StreamOrders(c echo.Context) error {
	ctx := c.Request().Context()
	s, err := h.sessions.Session(ctx, userID(c))
	if err != nil {
		return fail(c, h.signInURL, err)
	}

	orders, changed, err := s.Orders(ctx)
	if err != nil {
		return fail(c, h.signInURL, err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		if err := writeEvent(w, "orders", newOrderViews(orders)); err != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.Done():
			return nil
		case <-changed:
		}

		orders, changed, err = s.Orders(ctx)
		if err != nil {
			logger.Error().Err(err).Msgf("Error refreshing orders stream of user %s", s.UserID)
			return nil
		}
	}
}

func writeEvent(w *echo.Response, event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
