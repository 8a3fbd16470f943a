package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-service/internal/cart"
	"storefront-service/internal/pricing"
	"storefront-service/internal/session"
)

// StoreHandler serves the signed-in customer's cart and wishlist.
type StoreHandler struct {
	sessions  *session.Manager
	catalog   CatalogReader
	signInURL string
}

func NewStoreHandler(sessions *session.Manager, catalog CatalogReader, signInURL string) *StoreHandler {
	return &StoreHandler{sessions: sessions, catalog: catalog, signInURL: signInURL}
}

type cartView struct {
	cart.Summary
	MinOrderQty    int    `json:"min_order_qty"`
	MinOrderAmount string `json:"min_order_amount"`
	MaxItemQty     int    `json:"max_item_qty"`
}

func newCartView(c *cart.Store) cartView {
	rules := c.Rules()
	return cartView{
		Summary:        c.Summary(),
		MinOrderQty:    rules.MinOrderQty,
		MinOrderAmount: pricing.Format(rules.MinOrderAmount),
		MaxItemQty:     rules.MaxItemQty,
	}
}

func (h *StoreHandler) session(c echo.Context) (*session.Session, error) {
	return h.sessions.Session(c.Request().Context(), userID(c))
}

// GetCart --> /cart
func (h *StoreHandler) GetCart(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, newCartView(s.Cart))
}

// AddCartItem --> POST /cart/items
func (h *StoreHandler) AddCartItem(c echo.Context) error {
	req := struct {
		DishKey  string `json:"dish_key"`
		Quantity int    `json:"quantity"`
	}{}
	if err := c.Bind(&req); err != nil || req.DishKey == "" {
		return badRequest(c)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	s, err := h.session(c)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	dish, err := h.catalog.FetchDish(c.Request().Context(), req.DishKey)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	if err := s.Cart.AddItem(*dish, req.Quantity); err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, newCartView(s.Cart))
}

// ChangeCartItem --> PATCH /cart/items/:key
func (h *StoreHandler) ChangeCartItem(c echo.Context) error {
	req := struct {
		Delta int `json:"delta"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	s, err := h.session(c)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	if err := s.Cart.ChangeQuantity(c.Param("key"), req.Delta); err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, newCartView(s.Cart))
}

// ClearCart --> DELETE /cart
func (h *StoreHandler) ClearCart(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	s.Cart.Clear()
	return c.JSON(http.StatusOK, newCartView(s.Cart))
}

// GetWishlist --> /wishlist
func (h *StoreHandler) GetWishlist(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"keys": s.Wishlist.Keys()})
}

// GetWishlistItems --> /wishlist/items
func (h *StoreHandler) GetWishlistItems(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	items, err := s.Wishlist.Details(c.Request().Context())
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

// ToggleWishlist --> POST /wishlist/:key/toggle
func (h *StoreHandler) ToggleWishlist(c echo.Context) error {
	ctx := c.Request().Context()
	key := c.Param("key")

	s, err := h.session(c)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	dish, err := h.catalog.FetchDish(ctx, key)
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	if err := s.Wishlist.Toggle(ctx, *dish); err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"key":    key,
		"wished": s.Wishlist.Contains(key),
		"keys":   s.Wishlist.Keys(),
	})
}

// EndSession --> DELETE /session
func (h *StoreHandler) EndSession(c echo.Context) error {
	h.sessions.End(userID(c))
	return c.NoContent(http.StatusNoContent)
}
