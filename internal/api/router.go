// Package api exposes the storefront over HTTP with echo.
package api

import (
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type RouterConfig struct {
	JWTSecret string
	RateLimit float64
	RateBurst int
}

// NewRouter wires middleware and routes. Catalog and settings are public;
// everything tied to a customer requires a token.
func NewRouter(cfg RouterConfig, catalogHandler *CatalogHandler, storeHandler *StoreHandler, orderHandler *OrderHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Retryable: true})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Retryable: true})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "storefront-service",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	e.GET("/settings", catalogHandler.GetSettings)
	e.GET("/catalog/categories", catalogHandler.GetCategories)
	e.GET("/catalog/banners", catalogHandler.GetBanners)
	e.GET("/catalog/dishes", catalogHandler.GetDishes, OptionalJWTMiddleware(cfg.JWTSecret))
	e.GET("/catalog/dishes/:key", catalogHandler.GetDish)

	auth := JWTMiddleware(cfg.JWTSecret, catalogHandler.signInURL)

	e.GET("/cart", storeHandler.GetCart, auth)
	e.POST("/cart/items", storeHandler.AddCartItem, auth)
	e.PATCH("/cart/items/:key", storeHandler.ChangeCartItem, auth)
	e.DELETE("/cart", storeHandler.ClearCart, auth)

	e.GET("/wishlist", storeHandler.GetWishlist, auth)
	e.GET("/wishlist/items", storeHandler.GetWishlistItems, auth)
	e.POST("/wishlist/:key/toggle", storeHandler.ToggleWishlist, auth)

	e.GET("/orders", orderHandler.ListOrders, auth)
	e.POST("/orders", orderHandler.CreateOrder, auth)
	e.GET("/orders/stream", orderHandler.StreamOrders, auth)
	e.GET("/orders/:key", orderHandler.GetOrder, auth)
	e.POST("/orders/:key/cancel", orderHandler.CancelOrder, auth)
	e.DELETE("/orders/:key", orderHandler.DeleteOrder, auth)

	e.DELETE("/session", storeHandler.EndSession, auth)

	return e
}
