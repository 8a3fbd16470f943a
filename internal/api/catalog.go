package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"storefront-service/internal/entity"
)

// CatalogReader serves the menu, falling back to placeholders when degraded.
type CatalogReader interface {
	FetchCategories(ctx context.Context) ([]entity.Category, bool)
	FetchBanners(ctx context.Context) ([]entity.Banner, bool)
	FetchDishes(ctx context.Context, pincode string) ([]entity.Dish, bool)
	FetchDish(ctx context.Context, key string) (*entity.Dish, error)
}

// SettingsReader exposes the settings loaded at startup.
type SettingsReader interface {
	Settings() entity.AppSettings
}

type CatalogHandler struct {
	catalog   CatalogReader
	settings  SettingsReader
	signInURL string
}

func NewCatalogHandler(catalog CatalogReader, settings SettingsReader, signInURL string) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, settings: settings, signInURL: signInURL}
}

// GetSettings --> /settings
func (h *CatalogHandler) GetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, h.settings.Settings())
}

// GetCategories --> /catalog/categories
func (h *CatalogHandler) GetCategories(c echo.Context) error {
	categories, degraded := h.catalog.FetchCategories(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"categories": categories,
		"degraded":   degraded,
	})
}

// GetBanners --> /catalog/banners
func (h *CatalogHandler) GetBanners(c echo.Context) error {
	banners, degraded := h.catalog.FetchBanners(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"banners":  banners,
		"degraded": degraded,
	})
}

type dishView struct {
	entity.Dish
	CustomerPrice string `json:"customer_price"`
	Available     bool   `json:"available"`
}

func newDishView(d entity.Dish) dishView {
	view := dishView{Dish: d, Available: d.Available()}
	if price, err := d.CustomerPrice(); err == nil {
		view.CustomerPrice = price.StringFixed(2)
	}
	return view
}

// GetDishes --> /catalog/dishes?pincode=&category=
// Without a pincode query the signed-in customer's pincode applies.
func (h *CatalogHandler) GetDishes(c echo.Context) error {
	pincode := strings.TrimSpace(c.QueryParam("pincode"))
	if pincode == "" {
		if claims := claimsOf(c); claims != nil {
			pincode = claims.Pincode
		}
	}
	category := strings.TrimSpace(c.QueryParam("category"))

	dishes, degraded := h.catalog.FetchDishes(c.Request().Context(), pincode)
	views := make([]dishView, 0, len(dishes))
	for _, d := range dishes {
		if category != "" && d.CategoryID != category {
			continue
		}
		views = append(views, newDishView(d))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"dishes":   views,
		"degraded": degraded,
	})
}

// GetDish --> /catalog/dishes/:key
func (h *CatalogHandler) GetDish(c echo.Context) error {
	dish, err := h.catalog.FetchDish(c.Request().Context(), c.Param("key"))
	if err != nil {
		return fail(c, h.signInURL, err)
	}
	return c.JSON(http.StatusOK, newDishView(*dish))
}
