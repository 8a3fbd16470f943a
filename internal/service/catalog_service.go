package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront-service/internal/apperr"
	"storefront-service/internal/entity"
	"storefront-service/internal/repository"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

var (
	ErrDishUnavailable = apperr.New(apperr.Validation, "this dish is not available")
	ErrCatalogFailed   = apperr.New(apperr.Remote, "could not load the menu, please try again")
)

// CatalogStore is the source of truth for the catalog.
type CatalogStore interface {
	GetCategories(ctx context.Context) ([]entity.Category, error)
	GetDishes(ctx context.Context) ([]entity.Dish, error)
	GetDish(ctx context.Context, key string) (*entity.Dish, error)
	GetBanners(ctx context.Context) ([]entity.Banner, error)
}

type CatalogService struct {
	catalogRepo CatalogStore
	rdb         *redis.Client
	ttl         time.Duration
}

// NewCatalogService creates a catalog reader caching lists in redis for ttl.
func NewCatalogService(catalogRepo CatalogStore, rdb *redis.Client, ttl time.Duration) *CatalogService {
	return &CatalogService{
		catalogRepo: catalogRepo,
		rdb:         rdb,
		ttl:         ttl,
	}
}

// FetchCategories returns the categories. degraded is true when the static
// placeholder catalog was served because the store failed.
func (s *CatalogService) FetchCategories(ctx context.Context) (categories []entity.Category, degraded bool) {
	return readThrough(ctx, s, "catalog:categories", s.catalogRepo.GetCategories, placeholderCategories)
}

func (s *CatalogService) FetchBanners(ctx context.Context) (banners []entity.Banner, degraded bool) {
	return readThrough(ctx, s, "catalog:banners", s.catalogRepo.GetBanners, placeholderBanners)
}

// FetchDishes returns the dishes deliverable to pincode; an empty pincode
// returns everything.
func (s *CatalogService) FetchDishes(ctx context.Context, pincode string) (dishes []entity.Dish, degraded bool) {
	all, degraded := readThrough(ctx, s, "catalog:dishes", s.catalogRepo.GetDishes, placeholderDishes)

	dishes = make([]entity.Dish, 0, len(all))
	for _, d := range all {
		if d.AvailableIn(pincode) {
			dishes = append(dishes, d)
		}
	}
	return dishes, degraded
}

// FetchDish reads one dish straight from the store, bypassing the cache, so
// stock checks see the live value.
func (s *CatalogService) FetchDish(ctx context.Context, key string) (*entity.Dish, error) {
	dish, err := s.catalogRepo.GetDish(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrDishNotFound) {
			return nil, apperr.Wrap(apperr.Validation, err, ErrDishUnavailable.Message)
		}
		logger.Error().Err(err).Msgf("Error getting dish %s", key)
		return nil, apperr.Wrap(apperr.Remote, err, ErrCatalogFailed.Message)
	}
	return dish, nil
}

// Invalidate drops every cached catalog list.
func (s *CatalogService) Invalidate(ctx context.Context) error {
	return s.rdb.Del(ctx, "catalog:categories", "catalog:dishes", "catalog:banners").Err()
}

func readThrough[T any](ctx context.Context, s *CatalogService, key string, load func(context.Context) ([]T, error), placeholder []T) ([]T, bool) {
	// Read from cache
	cached, err := s.rdb.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Error().Err(err).Msgf("Error getting %s from cache", key)
	}
	if cached != "" {
		var items []T
		err := json.Unmarshal([]byte(cached), &items)
		if err == nil {
			return items, false
		}
		logger.Error().Err(err).Msgf("Error unmarshalling %s", key)
	}

	items, err := load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msgf("Serving placeholder for %s", key)
		return placeholder, true
	}

	// Write to cache
	data, err := json.Marshal(items)
	if err == nil {
		err = s.rdb.Set(ctx, key, data, s.ttl).Err()
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error setting %s in cache", key)
	}
	return items, false
}

var placeholderCategories = []entity.Category{
	{ID: "fastfood", Name: "Fast Food", Image: "https://cdn-icons-png.flaticon.com/512/857/857681.png", Position: 1},
	{ID: "grocery", Name: "Grocery", Image: "https://cdn-icons-png.flaticon.com/512/3081/3081977.png", Position: 2},
	{ID: "treats", Name: "Treats", Image: "https://cdn-icons-png.flaticon.com/512/4740/4740118.png", Position: 3},
	{ID: "indian", Name: "Indian", Image: "https://cdn-icons-png.flaticon.com/512/5753/5753127.png", Position: 4},
}

var placeholderBanners = []entity.Banner{
	{ID: "welcome", Image: "https://i.ibb.co/SwMq0bXj/Picsart-26-01-27-11-31-49-432.png", Position: 1},
}

var placeholderDishes = []entity.Dish{
	placeholderDish("dish_ff1", "Mega Meal Burger Combo", "1 Combo", "fastfood", "180.00", "150.00", "30.00", 15,
		"Extra large double patty burger with crispy fries and a soft drink.",
		"https://i.ibb.co/hJ3RSF0f/pngtree-group-of-fast-food-products-png-image-14008130.png"),
	placeholderDish("dish_ff2", "Aloo Samosa (3 Pcs)", "3 Pieces", "fastfood", "45.00", "35.00", "10.00", 0,
		"Crispy and hot potato samosas with tangy chutney.",
		"https://i.ibb.co/yFJw2NQm/samosa-recipe.jpg"),
	placeholderDish("dish_gr1", "Fourtun Kachi Ghani 1kg", "1kg Pouch", "grocery", "70.00", "65.00", "5.00", 0,
		"Vacuum sealed for extra freshness.",
		"https://i.ibb.co/0j6w4zyL/61qs-W9-zfa-L-SX679.jpg"),
	placeholderDish("dish_gr2", "Fourtun Soya Health 1Kg", "1 Kg Pack", "grocery", "65.00", "60.00", "5.00", 5,
		"Whole wheat flour for soft rotis.",
		"https://i.ibb.co/pBKKxD0t/612-KEk-Qn-TJL-SX679.jpg"),
	placeholderDish("dish_tr1", "Premium Chocolate Bar", "1 Large Bar", "treats", "180.00", "160.00", "20.00", 10,
		"A delicious milk chocolate bar with crunchy bits and a smooth center.",
		"https://i.ibb.co/7JXPjrVT/sliding-images-jpeg-1df64a82-d773-41cd-bcdd-d919c0d65374jpgts1715597648-de4a52a2-8ad3-4360-bd6c-3493.jpg"),
}

func placeholderDish(key, name, unit, category, final, source, fee string, discount int64, description, image string) entity.Dish {
	return entity.Dish{
		Key:         key,
		Name:        name,
		Description: description,
		Unit:        unit,
		Images:      []string{image},
		CategoryID:  category,
		Pincode:     entity.PincodeAll,
		Discount:    decimal.NewFromInt(discount),
		Price: entity.Price{
			Final:       decimal.RequireFromString(final),
			SourcePrice: decimal.RequireFromString(source),
			PlatformFee: decimal.RequireFromString(fee),
		},
	}
}
