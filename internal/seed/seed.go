// Package seed fills an empty catalog with demo categories, dishes and
// banners so a fresh deployment has something to sell.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"github.com/jaswdr/faker"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront-service/internal/entity"
	"storefront-service/internal/pricing"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// CatalogWriter is the write side of the catalog store.
type CatalogWriter interface {
	CreateCategory(ctx context.Context, c *entity.Category) error
	CreateDish(ctx context.Context, d *entity.Dish) error
	CreateBanner(ctx context.Context, b *entity.Banner) error
}

type SettingsWriter interface {
	PutSetting(ctx context.Context, key, value string) error
}

type Result struct {
	Categories int
	Dishes     int
	Banners    int
}

type Seeder struct {
	catalog  CatalogWriter
	settings SettingsWriter
	fake     faker.Faker
}

// NewSeeder returns a seeder whose output is fully determined by seed.
func NewSeeder(catalog CatalogWriter, settings SettingsWriter, seed int64) *Seeder {
	return &Seeder{
		catalog:  catalog,
		settings: settings,
		fake:     faker.NewWithSeed(rand.NewSource(seed)),
	}
}

var categories = []entity.Category{
	{ID: "fastfood", Name: "Fast Food", Position: 1},
	{ID: "grocery", Name: "Grocery", Position: 2},
	{ID: "treats", Name: "Treats", Position: 3},
	{ID: "indian", Name: "Indian", Position: 4},
}

var menu = map[string][]string{
	"fastfood": {"Cheeseburger", "Veggie Burger", "Aloo Samosa", "French Fries", "Chicken Wrap", "Paneer Roll"},
	"grocery":  {"Basmati Rice", "Whole Wheat Atta", "Toor Dal", "Mustard Oil", "Sugar", "Tea Leaves"},
	"treats":   {"Chocolate Bar", "Gulab Jamun", "Ice Cream Tub", "Brownie", "Rasgulla", "Kaju Katli"},
	"indian":   {"Chicken Biryani", "Paneer Butter Masala", "Dal Makhani", "Butter Naan", "Masala Dosa", "Chole Bhature"},
}

var units = map[string][]string{
	"fastfood": {"1 Plate", "2 Pieces", "1 Combo"},
	"grocery":  {"500g Pack", "1kg Pouch", "1 Litre"},
	"treats":   {"1 Piece", "250g Box", "500ml Tub"},
	"indian":   {"1 Plate", "Half Plate", "2 Pieces"},
}

// Run writes settings, categories, perCategory dishes per category and a
// few banners.
func (s *Seeder) Run(ctx context.Context, perCategory int) (Result, error) {
	var res Result

	defaults := entity.DefaultAppSettings()
	settings := map[string]string{
		entity.SettingThemeColor:            defaults.ThemeColor,
		entity.SettingDeliveryFee:           pricing.Format(defaults.DeliveryFee),
		entity.SettingFreeDeliveryThreshold: "199.00",
	}
	for _, key := range []string{entity.SettingThemeColor, entity.SettingDeliveryFee, entity.SettingFreeDeliveryThreshold} {
		if err := s.settings.PutSetting(ctx, key, settings[key]); err != nil {
			return res, fmt.Errorf("seed setting %s: %w", key, err)
		}
	}

	for _, c := range categories {
		category := c
		category.Image = s.image("category-" + c.ID)
		if err := s.catalog.CreateCategory(ctx, &category); err != nil {
			return res, fmt.Errorf("seed category %s: %w", c.ID, err)
		}
		res.Categories++

		for i := 0; i < perCategory; i++ {
			dish := s.dish(c.ID, i)
			if err := s.catalog.CreateDish(ctx, &dish); err != nil {
				return res, fmt.Errorf("seed dish %s: %w", dish.Key, err)
			}
			res.Dishes++
		}
	}

	for i := 1; i <= 3; i++ {
		banner := entity.Banner{
			ID:       fmt.Sprintf("banner-%d", i),
			Image:    s.image(fmt.Sprintf("banner-%d", i)),
			Link:     "/catalog/dishes?category=" + categories[(i-1)%len(categories)].ID,
			Position: i,
		}
		if err := s.catalog.CreateBanner(ctx, &banner); err != nil {
			return res, fmt.Errorf("seed banner %s: %w", banner.ID, err)
		}
		res.Banners++
	}

	logger.Info().Msgf("Seeded %d categories, %d dishes and %d banners", res.Categories, res.Dishes, res.Banners)
	return res, nil
}

func (s *Seeder) dish(categoryID string, i int) entity.Dish {
	names := menu[categoryID]
	name := names[i%len(names)]
	if i >= len(names) {
		name = fmt.Sprintf("%s %s", s.fake.Lorem().Word(), name)
	}

	source := decimal.NewFromFloat(s.fake.Float64(0, 30, 350))
	fee := decimal.NewFromFloat(s.fake.Float64(0, 5, 30))
	inStock := s.fake.IntBetween(0, 9) > 0

	pincode := entity.PincodeAll
	if s.fake.IntBetween(0, 4) == 0 {
		pincode = fmt.Sprintf("%06d", s.fake.IntBetween(110001, 855999))
	}

	key := fmt.Sprintf("dish_%s_%d", categoryID, i+1)
	return entity.Dish{
		Key:         key,
		Name:        name,
		Description: s.fake.Lorem().Sentence(10),
		Unit:        s.fake.RandomStringElement(units[categoryID]),
		Images:      []string{s.image(key)},
		CategoryID:  categoryID,
		Pincode:     pincode,
		Discount:    decimal.NewFromInt(int64(s.fake.IntBetween(0, 3) * 5)),
		Price: entity.Price{
			Final:       source.Add(fee),
			SourcePrice: source,
			PlatformFee: fee,
		},
		InStock: &inStock,
	}
}

func (s *Seeder) image(seed string) string {
	return "https://picsum.photos/seed/" + seed + "/400/300"
}
