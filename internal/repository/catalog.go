package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"storefront-service/internal/entity"
)

var ErrDishNotFound = errors.New("dish not found")

const dishColumns = `dish_key, name, description, unit, images, category_id, pincode, discount,
	final_price, source_price, platform_fee, in_stock`

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db}
}

func (r *CatalogRepository) GetCategories(ctx context.Context) ([]entity.Category, error) {
	var categories []entity.Category

	query := `SELECT category_id, name, image, position FROM categories ORDER BY position, name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c entity.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Image, &c.Position); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *CatalogRepository) GetBanners(ctx context.Context) ([]entity.Banner, error) {
	var banners []entity.Banner

	query := `SELECT banner_id, image, link, position FROM banners ORDER BY position`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var b entity.Banner
		if err := rows.Scan(&b.ID, &b.Image, &b.Link, &b.Position); err != nil {
			return nil, err
		}
		banners = append(banners, b)
	}
	return banners, rows.Err()
}

// GetDishes returns every dish. Pincode filtering happens in the service so the
// cached list can serve every area.
func (r *CatalogRepository) GetDishes(ctx context.Context) ([]entity.Dish, error) {
	var dishes []entity.Dish

	query := `SELECT ` + dishColumns + ` FROM dishes ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDish(rows)
		if err != nil {
			return nil, err
		}
		dishes = append(dishes, *d)
	}
	return dishes, rows.Err()
}

func (r *CatalogRepository) GetDish(ctx context.Context, key string) (*entity.Dish, error) {
	query := `SELECT ` + dishColumns + ` FROM dishes WHERE dish_key = ?`
	d, err := scanDish(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDishNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *CatalogRepository) CreateDish(ctx context.Context, d *entity.Dish) error {
	images, err := json.Marshal(d.Images)
	if err != nil {
		return err
	}
	var inStock interface{}
	if d.InStock != nil {
		inStock = *d.InStock
	}

	query := `INSERT INTO dishes (` + dishColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query, d.Key, d.Name, d.Description, d.Unit, string(images), d.CategoryID,
		d.Pincode, d.Discount.StringFixed(2), d.Price.Final.StringFixed(2), d.Price.SourcePrice.StringFixed(2),
		d.Price.PlatformFee.StringFixed(2), inStock)
	return err
}

func (r *CatalogRepository) CreateCategory(ctx context.Context, c *entity.Category) error {
	query := `INSERT INTO categories (category_id, name, image, position) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.Image, c.Position)
	return err
}

func (r *CatalogRepository) CreateBanner(ctx context.Context, b *entity.Banner) error {
	query := `INSERT INTO banners (banner_id, image, link, position) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, b.ID, b.Image, b.Link, b.Position)
	return err
}

func scanDish(row rowScanner) (*entity.Dish, error) {
	d := &entity.Dish{}
	var images string
	var discount, final, source, fee string
	var inStock sql.NullBool
	err := row.Scan(&d.Key, &d.Name, &d.Description, &d.Unit, &images, &d.CategoryID, &d.Pincode,
		&discount, &final, &source, &fee, &inStock)
	if err != nil {
		return nil, err
	}

	if images != "" {
		if err := json.Unmarshal([]byte(images), &d.Images); err != nil {
			return nil, fmt.Errorf("dish %s images: %w", d.Key, err)
		}
	}
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{discount, &d.Discount},
		{final, &d.Price.Final},
		{source, &d.Price.SourcePrice},
		{fee, &d.Price.PlatformFee},
	} {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("dish %s price: %w", d.Key, err)
		}
		*f.dst = v
	}
	if inStock.Valid {
		v := inStock.Bool
		d.InStock = &v
	}
	return d, nil
}
