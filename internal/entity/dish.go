package entity

import (
	"github.com/shopspring/decimal"

	"storefront-service/internal/pricing"
)

// PincodeAll marks a dish that is deliverable everywhere.
const PincodeAll = "ALL"

// Price holds the catalog price components. Final is expected to equal
// SourcePrice + PlatformFee but the catalog owns that rule.
type Price struct {
	Final       decimal.Decimal `json:"final"`
	SourcePrice decimal.Decimal `json:"source_price"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
}

type Dish struct {
	Key         string          `json:"key"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Unit        string          `json:"unit"`
	Images      []string        `json:"images"`
	CategoryID  string          `json:"category_id"`
	Pincode     string          `json:"pincode"`
	Discount    decimal.Decimal `json:"discount"`
	Price       Price           `json:"price"`
	InStock     *bool           `json:"in_stock,omitempty"`
}

// CustomerPrice is the discounted price charged per unit.
func (d Dish) CustomerPrice() (decimal.Decimal, error) {
	return pricing.CustomerPrice(d.Price.Final, d.Discount)
}

// Available reports stock; a dish without a stock flag is in stock.
func (d Dish) Available() bool {
	return d.InStock == nil || *d.InStock
}

// AvailableIn reports whether the dish is deliverable to pincode. An empty
// pincode matches every dish.
func (d Dish) AvailableIn(pincode string) bool {
	return pincode == "" || d.Pincode == "" || d.Pincode == PincodeAll || d.Pincode == pincode
}

// Image returns the primary image reference, if any.
func (d Dish) Image() string {
	if len(d.Images) == 0 {
		return ""
	}
	return d.Images[0]
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	Position int    `json:"position"`
}

// Banner is one image of the home page slider.
type Banner struct {
	ID       string `json:"id"`
	Image    string `json:"image"`
	Link     string `json:"link"`
	Position int    `json:"position"`
}

/*
MySQL schema for the catalog:

CREATE TABLE dishes (
	dish_key VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	description TEXT NOT NULL,
	unit VARCHAR(32) NOT NULL,
	images TEXT NOT NULL,            -- JSON array
	category_id VARCHAR(64) NOT NULL,
	pincode VARCHAR(16) NOT NULL DEFAULT 'ALL',
	discount DECIMAL(5,2) NOT NULL DEFAULT 0,
	final_price DECIMAL(10,2) NOT NULL,
	source_price DECIMAL(10,2) NOT NULL,
	platform_fee DECIMAL(10,2) NOT NULL,
	in_stock TINYINT(1) NULL
);

CREATE TABLE categories (
	category_id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	image VARCHAR(512) NOT NULL,
	position INT NOT NULL DEFAULT 0
);

CREATE TABLE banners (
	banner_id VARCHAR(64) PRIMARY KEY,
	image VARCHAR(512) NOT NULL,
	link VARCHAR(512) NOT NULL DEFAULT '',
	position INT NOT NULL DEFAULT 0
);
*/
