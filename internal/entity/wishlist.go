package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// WishlistItem is the detail snapshot stored when a dish is wished.
type WishlistItem struct {
	Key      string          `json:"key"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image"`
	Discount decimal.Decimal `json:"discount"`
	Unit     string          `json:"unit"`
	AddedAt  time.Time       `json:"added_at"`
}
