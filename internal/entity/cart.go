package entity

import "github.com/shopspring/decimal"

// CartLine is one dish held in the active session's cart. Price is the
// customer price captured when the dish was first added.
type CartLine struct {
	Key      string          `json:"key"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image"`
	Unit     string          `json:"unit"`
	Quantity int             `json:"quantity"`
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
