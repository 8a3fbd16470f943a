// Package pricing turns catalog prices and delivery settings into the amounts
// a customer sees and pays. Every function is pure.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrDiscountOutOfRange = errors.New("discount percent must be within [0, 100]")
	ErrNegativePrice      = errors.New("price must not be negative")
)

var hundred = decimal.NewFromInt(100)

// Rules are the fixed business constants of the minimum order rule and line
// capacity. They are configuration, not code.
type Rules struct {
	MinOrderQty    int             `mapstructure:"min_order_qty"`
	MinOrderAmount decimal.Decimal `mapstructure:"min_order_amount"`
	MaxItemQty     int             `mapstructure:"max_item_qty"`
}

func DefaultRules() Rules {
	return Rules{
		MinOrderQty:    3,
		MinOrderAmount: decimal.NewFromInt(50),
		MaxItemQty:     5,
	}
}

func (r Rules) Validate() error {
	if r.MaxItemQty < 1 {
		return fmt.Errorf("max item qty must be at least 1, got %d", r.MaxItemQty)
	}
	if r.MinOrderQty < 0 {
		return fmt.Errorf("min order qty must not be negative, got %d", r.MinOrderQty)
	}
	if r.MinOrderAmount.IsNegative() {
		return fmt.Errorf("min order amount must not be negative, got %s", r.MinOrderAmount)
	}
	return nil
}

// CustomerPrice applies a percentage discount to a base price. A discount
// outside [0, 100] is a catalog bug and is reported, not clamped.
func CustomerPrice(base decimal.Decimal, discountPercent decimal.Decimal) (decimal.Decimal, error) {
	if base.IsNegative() {
		return decimal.Zero, ErrNegativePrice
	}
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrDiscountOutOfRange, discountPercent)
	}
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	return base.Mul(factor), nil
}

// QualifiesFreeDelivery reports whether subtotal reaches an enabled threshold.
// A threshold of zero or less disables free delivery.
func QualifiesFreeDelivery(subtotal, freeThreshold decimal.Decimal) bool {
	return freeThreshold.IsPositive() && subtotal.GreaterThanOrEqual(freeThreshold)
}

func DeliveryFee(subtotal, configuredFee, freeThreshold decimal.Decimal) decimal.Decimal {
	if QualifiesFreeDelivery(subtotal, freeThreshold) {
		return decimal.Zero
	}
	return configuredFee
}

func Total(subtotal, deliveryFee decimal.Decimal) decimal.Decimal {
	return subtotal.Add(deliveryFee)
}

// Format renders an amount the way it is persisted on orders.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
