// Package cart holds the session-scoped cart and owns the minimum order rule.
//
// The cart is never persisted: it lives as long as the customer's session.
// A successful order takes the ordered lines out of it; rejected operations
// leave it untouched.
package cart

import (
	"sync"

	"github.com/shopspring/decimal"

	"storefront-service/internal/apperr"
	"storefront-service/internal/entity"
	"storefront-service/internal/pricing"
)

var (
	ErrInvalidQuantity  = apperr.New(apperr.Validation, "quantity must be at least 1")
	ErrCapacity         = apperr.New(apperr.Validation, "maximum quantity for this item reached")
	ErrOutOfStock       = apperr.New(apperr.BusinessRule, "this item is out of stock")
	ErrPriceUnavailable = apperr.New(apperr.BusinessRule, "this item has no valid price")
)

// Summary is a consistent read of the cart and every value derived from it.
type Summary struct {
	Lines        []entity.CartLine `json:"lines"`
	Count        int               `json:"count"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	DeliveryFee  decimal.Decimal   `json:"delivery_fee"`
	Total        decimal.Decimal   `json:"total"`
	Valid        bool              `json:"valid"`
	FreeDelivery bool              `json:"free_delivery"`
}

// Store is safe for concurrent use; operations apply in the order they
// acquire the lock, which for a single caller is issuance order.
type Store struct {
	mu       sync.Mutex
	rules    pricing.Rules
	delivery entity.AppSettings
	lines    []entity.CartLine
}

func New(rules pricing.Rules, delivery entity.AppSettings) *Store {
	return &Store{rules: rules, delivery: delivery}
}

// SetDeliverySettings replaces the fee settings used for derived totals.
func (s *Store) SetDeliverySettings(settings entity.AppSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivery = settings
}

func (s *Store) Rules() pricing.Rules {
	return s.rules
}

// AddItem adds quantity units of dish. If the resulting line would exceed
// the per-item maximum the whole add is rejected.
func (s *Store) AddItem(dish entity.Dish, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if !dish.Available() {
		return ErrOutOfStock
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(dish.Key); i >= 0 {
		next := s.lines[i].Quantity + quantity
		if next > s.rules.MaxItemQty {
			return ErrCapacity
		}
		s.lines[i].Quantity = next
		return nil
	}

	if quantity > s.rules.MaxItemQty {
		return ErrCapacity
	}
	price, err := dish.CustomerPrice()
	if err != nil {
		return apperr.Wrap(apperr.BusinessRule, err, ErrPriceUnavailable.Message)
	}
	s.lines = append(s.lines, entity.CartLine{
		Key:      dish.Key,
		Name:     dish.Name,
		Price:    price,
		Image:    dish.Image(),
		Unit:     dish.Unit,
		Quantity: quantity,
	})
	return nil
}

// ChangeQuantity moves a line's quantity by delta. Dropping below one removes
// the line; a missing key is a no-op.
func (s *Store) ChangeQuantity(key string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(key)
	if i < 0 {
		return nil
	}
	next := s.lines[i].Quantity + delta
	switch {
	case next < 1:
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	case next > s.rules.MaxItemQty:
		return ErrCapacity
	default:
		s.lines[i].Quantity = next
	}
	return nil
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
}

// Remove takes the quantities of ordered out of the cart. Lines added or
// raised since ordered was read keep the difference.
func (s *Store) Remove(ordered []entity.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range ordered {
		i := s.indexOf(line.Key)
		if i < 0 {
			continue
		}
		if left := s.lines[i].Quantity - line.Quantity; left > 0 {
			s.lines[i].Quantity = left
			continue
		}
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	}
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Store) Lines() []entity.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLines()
}

// Quantity returns the quantity held for key, zero if absent.
func (s *Store) Quantity(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(key); i >= 0 {
		return s.lines[i].Quantity
	}
	return 0
}

func (s *Store) Count() int {
	return s.Summary().Count
}

func (s *Store) Subtotal() decimal.Decimal {
	return s.Summary().Subtotal
}

func (s *Store) DeliveryFee() decimal.Decimal {
	return s.Summary().DeliveryFee
}

func (s *Store) Total() decimal.Decimal {
	return s.Summary().Total
}

// IsValid is the minimum order rule: enough units and a large enough subtotal.
func (s *Store) IsValid() bool {
	return s.Summary().Valid
}

func (s *Store) QualifiesFreeDelivery() bool {
	return s.Summary().FreeDelivery
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Summary recomputes every derived value from the current lines.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	subtotal := decimal.Zero
	for _, line := range s.lines {
		count += line.Quantity
		subtotal = subtotal.Add(line.LineTotal())
	}
	fee := pricing.DeliveryFee(subtotal, s.delivery.DeliveryFee, s.delivery.FreeDeliveryThreshold)

	return Summary{
		Lines:        s.copyLines(),
		Count:        count,
		Subtotal:     subtotal,
		DeliveryFee:  fee,
		Total:        pricing.Total(subtotal, fee),
		Valid:        count >= s.rules.MinOrderQty && subtotal.GreaterThanOrEqual(s.rules.MinOrderAmount),
		FreeDelivery: pricing.QualifiesFreeDelivery(subtotal, s.delivery.FreeDeliveryThreshold),
	}
}

func (s *Store) indexOf(key string) int {
	for i := range s.lines {
		if s.lines[i].Key == key {
			return i
		}
	}
	return -1
}

func (s *Store) copyLines() []entity.CartLine {
	out := make([]entity.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}
