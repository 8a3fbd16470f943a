package cart

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/entity"
	"storefront-service/internal/pricing"
)

func dish(key string, price int64) entity.Dish {
	return entity.Dish{
		Key:     key,
		Name:    "Dish " + key,
		Unit:    "plate",
		Images:  []string{key + ".jpg"},
		Pincode: entity.PincodeAll,
		Price:   entity.Price{Final: decimal.NewFromInt(price)},
	}
}

func settings(fee, threshold string) entity.AppSettings {
	s := entity.DefaultAppSettings()
	s.DeliveryFee = decimal.RequireFromString(fee)
	s.FreeDeliveryThreshold = decimal.RequireFromString(threshold)
	return s
}

func TestScenarioA_MinimumOrderAndTotal(t *testing.T) {
	c := New(pricing.DefaultRules(), settings("10", "0"))

	require.NoError(t, c.AddItem(dish("paneer", 20), 2))
	require.NoError(t, c.AddItem(dish("lassi", 15), 1))

	s := c.Summary()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, "55.00", pricing.Format(s.Subtotal))
	assert.True(t, s.Valid)
	assert.False(t, s.FreeDelivery)
	assert.Equal(t, "10.00", pricing.Format(s.DeliveryFee))
	assert.Equal(t, "65.00", pricing.Format(s.Total))
}

func TestScenarioB_FreeDelivery(t *testing.T) {
	c := New(pricing.DefaultRules(), settings("10", "100"))

	require.NoError(t, c.AddItem(dish("thali", 100), 1))

	assert.True(t, c.QualifiesFreeDelivery())
	assert.True(t, c.DeliveryFee().IsZero())
	assert.Equal(t, "100.00", pricing.Format(c.Total()))
	// one unit is below the minimum quantity even though the amount is enough
	assert.False(t, c.IsValid())
}

func TestScenarioC_CapacityRejectsWholeAdd(t *testing.T) {
	c := New(pricing.DefaultRules(), entity.DefaultAppSettings())
	d := dish("biryani", 30)

	require.NoError(t, c.AddItem(d, 3))
	assert.Equal(t, 3, c.Quantity("biryani"))

	err := c.AddItem(d, 3)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 3, c.Quantity("biryani"))
}

func TestAddItemRejectsOutOfStock(t *testing.T) {
	c := New(pricing.DefaultRules(), entity.DefaultAppSettings())
	d := dish("dosa", 30)
	no := false
	d.InStock = &no

	assert.ErrorIs(t, c.AddItem(d, 1), ErrOutOfStock)
	assert.Equal(t, 0, c.Len())
}

func TestAddItemRejectsBadQuantityAndPrice(t *testing.T) {
	c := New(pricing.DefaultRules(), entity.DefaultAppSettings())

	assert.ErrorIs(t, c.AddItem(dish("idli", 10), 0), ErrInvalidQuantity)
	assert.ErrorIs(t, c.AddItem(dish("idli", 10), 6), ErrCapacity)

	bad := dish("vada", 10)
	bad.Discount = decimal.NewFromInt(120)
	assert.ErrorIs(t, c.AddItem(bad, 1), ErrPriceUnavailable)
	assert.Equal(t, 0, c.Len())
}

func TestAddItemKeepsFirstPriceSnapshot(t *testing.T) {
	c := New(pricing.DefaultRules(), entity.DefaultAppSettings())
	d := dish("kheer", 40)

	require.NoError(t, c.AddItem(d, 1))
	d.Discount = decimal.NewFromInt(50)
	require.NoError(t, c.AddItem(d, 1))

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "40.00", pricing.Format(lines[0].Price))
}

func TestChangeQuantity(t *testing.T) {
	c := New(pricing.DefaultRules(), entity.DefaultAppSettings())
	require.NoError(t, c.AddItem(dish("a", 10), 2))
	require.NoError(t, c.AddItem(dish("b", 10), 3))

	require.NoError(t, c.ChangeQuantity("a", 1))
	assert.Equal(t, 3, c.Quantity("a"))

	assert.ErrorIs(t, c.ChangeQuantity("a", 3), ErrCapacity)
	assert.Equal(t, 3, c.Quantity("a"))

	// unknown key is a no-op
	require.NoError(t, c.ChangeQuantity("zzz", 1))
	assert.Equal(t, 2, c.Len())
}

func TestChangeQuantityToZeroRemovesLine(t *testing.T) {
	c := New(pricing.DefaultRules(), entity.DefaultAppSettings())
	require.NoError(t, c.AddItem(dish("a", 10), 4))
	require.NoError(t, c.AddItem(dish("b", 10), 2))
	before := c.Count()

	require.NoError(t, c.ChangeQuantity("a", -c.Quantity("a")))

	assert.Equal(t, 0, c.Quantity("a"))
	assert.Equal(t, before-4, c.Count())
	for _, line := range c.Lines() {
		assert.NotEqual(t, "a", line.Key)
	}
}

func TestClear(t *testing.T) {
	c := New(pricing.DefaultRules(), entity.DefaultAppSettings())
	require.NoError(t, c.AddItem(dish("a", 10), 4))

	c.Clear()

	assert.Equal(t, 0, c.Count())
	assert.True(t, c.Subtotal().IsZero())
	assert.Empty(t, c.Lines())
}

func TestRemoveKeepsLinesChangedAfterSnapshot(t *testing.T) {
	c := New(pricing.DefaultRules(), entity.DefaultAppSettings())
	require.NoError(t, c.AddItem(dish("a", 10), 2))
	require.NoError(t, c.AddItem(dish("b", 10), 3))
	ordered := c.Summary().Lines

	require.NoError(t, c.AddItem(dish("a", 10), 1))
	require.NoError(t, c.AddItem(dish("c", 10), 1))
	require.NoError(t, c.ChangeQuantity("b", -1))

	c.Remove(ordered)

	assert.Equal(t, 1, c.Quantity("a"))
	assert.Equal(t, 0, c.Quantity("b"))
	assert.Equal(t, 1, c.Quantity("c"))
	assert.Equal(t, 2, c.Len())
}

func TestLinesReturnsCopy(t *testing.T) {
	c := New(pricing.DefaultRules(), entity.DefaultAppSettings())
	require.NoError(t, c.AddItem(dish("a", 10), 1))

	lines := c.Lines()
	lines[0].Quantity = 99

	assert.Equal(t, 1, c.Quantity("a"))
}

func TestCustomRules(t *testing.T) {
	rules := pricing.Rules{MinOrderQty: 1, MinOrderAmount: decimal.NewFromInt(5), MaxItemQty: 2}
	c := New(rules, entity.DefaultAppSettings())

	require.NoError(t, c.AddItem(dish("a", 5), 1))
	assert.True(t, c.IsValid())
	assert.ErrorIs(t, c.AddItem(dish("a", 5), 2), ErrCapacity)
}

func TestInvariantsUnderRandomOperations(t *testing.T) {
	rules := pricing.DefaultRules()
	rng := rand.New(rand.NewSource(7))
	keys := []string{"a", "b", "c", "d"}

	for round := 0; round < 200; round++ {
		c := New(rules, settings("10", "0"))
		for step := 0; step < 40; step++ {
			key := keys[rng.Intn(len(keys))]
			before := c.Summary()

			var err error
			if rng.Intn(2) == 0 {
				err = c.AddItem(dish(key, int64(1+rng.Intn(40))), 1+rng.Intn(6))
			} else {
				err = c.ChangeQuantity(key, rng.Intn(11)-5)
			}
			if err != nil {
				assert.Equal(t, before, c.Summary(), "rejected operation must not change the cart")
			}

			s := c.Summary()
			seen := map[string]bool{}
			count := 0
			subtotal := decimal.Zero
			for _, line := range s.Lines {
				require.False(t, seen[line.Key], "duplicate key %s", line.Key)
				seen[line.Key] = true
				require.GreaterOrEqual(t, line.Quantity, 1)
				require.LessOrEqual(t, line.Quantity, rules.MaxItemQty)
				count += line.Quantity
				subtotal = subtotal.Add(line.LineTotal())
			}
			require.Equal(t, count, s.Count)
			require.True(t, subtotal.Equal(s.Subtotal))

			wantValid := count >= rules.MinOrderQty && subtotal.GreaterThanOrEqual(rules.MinOrderAmount)
			require.Equal(t, wantValid, s.Valid, fmt.Sprintf("round %d step %d", round, step))
		}
	}
}
