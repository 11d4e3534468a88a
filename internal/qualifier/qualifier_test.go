package qualifier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/imrishuroy/go-loyalty-ledger/internal/orders"
)

func TestEvaluate(t *testing.T) {
	discounts := []orders.OrderDiscount{
		{UID: "d-reward", CatalogObjectID: "disc-reward-1", Scope: "LINE_ITEM"},
		{UID: "d-promo", CatalogObjectID: "disc-promo", Scope: "LINE_ITEM"},
	}
	m := NewDiscountMap(discounts, []string{"disc-reward-1", ""})

	price := decimal.NewFromInt(10)
	tests := []struct {
		name   string
		item   orders.LineItem
		want   bool
		reason Reason
	}{
		{
			name: "priced item counts",
			item: orders.LineItem{VariationID: "v1", Quantity: 2, TotalMoney: price},
			want: true,
		},
		{
			name:   "missing variation",
			item:   orders.LineItem{Quantity: 1, TotalMoney: price},
			reason: ReasonNoVariation,
		},
		{
			name:   "zero quantity",
			item:   orders.LineItem{VariationID: "v1", TotalMoney: price},
			reason: ReasonNonPositiveQuantity,
		},
		{
			name:   "negative quantity",
			item:   orders.LineItem{VariationID: "v1", Quantity: -1, TotalMoney: price},
			reason: ReasonNonPositiveQuantity,
		},
		{
			name:   "free via reward discount",
			item:   orders.LineItem{VariationID: "v1", Quantity: 1, AppliedDiscounts: []string{"d-reward"}},
			reason: ReasonFreeRewardItem,
		},
		{
			name: "free via unrelated promo still counts",
			item: orders.LineItem{VariationID: "v1", Quantity: 1, AppliedDiscounts: []string{"d-promo"}},
			want: true,
		},
		{
			name:   "partially discounted by reward",
			item:   orders.LineItem{VariationID: "v1", Quantity: 2, TotalMoney: price, AppliedDiscounts: []string{"d-promo", "d-reward"}},
			reason: ReasonRewardDiscountApplied,
		},
		{
			name: "unknown discount uid ignored",
			item: orders.LineItem{VariationID: "v1", Quantity: 1, TotalMoney: price, AppliedDiscounts: []string{"nope"}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.item, m)
			assert.Equal(t, tt.want, d.Process)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestEvaluate_OrderScopedRewardZeroesLine(t *testing.T) {
	m := NewDiscountMap([]orders.OrderDiscount{
		{UID: "d1", CatalogObjectID: "disc-reward-1", Scope: "ORDER"},
	}, []string{"disc-reward-1"})

	d := Evaluate(orders.LineItem{VariationID: "v1", Quantity: 1}, m)
	assert.False(t, d.Process)
	assert.Equal(t, ReasonFreeRewardItem, d.Reason)
	assert.Equal(t, "disc-reward-1", d.RewardDiscountID)

	// A priced line is not affected by an order-level reward discount.
	d = Evaluate(orders.LineItem{VariationID: "v1", Quantity: 1, TotalMoney: decimal.NewFromInt(5)}, m)
	assert.True(t, d.Process)
}

func TestEvaluate_NoRewardDiscounts(t *testing.T) {
	m := NewDiscountMap(nil, nil)
	d := Evaluate(orders.LineItem{VariationID: "v1", Quantity: 1}, m)
	assert.True(t, d.Process)
	assert.False(t, m.IsRewardDiscount(""))
}
