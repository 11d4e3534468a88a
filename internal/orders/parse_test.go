package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOrder = `{
  "order": {
    "id": "ord-1",
    "location_id": "loc-1",
    "customer_id": "cust-1",
    "state": "COMPLETED",
    "created_at": "2026-03-01T10:00:00Z",
    "closed_at": "2026-03-01T10:05:00Z",
    "line_items": [
      {"uid": "li-1", "catalog_object_id": "var-1", "name": "Kibble 5kg", "quantity": "2",
       "base_price_money": {"amount": 2599}, "total_money": {"amount": 5198}},
      {"uid": "li-2", "catalog_object_id": "var-2", "name": "Kibble 5kg", "quantity": "1",
       "base_price_money": {"amount": 2599}, "total_money": {"amount": 0},
       "applied_discounts": [{"discount_uid": "d-1"}]}
    ],
    "discounts": [
      {"uid": "d-1", "catalog_object_id": "disc-reward-1", "name": "Free bag", "scope": "LINE_ITEM",
       "applied_money": {"amount": 2599}}
    ],
    "tenders": [{"id": "t-1", "type": "CARD", "customer_id": "cust-tender", "amount_money": {"amount": 5198}}],
    "fulfillments": [{"type": "PICKUP", "pickup_details": {"recipient": {
      "display_name": "Ada", "email_address": "ada@example.com", "phone_number": "+15550100"}}}]
  }
}`

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder([]byte(sampleOrder))
	require.NoError(t, err)

	assert.Equal(t, "ord-1", o.ID)
	assert.Equal(t, "cust-1", o.CustomerID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), o.PurchasedAt())

	require.Len(t, o.LineItems, 2)
	assert.Equal(t, "var-1", o.LineItems[0].VariationID)
	assert.Equal(t, 2, o.LineItems[0].Quantity)
	assert.True(t, o.LineItems[0].UnitPrice.Equal(decimal.RequireFromString("25.99")))
	assert.True(t, o.LineItems[1].TotalMoney.IsZero())
	assert.Equal(t, []string{"d-1"}, o.LineItems[1].AppliedDiscounts)

	require.Len(t, o.Discounts, 1)
	assert.Equal(t, "disc-reward-1", o.Discounts[0].CatalogObjectID)
	assert.Equal(t, []string{"disc-reward-1"}, o.DiscountCatalogIDs())

	require.Len(t, o.Tenders, 1)
	assert.Equal(t, "cust-tender", o.Tenders[0].CustomerID)
	require.Len(t, o.Fulfillments, 1)
	assert.Equal(t, "ada@example.com", o.Fulfillments[0].Email)
}

func TestParseOrder_BareObjectAndCreatedAtFallback(t *testing.T) {
	o, err := ParseOrder([]byte(`{"id":"ord-2","created_at":"2026-01-02T03:04:05Z","line_items":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "ord-2", o.ID)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), o.PurchasedAt())
	assert.Empty(t, o.LineItems)
}

func TestParseOrder_Invalid(t *testing.T) {
	_, err := ParseOrder([]byte(`{not json`))
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseOrder([]byte(`{"id":"x","line_items":[{"quantity":"lots"}]}`))
	require.Error(t, err)
}

func TestParseRefund(t *testing.T) {
	r, err := ParseRefund([]byte(`{"refund":{"id":"rf-1","order_id":"ord-1","reason":"damaged",
		"created_at":"2026-03-05T09:00:00Z",
		"return_line_items":[{"catalog_object_id":"var-1","quantity":"1","total_money":{"amount":2599}}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "rf-1", r.ID)
	assert.Equal(t, "ord-1", r.OrderID)
	require.Len(t, r.LineItems, 1)
	assert.Equal(t, 1, r.LineItems[0].Quantity)
}

func TestSourceValid(t *testing.T) {
	assert.True(t, SourceWebhook.Valid())
	assert.True(t, SourceBackfill.Valid())
	assert.False(t, Source("carrier-pigeon").Valid())
}
