package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tags where an order came from. It is recorded for traceability and
// never changes how an order is processed.
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceCatchup  Source = "catchup"
	SourceBackfill Source = "backfill"
	SourceAudit    Source = "audit"
	SourceManual   Source = "manual"
)

// Valid reports whether s is a known source tag.
func (s Source) Valid() bool {
	switch s {
	case SourceWebhook, SourceCatchup, SourceBackfill, SourceAudit, SourceManual:
		return true
	}
	return false
}

// Order is the upstream order as handed to the ledger.
type Order struct {
	ID           string
	LocationID   string
	CustomerID   string // direct reference, may be empty
	State        string
	LineItems    []LineItem
	Discounts    []OrderDiscount
	Tenders      []Tender
	Fulfillments []Fulfillment
	CreatedAt    time.Time
	ClosedAt     time.Time
}

// PurchasedAt is the time the purchase counts from: close time when the
// order was completed, creation time otherwise.
func (o Order) PurchasedAt() time.Time {
	if !o.ClosedAt.IsZero() {
		return o.ClosedAt
	}
	return o.CreatedAt
}

// DiscountCatalogIDs returns the catalog object ids of all order-level discounts.
func (o Order) DiscountCatalogIDs() []string {
	ids := make([]string, 0, len(o.Discounts))
	for _, d := range o.Discounts {
		if d.CatalogObjectID != "" {
			ids = append(ids, d.CatalogObjectID)
		}
	}
	return ids
}

// LineItem is one purchased line.
type LineItem struct {
	UID              string
	VariationID      string // catalog object id of the item variation
	Name             string
	Quantity         int
	UnitPrice        decimal.Decimal
	TotalMoney       decimal.Decimal // net of discounts
	AppliedDiscounts []string        // discount uids applied to this line
}

// OrderDiscount is a discount declared on the order.
type OrderDiscount struct {
	UID             string
	CatalogObjectID string
	Name            string
	Scope           string
	AppliedAmount   decimal.Decimal
}

// Tender is one payment on the order.
type Tender struct {
	ID         string
	Type       string
	CustomerID string
	Amount     decimal.Decimal
}

// Fulfillment carries the pickup/delivery contact for the order.
type Fulfillment struct {
	Type          string
	RecipientName string
	Email         string
	Phone         string
}

// Refund describes items returned against an earlier order.
type Refund struct {
	ID        string
	OrderID   string
	Reason    string
	CreatedAt time.Time
	LineItems []RefundLineItem
}

// RefundLineItem is one returned line.
type RefundLineItem struct {
	VariationID string
	Quantity    int
	Amount      decimal.Decimal
}
