package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var ErrInvalidPayload = errors.New("invalid order payload")

// ParseOrder extracts an Order from an upstream commerce payload. Both the bare
// order object and the {"order": {...}} envelope are accepted. Money fields are
// integer minor units.
func ParseOrder(data []byte) (Order, error) {
	if !gjson.ValidBytes(data) {
		return Order{}, ErrInvalidPayload
	}
	root := gjson.ParseBytes(data)
	if o := root.Get("order"); o.IsObject() {
		root = o
	}

	o := Order{
		ID:         root.Get("id").String(),
		LocationID: root.Get("location_id").String(),
		CustomerID: root.Get("customer_id").String(),
		State:      root.Get("state").String(),
		CreatedAt:  parseTime(root.Get("created_at")),
		ClosedAt:   parseTime(root.Get("closed_at")),
	}

	for _, li := range root.Get("line_items").Array() {
		qty, err := parseQuantity(li.Get("quantity"))
		if err != nil {
			return Order{}, fmt.Errorf("line item %s: %w", li.Get("uid").String(), err)
		}
		item := LineItem{
			UID:         li.Get("uid").String(),
			VariationID: li.Get("catalog_object_id").String(),
			Name:        li.Get("name").String(),
			Quantity:    qty,
			UnitPrice:   money(li.Get("base_price_money.amount")),
			TotalMoney:  money(li.Get("total_money.amount")),
		}
		for _, ad := range li.Get("applied_discounts").Array() {
			item.AppliedDiscounts = append(item.AppliedDiscounts, ad.Get("discount_uid").String())
		}
		o.LineItems = append(o.LineItems, item)
	}

	for _, d := range root.Get("discounts").Array() {
		o.Discounts = append(o.Discounts, OrderDiscount{
			UID:             d.Get("uid").String(),
			CatalogObjectID: d.Get("catalog_object_id").String(),
			Name:            d.Get("name").String(),
			Scope:           d.Get("scope").String(),
			AppliedAmount:   money(d.Get("applied_money.amount")),
		})
	}

	for _, t := range root.Get("tenders").Array() {
		o.Tenders = append(o.Tenders, Tender{
			ID:         t.Get("id").String(),
			Type:       t.Get("type").String(),
			CustomerID: t.Get("customer_id").String(),
			Amount:     money(t.Get("amount_money.amount")),
		})
	}

	for _, f := range root.Get("fulfillments").Array() {
		recipient := f.Get("pickup_details.recipient")
		if !recipient.Exists() {
			recipient = f.Get("delivery_details.recipient")
		}
		if !recipient.Exists() {
			recipient = f.Get("shipment_details.recipient")
		}
		o.Fulfillments = append(o.Fulfillments, Fulfillment{
			Type:          f.Get("type").String(),
			RecipientName: recipient.Get("display_name").String(),
			Email:         recipient.Get("email_address").String(),
			Phone:         recipient.Get("phone_number").String(),
		})
	}

	return o, nil
}

// ParseRefund extracts a Refund from an upstream refund/return payload.
func ParseRefund(data []byte) (Refund, error) {
	if !gjson.ValidBytes(data) {
		return Refund{}, ErrInvalidPayload
	}
	root := gjson.ParseBytes(data)
	if r := root.Get("refund"); r.IsObject() {
		root = r
	}

	r := Refund{
		ID:        root.Get("id").String(),
		OrderID:   root.Get("order_id").String(),
		Reason:    root.Get("reason").String(),
		CreatedAt: parseTime(root.Get("created_at")),
	}
	for _, li := range root.Get("return_line_items").Array() {
		qty, err := parseQuantity(li.Get("quantity"))
		if err != nil {
			return Refund{}, fmt.Errorf("return line item: %w", err)
		}
		r.LineItems = append(r.LineItems, RefundLineItem{
			VariationID: li.Get("catalog_object_id").String(),
			Quantity:    qty,
			Amount:      money(li.Get("total_money.amount")),
		})
	}
	return r, nil
}

func money(v gjson.Result) decimal.Decimal {
	if !v.Exists() {
		return decimal.Zero
	}
	return decimal.New(v.Int(), -2)
}

// parseQuantity accepts "3", 3 and "3.0". Fractional quantities are
// truncated; only whole units count toward rewards.
func parseQuantity(v gjson.Result) (int, error) {
	if !v.Exists() || v.String() == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return 0, fmt.Errorf("quantity %q: %w", v.String(), err)
	}
	return int(d.IntPart()), nil
}

func parseTime(v gjson.Result) time.Time {
	if !v.Exists() {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v.String())
	if err != nil {
		return time.Time{}
	}
	return t
}
