package validation

import "encoding/json"

// ProcessOrderRequest is the payload for POST /v1/orders. Order carries the
// upstream order object as delivered by the commerce platform.
type ProcessOrderRequest struct {
	MerchantID string          `json:"merchant_id" validate:"required"`
	CustomerID string          `json:"customer_id,omitempty"` // resolved by the identity chain when empty
	Source     string          `json:"source" validate:"omitempty,oneof=webhook catchup backfill audit manual"`
	Order      json.RawMessage `json:"order" validate:"required"`
}

// ProcessRefundRequest is the payload for POST /v1/refunds.
type ProcessRefundRequest struct {
	MerchantID string          `json:"merchant_id" validate:"required"`
	Source     string          `json:"source" validate:"omitempty,oneof=webhook catchup backfill audit manual"`
	Refund     json.RawMessage `json:"refund" validate:"required"`
}

// CreateOfferRequest is the payload for POST /v1/merchants/:merchant/offers.
type CreateOfferRequest struct {
	BrandName        string `json:"brand_name" validate:"required"`
	SizeGroup        string `json:"size_group" validate:"required"`
	Name             string `json:"name,omitempty"`
	Description      string `json:"description,omitempty"`
	RequiredQuantity int    `json:"required_quantity" validate:"required,min=1"`
	WindowMonths     int    `json:"window_months" validate:"required,min=1,max=60"`
}

// UpdateOfferRequest is the payload for PATCH /v1/merchants/:merchant/offers/:offer.
// At least one field must be set.
type UpdateOfferRequest struct {
	Name             *string `json:"name,omitempty"`
	Description      *string `json:"description,omitempty"`
	RequiredQuantity *int    `json:"required_quantity,omitempty" validate:"omitempty,min=1"`
	WindowMonths     *int    `json:"window_months,omitempty" validate:"omitempty,min=1,max=60"`
	Active           *bool   `json:"active,omitempty"`
}

// LinkVariationRequest is the payload for POST /v1/merchants/:merchant/offers/:offer/variations.
type LinkVariationRequest struct {
	VariationID   string `json:"variation_id" validate:"required"`
	ItemName      string `json:"item_name,omitempty"`
	VariationName string `json:"variation_name,omitempty"`
	SKU           string `json:"sku,omitempty"`
}

// AttachDiscountRequest is the payload for PUT /v1/merchants/:merchant/rewards/:reward/discount.
type AttachDiscountRequest struct {
	DiscountID string `json:"discount_id" validate:"required"`
}

// RedeemRewardRequest is the payload for POST /v1/merchants/:merchant/rewards/:reward/redeem.
type RedeemRewardRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}
