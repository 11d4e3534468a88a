package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEventNotFound     = errors.New("purchase event not found")
	ErrRewardNotFound    = errors.New("reward not found")
	ErrInvalidTransition = errors.New("invalid reward transition")
	ErrNotRefundable     = errors.New("event cannot be refunded")
)

// RewardStatus is a reward's lifecycle state:
// in_progress -> earned -> redeemed, or earned -> revoked.
type RewardStatus string

const (
	StatusInProgress RewardStatus = "in_progress"
	StatusEarned     RewardStatus = "earned"
	StatusRedeemed   RewardStatus = "redeemed"
	StatusRevoked    RewardStatus = "revoked"
)

// PurchaseEvent is an immutable ledger line. Refunds carry a negative
// quantity. Only RewardID changes after insert, when the event is locked
// into or released from an earned reward.
type PurchaseEvent struct {
	ID              string          `json:"id"`
	MerchantID      string          `json:"merchant_id"`
	OfferID         string          `json:"offer_id"`
	CustomerID      string          `json:"customer_id"`
	OrderID         string          `json:"order_id"`
	VariationID     string          `json:"variation_id"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	PurchasedAt     time.Time       `json:"purchased_at"`
	WindowStart     time.Time       `json:"window_start"`
	WindowEnd       time.Time       `json:"window_end"`
	RewardID        string          `json:"reward_id,omitempty"`
	IsRefund        bool            `json:"is_refund"`
	RefundOfEventID string          `json:"refund_of_event_id,omitempty"`
	OriginalEventID string          `json:"original_event_id,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key"`
	Source          string          `json:"source,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Locked reports whether the event counts toward an earned reward.
func (e PurchaseEvent) Locked() bool { return e.RewardID != "" }

// Reward is one cycle of progress for a customer and offer.
type Reward struct {
	ID               string       `json:"id"`
	MerchantID       string       `json:"merchant_id"`
	OfferID          string       `json:"offer_id"`
	CustomerID       string       `json:"customer_id"`
	Status           RewardStatus `json:"status"`
	CurrentQuantity  int          `json:"current_quantity"`
	RequiredQuantity int          `json:"required_quantity"`
	WindowStart      time.Time    `json:"window_start,omitempty"`
	WindowEnd        time.Time    `json:"window_end,omitempty"`
	EarnedAt         time.Time    `json:"earned_at,omitempty"`
	RedeemedAt       time.Time    `json:"redeemed_at,omitempty"`
	RedeemedOrderID  string       `json:"redeemed_order_id,omitempty"`
	RevokedAt        time.Time    `json:"revoked_at,omitempty"`
	RevocationReason string       `json:"revocation_reason,omitempty"`
	DiscountID       string       `json:"discount_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Purchase is one qualifying line item to record.
type Purchase struct {
	MerchantID  string
	OrderID     string
	CustomerID  string
	VariationID string
	Quantity    int
	UnitPrice   decimal.Decimal
	PurchasedAt time.Time
	Source      string
}

// IdempotencyKey identifies the line item across repeated deliveries.
func (p Purchase) IdempotencyKey() string {
	return purchaseKey(p.OrderID, p.VariationID, p.Quantity)
}

// PurchaseOutcome classifies a recordPurchase call. Only OutcomeRecorded
// writes anything.
type PurchaseOutcome string

const (
	OutcomeRecorded        PurchaseOutcome = "recorded"
	OutcomeNoOffer         PurchaseOutcome = "no_offer"
	OutcomeDuplicate       PurchaseOutcome = "duplicate"
	OutcomeInvalidQuantity PurchaseOutcome = "invalid_quantity"
	OutcomeFullyRefunded   PurchaseOutcome = "fully_refunded"
)

// PurchaseResult reports what a purchase or refund did to the ledger.
type PurchaseResult struct {
	Outcome         PurchaseOutcome `json:"outcome"`
	EventID         string          `json:"event_id,omitempty"`
	OfferID         string          `json:"offer_id,omitempty"`
	RewardID        string          `json:"reward_id,omitempty"`
	CurrentQuantity int             `json:"current_quantity"`
	Earned          []string        `json:"earned,omitempty"`
}

// Refund returns quantity units of a previously recorded purchase.
type Refund struct {
	MerchantID      string
	RefundID        string
	OriginalEventID string
	Quantity        int
	RefundedAt      time.Time
	Reason          string
	Source          string
}

// RefundResult reports the effect of a refund.
type RefundResult struct {
	PurchaseResult
	Quantity int      `json:"quantity"`
	Revoked  []string `json:"revoked,omitempty"`
}
