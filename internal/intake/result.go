package intake

import (
	"errors"

	"github.com/imrishuroy/go-loyalty-ledger/internal/ledger"
	"github.com/imrishuroy/go-loyalty-ledger/internal/qualifier"
)

var (
	ErrMissingOrderID    = errors.New("order id is required")
	ErrMissingMerchantID = errors.New("merchant id is required")
	ErrMissingRefundID   = errors.New("refund id is required")

	// ErrOrderNotProcessed means the refunded order has not been seen yet.
	// Retry the refund once the order has been processed.
	ErrOrderNotProcessed = errors.New("refunded order not processed yet")
)

// Classification is the stored outcome of an order.
type Classification string

const (
	ClassPending       Classification = "pending"
	ClassQualifying    Classification = "qualifying"
	ClassNonQualifying Classification = "non_qualifying"
	ClassNoCustomer    Classification = "no_customer"
	ClassNoLineItems   Classification = "no_line_items"
)

// Status tells the caller whether this call did the work.
type Status string

const (
	StatusProcessed        Status = "processed"
	StatusAlreadyProcessed Status = "already_processed"
)

// LineResult is what happened to one line item.
type LineResult struct {
	UID         string                 `json:"uid,omitempty"`
	VariationID string                 `json:"variation_id,omitempty"`
	Quantity    int                    `json:"quantity"`
	SkipReason  qualifier.Reason       `json:"skip_reason,omitempty"`
	Outcome     ledger.PurchaseOutcome `json:"outcome,omitempty"`
	EventID     string                 `json:"event_id,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Result is returned by ProcessOrder.
type Result struct {
	Status         Status         `json:"status"`
	MerchantID     string         `json:"merchant_id"`
	OrderID        string         `json:"order_id"`
	CustomerID     string         `json:"customer_id,omitempty"`
	Classification Classification `json:"classification,omitempty"`
	Lines          []LineResult   `json:"lines,omitempty"`
	Recorded       int            `json:"recorded"`
	Earned         []string       `json:"earned,omitempty"`
	Redeemed       []string       `json:"redeemed,omitempty"`
}

// Failed counts line items that errored.
func (r Result) Failed() int {
	n := 0
	for _, l := range r.Lines {
		if l.Error != "" {
			n++
		}
	}
	return n
}

// RefundLineResult is what happened to one refunded line.
type RefundLineResult struct {
	VariationID string                 `json:"variation_id"`
	Requested   int                    `json:"requested"`
	Refunded    int                    `json:"refunded"`
	Outcome     ledger.PurchaseOutcome `json:"outcome,omitempty"`
	Skipped     string                 `json:"skipped,omitempty"`
	Revoked     []string               `json:"revoked,omitempty"`
	Earned      []string               `json:"earned,omitempty"`
}

// RefundResult is returned by ProcessRefund.
type RefundResult struct {
	MerchantID string             `json:"merchant_id"`
	RefundID   string             `json:"refund_id"`
	OrderID    string             `json:"order_id"`
	Lines      []RefundLineResult `json:"lines"`
}

func (r RefundResult) count(pick func(RefundLineResult) int) int {
	n := 0
	for _, l := range r.Lines {
		n += pick(l)
	}
	return n
}
