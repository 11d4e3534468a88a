// Package identity resolves the customer behind an order by trying an
// ordered list of strategies until one finds a match.
package identity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/imrishuroy/go-loyalty-ledger/internal/ledger"
	"github.com/imrishuroy/go-loyalty-ledger/internal/orders"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// Method names the strategy that found a customer.
type Method string

const (
	MethodDirect           Method = "direct"
	MethodTender           Method = "tender"
	MethodLoyaltyAccount   Method = "loyalty_account"
	MethodFulfillment      Method = "fulfillment_contact"
	MethodExistingDiscount Method = "existing_discount"
)

// Result is the outcome of identification. CustomerID is empty when no
// strategy matched.
type Result struct {
	Found      bool   `json:"found"`
	CustomerID string `json:"customer_id,omitempty"`
	Method     Method `json:"method,omitempty"`
}

func found(id string, m Method) Result { return Result{Found: true, CustomerID: id, Method: m} }

// Strategy is one way of finding the customer.
type Strategy interface {
	Method() Method
	Identify(ctx context.Context, merchantID string, o orders.Order) (Result, error)
}

// Resolver runs strategies in order.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewResolver(logger *slog.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{strategies: strategies, logger: logger}
}

// Resolve returns the first match. A failing strategy is logged and
// skipped; identification never fails an order.
func (r *Resolver) Resolve(ctx context.Context, merchantID string, o orders.Order) Result {
	for _, s := range r.strategies {
		res, err := s.Identify(ctx, merchantID, o)
		if err != nil {
			r.logger.Warn("customer identification strategy failed", "merchant_id", merchantID,
				"order_id", o.ID, "method", s.Method(), "error", err)
			continue
		}
		if res.Found && res.CustomerID != "" {
			return res
		}
	}
	return Result{}
}

// Direct uses the customer referenced on the order itself.
type Direct struct{}

func (Direct) Method() Method { return MethodDirect }

func (Direct) Identify(_ context.Context, _ string, o orders.Order) (Result, error) {
	if o.CustomerID == "" {
		return Result{}, nil
	}
	return found(o.CustomerID, MethodDirect), nil
}

// Tender uses the customer attached to a payment.
type Tender struct{}

func (Tender) Method() Method { return MethodTender }

func (Tender) Identify(_ context.Context, _ string, o orders.Order) (Result, error) {
	for _, t := range o.Tenders {
		if t.CustomerID != "" {
			return found(t.CustomerID, MethodTender), nil
		}
	}
	return Result{}, nil
}

// LoyaltyAccounts looks up the loyalty account that accrued points on an order.
type LoyaltyAccounts interface {
	CustomerForOrder(ctx context.Context, merchantID, orderID string) (string, error)
}

// LoyaltyAccount reverse-looks-up the customer through the loyalty program.
type LoyaltyAccount struct {
	Accounts LoyaltyAccounts
}

func (LoyaltyAccount) Method() Method { return MethodLoyaltyAccount }

func (s LoyaltyAccount) Identify(ctx context.Context, merchantID string, o orders.Order) (Result, error) {
	id, err := s.Accounts.CustomerForOrder(ctx, merchantID, o.ID)
	if err != nil || id == "" {
		return Result{}, err
	}
	return found(id, MethodLoyaltyAccount), nil
}

// Contacts searches the customer directory by contact details.
type Contacts interface {
	FindByContact(ctx context.Context, merchantID, email, phone string) (string, error)
}

// FulfillmentContact matches the pickup or delivery recipient.
type FulfillmentContact struct {
	Contacts Contacts
}

func (FulfillmentContact) Method() Method { return MethodFulfillment }

func (s FulfillmentContact) Identify(ctx context.Context, merchantID string, o orders.Order) (Result, error) {
	for _, f := range o.Fulfillments {
		email := strings.ToLower(strings.TrimSpace(f.Email))
		phone := normalizePhone(f.Phone)
		if email == "" && phone == "" {
			continue
		}
		id, err := s.Contacts.FindByContact(ctx, merchantID, email, phone)
		if err != nil {
			return Result{}, err
		}
		if id != "" {
			return found(id, MethodFulfillment), nil
		}
	}
	return Result{}, nil
}

func normalizePhone(p string) string {
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' || r == '+' && b.Len() == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExistingDiscount finds the customer whose reward discount the order applies.
type ExistingDiscount struct {
	Store store.Querier
}

func (ExistingDiscount) Method() Method { return MethodExistingDiscount }

func (s ExistingDiscount) Identify(ctx context.Context, merchantID string, o orders.Order) (Result, error) {
	rewards, err := ledger.RewardsByDiscount(ctx, s.Store, merchantID, o.DiscountCatalogIDs())
	if err != nil {
		return Result{}, err
	}
	for _, r := range rewards {
		if r.CustomerID != "" {
			return found(r.CustomerID, MethodExistingDiscount), nil
		}
	}
	return Result{}, nil
}

// DefaultChain is the standard identification order. Optional collaborators
// are left out when nil.
func DefaultChain(q store.Querier, accounts LoyaltyAccounts, contacts Contacts) []Strategy {
	chain := []Strategy{Direct{}, Tender{}}
	if accounts != nil {
		chain = append(chain, LoyaltyAccount{Accounts: accounts})
	}
	if contacts != nil {
		chain = append(chain, FulfillmentContact{Contacts: contacts})
	}
	return append(chain, ExistingDiscount{Store: q})
}
