// Package qualifier decides which line items of an order count toward a
// loyalty offer. It has no side effects.
package qualifier

import (
	"github.com/imrishuroy/go-loyalty-ledger/internal/orders"
)

// Reason explains why a line item was skipped.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNoVariation           Reason = "no_variation"
	ReasonNonPositiveQuantity   Reason = "non_positive_quantity"
	ReasonFreeRewardItem        Reason = "free_reward_item"
	ReasonRewardDiscountApplied Reason = "reward_discount_applied"
)

// Decision is the outcome for one line item.
type Decision struct {
	Process bool
	Reason  Reason
	// RewardDiscountID is the catalog id of the reward discount that caused
	// the skip, if any.
	RewardDiscountID string
}

// DiscountMap indexes an order's discounts by uid and knows which catalog
// ids belong to this program's own reward discounts.
type DiscountMap struct {
	byUID  map[string]orders.OrderDiscount
	reward map[string]struct{}
}

// NewDiscountMap builds a DiscountMap from the order discounts and the
// discount ids provisioned for this merchant's earned rewards.
func NewDiscountMap(discounts []orders.OrderDiscount, rewardDiscountIDs []string) DiscountMap {
	m := DiscountMap{
		byUID:  make(map[string]orders.OrderDiscount, len(discounts)),
		reward: make(map[string]struct{}, len(rewardDiscountIDs)),
	}
	for _, d := range discounts {
		m.byUID[d.UID] = d
	}
	for _, id := range rewardDiscountIDs {
		if id != "" {
			m.reward[id] = struct{}{}
		}
	}
	return m
}

// IsRewardDiscount reports whether catalogID is one of the program's reward discounts.
func (m DiscountMap) IsRewardDiscount(catalogID string) bool {
	_, ok := m.reward[catalogID]
	return ok
}

// lineRewardDiscount returns the reward discount applied directly to item.
func (m DiscountMap) lineRewardDiscount(item orders.LineItem) (string, bool) {
	for _, uid := range item.AppliedDiscounts {
		d, ok := m.byUID[uid]
		if !ok {
			continue
		}
		if m.IsRewardDiscount(d.CatalogObjectID) {
			return d.CatalogObjectID, true
		}
	}
	return "", false
}

// orderRewardDiscount returns an order-scoped reward discount, which can
// zero a line without being listed on it.
func (m DiscountMap) orderRewardDiscount() (string, bool) {
	for _, d := range m.byUID {
		if d.Scope == "ORDER" && m.IsRewardDiscount(d.CatalogObjectID) {
			return d.CatalogObjectID, true
		}
	}
	return "", false
}

// Evaluate decides whether item counts as a new purchase. A zero-priced line
// still counts when an unrelated promotion zeroed it; it is skipped only when
// the zeroing discount is one of the program's own rewards.
func Evaluate(item orders.LineItem, m DiscountMap) Decision {
	if item.VariationID == "" {
		return Decision{Reason: ReasonNoVariation}
	}
	if item.Quantity <= 0 {
		return Decision{Reason: ReasonNonPositiveQuantity}
	}

	lineID, onLine := m.lineRewardDiscount(item)
	if !item.TotalMoney.IsPositive() {
		if onLine {
			return Decision{Reason: ReasonFreeRewardItem, RewardDiscountID: lineID}
		}
		if id, ok := m.orderRewardDiscount(); ok {
			return Decision{Reason: ReasonFreeRewardItem, RewardDiscountID: id}
		}
	}
	if onLine {
		return Decision{Reason: ReasonRewardDiscountApplied, RewardDiscountID: lineID}
	}
	return Decision{Process: true}
}
