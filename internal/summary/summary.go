// Package summary maintains the per customer and offer projection of the
// ledger. Rows are derived data: Rebuild recomputes one row from rewards
// and purchase events and may be called any number of times.
package summary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

var ErrNotFound = errors.New("summary not found")

// CustomerSummary is the reporting view of one customer's progress on one offer.
type CustomerSummary struct {
	MerchantID        string    `json:"merchant_id"`
	CustomerID        string    `json:"customer_id"`
	OfferID           string    `json:"offer_id"`
	CurrentQuantity   int       `json:"current_quantity"`
	RequiredQuantity  int       `json:"required_quantity"`
	WindowStart       time.Time `json:"window_start,omitempty"`
	WindowEnd         time.Time `json:"window_end,omitempty"`
	HasEarnedReward   bool      `json:"has_earned_reward"`
	EarnedRewardID    string    `json:"earned_reward_id,omitempty"`
	LifetimePurchases int       `json:"lifetime_purchases"`
	LifetimeRefunds   int       `json:"lifetime_refunds"`
	RewardsEarned     int       `json:"rewards_earned"`
	RewardsRedeemed   int       `json:"rewards_redeemed"`
	RewardsRevoked    int       `json:"rewards_revoked"`
	LastPurchaseAt    time.Time `json:"last_purchase_at,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Remaining is how many more units earn the next reward.
func (s CustomerSummary) Remaining() int {
	if n := s.RequiredQuantity - s.CurrentQuantity; n > 0 {
		return n
	}
	return 0
}

// Aggregator rebuilds summary rows inside the ledger's transaction.
type Aggregator struct {
	nowFunc func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{nowFunc: time.Now}
}

// Rebuild recomputes the summary for one customer and offer.
func (a *Aggregator) Rebuild(ctx context.Context, q store.Querier, merchantID, customerID, offerID string) error {
	s := CustomerSummary{MerchantID: merchantID, CustomerID: customerID, OfferID: offerID}

	if err := q.QueryRow(ctx, `SELECT required_quantity FROM offers WHERE id = ? AND merchant_id = ?`,
		offerID, merchantID).Scan(&s.RequiredQuantity); err != nil {
		return fmt.Errorf("summary: load offer %s: %w", offerID, err)
	}

	var start, end sql.NullTime
	err := q.QueryRow(ctx, `
		SELECT current_quantity, required_quantity, window_start, window_end FROM rewards
		WHERE merchant_id = ? AND customer_id = ? AND offer_id = ? AND status = 'in_progress'
	`, merchantID, customerID, offerID).Scan(&s.CurrentQuantity, &s.RequiredQuantity, &start, &end)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("summary: load progress: %w", err)
	}
	s.WindowStart, s.WindowEnd = start.Time, end.Time

	var earnedID sql.NullString
	err = q.QueryRow(ctx, `
		SELECT id FROM rewards
		WHERE merchant_id = ? AND customer_id = ? AND offer_id = ? AND status = 'earned'
		ORDER BY earned_at DESC, id DESC
		LIMIT 1
	`, merchantID, customerID, offerID).Scan(&earnedID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("summary: load earned reward: %w", err)
	}
	s.HasEarnedReward = earnedID.Valid
	s.EarnedRewardID = earnedID.String

	if err := q.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status <> 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'redeemed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'revoked' THEN 1 ELSE 0 END), 0)
		FROM rewards
		WHERE merchant_id = ? AND customer_id = ? AND offer_id = ?
	`, merchantID, customerID, offerID).Scan(&s.RewardsEarned, &s.RewardsRedeemed, &s.RewardsRevoked); err != nil {
		return fmt.Errorf("summary: count rewards: %w", err)
	}

	// Split children repeat their parent's units, so lifetime totals count
	// original rows only.
	if err := q.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN is_refund = ? THEN quantity ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_refund = ? THEN -quantity ELSE 0 END), 0)
		FROM purchase_events
		WHERE merchant_id = ? AND customer_id = ? AND offer_id = ? AND original_event_id IS NULL
	`, false, true, merchantID, customerID, offerID).Scan(&s.LifetimePurchases, &s.LifetimeRefunds); err != nil {
		return fmt.Errorf("summary: lifetime totals: %w", err)
	}

	var last sql.NullTime
	err = q.QueryRow(ctx, `
		SELECT purchased_at FROM purchase_events
		WHERE merchant_id = ? AND customer_id = ? AND offer_id = ? AND is_refund = ?
		ORDER BY purchased_at DESC
		LIMIT 1
	`, merchantID, customerID, offerID, false).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("summary: last purchase: %w", err)
	}
	s.LastPurchaseAt = last.Time
	s.UpdatedAt = store.Timestamp(a.nowFunc())

	_, err = q.Exec(ctx, `
		INSERT INTO customer_summaries (merchant_id, customer_id, offer_id, current_quantity, required_quantity,
			window_start, window_end, has_earned_reward, earned_reward_id, lifetime_purchases, lifetime_refunds,
			rewards_earned, rewards_redeemed, rewards_revoked, last_purchase_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (merchant_id, customer_id, offer_id) DO UPDATE SET
			current_quantity = excluded.current_quantity,
			required_quantity = excluded.required_quantity,
			window_start = excluded.window_start,
			window_end = excluded.window_end,
			has_earned_reward = excluded.has_earned_reward,
			earned_reward_id = excluded.earned_reward_id,
			lifetime_purchases = excluded.lifetime_purchases,
			lifetime_refunds = excluded.lifetime_refunds,
			rewards_earned = excluded.rewards_earned,
			rewards_redeemed = excluded.rewards_redeemed,
			rewards_revoked = excluded.rewards_revoked,
			last_purchase_at = excluded.last_purchase_at,
			updated_at = excluded.updated_at
	`, s.MerchantID, s.CustomerID, s.OfferID, s.CurrentQuantity, s.RequiredQuantity,
		store.NullTime(s.WindowStart), store.NullTime(s.WindowEnd), s.HasEarnedReward, store.NullString(s.EarnedRewardID),
		s.LifetimePurchases, s.LifetimeRefunds, s.RewardsEarned, s.RewardsRedeemed, s.RewardsRevoked,
		store.NullTime(s.LastPurchaseAt), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("summary: upsert: %w", err)
	}
	return nil
}
