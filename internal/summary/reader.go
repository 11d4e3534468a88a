package summary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

const summaryColumns = `merchant_id, customer_id, offer_id, current_quantity, required_quantity, window_start,
	window_end, has_earned_reward, earned_reward_id, lifetime_purchases, lifetime_refunds, rewards_earned,
	rewards_redeemed, rewards_revoked, last_purchase_at, updated_at`

func scanSummary(row interface{ Scan(...any) error }) (CustomerSummary, error) {
	var (
		s                CustomerSummary
		start, end, last sql.NullTime
		earnedID         sql.NullString
	)
	err := row.Scan(&s.MerchantID, &s.CustomerID, &s.OfferID, &s.CurrentQuantity, &s.RequiredQuantity, &start,
		&end, &s.HasEarnedReward, &earnedID, &s.LifetimePurchases, &s.LifetimeRefunds, &s.RewardsEarned,
		&s.RewardsRedeemed, &s.RewardsRevoked, &last, &s.UpdatedAt)
	if err != nil {
		return CustomerSummary{}, err
	}
	s.WindowStart, s.WindowEnd, s.LastPurchaseAt = start.Time, end.Time, last.Time
	s.EarnedRewardID = earnedID.String
	return s, nil
}

// Reader serves summaries to reporting callers through a read-through cache.
type Reader struct {
	store  *store.Store
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewReader(s *store.Store, cache Cache, ttl time.Duration, logger *slog.Logger) *Reader {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{store: s, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(merchantID, customerID string) string {
	return fmt.Sprintf("summary:%s:%s", merchantID, customerID)
}

// ListForCustomer returns every offer summary for a customer. Cache errors
// are logged and fall through to the database.
func (r *Reader) ListForCustomer(ctx context.Context, merchantID, customerID string) ([]CustomerSummary, error) {
	key := cacheKey(merchantID, customerID)
	if data, ok, err := r.cache.Get(ctx, key); err != nil {
		r.logger.Warn("summary cache read failed", "key", key, "error", err)
	} else if ok {
		var cached []CustomerSummary
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
	}

	rows, err := r.store.Query(ctx, `
		SELECT `+summaryColumns+` FROM customer_summaries
		WHERE merchant_id = ? AND customer_id = ?
		ORDER BY offer_id
	`, merchantID, customerID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	summaries := []CustomerSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if data, err := json.Marshal(summaries); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
			r.logger.Warn("summary cache write failed", "key", key, "error", err)
		}
	}
	return summaries, nil
}

// Get returns one customer's summary for one offer.
func (r *Reader) Get(ctx context.Context, merchantID, customerID, offerID string) (CustomerSummary, error) {
	s, err := scanSummary(r.store.QueryRow(ctx, `
		SELECT `+summaryColumns+` FROM customer_summaries
		WHERE merchant_id = ? AND customer_id = ? AND offer_id = ?
	`, merchantID, customerID, offerID))
	if errors.Is(err, sql.ErrNoRows) {
		return CustomerSummary{}, ErrNotFound
	}
	if err != nil {
		return CustomerSummary{}, fmt.Errorf("get summary: %w", err)
	}
	return s, nil
}

// Invalidate drops the cached summaries for a customer. Call after commit.
func (r *Reader) Invalidate(ctx context.Context, merchantID, customerID string) {
	key := cacheKey(merchantID, customerID)
	if err := r.cache.Delete(ctx, key); err != nil {
		r.logger.Warn("summary cache invalidate failed", "key", key, "error", err)
	}
}
