package ledger

import (
	"context"
	"fmt"

	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

type staleProgress struct {
	merchantID, customerID, offerID string
}

// RefreshExpired re-evaluates in-progress rewards whose window has closed,
// so that units rolling out of the window stop counting even when the
// customer makes no further purchase. It returns the number of rewards
// refreshed.
func (l *Ledger) RefreshExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.store.Query(ctx, `
		SELECT merchant_id, customer_id, offer_id FROM rewards
		WHERE status = ? AND window_end IS NOT NULL AND window_end <= ?
		ORDER BY window_end
		LIMIT ?
	`, string(StatusInProgress), l.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("find expired progress: %w", err)
	}
	var stale []staleProgress
	for rows.Next() {
		var s staleProgress
		if err := rows.Scan(&s.merchantID, &s.customerID, &s.offerID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired progress: %w", err)
		}
		stale = append(stale, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	refreshed := 0
	for _, s := range stale {
		if _, err := l.Evaluate(ctx, s.merchantID, s.customerID, s.offerID); err != nil {
			l.logger.Error("refresh expired progress failed", "merchant_id", s.merchantID,
				"customer_id", s.customerID, "offer_id", s.offerID, "error", err)
			continue
		}
		if l.cache != nil {
			l.cache.Invalidate(ctx, s.merchantID, s.customerID)
		}
		refreshed++
	}
	if refreshed > 0 {
		l.logger.Info("expired progress refreshed", "count", refreshed)
	}
	return refreshed, nil
}

// Store exposes the ledger's store to intake callers that share its
// transactions.
func (l *Ledger) Store() *store.Store { return l.store }
