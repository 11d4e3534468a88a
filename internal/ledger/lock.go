package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// lockProgress takes the customer's progress lock for an offer, creating the
// lock row on first use. It is held until the transaction ends. On Postgres a
// second writer blocks on the insert or the FOR UPDATE until the first
// commits; SQLite's single connection already serializes writers.
func lockProgress(ctx context.Context, q store.Querier, merchantID, customerID, offerID string, now time.Time) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO progress_locks (merchant_id, customer_id, offer_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (merchant_id, customer_id, offer_id) DO NOTHING
	`, merchantID, customerID, offerID, store.Timestamp(now)); err != nil {
		return fmt.Errorf("create progress lock: %w", err)
	}

	var one int
	if err := q.QueryRow(ctx, `
		SELECT 1 FROM progress_locks
		WHERE merchant_id = ? AND customer_id = ? AND offer_id = ?`+q.ForUpdate(),
		merchantID, customerID, offerID).Scan(&one); err != nil {
		return fmt.Errorf("take progress lock: %w", err)
	}
	return nil
}
