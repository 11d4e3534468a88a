package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

const eventColumns = `id, merchant_id, offer_id, customer_id, order_id, variation_id, quantity, unit_price,
	purchased_at, window_start, window_end, reward_id, is_refund, refund_of_event_id, original_event_id,
	idempotency_key, source, created_at`

func purchaseKey(orderID, variationID string, qty int) string {
	return fmt.Sprintf("%s:%s:%d", orderID, variationID, qty)
}

func refundKey(refundID, eventID string, qty int) string {
	return fmt.Sprintf("refund:%s:%s:%d", refundID, eventID, qty)
}

func scanEvent(row interface{ Scan(...any) error }) (PurchaseEvent, error) {
	var (
		e                            PurchaseEvent
		rewardID, refundOf, original sql.NullString
	)
	err := row.Scan(&e.ID, &e.MerchantID, &e.OfferID, &e.CustomerID, &e.OrderID, &e.VariationID, &e.Quantity,
		&e.UnitPrice, &e.PurchasedAt, &e.WindowStart, &e.WindowEnd, &rewardID, &e.IsRefund, &refundOf, &original,
		&e.IdempotencyKey, &e.Source, &e.CreatedAt)
	if err != nil {
		return PurchaseEvent{}, err
	}
	e.RewardID = rewardID.String
	e.RefundOfEventID = refundOf.String
	e.OriginalEventID = original.String
	return e, nil
}

func queryEvents(ctx context.Context, q store.Querier, query string, args ...any) ([]PurchaseEvent, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PurchaseEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func insertEvent(ctx context.Context, q store.Querier, e PurchaseEvent) (bool, error) {
	res, err := q.Exec(ctx, `
		INSERT INTO purchase_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (merchant_id, idempotency_key) DO NOTHING
	`, e.ID, e.MerchantID, e.OfferID, e.CustomerID, e.OrderID, e.VariationID, e.Quantity, e.UnitPrice,
		store.Timestamp(e.PurchasedAt), store.Timestamp(e.WindowStart), store.Timestamp(e.WindowEnd),
		store.NullString(e.RewardID), e.IsRefund, store.NullString(e.RefundOfEventID),
		store.NullString(e.OriginalEventID), e.IdempotencyKey, e.Source, store.Timestamp(e.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert purchase event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert purchase event: rows affected: %w", err)
	}
	return n == 1, nil
}

// GetEvent loads one purchase event.
func GetEvent(ctx context.Context, q store.Querier, merchantID, eventID string) (PurchaseEvent, error) {
	e, err := scanEvent(q.QueryRow(ctx, `SELECT `+eventColumns+` FROM purchase_events WHERE id = ? AND merchant_id = ?`,
		eventID, merchantID))
	if errors.Is(err, sql.ErrNoRows) {
		return PurchaseEvent{}, ErrEventNotFound
	}
	if err != nil {
		return PurchaseEvent{}, fmt.Errorf("get purchase event: %w", err)
	}
	return e, nil
}

// FindPurchase returns the original (unsplit, non-refund) event recorded for
// a variation on an order.
func FindPurchase(ctx context.Context, q store.Querier, merchantID, orderID, variationID string) (PurchaseEvent, error) {
	events, err := queryEvents(ctx, q, `
		SELECT `+eventColumns+` FROM purchase_events
		WHERE merchant_id = ? AND order_id = ? AND variation_id = ?
		  AND is_refund = ? AND original_event_id IS NULL
		ORDER BY created_at, id
		LIMIT 1
	`, merchantID, orderID, variationID, false)
	if err != nil {
		return PurchaseEvent{}, fmt.Errorf("find purchase: %w", err)
	}
	if len(events) == 0 {
		return PurchaseEvent{}, ErrEventNotFound
	}
	return events[0], nil
}

// OrderHasEvents reports whether any purchase event references the order.
func OrderHasEvents(ctx context.Context, q store.Querier, merchantID, orderID string) (bool, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_events WHERE merchant_id = ? AND order_id = ?`,
		merchantID, orderID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count order events: %w", err)
	}
	return n > 0, nil
}

// EventsForCustomer lists every ledger line for a customer and offer,
// oldest first. Split parents are included.
func EventsForCustomer(ctx context.Context, q store.Querier, merchantID, customerID, offerID string) ([]PurchaseEvent, error) {
	events, err := queryEvents(ctx, q, `
		SELECT `+eventColumns+` FROM purchase_events
		WHERE merchant_id = ? AND customer_id = ? AND offer_id = ?
		ORDER BY purchased_at, created_at, id
	`, merchantID, customerID, offerID)
	if err != nil {
		return nil, fmt.Errorf("events for customer: %w", err)
	}
	return events, nil
}

// unlockedEvents returns the pool counting toward the next reward: unlocked,
// window still open at now, and not already split into children.
func unlockedEvents(ctx context.Context, q store.Querier, merchantID, customerID, offerID string, now time.Time) ([]PurchaseEvent, error) {
	events, err := queryEvents(ctx, q, `
		SELECT `+eventColumns+` FROM purchase_events e
		WHERE e.merchant_id = ? AND e.customer_id = ? AND e.offer_id = ?
		  AND e.reward_id IS NULL
		  AND e.window_end > ?
		  AND NOT EXISTS (SELECT 1 FROM purchase_events c WHERE c.original_event_id = e.id)
		ORDER BY e.purchased_at, e.created_at, e.id
	`, merchantID, customerID, offerID, store.Timestamp(now))
	if err != nil {
		return nil, fmt.Errorf("unlocked events: %w", err)
	}
	return events, nil
}

// lockedQuantity sums the events locked to a reward.
func lockedQuantity(ctx context.Context, q store.Querier, rewardID string) (int, error) {
	var sum sql.NullInt64
	if err := q.QueryRow(ctx, `SELECT SUM(quantity) FROM purchase_events WHERE reward_id = ?`, rewardID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("locked quantity: %w", err)
	}
	return int(sum.Int64), nil
}

// leaves resolves an event to the rows that currently carry its units: the
// event itself when unsplit, otherwise its split descendants.
func leaves(ctx context.Context, q store.Querier, root PurchaseEvent) ([]PurchaseEvent, error) {
	var (
		out   []PurchaseEvent
		queue = []PurchaseEvent{root}
	)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		children, err := queryEvents(ctx, q, `
			SELECT `+eventColumns+` FROM purchase_events
			WHERE original_event_id = ?
			ORDER BY created_at, id
		`, e.ID)
		if err != nil {
			return nil, fmt.Errorf("split children of %s: %w", e.ID, err)
		}
		if len(children) == 0 {
			out = append(out, e)
			continue
		}
		queue = append(queue, children...)
	}
	return out, nil
}

func refundsOf(ctx context.Context, q store.Querier, eventID string) ([]PurchaseEvent, error) {
	events, err := queryEvents(ctx, q, `
		SELECT `+eventColumns+` FROM purchase_events
		WHERE refund_of_event_id = ?
		ORDER BY created_at, id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("refunds of %s: %w", eventID, err)
	}
	return events, nil
}

func sumQuantity(events []PurchaseEvent) int {
	total := 0
	for _, e := range events {
		total += e.Quantity
	}
	return total
}

// poolWindow derives window bounds from the positive events in a pool: the
// earliest purchase and the soonest expiry.
func poolWindow(events []PurchaseEvent) (start, end time.Time) {
	for _, e := range events {
		if e.Quantity <= 0 {
			continue
		}
		if start.IsZero() || e.PurchasedAt.Before(start) {
			start = e.PurchasedAt
		}
		if end.IsZero() || e.WindowEnd.Before(end) {
			end = e.WindowEnd
		}
	}
	return start, end
}
