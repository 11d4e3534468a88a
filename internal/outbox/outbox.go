package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// Kind routes a message to its sink.
type Kind string

const (
	KindDiscountProvision Kind = "discount.provision"
	KindDiscountCleanup   Kind = "discount.cleanup"
	KindAuditEvent        Kind = "audit.event"
)

// Message statuses
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusDead    = "dead"
)

// Message is one outbox row.
type Message struct {
	ID          string
	Kind        Kind
	AggregateID string
	Payload     json.RawMessage
	Attempts    int
	CreatedAt   time.Time
}

// DiscountRequest asks the discount-management collaborator to create or
// remove the redemption discount for a reward.
type DiscountRequest struct {
	MerchantID string `json:"merchant_id"`
	CustomerID string `json:"customer_id"`
	RewardID   string `json:"reward_id"`
	OfferID    string `json:"offer_id"`
	DiscountID string `json:"discount_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Enqueue writes a message in the caller's transaction. It becomes visible to
// the relay only when that transaction commits.
func Enqueue(ctx context.Context, q store.Querier, kind Kind, aggregateID string, payload any, now time.Time) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: marshal: %w", kind, err)
	}

	id := uuid.Must(uuid.NewV7()).String()
	ts := store.Timestamp(now)
	_, err = q.Exec(ctx, `
		INSERT INTO outbox (id, kind, aggregate_id, payload, status, attempts, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`, id, string(kind), aggregateID, string(body), StatusPending, ts, ts)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return id, nil
}

// Pending returns up to limit messages due for delivery, oldest first.
func Pending(ctx context.Context, q store.Querier, kinds []Kind, now time.Time, limit int) ([]Message, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	args := []any{StatusPending, store.Timestamp(now)}
	in := ""
	for i, k := range kinds {
		if i > 0 {
			in += ", "
		}
		in += "?"
		args = append(args, string(k))
	}
	args = append(args, limit)

	rows, err := q.Query(ctx, `
		SELECT id, kind, aggregate_id, payload, attempts, created_at
		FROM outbox
		WHERE status = ? AND next_attempt_at <= ? AND kind IN (`+in+`)
		ORDER BY created_at, id
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("pending outbox: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m       Message
			kind    string
			payload string
		)
		if err := rows.Scan(&m.ID, &kind, &m.AggregateID, &payload, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		m.Kind = Kind(kind)
		m.Payload = json.RawMessage(payload)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountByStatus counts messages in a status. An empty kind counts every kind.
func CountByStatus(ctx context.Context, q store.Querier, kind Kind, status string) (int, error) {
	query, args := `SELECT COUNT(*) FROM outbox WHERE status = ?`, []any{status}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	var n int
	err := q.QueryRow(ctx, query, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}
