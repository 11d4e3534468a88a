package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-loyalty-ledger/internal/outbox"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// Action names a state transition.
type Action string

const (
	OfferCreated      Action = "offer_created"
	OfferUpdated      Action = "offer_updated"
	VariationLinked   Action = "variation_linked"
	VariationUnlinked Action = "variation_unlinked"
	PurchaseRecorded  Action = "purchase_recorded"
	RefundRecorded    Action = "refund_recorded"
	RewardEarned      Action = "reward_earned"
	RewardRevoked     Action = "reward_revoked"
	RewardRedeemed    Action = "reward_redeemed"
	DiscountAttached  Action = "discount_attached"
	OrderProcessed    Action = "order_processed"
	RefundProcessed   Action = "refund_processed"
)

// Event is one append-only audit record.
type Event struct {
	ID          string         `json:"id"`
	MerchantID  string         `json:"merchant_id"`
	Action      Action         `json:"action"`
	OfferID     string         `json:"offer_id,omitempty"`
	RewardID    string         `json:"reward_id,omitempty"`
	CustomerID  string         `json:"customer_id,omitempty"`
	OrderID     string         `json:"order_id,omitempty"`
	BeforeState string         `json:"before_state,omitempty"`
	AfterState  string         `json:"after_state,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Source      string         `json:"source,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Recorder writes audit events inside the caller's transaction. When
// streaming is on, each event is also queued for the audit topic.
type Recorder struct {
	stream  bool
	nowFunc func() time.Time
}

func NewRecorder(stream bool) *Recorder {
	return &Recorder{stream: stream, nowFunc: time.Now}
}

// Record appends e. ID and CreatedAt are filled in when empty.
func (r *Recorder) Record(ctx context.Context, q store.Querier, e Event) error {
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.nowFunc()
	}
	e.CreatedAt = store.Timestamp(e.CreatedAt)

	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit %s: marshal details: %w", e.Action, err)
		}
		details = b
	}

	_, err := q.Exec(ctx, `
		INSERT INTO audit_events
		(id, merchant_id, action, offer_id, reward_id, customer_id, order_id, before_state, after_state, details, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.MerchantID, string(e.Action), e.OfferID, e.RewardID, e.CustomerID, e.OrderID,
		e.BeforeState, e.AfterState, string(details), e.Source, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit %s: %w", e.Action, err)
	}

	if r.stream {
		aggregate := e.CustomerID
		if aggregate == "" {
			aggregate = e.MerchantID
		}
		if _, err := outbox.Enqueue(ctx, q, outbox.KindAuditEvent, aggregate, e, e.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	CustomerID string
	RewardID   string
	Action     Action
	Limit      int
}

// List returns a merchant's audit events, oldest first.
func List(ctx context.Context, q store.Querier, merchantID string, f Filter) ([]Event, error) {
	query := `
		SELECT id, merchant_id, action, offer_id, reward_id, customer_id, order_id,
		       before_state, after_state, details, source, created_at
		FROM audit_events
		WHERE merchant_id = ?`
	args := []any{merchantID}
	if f.CustomerID != "" {
		query += " AND customer_id = ?"
		args = append(args, f.CustomerID)
	}
	if f.RewardID != "" {
		query += " AND reward_id = ?"
		args = append(args, f.RewardID)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, string(f.Action))
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			action  string
			details string
		)
		if err := rows.Scan(&e.ID, &e.MerchantID, &action, &e.OfferID, &e.RewardID, &e.CustomerID, &e.OrderID,
			&e.BeforeState, &e.AfterState, &details, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details %s: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
