package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/catalog"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// ReasonRefund is recorded on rewards revoked by a refund.
const ReasonRefund = "refund"

// RecordRefund reverses part of a purchase in one transaction.
func (l *Ledger) RecordRefund(ctx context.Context, r Refund) (RefundResult, error) {
	var res RefundResult
	err := l.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		res, err = l.RecordRefundTx(ctx, tx, r)
		return err
	})
	return res, err
}

// RecordRefundTx writes a negative event against the original purchase. If
// the refunded units were locked into an earned reward that no longer has
// its required quantity, the reward is revoked and its events return to the
// pool. The earning loop then runs again, so enough remaining units earn a
// fresh reward straight away.
//
// Units are charged to the unlocked pool first. A reward that was already
// redeemed is never revoked; its refund stays in the pool and reduces
// future progress.
func (l *Ledger) RecordRefundTx(ctx context.Context, tx *store.Tx, r Refund) (RefundResult, error) {
	if r.Quantity <= 0 {
		return RefundResult{PurchaseResult: PurchaseResult{Outcome: OutcomeInvalidQuantity}}, nil
	}

	original, err := GetEvent(ctx, tx, r.MerchantID, r.OriginalEventID)
	if err != nil {
		return RefundResult{}, err
	}
	if original.IsRefund || original.OriginalEventID != "" {
		return RefundResult{}, fmt.Errorf("%w: %s is not an original purchase", ErrNotRefundable, original.ID)
	}

	offer, err := catalog.GetOffer(ctx, tx, r.MerchantID, original.OfferID)
	if err != nil {
		return RefundResult{}, err
	}

	if err := lockProgress(ctx, tx, r.MerchantID, original.CustomerID, offer.ID, l.now()); err != nil {
		return RefundResult{}, err
	}

	key := refundKey(r.RefundID, original.ID, r.Quantity)
	var dup int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_events WHERE merchant_id = ? AND idempotency_key = ?`,
		r.MerchantID, key).Scan(&dup); err != nil {
		return RefundResult{}, fmt.Errorf("refund idempotency check: %w", err)
	}
	if dup > 0 {
		return RefundResult{PurchaseResult: PurchaseResult{Outcome: OutcomeDuplicate, OfferID: offer.ID}}, nil
	}

	prior, err := refundsOf(ctx, tx, original.ID)
	if err != nil {
		return RefundResult{}, err
	}
	qty := r.Quantity
	if remaining := original.Quantity + sumQuantity(prior); qty > remaining {
		qty = remaining
	}
	if qty <= 0 {
		return RefundResult{PurchaseResult: PurchaseResult{Outcome: OutcomeFullyRefunded, OfferID: offer.ID}}, nil
	}

	target, err := l.refundTarget(ctx, tx, original, prior, qty)
	if err != nil {
		return RefundResult{}, err
	}

	now := l.now()
	refundedAt := store.Timestamp(r.RefundedAt)
	if refundedAt.IsZero() {
		refundedAt = now
	}
	e := PurchaseEvent{
		ID:              uuid.Must(uuid.NewV7()).String(),
		MerchantID:      original.MerchantID,
		OfferID:         original.OfferID,
		CustomerID:      original.CustomerID,
		OrderID:         original.OrderID,
		VariationID:     original.VariationID,
		Quantity:        -qty,
		UnitPrice:       original.UnitPrice,
		PurchasedAt:     refundedAt,
		WindowStart:     original.WindowStart,
		WindowEnd:       original.WindowEnd,
		IsRefund:        true,
		RefundOfEventID: original.ID,
		IdempotencyKey:  key,
		Source:          r.Source,
		CreatedAt:       now,
	}
	if target != nil {
		e.RewardID = target.ID
	}
	if _, err := insertEvent(ctx, tx, e); err != nil {
		return RefundResult{}, err
	}

	if err := l.audit.Record(ctx, tx, audit.Event{
		MerchantID: r.MerchantID,
		Action:     audit.RefundRecorded,
		OfferID:    offer.ID,
		RewardID:   e.RewardID,
		CustomerID: original.CustomerID,
		OrderID:    original.OrderID,
		Details: map[string]any{
			"event_id":          e.ID,
			"original_event_id": original.ID,
			"refund_id":         r.RefundID,
			"quantity":          qty,
			"reason":            r.Reason,
		},
		Source:    r.Source,
		CreatedAt: now,
	}); err != nil {
		return RefundResult{}, err
	}

	var revoked []string
	if target != nil {
		locked, err := lockedQuantity(ctx, tx, target.ID)
		if err != nil {
			return RefundResult{}, err
		}
		if locked < target.RequiredQuantity {
			if err := l.revoke(ctx, tx, target, ReasonRefund, r.Source, now); err != nil {
				return RefundResult{}, err
			}
			revoked = append(revoked, target.ID)
		}
	}

	prog, err := l.evaluate(ctx, tx, offer, original.CustomerID, r.Source)
	if err != nil {
		return RefundResult{}, err
	}

	l.logger.Info("refund recorded", "merchant_id", r.MerchantID, "customer_id", original.CustomerID,
		"offer_id", offer.ID, "event_id", original.ID, "quantity", qty, "revoked", len(revoked))

	return RefundResult{
		PurchaseResult: PurchaseResult{
			Outcome:         OutcomeRecorded,
			EventID:         e.ID,
			OfferID:         offer.ID,
			RewardID:        prog.RewardID,
			CurrentQuantity: prog.Quantity,
			Earned:          prog.Earned,
		},
		Quantity: qty,
		Revoked:  revoked,
	}, nil
}

// refundTarget picks the earned reward a refund of qty units is charged to,
// or nil when the unlocked pool covers it. Units still unlocked under the
// original purchase absorb the refund first.
func (l *Ledger) refundTarget(ctx context.Context, q store.Querier, original PurchaseEvent, prior []PurchaseEvent, qty int) (*Reward, error) {
	units, err := leaves(ctx, q, original)
	if err != nil {
		return nil, err
	}

	available := 0
	for _, e := range units {
		if !e.Locked() {
			available += e.Quantity
		}
	}
	for _, e := range prior {
		if !e.Locked() {
			available += e.Quantity
		}
	}
	if available >= qty {
		return nil, nil
	}

	var target *Reward
	seen := make(map[string]bool)
	for _, e := range units {
		if !e.Locked() || seen[e.RewardID] {
			continue
		}
		seen[e.RewardID] = true
		r, err := GetReward(ctx, q, original.MerchantID, e.RewardID)
		if err != nil {
			return nil, err
		}
		if r.Status != StatusEarned {
			continue
		}
		if target == nil || r.EarnedAt.After(target.EarnedAt) ||
			(r.EarnedAt.Equal(target.EarnedAt) && r.ID > target.ID) {
			rr := r
			target = &rr
		}
	}
	return target, nil
}
