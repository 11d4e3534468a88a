package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/catalog"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// RecordPurchase records p and re-evaluates the customer's progress in one
// transaction.
func (l *Ledger) RecordPurchase(ctx context.Context, p Purchase) (PurchaseResult, error) {
	var res PurchaseResult
	err := l.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		res, err = l.RecordPurchaseTx(ctx, tx, p)
		return err
	})
	return res, err
}

// RecordPurchaseTx records one qualifying line item inside tx. Unmapped
// variations and repeated line items are no-ops reported in the outcome.
func (l *Ledger) RecordPurchaseTx(ctx context.Context, tx *store.Tx, p Purchase) (PurchaseResult, error) {
	if p.Quantity <= 0 {
		return PurchaseResult{Outcome: OutcomeInvalidQuantity}, nil
	}

	offer, found, err := catalog.OfferForVariation(ctx, tx, p.MerchantID, p.VariationID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if !found {
		return PurchaseResult{Outcome: OutcomeNoOffer}, nil
	}

	now := l.now()
	if err := lockProgress(ctx, tx, p.MerchantID, p.CustomerID, offer.ID, now); err != nil {
		return PurchaseResult{}, err
	}

	purchasedAt := store.Timestamp(p.PurchasedAt)
	if purchasedAt.IsZero() {
		purchasedAt = now
	}

	pool, err := unlockedEvents(ctx, tx, p.MerchantID, p.CustomerID, offer.ID, now)
	if err != nil {
		return PurchaseResult{}, err
	}
	windowStart := purchasedAt
	if start, _ := poolWindow(pool); !start.IsZero() && start.Before(windowStart) {
		windowStart = start
	}

	e := PurchaseEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		MerchantID:     p.MerchantID,
		OfferID:        offer.ID,
		CustomerID:     p.CustomerID,
		OrderID:        p.OrderID,
		VariationID:    p.VariationID,
		Quantity:       p.Quantity,
		UnitPrice:      p.UnitPrice,
		PurchasedAt:    purchasedAt,
		WindowStart:    windowStart,
		WindowEnd:      offer.WindowEnd(purchasedAt),
		IdempotencyKey: p.IdempotencyKey(),
		Source:         p.Source,
		CreatedAt:      now,
	}
	inserted, err := insertEvent(ctx, tx, e)
	if err != nil {
		return PurchaseResult{}, err
	}
	if !inserted {
		return PurchaseResult{Outcome: OutcomeDuplicate, OfferID: offer.ID}, nil
	}

	if err := l.audit.Record(ctx, tx, audit.Event{
		MerchantID: p.MerchantID,
		Action:     audit.PurchaseRecorded,
		OfferID:    offer.ID,
		CustomerID: p.CustomerID,
		OrderID:    p.OrderID,
		Details: map[string]any{
			"event_id":     e.ID,
			"variation_id": p.VariationID,
			"quantity":     p.Quantity,
		},
		Source:    p.Source,
		CreatedAt: now,
	}); err != nil {
		return PurchaseResult{}, err
	}

	prog, err := l.evaluate(ctx, tx, offer, p.CustomerID, p.Source)
	if err != nil {
		return PurchaseResult{}, err
	}

	l.logger.Debug("purchase recorded", "merchant_id", p.MerchantID, "order_id", p.OrderID,
		"customer_id", p.CustomerID, "offer_id", offer.ID, "quantity", p.Quantity)

	return PurchaseResult{
		Outcome:         OutcomeRecorded,
		EventID:         e.ID,
		OfferID:         offer.ID,
		RewardID:        prog.RewardID,
		CurrentQuantity: prog.Quantity,
		Earned:          prog.Earned,
	}, nil
}

// Evaluate re-runs the earning loop for a customer and offer in its own
// transaction. Used by sweeps after windows expire.
func (l *Ledger) Evaluate(ctx context.Context, merchantID, customerID, offerID string) (PurchaseResult, error) {
	var res PurchaseResult
	err := l.store.WithTx(ctx, func(tx *store.Tx) error {
		offer, err := catalog.GetOffer(ctx, tx, merchantID, offerID)
		if err != nil {
			return err
		}
		if err := lockProgress(ctx, tx, merchantID, customerID, offerID, l.now()); err != nil {
			return err
		}
		prog, err := l.evaluate(ctx, tx, offer, customerID, "")
		if err != nil {
			return err
		}
		res = PurchaseResult{
			OfferID:         offerID,
			RewardID:        prog.RewardID,
			CurrentQuantity: prog.Quantity,
			Earned:          prog.Earned,
		}
		return nil
	})
	return res, err
}
