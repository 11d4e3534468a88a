package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/ledger"
	"github.com/imrishuroy/go-loyalty-ledger/internal/metrics"
	"github.com/imrishuroy/go-loyalty-ledger/internal/orders"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// ProcessRefund reverses refunded line items against the purchases recorded
// for the refunded order. The whole refund commits or rolls back as one.
// A refund for an order that has not been processed returns
// ErrOrderNotProcessed and writes nothing; lines of a processed order whose
// purchase was never recorded are skipped.
func (g *Gateway) ProcessRefund(ctx context.Context, refund orders.Refund, merchantID string, source orders.Source) (RefundResult, error) {
	if refund.ID == "" {
		return RefundResult{}, ErrMissingRefundID
	}
	if refund.OrderID == "" {
		return RefundResult{}, ErrMissingOrderID
	}
	if merchantID == "" {
		return RefundResult{}, ErrMissingMerchantID
	}

	done, err := g.alreadyProcessed(ctx, merchantID, refund.OrderID)
	if err != nil {
		return RefundResult{}, err
	}
	if !done {
		return RefundResult{}, fmt.Errorf("refund %s for order %s: %w", refund.ID, refund.OrderID, ErrOrderNotProcessed)
	}

	res := RefundResult{MerchantID: merchantID, RefundID: refund.ID, OrderID: refund.OrderID}
	customers := map[string]bool{}

	err = g.store.WithTx(ctx, func(tx *store.Tx) error {
		res.Lines = res.Lines[:0]
		for _, li := range refund.LineItems {
			line := RefundLineResult{VariationID: li.VariationID, Requested: li.Quantity}

			original, err := ledger.FindPurchase(ctx, tx, merchantID, refund.OrderID, li.VariationID)
			if errors.Is(err, ledger.ErrEventNotFound) {
				line.Skipped = "no_purchase"
				res.Lines = append(res.Lines, line)
				continue
			}
			if err != nil {
				return err
			}

			rr, err := g.ledger.RecordRefundTx(ctx, tx, ledger.Refund{
				MerchantID:      merchantID,
				RefundID:        refund.ID,
				OriginalEventID: original.ID,
				Quantity:        li.Quantity,
				RefundedAt:      refund.CreatedAt,
				Reason:          refund.Reason,
				Source:          string(source),
			})
			if err != nil {
				return fmt.Errorf("refund %s variation %s: %w", refund.ID, li.VariationID, err)
			}

			line.Outcome = rr.Outcome
			line.Refunded = rr.Quantity
			line.Revoked = rr.Revoked
			line.Earned = rr.Earned
			res.Lines = append(res.Lines, line)
			customers[original.CustomerID] = true
		}

		return g.audit.Record(ctx, tx, audit.Event{
			MerchantID: merchantID,
			Action:     audit.RefundProcessed,
			OrderID:    refund.OrderID,
			Details: map[string]any{
				"refund_id": refund.ID,
				"lines":     len(refund.LineItems),
				"refunded":  res.count(func(l RefundLineResult) int { return l.Refunded }),
			},
			Source: string(source),
		})
	})
	if err != nil {
		return RefundResult{}, fmt.Errorf("process refund %s: %w", refund.ID, err)
	}

	g.metrics.Record(ctx,
		metrics.Count(metrics.RefundsRecorded, res.count(func(l RefundLineResult) int { return l.Refunded })),
		metrics.Count(metrics.RewardsRevoked, res.count(func(l RefundLineResult) int { return len(l.Revoked) })),
		metrics.Count(metrics.RewardsEarned, res.count(func(l RefundLineResult) int { return len(l.Earned) })),
	)
	if g.cache != nil {
		for c := range customers {
			g.cache.Invalidate(ctx, merchantID, c)
		}
	}

	g.logger.Info("refund processed", "merchant_id", merchantID, "refund_id", refund.ID,
		"order_id", refund.OrderID, "lines", len(res.Lines))
	return res, nil
}
