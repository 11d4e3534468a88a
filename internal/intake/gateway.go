// Package intake is the single entry point for orders and refunds from any
// source. It owns order idempotency and the transaction boundary.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/ledger"
	"github.com/imrishuroy/go-loyalty-ledger/internal/metrics"
	"github.com/imrishuroy/go-loyalty-ledger/internal/orders"
	"github.com/imrishuroy/go-loyalty-ledger/internal/qualifier"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// Invalidator drops cached read models for a customer after commit.
type Invalidator interface {
	Invalidate(ctx context.Context, merchantID, customerID string)
}

type Gateway struct {
	store   *store.Store
	ledger  *ledger.Ledger
	audit   *audit.Recorder
	metrics metrics.Recorder
	cache   Invalidator
	logger  *slog.Logger
	nowFunc func() time.Time
}

type Option func(*Gateway)

func WithMetrics(m metrics.Recorder) Option { return func(g *Gateway) { g.metrics = m } }
func WithInvalidator(i Invalidator) Option  { return func(g *Gateway) { g.cache = i } }
func WithLogger(l *slog.Logger) Option      { return func(g *Gateway) { g.logger = l } }

func NewGateway(s *store.Store, l *ledger.Ledger, rec *audit.Recorder, opts ...Option) *Gateway {
	g := &Gateway{
		store:   s,
		ledger:  l,
		audit:   rec,
		metrics: metrics.Nop{},
		logger:  slog.Default(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ProcessOrder records the qualifying line items of order for customerID.
// Calling it again for the same merchant and order, from any source,
// returns StatusAlreadyProcessed and writes nothing. An empty customerID or
// an order without line items is classified and stored, not rejected.
//
// A line item that fails is logged and skipped. Database failures that
// poison the transaction (see store.IsTxFailure) roll back the whole order,
// including its claim, and are returned so the caller can retry.
func (g *Gateway) ProcessOrder(ctx context.Context, order orders.Order, merchantID, customerID string, source orders.Source) (Result, error) {
	if order.ID == "" {
		return Result{}, ErrMissingOrderID
	}
	if merchantID == "" {
		return Result{}, ErrMissingMerchantID
	}

	res := Result{Status: StatusProcessed, MerchantID: merchantID, OrderID: order.ID, CustomerID: customerID}

	done, err := g.alreadyProcessed(ctx, merchantID, order.ID)
	if err != nil {
		return Result{}, err
	}
	if done {
		g.logger.Debug("order already processed", "merchant_id", merchantID, "order_id", order.ID, "source", source)
		res.Status = StatusAlreadyProcessed
		return res, nil
	}

	// Customers whose summaries change, beyond the ordering customer.
	var owners []string
	err = g.store.WithTx(ctx, func(tx *store.Tx) error {
		claimed, err := g.claim(ctx, tx, merchantID, order.ID, source)
		if err != nil {
			return err
		}
		if !claimed {
			res.Status = StatusAlreadyProcessed
			return nil
		}

		switch {
		case customerID == "":
			res.Classification = ClassNoCustomer
			return g.finalize(ctx, tx, res)
		case len(order.LineItems) == 0:
			res.Classification = ClassNoLineItems
			return g.finalize(ctx, tx, res)
		}

		rewardDiscounts, err := g.redeem(ctx, tx, order, merchantID, customerID, source, &res, &owners)
		if err != nil {
			return err
		}

		dm := qualifier.NewDiscountMap(order.Discounts, rewardDiscounts)
		purchasedAt := order.PurchasedAt()
		for _, item := range order.LineItems {
			line := LineResult{UID: item.UID, VariationID: item.VariationID, Quantity: item.Quantity}

			d := qualifier.Evaluate(item, dm)
			if !d.Process {
				line.SkipReason = d.Reason
				res.Lines = append(res.Lines, line)
				continue
			}

			var pr ledger.PurchaseResult
			err := tx.Savepoint(ctx, func() error {
				var err error
				pr, err = g.ledger.RecordPurchaseTx(ctx, tx, ledger.Purchase{
					MerchantID:  merchantID,
					OrderID:     order.ID,
					CustomerID:  customerID,
					VariationID: item.VariationID,
					Quantity:    item.Quantity,
					UnitPrice:   item.UnitPrice,
					PurchasedAt: purchasedAt,
					Source:      string(source),
				})
				return err
			})
			if store.IsTxFailure(err) {
				return fmt.Errorf("line %s: %w", item.UID, err)
			}
			if err != nil {
				g.logger.Warn("line item failed", "merchant_id", merchantID, "order_id", order.ID,
					"variation_id", item.VariationID, "error", err)
				line.Error = err.Error()
				res.Lines = append(res.Lines, line)
				continue
			}

			line.Outcome = pr.Outcome
			line.EventID = pr.EventID
			if pr.Outcome == ledger.OutcomeRecorded {
				res.Recorded++
				res.Earned = append(res.Earned, pr.Earned...)
			}
			res.Lines = append(res.Lines, line)
		}

		res.Classification = ClassNonQualifying
		if res.Recorded > 0 {
			res.Classification = ClassQualifying
		}
		if err := g.finalize(ctx, tx, res); err != nil {
			return err
		}

		return g.audit.Record(ctx, tx, audit.Event{
			MerchantID: merchantID,
			Action:     audit.OrderProcessed,
			CustomerID: customerID,
			OrderID:    order.ID,
			AfterState: string(res.Classification),
			Details: map[string]any{
				"line_items": len(order.LineItems),
				"recorded":   res.Recorded,
				"failed":     res.Failed(),
				"earned":     len(res.Earned),
				"redeemed":   len(res.Redeemed),
			},
			Source: string(source),
		})
	})
	if err != nil {
		return Result{}, fmt.Errorf("process order %s: %w", order.ID, err)
	}

	if res.Status == StatusProcessed {
		g.afterOrder(ctx, res, owners)
	}
	return res, nil
}

func (g *Gateway) alreadyProcessed(ctx context.Context, merchantID, orderID string) (bool, error) {
	var n int
	if err := g.store.QueryRow(ctx, `SELECT COUNT(*) FROM processed_orders WHERE merchant_id = ? AND order_id = ?`,
		merchantID, orderID).Scan(&n); err != nil {
		return false, fmt.Errorf("check processed order: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	return ledger.OrderHasEvents(ctx, g.store, merchantID, orderID)
}

// claim inserts the pending marker. False means another caller owns the order.
func (g *Gateway) claim(ctx context.Context, tx *store.Tx, merchantID, orderID string, source orders.Source) (bool, error) {
	now := store.Timestamp(g.nowFunc())
	r, err := tx.Exec(ctx, `
		INSERT INTO processed_orders (merchant_id, order_id, result, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (merchant_id, order_id) DO NOTHING
	`, merchantID, orderID, string(ClassPending), string(source), now, now)
	if err != nil {
		return false, fmt.Errorf("claim order: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim order: rows affected: %w", err)
	}
	return n == 1, nil
}

func (g *Gateway) finalize(ctx context.Context, tx *store.Tx, res Result) error {
	_, err := tx.Exec(ctx, `
		UPDATE processed_orders SET result = ?, customer_id = ?, qualifying_events = ?, updated_at = ?
		WHERE merchant_id = ? AND order_id = ?
	`, string(res.Classification), res.CustomerID, res.Recorded, store.Timestamp(g.nowFunc()), res.MerchantID, res.OrderID)
	if err != nil {
		return fmt.Errorf("finalize order: %w", err)
	}
	return nil
}

// redeem marks earned rewards whose discount the order applies as redeemed
// and returns every reward discount id present on the order.
func (g *Gateway) redeem(ctx context.Context, tx *store.Tx, order orders.Order, merchantID, customerID string, source orders.Source, res *Result, owners *[]string) ([]string, error) {
	rewards, err := ledger.RewardsByDiscount(ctx, tx, merchantID, order.DiscountCatalogIDs())
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rewards))
	for _, r := range rewards {
		ids = append(ids, r.DiscountID)
		if r.Status != ledger.StatusEarned {
			continue
		}
		if r.CustomerID != customerID {
			g.logger.Warn("reward discount used by another customer", "merchant_id", merchantID,
				"order_id", order.ID, "reward_id", r.ID, "reward_customer_id", r.CustomerID, "customer_id", customerID)
		}
		if _, err := g.ledger.MarkRedeemedTx(ctx, tx, merchantID, r.ID, order.ID, string(source)); err != nil {
			return nil, err
		}
		res.Redeemed = append(res.Redeemed, r.ID)
		if r.CustomerID != customerID {
			*owners = append(*owners, r.CustomerID)
		}
	}
	return ids, nil
}

func (g *Gateway) afterOrder(ctx context.Context, res Result, owners []string) {
	g.metrics.Record(ctx,
		metrics.Count(metrics.OrdersProcessed, 1, "Classification", string(res.Classification)),
		metrics.Count(metrics.PurchasesRecorded, res.Recorded),
		metrics.Count(metrics.LineItemFailures, res.Failed()),
		metrics.Count(metrics.RewardsEarned, len(res.Earned)),
		metrics.Count(metrics.RewardsRedeemed, len(res.Redeemed)),
	)
	if g.cache != nil {
		seen := map[string]bool{"": true}
		for _, c := range append([]string{res.CustomerID}, owners...) {
			if !seen[c] {
				seen[c] = true
				g.cache.Invalidate(ctx, res.MerchantID, c)
			}
		}
	}

	g.logger.Info("order processed", "merchant_id", res.MerchantID, "order_id", res.OrderID,
		"customer_id", res.CustomerID, "classification", res.Classification,
		"recorded", res.Recorded, "earned", len(res.Earned))
}
