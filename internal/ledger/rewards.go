package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/outbox"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

const rewardColumns = `id, merchant_id, offer_id, customer_id, status, current_quantity, required_quantity,
	window_start, window_end, earned_at, redeemed_at, redeemed_order_id, revoked_at, revocation_reason,
	discount_id, created_at, updated_at`

func scanReward(row interface{ Scan(...any) error }) (Reward, error) {
	var (
		r                                                 Reward
		status                                            string
		windowStart, windowEnd, earned, redeemed, revoked sql.NullTime
		redeemedOrder, reason, discount                   sql.NullString
	)
	err := row.Scan(&r.ID, &r.MerchantID, &r.OfferID, &r.CustomerID, &status, &r.CurrentQuantity, &r.RequiredQuantity,
		&windowStart, &windowEnd, &earned, &redeemed, &redeemedOrder, &revoked, &reason,
		&discount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Reward{}, err
	}
	r.Status = RewardStatus(status)
	r.WindowStart = windowStart.Time
	r.WindowEnd = windowEnd.Time
	r.EarnedAt = earned.Time
	r.RedeemedAt = redeemed.Time
	r.RedeemedOrderID = redeemedOrder.String
	r.RevokedAt = revoked.Time
	r.RevocationReason = reason.String
	r.DiscountID = discount.String
	return r, nil
}

func queryRewards(ctx context.Context, q store.Querier, query string, args ...any) ([]Reward, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

// GetReward loads a reward by id.
func GetReward(ctx context.Context, q store.Querier, merchantID, rewardID string) (Reward, error) {
	r, err := scanReward(q.QueryRow(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = ? AND merchant_id = ?`+q.ForUpdate(),
		rewardID, merchantID))
	if errors.Is(err, sql.ErrNoRows) {
		return Reward{}, ErrRewardNotFound
	}
	if err != nil {
		return Reward{}, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// ListRewards returns a customer's rewards for an offer, oldest first. An
// empty offerID lists every offer.
func ListRewards(ctx context.Context, q store.Querier, merchantID, customerID, offerID string) ([]Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE merchant_id = ? AND customer_id = ?`
	args := []any{merchantID, customerID}
	if offerID != "" {
		query += ` AND offer_id = ?`
		args = append(args, offerID)
	}
	query += ` ORDER BY created_at, id`
	rewards, err := queryRewards(ctx, q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return rewards, nil
}

// RewardsByDiscount returns the rewards whose provisioned discount id is one
// of discountIDs.
func RewardsByDiscount(ctx context.Context, q store.Querier, merchantID string, discountIDs []string) ([]Reward, error) {
	if len(discountIDs) == 0 {
		return nil, nil
	}
	args := []any{merchantID}
	for _, id := range discountIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(discountIDs)), ", ")
	rewards, err := queryRewards(ctx, q, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE merchant_id = ? AND discount_id IN (`+placeholders+`)
		ORDER BY created_at, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("rewards by discount: %w", err)
	}
	return rewards, nil
}

// inProgressReward returns the open reward for a customer and offer, row
// locked, or nil when there is none.
func inProgressReward(ctx context.Context, q store.Querier, merchantID, customerID, offerID string) (*Reward, error) {
	r, err := scanReward(q.QueryRow(ctx, `
		SELECT `+rewardColumns+` FROM rewards
		WHERE merchant_id = ? AND customer_id = ? AND offer_id = ? AND status = ?`+q.ForUpdate(),
		merchantID, customerID, offerID, string(StatusInProgress)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("in-progress reward: %w", err)
	}
	return &r, nil
}

func (l *Ledger) openReward(ctx context.Context, q store.Querier, merchantID, customerID, offerID string, required int, now time.Time) (*Reward, error) {
	r := &Reward{
		ID:               uuid.Must(uuid.NewV7()).String(),
		MerchantID:       merchantID,
		OfferID:          offerID,
		CustomerID:       customerID,
		Status:           StatusInProgress,
		RequiredQuantity: required,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	_, err := q.Exec(ctx, `
		INSERT INTO rewards (id, merchant_id, offer_id, customer_id, status, current_quantity, required_quantity,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, r.ID, r.MerchantID, r.OfferID, r.CustomerID, string(r.Status), r.RequiredQuantity, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("open reward: %w", err)
	}
	return r, nil
}

// saveProgress stores the running quantity and window on an in-progress
// reward. The stored quantity never goes below zero; the unlocked pool
// remains the source of truth.
func saveProgress(ctx context.Context, q store.Querier, r *Reward, qty int, start, end, now time.Time) error {
	if qty < 0 {
		qty = 0
	}
	r.CurrentQuantity = qty
	r.WindowStart = start
	r.WindowEnd = end
	r.UpdatedAt = now
	_, err := q.Exec(ctx, `
		UPDATE rewards SET current_quantity = ?, window_start = ?, window_end = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, qty, store.NullTime(start), store.NullTime(end), now, r.ID, string(StatusInProgress))
	if err != nil {
		return fmt.Errorf("save reward progress: %w", err)
	}
	return nil
}

func (l *Ledger) markEarned(ctx context.Context, q store.Querier, r *Reward, start, end, now time.Time, source string) error {
	res, err := q.Exec(ctx, `
		UPDATE rewards SET status = ?, current_quantity = required_quantity, window_start = ?, window_end = ?,
			earned_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusEarned), store.NullTime(start), store.NullTime(end), now, now, r.ID, string(StatusInProgress))
	if err != nil {
		return fmt.Errorf("mark reward earned: %w", err)
	}
	if err := expectOne(res, r.ID, StatusInProgress); err != nil {
		return err
	}

	r.Status = StatusEarned
	r.CurrentQuantity = r.RequiredQuantity
	r.WindowStart, r.WindowEnd = start, end
	r.EarnedAt, r.UpdatedAt = now, now

	if err := l.audit.Record(ctx, q, audit.Event{
		MerchantID:  r.MerchantID,
		Action:      audit.RewardEarned,
		OfferID:     r.OfferID,
		RewardID:    r.ID,
		CustomerID:  r.CustomerID,
		BeforeState: string(StatusInProgress),
		AfterState:  string(StatusEarned),
		Details:     map[string]any{"required_quantity": r.RequiredQuantity},
		Source:      source,
		CreatedAt:   now,
	}); err != nil {
		return err
	}

	_, err = outbox.Enqueue(ctx, q, outbox.KindDiscountProvision, r.ID, outbox.DiscountRequest{
		MerchantID: r.MerchantID,
		CustomerID: r.CustomerID,
		RewardID:   r.ID,
		OfferID:    r.OfferID,
	}, now)
	return err
}

// revoke moves an earned reward to revoked and returns its locked events to
// the unlocked pool.
func (l *Ledger) revoke(ctx context.Context, q store.Querier, r *Reward, reason, source string, now time.Time) error {
	res, err := q.Exec(ctx, `
		UPDATE rewards SET status = ?, revoked_at = ?, revocation_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusRevoked), now, reason, now, r.ID, string(StatusEarned))
	if err != nil {
		return fmt.Errorf("revoke reward: %w", err)
	}
	if err := expectOne(res, r.ID, StatusEarned); err != nil {
		return err
	}

	unlocked, err := q.Exec(ctx, `UPDATE purchase_events SET reward_id = NULL WHERE reward_id = ?`, r.ID)
	if err != nil {
		return fmt.Errorf("unlock events of %s: %w", r.ID, err)
	}
	released, _ := unlocked.RowsAffected()

	r.Status = StatusRevoked
	r.RevokedAt, r.UpdatedAt = now, now
	r.RevocationReason = reason

	if err := l.audit.Record(ctx, q, audit.Event{
		MerchantID:  r.MerchantID,
		Action:      audit.RewardRevoked,
		OfferID:     r.OfferID,
		RewardID:    r.ID,
		CustomerID:  r.CustomerID,
		BeforeState: string(StatusEarned),
		AfterState:  string(StatusRevoked),
		Details:     map[string]any{"reason": reason, "released_events": released},
		Source:      source,
		CreatedAt:   now,
	}); err != nil {
		return err
	}

	_, err = outbox.Enqueue(ctx, q, outbox.KindDiscountCleanup, r.ID, outbox.DiscountRequest{
		MerchantID: r.MerchantID,
		CustomerID: r.CustomerID,
		RewardID:   r.ID,
		OfferID:    r.OfferID,
		DiscountID: r.DiscountID,
		Reason:     reason,
	}, now)
	if err != nil {
		return err
	}

	l.logger.Info("reward revoked", "merchant_id", r.MerchantID, "customer_id", r.CustomerID,
		"offer_id", r.OfferID, "reward_id", r.ID, "reason", reason)
	return nil
}

func expectOne(res sql.Result, rewardID string, from RewardStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reward %s: rows affected: %w", rewardID, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: reward %s is not %s", ErrInvalidTransition, rewardID, from)
	}
	return nil
}

// MarkRedeemedTx moves an earned reward to redeemed when the customer uses
// its discount on orderID.
func (l *Ledger) MarkRedeemedTx(ctx context.Context, tx *store.Tx, merchantID, rewardID, orderID, source string) (Reward, error) {
	r, err := GetReward(ctx, tx, merchantID, rewardID)
	if err != nil {
		return Reward{}, err
	}
	if r.Status != StatusEarned {
		return Reward{}, fmt.Errorf("%w: reward %s is %s", ErrInvalidTransition, r.ID, r.Status)
	}

	now := l.now()
	res, err := tx.Exec(ctx, `
		UPDATE rewards SET status = ?, redeemed_at = ?, redeemed_order_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusRedeemed), now, orderID, now, r.ID, string(StatusEarned))
	if err != nil {
		return Reward{}, fmt.Errorf("redeem reward: %w", err)
	}
	if err := expectOne(res, r.ID, StatusEarned); err != nil {
		return Reward{}, err
	}
	r.Status = StatusRedeemed
	r.RedeemedAt, r.UpdatedAt = now, now
	r.RedeemedOrderID = orderID

	if err := l.audit.Record(ctx, tx, audit.Event{
		MerchantID:  merchantID,
		Action:      audit.RewardRedeemed,
		OfferID:     r.OfferID,
		RewardID:    r.ID,
		CustomerID:  r.CustomerID,
		OrderID:     orderID,
		BeforeState: string(StatusEarned),
		AfterState:  string(StatusRedeemed),
		Details:     map[string]any{"discount_id": r.DiscountID},
		Source:      source,
		CreatedAt:   now,
	}); err != nil {
		return Reward{}, err
	}
	if err := l.rebuild(ctx, tx, merchantID, r.CustomerID, r.OfferID); err != nil {
		return Reward{}, err
	}

	l.logger.Info("reward redeemed", "merchant_id", merchantID, "customer_id", r.CustomerID,
		"reward_id", r.ID, "order_id", orderID)
	return r, nil
}

// MarkRedeemed is MarkRedeemedTx in its own transaction.
func (l *Ledger) MarkRedeemed(ctx context.Context, merchantID, rewardID, orderID, source string) (Reward, error) {
	var r Reward
	err := l.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		r, err = l.MarkRedeemedTx(ctx, tx, merchantID, rewardID, orderID, source)
		return err
	})
	return r, err
}

// AttachDiscount records the upstream discount created for an earned
// reward, so that a later order applying it is recognised as a redemption.
func (l *Ledger) AttachDiscount(ctx context.Context, merchantID, rewardID, discountID string) (Reward, error) {
	if discountID == "" {
		return Reward{}, errors.New("discount id is required")
	}

	var r Reward
	err := l.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		r, err = GetReward(ctx, tx, merchantID, rewardID)
		if err != nil {
			return err
		}
		if r.Status != StatusEarned {
			return fmt.Errorf("%w: cannot attach discount to %s reward", ErrInvalidTransition, r.Status)
		}
		if r.DiscountID == discountID {
			return nil
		}

		now := l.now()
		if _, err := tx.Exec(ctx, `UPDATE rewards SET discount_id = ?, updated_at = ? WHERE id = ?`,
			discountID, now, r.ID); err != nil {
			return fmt.Errorf("attach discount: %w", err)
		}
		before := r.DiscountID
		r.DiscountID = discountID
		r.UpdatedAt = now

		return l.audit.Record(ctx, tx, audit.Event{
			MerchantID: merchantID,
			Action:     audit.DiscountAttached,
			OfferID:    r.OfferID,
			RewardID:   r.ID,
			CustomerID: r.CustomerID,
			Details:    map[string]any{"discount_id": discountID, "previous_discount_id": before},
			CreatedAt:  now,
		})
	})
	if err != nil {
		return Reward{}, err
	}
	return r, nil
}
