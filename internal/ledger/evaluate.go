package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-loyalty-ledger/internal/catalog"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// progress is the state of a customer's offer after evaluation.
type progress struct {
	RewardID string
	Quantity int
	Earned   []string
}

// evaluate runs the earning loop for one customer and offer: it brings the
// in-progress reward in line with the unlocked pool and earns as many
// rewards as the pool covers, then rebuilds the summary.
func (l *Ledger) evaluate(ctx context.Context, q store.Querier, offer catalog.Offer, customerID, source string) (progress, error) {
	now := l.now()
	merchantID := offer.MerchantID

	reward, err := inProgressReward(ctx, q, merchantID, customerID, offer.ID)
	if err != nil {
		return progress{}, err
	}
	pool, err := unlockedEvents(ctx, q, merchantID, customerID, offer.ID, now)
	if err != nil {
		return progress{}, err
	}

	var p progress
	for {
		sum := sumQuantity(pool)
		if reward == nil {
			if sum <= 0 {
				break
			}
			if reward, err = l.openReward(ctx, q, merchantID, customerID, offer.ID, offer.RequiredQuantity, now); err != nil {
				return progress{}, err
			}
		}

		// Terms are fixed when a reward opens; later offer edits apply to the next cycle.
		required := reward.RequiredQuantity
		start, end := poolWindow(pool)
		if err := saveProgress(ctx, q, reward, sum, start, end, now); err != nil {
			return progress{}, err
		}
		if sum < required {
			break
		}

		rest, locked, err := l.lockForReward(ctx, q, reward, pool, now)
		if err != nil {
			return progress{}, err
		}
		start, end = poolWindow(locked)
		if err := l.markEarned(ctx, q, reward, start, end, now, source); err != nil {
			return progress{}, err
		}
		p.Earned = append(p.Earned, reward.ID)

		l.logger.Info("reward earned", "merchant_id", merchantID, "customer_id", customerID,
			"offer_id", offer.ID, "reward_id", reward.ID, "required", required)

		reward = nil
		pool = rest
	}

	if reward != nil {
		p.RewardID = reward.ID
		p.Quantity = reward.CurrentQuantity
	}
	if err := l.rebuild(ctx, q, merchantID, customerID, offer.ID); err != nil {
		return progress{}, err
	}
	return p, nil
}

// lockForReward locks the oldest events of pool into r until exactly
// r.RequiredQuantity units are locked. The event that crosses the threshold
// is split into a locked child carrying the shortfall and an unlocked child
// carrying the excess. It returns the remaining pool and the locked events.
func (l *Ledger) lockForReward(ctx context.Context, q store.Querier, r *Reward, pool []PurchaseEvent, now time.Time) (rest, locked []PurchaseEvent, err error) {
	required := r.RequiredQuantity
	running := 0
	i := 0
	for ; i < len(pool); i++ {
		if running+pool[i].Quantity > required {
			break
		}
		running += pool[i].Quantity
		locked = append(locked, pool[i])
	}
	rest = append(rest, pool[i:]...)

	ids := make([]string, 0, len(locked))
	for _, e := range locked {
		ids = append(ids, e.ID)
	}
	if err := lockEvents(ctx, q, r.ID, ids); err != nil {
		return nil, nil, err
	}

	if running < required {
		if len(rest) == 0 {
			return nil, nil, fmt.Errorf("reward %s: pool exhausted at %d of %d", r.ID, running, required)
		}
		crossing := rest[0]
		lockedChild, excess, err := split(ctx, q, crossing, required-running, r.ID, now)
		if err != nil {
			return nil, nil, err
		}
		locked = append(locked, lockedChild)
		rest = rest[1:]
		if excess != nil {
			rest = append([]PurchaseEvent{*excess}, rest...)
		}
	}

	for i := range locked {
		locked[i].RewardID = r.ID
	}
	return rest, locked, nil
}

func lockEvents(ctx context.Context, q store.Querier, rewardID string, ids []string) error {
	for _, id := range ids {
		res, err := q.Exec(ctx, `UPDATE purchase_events SET reward_id = ? WHERE id = ? AND reward_id IS NULL`, rewardID, id)
		if err != nil {
			return fmt.Errorf("lock event %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("lock event %s: already locked", id)
		}
	}
	return nil
}

// split divides parent into a child of lockQty locked to rewardID and, when
// units remain, an unlocked child with the excess. The parent stays as
// written and drops out of aggregation because it now has children.
func split(ctx context.Context, q store.Querier, parent PurchaseEvent, lockQty int, rewardID string, now time.Time) (PurchaseEvent, *PurchaseEvent, error) {
	if lockQty <= 0 || lockQty >= parent.Quantity {
		return PurchaseEvent{}, nil, fmt.Errorf("split %s: cannot lock %d of %d", parent.ID, lockQty, parent.Quantity)
	}

	child := func(qty int, reward string) PurchaseEvent {
		c := parent
		c.ID = uuid.Must(uuid.NewV7()).String()
		c.Quantity = qty
		c.RewardID = reward
		c.OriginalEventID = parent.ID
		c.IdempotencyKey = "split:" + c.ID
		c.CreatedAt = now
		return c
	}

	locked := child(lockQty, rewardID)
	if _, err := insertEvent(ctx, q, locked); err != nil {
		return PurchaseEvent{}, nil, fmt.Errorf("split %s: %w", parent.ID, err)
	}

	excess := child(parent.Quantity-lockQty, "")
	if _, err := insertEvent(ctx, q, excess); err != nil {
		return PurchaseEvent{}, nil, fmt.Errorf("split %s: %w", parent.ID, err)
	}
	return locked, &excess, nil
}
