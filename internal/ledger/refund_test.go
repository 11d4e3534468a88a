package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/outbox"
)

func TestRecordRefund_RevokesEarnedReward(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res := f.buy(t, "o1", 12, now.AddDate(0, 0, -5))
	require.Len(t, res.Earned, 1)
	rewardID := res.Earned[0]
	assert.Zero(t, f.pool(t))

	ref := f.refund(t, "r1", "o1", 3)
	assert.Equal(t, OutcomeRecorded, ref.Outcome)
	assert.Equal(t, 3, ref.Quantity)
	assert.Equal(t, []string{rewardID}, ref.Revoked)
	assert.Empty(t, ref.Earned)
	assert.Equal(t, 9, ref.CurrentQuantity)

	r, err := GetReward(ctx, f.store, merchant, rewardID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, r.Status)
	assert.Equal(t, ReasonRefund, r.RevocationReason)
	assert.False(t, r.RevokedAt.IsZero())

	locked, err := lockedQuantity(ctx, f.store, rewardID)
	require.NoError(t, err)
	assert.Zero(t, locked)
	assert.Equal(t, 9, f.pool(t))
	f.requireLockedInvariant(t)

	cleanups, err := outbox.CountByStatus(ctx, f.store, outbox.KindDiscountCleanup, outbox.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, cleanups)

	events, err := audit.List(ctx, f.store, merchant, audit.Filter{RewardID: rewardID, Action: audit.RewardRevoked})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecordRefund_ChargesUnlockedUnitsFirst(t *testing.T) {
	f := setup(t)

	res := f.buy(t, "o1", 15, now.AddDate(0, 0, -5))
	require.Len(t, res.Earned, 1)
	assert.Equal(t, 3, f.pool(t))

	ref := f.refund(t, "r1", "o1", 2)
	assert.Empty(t, ref.Revoked)
	assert.Equal(t, 1, ref.CurrentQuantity)
	assert.Len(t, f.rewards(t, StatusEarned), 1)
	f.requireLockedInvariant(t)
}

func TestRecordRefund_ReearnsFromRemainingUnits(t *testing.T) {
	f := setup(t)

	f.buy(t, "o1", 10, now.AddDate(0, 0, -5))
	res := f.buy(t, "o2", 5, now.AddDate(0, 0, -4))
	require.Len(t, res.Earned, 1)
	assert.Equal(t, 3, f.pool(t))

	ref := f.refund(t, "r1", "o1", 1)
	assert.Equal(t, res.Earned, ref.Revoked)
	require.Len(t, ref.Earned, 1)
	assert.NotEqual(t, res.Earned[0], ref.Earned[0])
	assert.Equal(t, 2, ref.CurrentQuantity)
	assert.Equal(t, 2, f.pool(t))

	assert.Len(t, f.rewards(t, StatusEarned), 1)
	assert.Len(t, f.rewards(t, StatusRevoked), 1)
	f.requireLockedInvariant(t)
}

func TestRecordRefund_Idempotent(t *testing.T) {
	f := setup(t)

	f.buy(t, "o1", 6, now.AddDate(0, 0, -1))
	first := f.refund(t, "r1", "o1", 2)
	assert.Equal(t, OutcomeRecorded, first.Outcome)

	second := f.refund(t, "r1", "o1", 2)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, 4, f.pool(t))
}

func TestRecordRefund_ClampsToRefundableQuantity(t *testing.T) {
	f := setup(t)

	f.buy(t, "o1", 6, now.AddDate(0, 0, -1))
	f.refund(t, "r1", "o1", 4)

	ref := f.refund(t, "r2", "o1", 5)
	assert.Equal(t, 2, ref.Quantity)
	assert.Zero(t, f.pool(t))

	ref = f.refund(t, "r3", "o1", 1)
	assert.Equal(t, OutcomeFullyRefunded, ref.Outcome)
}

func TestRecordRefund_RedeemedRewardStaysRedeemed(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res := f.buy(t, "o1", 12, now.AddDate(0, 0, -5))
	require.Len(t, res.Earned, 1)
	rewardID := res.Earned[0]

	_, err := f.ledger.AttachDiscount(ctx, merchant, rewardID, "disc-1")
	require.NoError(t, err)
	_, err = f.ledger.MarkRedeemed(ctx, merchant, rewardID, "o-redeem", "webhook")
	require.NoError(t, err)

	ref := f.refund(t, "r1", "o1", 4)
	assert.Empty(t, ref.Revoked)

	r, err := GetReward(ctx, f.store, merchant, rewardID)
	require.NoError(t, err)
	assert.Equal(t, StatusRedeemed, r.Status)
	assert.Equal(t, -4, f.pool(t))

	// The debt is paid back by later purchases before progress shows.
	next := f.buy(t, "o2", 6, now.AddDate(0, 0, -1))
	assert.Equal(t, 2, next.CurrentQuantity)
	f.requireLockedInvariant(t)
}

func TestRecordRefund_RejectsNonOriginalEvent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.buy(t, "o1", 6, now.AddDate(0, 0, -1))
	f.refund(t, "r1", "o1", 1)

	events, err := EventsForCustomer(ctx, f.store, merchant, customer, f.offer.ID)
	require.NoError(t, err)
	var refundEvent PurchaseEvent
	for _, e := range events {
		if e.IsRefund {
			refundEvent = e
		}
	}
	require.NotEmpty(t, refundEvent.ID)

	_, err = f.ledger.RecordRefund(ctx, Refund{MerchantID: merchant, RefundID: "r2", OriginalEventID: refundEvent.ID, Quantity: 1})
	assert.ErrorIs(t, err, ErrNotRefundable)

	_, err = f.ledger.RecordRefund(ctx, Refund{MerchantID: merchant, RefundID: "r3", OriginalEventID: "missing", Quantity: 1})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestMarkRedeemed_RequiresEarned(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.buy(t, "o1", 3, now)
	inProgress := f.rewards(t, StatusInProgress)
	require.Len(t, inProgress, 1)

	_, err := f.ledger.MarkRedeemed(ctx, merchant, inProgress[0].ID, "o2", "webhook")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.ledger.AttachDiscount(ctx, merchant, inProgress[0].ID, "disc-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.ledger.MarkRedeemed(ctx, merchant, "missing", "o2", "webhook")
	assert.ErrorIs(t, err, ErrRewardNotFound)
}

func TestRewardsByDiscount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res := f.buy(t, "o1", 12, now)
	require.Len(t, res.Earned, 1)
	_, err := f.ledger.AttachDiscount(ctx, merchant, res.Earned[0], "disc-1")
	require.NoError(t, err)

	rewards, err := RewardsByDiscount(ctx, f.store, merchant, []string{"disc-0", "disc-1"})
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, res.Earned[0], rewards[0].ID)

	rewards, err = RewardsByDiscount(ctx, f.store, merchant, nil)
	require.NoError(t, err)
	assert.Empty(t, rewards)
}

func TestRecordRefund_RedeemedDebtLeavesOtherRewardsEarned(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.buy(t, "o1", 12, now.AddDate(0, 0, -10))
	require.Len(t, first.Earned, 1)
	_, err := f.ledger.MarkRedeemed(ctx, merchant, first.Earned[0], "o-redeem", "webhook")
	require.NoError(t, err)

	second := f.buy(t, "o2", 12, now.AddDate(0, 0, -5))
	require.Len(t, second.Earned, 1)

	ref := f.refund(t, "r1", "o1", 5)
	assert.Empty(t, ref.Revoked)
	assert.Empty(t, ref.Earned)
	assert.Zero(t, ref.CurrentQuantity)

	r, err := GetReward(ctx, f.store, merchant, second.Earned[0])
	require.NoError(t, err)
	assert.Equal(t, StatusEarned, r.Status)
	assert.Equal(t, -5, f.pool(t))
	assert.Empty(t, f.rewards(t, StatusRevoked))
	f.requireLockedInvariant(t)

	cleanups, err := outbox.CountByStatus(ctx, f.store, outbox.KindDiscountCleanup, outbox.StatusPending)
	require.NoError(t, err)
	assert.Zero(t, cleanups)
}
