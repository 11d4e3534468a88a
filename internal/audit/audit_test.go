package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-loyalty-ledger/internal/outbox"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

func TestRecorder_RecordAndList(t *testing.T) {
	s, err := store.Open("sqlite3", filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	r := NewRecorder(true)
	r.nowFunc = func() time.Time { return time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC) }

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		if err := r.Record(ctx, tx, Event{
			MerchantID: "m1", Action: RewardEarned, CustomerID: "c1", RewardID: "r1",
			BeforeState: "in_progress", AfterState: "earned",
			Details: map[string]any{"required_quantity": 12},
		}); err != nil {
			return err
		}
		return r.Record(ctx, tx, Event{MerchantID: "m1", Action: OfferCreated, OfferID: "o1"})
	})
	require.NoError(t, err)

	all, err := List(ctx, s, "m1", Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	earned, err := List(ctx, s, "m1", Filter{Action: RewardEarned})
	require.NoError(t, err)
	require.Len(t, earned, 1)
	assert.Equal(t, "r1", earned[0].RewardID)
	assert.Equal(t, "earned", earned[0].AfterState)
	assert.EqualValues(t, 12, earned[0].Details["required_quantity"])

	msgs, err := outbox.Pending(ctx, s, []outbox.Kind{outbox.KindAuditEvent}, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "c1", msgs[0].AggregateID)
	assert.Equal(t, "m1", msgs[1].AggregateID)

	var streamed Event
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &streamed))
	assert.Equal(t, RewardEarned, streamed.Action)
}

func TestRecorder_NoStream(t *testing.T) {
	s, err := store.Open("sqlite3", filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, NewRecorder(false).Record(ctx, s, Event{MerchantID: "m1", Action: OfferUpdated}))
	n, err := outbox.CountByStatus(ctx, s, outbox.KindAuditEvent, outbox.StatusPending)
	require.NoError(t, err)
	assert.Zero(t, n)
}
