package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-loyalty-ledger/internal/aws"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

type fakePublisher struct {
	mu   sync.Mutex
	got  []Message
	fail error
}

func (f *fakePublisher) Publish(ctx context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.got = append(f.got, m)
	return nil
}

type fakeSender struct {
	got []aws.QueueMessage
}

func (f *fakeSender) Send(ctx context.Context, m aws.QueueMessage) error {
	f.got = append(f.got, m)
	return nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("sqlite3", filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueue(t *testing.T, s *store.Store, kind Kind, agg string, now time.Time) {
	t.Helper()
	_, err := Enqueue(context.Background(), s, kind, agg, DiscountRequest{RewardID: agg}, now)
	require.NoError(t, err)
}

func TestRelay_PublishesAndMarksSent(t *testing.T) {
	s := openStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	enqueue(t, s, KindDiscountProvision, "r1", now)
	enqueue(t, s, KindDiscountProvision, "r2", now.Add(time.Second))
	enqueue(t, s, KindAuditEvent, "c1", now)

	pub := &fakePublisher{}
	relay := NewRelay(s, WithClock(func() time.Time { return now.Add(time.Minute) }))
	relay.Register(KindDiscountProvision, pub)

	stats, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Sent: 2}, stats)
	require.Len(t, pub.got, 2)
	assert.Equal(t, "r1", pub.got[0].AggregateID)

	var req DiscountRequest
	require.NoError(t, json.Unmarshal(pub.got[0].Payload, &req))
	assert.Equal(t, "r1", req.RewardID)

	// audit events have no sink registered and stay pending
	n, err := CountByStatus(context.Background(), s, KindAuditEvent, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestRelay_BacksOffThenDeadLetters(t *testing.T) {
	s := openStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	enqueue(t, s, KindDiscountCleanup, "r1", now)

	clock := now
	pub := &fakePublisher{fail: errors.New("upstream 503")}
	relay := NewRelay(s,
		WithClock(func() time.Time { return clock }),
		WithMaxAttempts(2),
		WithBackoff(time.Minute, time.Hour),
	)
	relay.Register(KindDiscountCleanup, pub)

	stats, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Failed: 1}, stats)

	// not due yet
	stats, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	clock = now.Add(2 * time.Minute)
	stats, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Dead: 1}, stats)

	n, err := CountByStatus(context.Background(), s, KindDiscountCleanup, StatusDead)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelay_Backoff(t *testing.T) {
	r := NewRelay(nil, WithBackoff(10*time.Second, time.Minute))
	assert.Equal(t, 10*time.Second, r.backoff(1))
	assert.Equal(t, 20*time.Second, r.backoff(2))
	assert.Equal(t, 40*time.Second, r.backoff(3))
	assert.Equal(t, time.Minute, r.backoff(4))
	assert.Equal(t, time.Minute, r.backoff(10))
}

func TestSQSSink_Publish(t *testing.T) {
	sender := &fakeSender{}
	sink := NewSQSSink(sender)
	err := sink.Publish(context.Background(), Message{
		ID: "m1", Kind: KindDiscountProvision, AggregateID: "r1", Payload: json.RawMessage(`{"reward_id":"r1"}`),
	})
	require.NoError(t, err)
	require.Len(t, sender.got, 1)
	assert.Equal(t, `{"reward_id":"r1"}`, sender.got[0].Body)
	assert.Equal(t, "r1", sender.got[0].GroupID)
	assert.Equal(t, "m1", sender.got[0].DedupID)
	assert.Equal(t, "discount.provision", sender.got[0].Attributes["kind"])
}

func TestKafkaSink_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"action":"reward_earned"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	sink := NewKafkaSink(producer, "ledger-audit")
	m := Message{ID: "m1", Kind: KindAuditEvent, AggregateID: "c1", Payload: json.RawMessage(`{"action":"reward_earned"}`)}
	require.NoError(t, sink.Publish(context.Background(), m))
	require.ErrorIs(t, sink.Publish(context.Background(), m), sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}
