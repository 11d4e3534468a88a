package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// Publisher delivers one message to an external system.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
}

// Stats summarizes one relay pass.
type Stats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Dead   int `json:"dead"`
}

// Relay drains the outbox. Delivery is at-least-once: a message is marked sent
// only after its publisher returns nil, so consumers must tolerate repeats.
type Relay struct {
	store       *store.Store
	sinks       map[Kind]Publisher
	batchSize   int
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      *slog.Logger
	nowFunc     func() time.Time
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

func WithBatchSize(n int) RelayOption            { return func(r *Relay) { r.batchSize = n } }
func WithMaxAttempts(n int) RelayOption          { return func(r *Relay) { r.maxAttempts = n } }
func WithLogger(l *slog.Logger) RelayOption      { return func(r *Relay) { r.logger = l } }
func WithClock(now func() time.Time) RelayOption { return func(r *Relay) { r.nowFunc = now } }

func WithBackoff(base, max time.Duration) RelayOption {
	return func(r *Relay) {
		r.baseBackoff = base
		r.maxBackoff = max
	}
}

// NewRelay returns a relay with no sinks registered.
func NewRelay(s *store.Store, opts ...RelayOption) *Relay {
	r := &Relay{
		store:       s,
		sinks:       map[Kind]Publisher{},
		batchSize:   50,
		maxAttempts: 8,
		baseBackoff: 30 * time.Second,
		maxBackoff:  time.Hour,
		logger:      slog.Default(),
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register routes kind to p. Messages of unregistered kinds stay pending.
func (r *Relay) Register(kind Kind, p Publisher) {
	r.sinks[kind] = p
}

// RunOnce publishes one batch of due messages.
func (r *Relay) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	kinds := make([]Kind, 0, len(r.sinks))
	for k := range r.sinks {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	msgs, err := Pending(ctx, r.store, kinds, r.nowFunc(), r.batchSize)
	if err != nil {
		return stats, err
	}

	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		pubErr := r.sinks[m.Kind].Publish(ctx, m)
		if pubErr == nil {
			if err := r.markSent(ctx, m); err != nil {
				return stats, err
			}
			stats.Sent++
			continue
		}

		dead, err := r.markFailed(ctx, m, pubErr)
		if err != nil {
			return stats, err
		}
		if dead {
			stats.Dead++
			r.logger.Error("outbox message dead-lettered",
				"id", m.ID, "kind", m.Kind, "aggregate_id", m.AggregateID, "error", pubErr)
		} else {
			stats.Failed++
			r.logger.Warn("outbox publish failed",
				"id", m.ID, "kind", m.Kind, "attempt", m.Attempts+1, "error", pubErr)
		}
	}
	return stats, nil
}

// backoff doubles from baseBackoff per attempt, capped at maxBackoff.
func (r *Relay) backoff(attempt int) time.Duration {
	d := r.baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= r.maxBackoff {
			return r.maxBackoff
		}
	}
	return d
}

func (r *Relay) markSent(ctx context.Context, m Message) error {
	now := store.Timestamp(r.nowFunc())
	_, err := r.store.Exec(ctx, `
		UPDATE outbox SET status = ?, attempts = attempts + 1, sent_at = ?, last_error = ''
		WHERE id = ? AND status = ?
	`, StatusSent, now, m.ID, StatusPending)
	if err != nil {
		return fmt.Errorf("mark sent %s: %w", m.ID, err)
	}
	return nil
}

func (r *Relay) markFailed(ctx context.Context, m Message, cause error) (bool, error) {
	attempts := m.Attempts + 1
	status := StatusPending
	if attempts >= r.maxAttempts {
		status = StatusDead
	}
	next := store.Timestamp(r.nowFunc().Add(r.backoff(attempts)))
	_, err := r.store.Exec(ctx, `
		UPDATE outbox SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?
		WHERE id = ? AND status = ?
	`, status, attempts, next, cause.Error(), m.ID, StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark failed %s: %w", m.ID, err)
	}
	return status == StatusDead, nil
}
