// Package ledger is the reward state machine: purchase events, rolling window
// accounting, the reward lifecycle and refund reversal.
//
// Every exported operation has a Tx variant that runs inside a caller's
// transaction. The plain variants open their own.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/imrishuroy/go-loyalty-ledger/internal/audit"
	"github.com/imrishuroy/go-loyalty-ledger/internal/store"
)

// Projector rebuilds the customer summary after a ledger mutation. It runs
// inside the mutating transaction.
type Projector interface {
	Rebuild(ctx context.Context, q store.Querier, merchantID, customerID, offerID string) error
}

// Invalidator drops cached read models for a customer after commit.
type Invalidator interface {
	Invalidate(ctx context.Context, merchantID, customerID string)
}

type Ledger struct {
	store     *store.Store
	audit     *audit.Recorder
	projector Projector
	cache     Invalidator
	logger    *slog.Logger
	nowFunc   func() time.Time
}

type Option func(*Ledger)

func WithLogger(l *slog.Logger) Option { return func(lg *Ledger) { lg.logger = l } }

// WithInvalidator is told about customers whose summaries a background
// sweep changed.
func WithInvalidator(i Invalidator) Option { return func(lg *Ledger) { lg.cache = i } }

// WithClock overrides the clock used for window expiry and timestamps.
func WithClock(now func() time.Time) Option { return func(lg *Ledger) { lg.nowFunc = now } }

func New(s *store.Store, rec *audit.Recorder, p Projector, opts ...Option) *Ledger {
	l := &Ledger{
		store:     s,
		audit:     rec,
		projector: p,
		logger:    slog.Default(),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) now() time.Time {
	return store.Timestamp(l.nowFunc())
}

func (l *Ledger) rebuild(ctx context.Context, q store.Querier, merchantID, customerID, offerID string) error {
	if l.projector == nil {
		return nil
	}
	return l.projector.Rebuild(ctx, q, merchantID, customerID, offerID)
}
