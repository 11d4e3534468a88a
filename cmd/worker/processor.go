package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-loyalty-ledger/internal/identity"
	"github.com/imrishuroy/go-loyalty-ledger/internal/intake"
	"github.com/imrishuroy/go-loyalty-ledger/internal/orders"
)

// Intake is satisfied by *intake.Gateway.
type Intake interface {
	ProcessOrder(ctx context.Context, order orders.Order, merchantID, customerID string, source orders.Source) (intake.Result, error)
	ProcessRefund(ctx context.Context, refund orders.Refund, merchantID string, source orders.Source) (intake.RefundResult, error)
}

// Identifier is satisfied by *identity.Resolver.
type Identifier interface {
	Resolve(ctx context.Context, merchantID string, o orders.Order) identity.Result
}

const stateCompleted = "COMPLETED"

// Processor feeds live webhook deliveries into the intake gateway.
type Processor struct {
	intake   Intake
	identity Identifier
	logger   *slog.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(in Intake, id Identifier, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{intake: in, identity: id, logger: logger}
}

// Handle processes an SQS batch. Failed records are reported individually so
// only they are redelivered; malformed ones are dropped.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		err := p.processMessage(ctx, rec)
		if errors.Is(err, errMalformed) || errors.Is(err, orders.ErrInvalidPayload) {
			p.logger.Warn("dropping malformed message", "message_id", rec.MessageId, "error", err)
			continue
		}
		if err != nil {
			p.logger.Error("worker error", "message_id", rec.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	msg, err := parseMessage(rec.Body)
	if err != nil {
		return err
	}

	switch msg.Type {
	case EventOrderCreated, EventOrderUpdated:
		return p.handleOrder(ctx, msg)
	case EventRefundCreate, EventRefundUpdate:
		return p.handleRefund(ctx, msg)
	default:
		p.logger.Debug("ignoring event", "type", msg.Type, "event_id", msg.EventID)
		return nil
	}
}

func (p *Processor) handleOrder(ctx context.Context, msg WorkerMessage) error {
	order, err := orders.ParseOrder(msg.Object)
	if err != nil {
		return err
	}
	// open orders are seen again when they complete
	if order.State != "" && order.State != stateCompleted {
		p.logger.Debug("skipping open order", "order_id", order.ID, "state", order.State)
		return nil
	}

	id := p.identity.Resolve(ctx, msg.MerchantID, order)
	res, err := p.intake.ProcessOrder(ctx, order, msg.MerchantID, id.CustomerID, orders.SourceWebhook)
	if isValidation(err) {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if err != nil {
		return fmt.Errorf("process order %s: %w", order.ID, err)
	}

	p.logger.Info("order handled",
		"event_id", msg.EventID,
		"merchant_id", msg.MerchantID,
		"order_id", order.ID,
		"status", res.Status,
		"classification", res.Classification,
		"identified_by", id.Method,
	)
	return nil
}

func (p *Processor) handleRefund(ctx context.Context, msg WorkerMessage) error {
	refund, err := orders.ParseRefund(msg.Object)
	if err != nil {
		return err
	}

	res, err := p.intake.ProcessRefund(ctx, refund, msg.MerchantID, orders.SourceWebhook)
	if isValidation(err) {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if err != nil {
		return fmt.Errorf("process refund %s: %w", refund.ID, err)
	}

	p.logger.Info("refund handled",
		"event_id", msg.EventID,
		"merchant_id", msg.MerchantID,
		"refund_id", refund.ID,
		"order_id", refund.OrderID,
		"lines", len(res.Lines),
	)
	return nil
}

// isValidation reports intake errors that no redelivery can fix.
func isValidation(err error) bool {
	return errors.Is(err, intake.ErrMissingOrderID) ||
		errors.Is(err, intake.ErrMissingMerchantID) ||
		errors.Is(err, intake.ErrMissingRefundID)
}
