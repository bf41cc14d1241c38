package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	orderevents "github.com/imrishuroy/tailor-orderflow/internal/events"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"go.uber.org/zap"
)

// WarehouseMarker records that the warehouse was told about an alteration.
type WarehouseMarker interface {
	MarkWarehouseNotified(ctx context.Context, orderID string) (bool, error)
}

// Processor consumes lifecycle events from SQS.
type Processor struct {
	warehouse WarehouseMarker
	logger    *zap.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(warehouse WarehouseMarker, logger *zap.Logger) *Processor {
	return &Processor{warehouse: warehouse, logger: logger}
}

// Handle processes a batch and reports the messages that must be redelivered.
// Processing is idempotent, so a redelivered message is harmless.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error",
				zap.String("message_id", rec.MessageId),
				zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	e, err := orderevents.Decode(rec.Body)
	if err != nil {
		return err
	}

	log := p.logger.With(
		zap.String("event_id", e.EventID),
		zap.String("type", string(e.Type)),
		zap.String("order_id", e.OrderID),
		zap.String("order_number", e.OrderNumber))

	switch e.Type {
	case orderevents.AlterationCreated:
		if !e.NotifyWarehouse {
			log.Debug("alteration needs no warehouse notice")
			return nil
		}
		marked, err := p.warehouse.MarkWarehouseNotified(ctx, e.OrderID)
		switch {
		case errors.Is(err, orders.ErrNotFound):
			return fmt.Errorf("alteration %s not found: %w", e.OrderID, err)
		case err != nil:
			return fmt.Errorf("mark warehouse notified: %w", err)
		case !marked:
			log.Info("warehouse already notified")
		default:
			log.Info("warehouse notified", zap.String("parent_order_id", e.ParentOrderID))
		}
	default:
		log.Info("event received", zap.String("from", e.From), zap.String("to", e.To))
	}
	return nil
}
