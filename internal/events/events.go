// Package events publishes order lifecycle events to SQS after a
// transition has been committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/tailor-orderflow/internal/aws"
	"go.uber.org/zap"
)

// Type names a lifecycle event.
type Type string

const (
	OrderCreated       Type = "order.created"
	OrderEdited        Type = "order.edited"
	OrderSubmitted     Type = "order.submitted"
	OrderApproved      Type = "order.approved"
	OrderRejected      Type = "order.rejected"
	ProductionAdvanced Type = "order.production_advanced"
	StatusAdvanced     Type = "order.status_advanced"
	OrderCancelled     Type = "order.cancelled"
	ExchangeRequested  Type = "order.exchange_requested"
	AlterationCreated  Type = "alteration.created"
)

// Event is the message body sent on the orders queue.
type Event struct {
	EventID         string    `json:"event_id"`
	Type            Type      `json:"type"`
	OrderID         string    `json:"order_id"`
	OrderNumber     string    `json:"order_number,omitempty"`
	ParentOrderID   string    `json:"parent_order_id,omitempty"`
	ActorID         string    `json:"actor_id,omitempty"`
	From            string    `json:"from,omitempty"`
	To              string    `json:"to,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	NotifyWarehouse bool      `json:"notify_warehouse,omitempty"`
	Version         int64     `json:"version,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Publisher sends lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// SQSPublisher publishes events as JSON SQS messages.
type SQSPublisher struct {
	queue  *aws.EventQueue
	logger *zap.Logger
}

// NewSQSPublisher returns a Publisher writing to queue.
func NewSQSPublisher(queue *aws.EventQueue, logger *zap.Logger) *SQSPublisher {
	return &SQSPublisher{queue: queue, logger: logger}
}

// Publish fills in the event id and timestamp when missing and sends e.
// The event type and order id are also sent as message attributes so
// subscribers can filter without decoding the body. On a FIFO queue the
// events of one order keep their order.
func (p *SQSPublisher) Publish(ctx context.Context, e Event) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msgID, err := p.queue.Send(ctx, aws.Message{
		Body:    string(body),
		GroupID: e.OrderID,
		DedupID: e.EventID,
		Attributes: map[string]string{
			"event_type": string(e.Type),
			"order_id":   e.OrderID,
		},
	})
	if err != nil {
		return err
	}
	p.logger.Debug("event published",
		zap.String("message_id", msgID),
		zap.String("event_id", e.EventID),
		zap.String("type", string(e.Type)),
		zap.String("order_id", e.OrderID))
	return nil
}

// Decode parses an SQS message body into an Event.
func Decode(body string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return Event{}, fmt.Errorf("invalid event body: %w", err)
	}
	if e.Type == "" || e.OrderID == "" {
		return Event{}, fmt.Errorf("invalid event body: missing type or order_id")
	}
	return e, nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the types of the recorded events in order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}
