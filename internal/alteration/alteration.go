// Package alteration creates alteration sub-orders against line items of
// delivered consumer orders.
package alteration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/tailor-orderflow/internal/events"
	"github.com/imrishuroy/tailor-orderflow/internal/metrics"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"go.uber.org/zap"
)

// MaxPerItem caps alteration sub-orders per parent line item.
const MaxPerItem = 2

// WarehouseAddress is the address recorded for warehouse alterations.
const WarehouseAddress = "India"

// subOrderSpace namespaces deterministic sub-order ids.
var subOrderSpace = uuid.MustParse("6f1d7c4e-2b8a-4f43-9d0e-5a7c3b1e9f20")

// Details describe the requested alteration.
type Details struct {
	Type            string                    `json:"alteration_type"`
	Location        orders.AlterationLocation `json:"alteration_location"`
	DeliveryAddress string                    `json:"delivery_address,omitempty"` // Home Delivery only
	DeliveryDate    *time.Time                `json:"delivery_date,omitempty"`
	Notes           string                    `json:"notes,omitempty"`
	Attachments     []string                  `json:"attachments,omitempty"`

	// RequestKey is the caller's scoped idempotency key, if any.
	RequestKey string `json:"-"`
}

// SubOrderID is the id of the n-th alteration of a parent line item.
// Two creators racing for the same slot derive the same id, so only one
// put-if-absent can succeed.
func SubOrderID(parentOrderID string, itemIndex, n int) string {
	return uuid.NewSHA1(subOrderSpace, []byte(fmt.Sprintf("%s/%d/%d", parentOrderID, itemIndex, n))).String()
}

// OrderNumber derives the sub-order number from the parent's:
// "{parent}-A" for the first alteration, "{parent}-A{n}" after that.
func OrderNumber(parentNumber string, n int) string {
	if n <= 1 {
		return parentNumber + "-A"
	}
	return fmt.Sprintf("%s-A%d", parentNumber, n)
}

// Address resolves the delivery address of a sub-order.
func Address(parent orders.Order, d Details) string {
	switch d.Location {
	case orders.LocationWarehouse:
		return WarehouseAddress
	case orders.LocationInStore:
		return ""
	}
	if strings.TrimSpace(d.DeliveryAddress) != "" {
		return d.DeliveryAddress
	}
	return parent.DeliveryAddress
}

// Engine creates and tracks alteration sub-orders.
type Engine struct {
	store   orders.Store
	events  events.Publisher
	metrics metrics.Recorder
	logger  *zap.Logger
	nowFunc func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithEvents(p events.Publisher) Option { return func(e *Engine) { e.events = p } }

func WithMetrics(r metrics.Recorder) Option { return func(e *Engine) { e.metrics = r } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.nowFunc = now } }

// New returns an alteration Engine over store.
func New(store orders.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		events:  events.Nop{},
		metrics: metrics.Nop{},
		logger:  zap.NewNop(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func validate(d Details) error {
	if strings.TrimSpace(d.Type) == "" {
		return orders.Invalid("alteration_type", "is required")
	}
	if !d.Location.Valid() {
		return orders.Invalid("alteration_location", "must be Home Delivery, Warehouse or In-Store")
	}
	return nil
}

// CreateAlteration creates the next alteration sub-order of one line item.
//
// Preconditions, first failure wins: the parent is delivered (or completed),
// the parent is not itself an alteration, and the item has fewer than
// MaxPerItem alterations. The sub-order is inserted in one transaction that
// also re-checks the parent as read.
func (e *Engine) CreateAlteration(ctx context.Context, actor orders.Actor, parentOrderID string, itemIndex int, d Details) (sub *orders.Order, err error) {
	defer func() {
		e.metrics.Record(ctx, "create_alteration", metrics.OutcomeOf(err))
		if err != nil {
			e.logger.Info("alteration rejected",
				zap.String("parent_order_id", parentOrderID),
				zap.Int("item_index", itemIndex),
				zap.String("actor", actor.ID),
				zap.Error(err))
		}
	}()

	if err := validate(d); err != nil {
		return nil, err
	}
	if !actor.Role.CanOperateStore() {
		return nil, orders.Guard(orders.GuardRole, "role %q cannot create alterations", actor.Role)
	}
	parent, err := e.store.GetOrder(ctx, parentOrderID)
	if err != nil {
		return nil, err
	}
	if itemIndex < 0 || itemIndex >= len(parent.Items) {
		return nil, orders.Invalid("item_index", fmt.Sprintf("order has %d items", len(parent.Items)))
	}

	if d.RequestKey != "" {
		if prior, err := e.prior(ctx, parent.OrderID, itemIndex, d.RequestKey); err != nil || prior != nil {
			return prior, err
		}
	}

	if !parent.Status.Delivered() {
		return nil, orders.Guard(orders.GuardInvalidState, "parent order must be delivered, it is %s", statusOf(parent))
	}
	if parent.IsAlteration {
		return nil, orders.Guard(orders.GuardInvalidState, "alterations cannot be altered again")
	}
	count, err := e.store.CountAlterations(ctx, parent.OrderID, itemIndex)
	if err != nil {
		return nil, err
	}
	if count >= MaxPerItem {
		return nil, orders.Guard(orders.GuardAlterationCap, "item %d already has %d alterations", itemIndex, count)
	}

	n := count + 1
	o := e.build(*parent, actor, itemIndex, n, d)
	err = e.store.Commit(ctx, orders.Mutation{
		Check:  &orders.OrderCheck{OrderID: parent.OrderID, Expect: parent.ExpectCurrent()},
		Insert: &o,
	})
	if err != nil {
		return nil, err
	}

	sub, err = e.store.GetOrder(ctx, o.OrderID)
	if err != nil {
		// the insert stands, so report it rather than invite a retry
		e.logger.Warn("read after commit failed", zap.String("order_id", o.OrderID), zap.Error(err))
		sub, err = &o, nil
	}
	e.logger.Info("alteration created",
		zap.String("order_id", sub.OrderID),
		zap.String("order_number", sub.OrderNumber),
		zap.String("parent_order_id", parent.OrderID),
		zap.Int("alteration_number", n),
		zap.String("location", string(d.Location)))
	if perr := e.events.Publish(ctx, events.Event{
		Type:            events.AlterationCreated,
		OrderID:         sub.OrderID,
		OrderNumber:     sub.OrderNumber,
		ParentOrderID:   parent.OrderID,
		ActorID:         actor.ID,
		NotifyWarehouse: sub.NotifyWarehouse,
		Version:         sub.Version,
		OccurredAt:      e.nowFunc().UTC(),
	}); perr != nil {
		e.logger.Warn("publish event failed", zap.String("order_id", sub.OrderID), zap.Error(perr))
	}
	return sub, nil
}

// prior returns the sub-order an earlier attempt under key created for the
// item, if any. Slots are read by id, so the lookup is strongly consistent.
func (e *Engine) prior(ctx context.Context, parentOrderID string, itemIndex int, key string) (*orders.Order, error) {
	for n := 1; n <= MaxPerItem; n++ {
		o, err := e.store.GetOrder(ctx, SubOrderID(parentOrderID, itemIndex, n))
		if errors.Is(err, orders.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if o.RequestKey == key {
			return o, nil
		}
	}
	return nil, nil
}

func statusOf(o *orders.Order) string {
	if o.Status == "" {
		return "not a consumer order"
	}
	return string(o.Status)
}

// build assembles the sub-order. Alterations are a service, so every money
// field is zero, including those of the copied line item.
func (e *Engine) build(parent orders.Order, actor orders.Actor, itemIndex, n int, d Details) orders.Order {
	item := parent.Items[itemIndex]
	extras := make([]orders.Extra, len(item.Extras))
	for i, x := range item.Extras {
		extras[i] = orders.Extra{Name: x.Name}
	}
	item.Extras = extras
	item.UnitPrice = 0
	item.GrossValue = 0
	item.Discount = 0
	item.TaxableValue = 0
	item.Tax = 0
	item.InvoiceValue = 0

	idx := itemIndex
	return orders.Order{
		OrderID:            SubOrderID(parent.OrderID, itemIndex, n),
		OrderNumber:        OrderNumber(parent.OrderNumber, n),
		IsAlteration:       true,
		Items:              []orders.OrderItem{item},
		CustomerName:       parent.CustomerName,
		CustomerPhone:      parent.CustomerPhone,
		CustomerEmail:      parent.CustomerEmail,
		DeliveryAddress:    Address(parent, d),
		DeliveryDate:       d.DeliveryDate,
		Status:             orders.StatusPending,
		CreatedAt:          e.nowFunc().UTC(),
		CreatedBy:          actor.ID,
		ParentOrderID:      parent.OrderID,
		ParentItemIndex:    &idx,
		AlterationNumber:   n,
		AlterationType:     d.Type,
		AlterationLocation: d.Location,
		AlterationNotes:    d.Notes,
		Attachments:        append([]string(nil), d.Attachments...),
		NotifyWarehouse:    d.Location == orders.LocationWarehouse,
		RequestKey:         d.RequestKey,
		Version:            1,
	}
}

// List returns the alteration sub-orders of a parent order.
func (e *Engine) List(ctx context.Context, parentOrderID string) ([]orders.Order, error) {
	if _, err := e.store.GetOrder(ctx, parentOrderID); err != nil {
		return nil, err
	}
	return e.store.ListOrders(ctx, orders.Filter{ParentOrderID: parentOrderID})
}

// MarkWarehouseNotified stamps warehouse_notified_at on a sub-order that
// asked for a warehouse notification. It reports false without writing
// when nothing is due, so redelivered messages are harmless.
func (e *Engine) MarkWarehouseNotified(ctx context.Context, orderID string) (bool, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !o.NotifyWarehouse || o.WarehouseNotifiedAt != nil {
		return false, nil
	}
	patch := orders.Patch{}.Set("warehouse_notified_at", e.nowFunc().UTC())
	if err := e.store.UpdateOrder(ctx, o.OrderID, patch, o.ExpectCurrent()); err != nil {
		return false, err
	}
	return true, nil
}
