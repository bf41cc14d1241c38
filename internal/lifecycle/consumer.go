package lifecycle

import (
	"context"

	"github.com/imrishuroy/tailor-orderflow/internal/events"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"github.com/imrishuroy/tailor-orderflow/internal/policy"
)

// AdvanceStatus moves a consumer order one step forward:
// pending, in_production, ready, shipped, delivered.
func (e *Engine) AdvanceStatus(ctx context.Context, actor orders.Actor, orderID string) (res *Result, err error) {
	defer func() { e.finish(ctx, "advance_status", orderID, actor, err) }()

	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireConsumer(o); err != nil {
		return nil, err
	}
	if !actor.Role.CanOperateStore() && !actor.Role.CanManageProduction() {
		return nil, orders.Guard(orders.GuardRole, "role %q cannot move orders forward", actor.Role)
	}
	next, ok := o.Status.Next()
	if !ok {
		return nil, orders.Guard(orders.GuardInvalidTransition, "order is %s", o.Status)
	}

	now := e.Now()
	patch := orders.Patch{}.Set(orders.AttrStatus, next)
	if next == orders.StatusDelivered {
		patch.Set("delivered_at", now)
	}
	if err := e.store.UpdateOrder(ctx, o.OrderID, patch, o.ExpectCurrent()); err != nil {
		return nil, err
	}

	stored, err := e.reload(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.Event{
		Type: events.StatusAdvanced, OrderID: o.OrderID, OrderNumber: o.OrderNumber, ParentOrderID: o.ParentOrderID,
		ActorID: actor.ID, From: string(o.Status), To: string(next), Version: stored.Version,
	})
	return &Result{Order: stored}, nil
}

// CancelOrder cancels a consumer order with a reason offered by the
// currently open cancellation window. The store-credit override revokes
// the order instead of cancelling it.
func (e *Engine) CancelOrder(ctx context.Context, actor orders.Actor, orderID string, reason orders.ReasonCode) (res *Result, err error) {
	defer func() { e.finish(ctx, "cancel", orderID, actor, err) }()

	if reason == "" {
		return nil, orders.Invalid("reason", "a cancellation reason is required")
	}
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := e.Now()
	if err := e.policy.CancelCheck(*o, actor, now); err != nil {
		return nil, err
	}
	if !policy.Offered(e.policy.ValidReasonCodes(*o, actor, now).Cancel, reason) {
		return nil, orders.Guard(orders.GuardReasonNotOffered, "reason %q is not available now", reason)
	}

	target := orders.StatusCancelled
	if reason == orders.ReasonStoreCreditGiven {
		target = orders.StatusRevoked
	}
	patch := orders.Patch{}.
		Set(orders.AttrStatus, target).
		Set("cancelled_at", now).
		Set("cancelled_by", actor.ID).
		Set("cancel_reason", reason)
	if err := e.store.UpdateOrder(ctx, o.OrderID, patch, o.ExpectCurrent()); err != nil {
		return nil, err
	}

	stored, err := e.reload(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.Event{
		Type: events.OrderCancelled, OrderID: o.OrderID, OrderNumber: o.OrderNumber, ActorID: actor.ID,
		From: string(o.Status), To: string(target), Reason: string(reason), Version: stored.Version,
	})
	return &Result{Order: stored}, nil
}

// ProcessExchange records an exchange or return of a delivered (or overdue)
// consumer order.
func (e *Engine) ProcessExchange(ctx context.Context, actor orders.Actor, orderID string, reason orders.ReasonCode) (res *Result, err error) {
	defer func() { e.finish(ctx, "exchange", orderID, actor, err) }()

	if reason == "" {
		return nil, orders.Invalid("reason", "an exchange reason is required")
	}
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	now := e.Now()
	if err := e.policy.ExchangeCheck(*o, actor, now); err != nil {
		return nil, err
	}
	if !policy.Offered(e.policy.ValidReasonCodes(*o, actor, now).Exchange, reason) {
		return nil, orders.Guard(orders.GuardReasonNotOffered, "reason %q is not available now", reason)
	}

	patch := orders.Patch{}.
		Set(orders.AttrStatus, orders.StatusExchangeReturn).
		Set("exchange_requested_at", now).
		Set("exchange_reason", reason)
	if err := e.store.UpdateOrder(ctx, o.OrderID, patch, o.ExpectCurrent()); err != nil {
		return nil, err
	}

	stored, err := e.reload(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.Event{
		Type: events.ExchangeRequested, OrderID: o.OrderID, OrderNumber: o.OrderNumber, ActorID: actor.ID,
		From: string(o.Status), To: string(orders.StatusExchangeReturn), Reason: string(reason), Version: stored.Version,
	})
	return &Result{Order: stored}, nil
}
