package lifecycle

import (
	"context"

	"github.com/imrishuroy/tailor-orderflow/internal/events"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
)

// stamp attribute prefixes per production status
var productionStamps = map[orders.ProductionStatus]string{
	orders.ProductionInProduction:     "in_production",
	orders.ProductionReadyForDispatch: "ready_for_dispatch",
	orders.ProductionDispatched:       "dispatched",
}

// AdvanceProduction moves an approved B2B order one step along the
// production axis.
func (e *Engine) AdvanceProduction(ctx context.Context, actor orders.Actor, orderID, note string) (*Result, error) {
	return e.transitionProduction(ctx, "advance_production", actor, orderID, "", note)
}

// TransitionProduction moves an approved B2B order to target, which must
// be the status directly after the current one.
func (e *Engine) TransitionProduction(ctx context.Context, actor orders.Actor, orderID string, target orders.ProductionStatus, note string) (*Result, error) {
	if !target.Valid() {
		return nil, orders.Invalid("production_status", "unknown production status")
	}
	return e.transitionProduction(ctx, "transition_production", actor, orderID, target, note)
}

func (e *Engine) transitionProduction(ctx context.Context, op string, actor orders.Actor, orderID string, target orders.ProductionStatus, note string) (res *Result, err error) {
	defer func() { e.finish(ctx, op, orderID, actor, err) }()

	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireB2B(o); err != nil {
		return nil, err
	}
	if !actor.Role.CanManageProduction() {
		return nil, orders.Guard(orders.GuardRole, "role %q cannot manage production", actor.Role)
	}
	if o.ApprovalStatus != orders.ApprovalApproved {
		return nil, orders.Guard(orders.GuardInvalidState, "production requires an approved order, order is %s", o.ApprovalStatus)
	}

	current := o.ProductionStatus
	if current == "" {
		current = orders.ProductionPending
	}
	next, ok := current.Next()
	if !ok {
		return nil, orders.Guard(orders.GuardInvalidTransition, "order is already %s", current)
	}
	if target == "" {
		target = next
	}
	if target != next {
		return nil, orders.Guard(orders.GuardInvalidTransition, "cannot move from %s to %s", current, target)
	}

	prefix := productionStamps[target]
	patch := orders.Patch{}.
		Set(orders.AttrProductionStatus, target).
		Set(prefix+"_at", e.Now()).
		Set(prefix+"_by", actor.ID)
	if note != "" {
		patch.Set(prefix+"_note", note)
	}
	expect := orders.Expect{Version: o.Version}
	if o.ProductionStatus != "" {
		expect.Field, expect.Value = orders.AttrProductionStatus, string(o.ProductionStatus)
	}
	if err := e.store.UpdateOrder(ctx, o.OrderID, patch, expect); err != nil {
		return nil, err
	}

	stored, err := e.reload(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.Event{
		Type: events.ProductionAdvanced, OrderID: o.OrderID, OrderNumber: o.OrderNumber, ActorID: actor.ID,
		From: string(current), To: string(target), Reason: note, Version: stored.Version,
	})
	return &Result{Order: stored}, nil
}
