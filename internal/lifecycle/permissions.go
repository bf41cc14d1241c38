package lifecycle

import (
	"context"

	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"github.com/imrishuroy/tailor-orderflow/internal/policy"
)

// Permissions is what an actor may do with an order right now.
type Permissions struct {
	CanEdit        bool                    `json:"can_edit"`
	CanCancel      bool                    `json:"can_cancel"`
	CanExchange    bool                    `json:"can_exchange"`
	CanApprove     bool                    `json:"can_approve"`
	CanResubmit    bool                    `json:"can_resubmit"`
	NextStatus     orders.Status           `json:"next_status,omitempty"`
	NextProduction orders.ProductionStatus `json:"next_production_status,omitempty"`
	ReasonCodes    policy.ReasonCodes      `json:"reason_codes"`
}

// Permissions evaluates every guard for actor against a fresh read of the order.
func (e *Engine) Permissions(ctx context.Context, actor orders.Actor, orderID string) (*Permissions, error) {
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return e.PermissionsFor(*o, actor), nil
}

// PermissionsFor evaluates the guards against o as given.
func (e *Engine) PermissionsFor(o orders.Order, actor orders.Actor) *Permissions {
	now := e.Now()
	p := &Permissions{
		CanEdit:     e.policy.CanEdit(o, actor, now),
		CanCancel:   e.policy.CanCancel(o, actor, now),
		CanExchange: e.policy.CanExchange(o, actor, now),
		ReasonCodes: e.policy.ValidReasonCodes(o, actor, now),
	}
	if o.IsB2B {
		p.CanApprove = e.reviewable(&o, actor) == nil
		p.CanResubmit = o.ApprovalStatus == orders.ApprovalRejected && canCreate(actor, true)
		if o.ApprovalStatus == orders.ApprovalApproved && actor.Role.CanManageProduction() {
			current := o.ProductionStatus
			if current == "" {
				current = orders.ProductionPending
			}
			if next, ok := current.Next(); ok {
				p.NextProduction = next
			}
		}
		return p
	}
	if actor.Role.CanOperateStore() || actor.Role.CanManageProduction() {
		if next, ok := o.Status.Next(); ok {
			p.NextStatus = next
		}
	}
	return p
}
