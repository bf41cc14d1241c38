// Package policy holds the time-window and role guards of the order
// lifecycle. Every function is pure in (order, actor, now).
package policy

import (
	"time"

	"github.com/imrishuroy/tailor-orderflow/internal/orders"
)

// Windows are the rolling intervals after creation (or submission) during
// which an action stays open.
type Windows struct {
	ConsumerEdit   time.Duration
	ConsumerCancel time.Duration
	B2BEdit        time.Duration
}

// DefaultWindows returns the windows the business runs with.
func DefaultWindows() Windows {
	return Windows{
		ConsumerEdit:   36 * time.Hour,
		ConsumerCancel: 24 * time.Hour,
		B2BEdit:        30 * time.Hour,
	}
}

// Policy evaluates guards against a set of windows.
type Policy struct {
	w Windows
}

// New returns a Policy; zero durations fall back to the defaults.
func New(w Windows) *Policy {
	d := DefaultWindows()
	if w.ConsumerEdit <= 0 {
		w.ConsumerEdit = d.ConsumerEdit
	}
	if w.ConsumerCancel <= 0 {
		w.ConsumerCancel = d.ConsumerCancel
	}
	if w.B2BEdit <= 0 {
		w.B2BEdit = d.B2BEdit
	}
	return &Policy{w: w}
}

// Windows returns the effective windows.
func (p *Policy) Windows() Windows { return p.w }

// ReasonCodes are the reasons currently selectable for each action.
// An empty list means the action is closed.
type ReasonCodes struct {
	Cancel   []orders.ReasonCode `json:"cancel"`
	Exchange []orders.ReasonCode `json:"exchange"`
}

// cancelWindows are the independent ways a consumer cancellation can open.
type cancelWindows struct {
	early    bool // within the cancel window from creation
	late     bool // past the promised delivery date
	override bool // manager acting between the two
}

func (c cancelWindows) open() bool { return c.early || c.late || c.override }

func pastDelivery(o orders.Order, now time.Time) bool {
	return o.DeliveryDate != nil && now.After(*o.DeliveryDate)
}

func (p *Policy) cancelWindows(o orders.Order, actor orders.Actor, now time.Time) cancelWindows {
	var c cancelWindows
	c.early = now.Sub(o.CreatedAt) <= p.w.ConsumerCancel
	c.late = pastDelivery(o, now)
	c.override = actor.Role.IsManager() && !c.early && !c.late
	return c
}

// EditCheck returns nil when actor may edit o at now, or the guard
// violation explaining why not.
func (p *Policy) EditCheck(o orders.Order, actor orders.Actor, now time.Time) error {
	if o.IsAlteration {
		return orders.Guard(orders.GuardInvalidState, "alteration orders cannot be edited")
	}
	if o.IsB2B {
		return p.b2bEditCheck(o, actor, now)
	}
	if o.Status.Terminal() {
		return orders.Guard(orders.GuardInvalidState, "order is %s", o.Status)
	}
	if now.Sub(o.CreatedAt) > p.w.ConsumerEdit {
		return orders.Guard(orders.GuardWindowClosed, "edit window closed %s after creation", p.w.ConsumerEdit)
	}
	return nil
}

func (p *Policy) b2bEditCheck(o orders.Order, actor orders.Actor, now time.Time) error {
	if o.ProductionStatus == orders.ProductionDispatched {
		return orders.Guard(orders.GuardWindowClosed, "order has been dispatched")
	}
	switch o.ApprovalStatus {
	case orders.ApprovalRejected:
		return nil
	case orders.ApprovalPending:
		since := o.CreatedAt
		if o.SubmittedForApprovalAt != nil {
			since = *o.SubmittedForApprovalAt
		}
		if now.Sub(since) > p.w.B2BEdit {
			return orders.Guard(orders.GuardWindowClosed, "edit window closed %s after submission", p.w.B2BEdit)
		}
		return nil
	case orders.ApprovalApproved:
		if !actor.Role.IsMerchandiser() {
			return orders.Guard(orders.GuardRole, "only merchandisers can edit approved orders")
		}
		return nil
	}
	return orders.Guard(orders.GuardInvalidState, "unknown approval status %q", o.ApprovalStatus)
}

// CanEdit reports whether EditCheck passes.
func (p *Policy) CanEdit(o orders.Order, actor orders.Actor, now time.Time) bool {
	return p.EditCheck(o, actor, now) == nil
}

// CancelCheck returns nil when some cancellation window is open for actor.
// B2B orders leave the pipeline through rejection, not cancellation.
func (p *Policy) CancelCheck(o orders.Order, actor orders.Actor, now time.Time) error {
	if o.IsB2B {
		return orders.Guard(orders.GuardInvalidState, "b2b orders are rejected, not cancelled")
	}
	if o.Status.Terminal() {
		return orders.Guard(orders.GuardInvalidState, "order is %s", o.Status)
	}
	c := p.cancelWindows(o, actor, now)
	if c.open() {
		return nil
	}
	if !actor.Role.IsManager() {
		return orders.Guard(orders.GuardRole, "cancellation after %s requires a manager", p.w.ConsumerCancel)
	}
	return orders.Guard(orders.GuardWindowClosed, "cancellation window closed")
}

// CanCancel reports whether CancelCheck passes.
func (p *Policy) CanCancel(o orders.Order, actor orders.Actor, now time.Time) bool {
	return p.CancelCheck(o, actor, now) == nil
}

// ExchangeCheck returns nil when an exchange or return can be processed.
func (p *Policy) ExchangeCheck(o orders.Order, actor orders.Actor, now time.Time) error {
	if o.IsB2B {
		return orders.Guard(orders.GuardInvalidState, "b2b orders cannot be exchanged")
	}
	switch o.Status {
	case orders.StatusCancelled, orders.StatusRevoked, orders.StatusExchangeReturn:
		return orders.Guard(orders.GuardInvalidState, "order is %s", o.Status)
	}
	if o.Status.Delivered() || pastDelivery(o, now) {
		return nil
	}
	return orders.Guard(orders.GuardWindowClosed, "exchange opens on delivery")
}

// CanExchange reports whether ExchangeCheck passes.
func (p *Policy) CanExchange(o orders.Order, actor orders.Actor, now time.Time) bool {
	return p.ExchangeCheck(o, actor, now) == nil
}

// ValidReasonCodes derives the selectable reasons from the windows open
// right now. Order is stable for display.
func (p *Policy) ValidReasonCodes(o orders.Order, actor orders.Actor, now time.Time) ReasonCodes {
	var rc ReasonCodes
	if p.CancelCheck(o, actor, now) == nil {
		c := p.cancelWindows(o, actor, now)
		set := map[orders.ReasonCode]bool{}
		if c.early {
			set[orders.ReasonCustomerRequest] = true
			set[orders.ReasonPlacedByMistake] = true
			set[orders.ReasonDesignChange] = true
		}
		if c.late {
			set[orders.ReasonDelayedDelivery] = true
			set[orders.ReasonCustomerRequest] = true
		}
		if c.override {
			set[orders.ReasonStoreCreditGiven] = true
		}
		rc.Cancel = ordered(set)
	}
	if p.ExchangeCheck(o, actor, now) == nil {
		set := map[orders.ReasonCode]bool{
			orders.ReasonSizeIssue:    true,
			orders.ReasonFittingIssue: true,
			orders.ReasonQualityIssue: true,
			orders.ReasonWrongProduct: true,
		}
		if pastDelivery(o, now) {
			set[orders.ReasonDelayedDelivery] = true
		}
		rc.Exchange = ordered(set)
	}
	return rc
}

// Offered reports whether code is among codes.
func Offered(codes []orders.ReasonCode, code orders.ReasonCode) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

var reasonOrder = []orders.ReasonCode{
	orders.ReasonCustomerRequest,
	orders.ReasonPlacedByMistake,
	orders.ReasonDesignChange,
	orders.ReasonDelayedDelivery,
	orders.ReasonStoreCreditGiven,
	orders.ReasonSizeIssue,
	orders.ReasonFittingIssue,
	orders.ReasonQualityIssue,
	orders.ReasonWrongProduct,
}

func ordered(set map[orders.ReasonCode]bool) []orders.ReasonCode {
	out := make([]orders.ReasonCode, 0, len(set))
	for _, c := range reasonOrder {
		if set[c] {
			out = append(out, c)
		}
	}
	return out
}
