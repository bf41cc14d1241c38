package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/imrishuroy/tailor-orderflow/internal/events"
	"github.com/imrishuroy/tailor-orderflow/internal/ledger"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubmitForApproval moves a rejected B2B order back to pending and opens a
// new approval record. Earlier records are left as they are.
func (e *Engine) SubmitForApproval(ctx context.Context, actor orders.Actor, orderID, notes string) (res *Result, err error) {
	defer func() { e.finish(ctx, "submit_for_approval", orderID, actor, err) }()

	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireB2B(o); err != nil {
		return nil, err
	}
	if !canCreate(actor, true) {
		return nil, orders.Guard(orders.GuardRole, "role %q cannot submit b2b orders", actor.Role)
	}
	if o.ApprovalStatus != orders.ApprovalRejected {
		return nil, orders.Guard(orders.GuardInvalidTransition, "cannot submit an order that is %s", o.ApprovalStatus)
	}

	now := e.Now()
	recordID := e.newID()
	patch := orders.Patch{}.
		Set(orders.AttrApprovalStatus, orders.ApprovalPending).
		Set("submitted_for_approval_at", now).
		Set(orders.AttrPendingRecordID, recordID)
	err = e.store.Commit(ctx, orders.Mutation{
		Update: &orders.OrderUpdate{OrderID: o.OrderID, Patch: patch, Expect: o.ExpectCurrent()},
		NewRecord: &orders.ApprovalRecord{
			RecordID:    recordID,
			OrderID:     o.OrderID,
			Status:      orders.ApprovalPending,
			SubmittedBy: actor.ID,
			SubmittedAt: now,
			Notes:       notes,
		},
	})
	if err != nil {
		return nil, err
	}

	stored, err := e.reload(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	warning := e.creditWarning(ctx, stored)
	e.publish(ctx, events.Event{
		Type: events.OrderSubmitted, OrderID: o.OrderID, OrderNumber: o.OrderNumber, ActorID: actor.ID,
		From: string(orders.ApprovalRejected), To: string(orders.ApprovalPending), Version: stored.Version,
	})
	return &Result{Order: stored, Warning: warning}, nil
}

// Approve approves a pending B2B order. For a buyout order the order total
// is added to the vendor's used credit in the same transaction that flips
// the order, and only if the order has not had its credit applied yet.
// Exceeding the credit limit is reported as a warning and does not block.
func (e *Engine) Approve(ctx context.Context, actor orders.Actor, orderID, notes string) (res *Result, err error) {
	defer func() { e.finish(ctx, "approve", orderID, actor, err) }()

	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := e.reviewable(o, actor); err != nil {
		return nil, err
	}

	var warning *ledger.CreditWarning
	entry := ledger.Entry(*o)
	if entry != nil {
		v, err := e.store.GetVendor(ctx, entry.VendorID)
		if errors.Is(err, orders.ErrNotFound) {
			return nil, orders.Invalid("vendor_id", "unknown vendor")
		}
		if err != nil {
			return nil, err
		}
		warning = ledger.Check(*v, o.OrderType, entry.Amount)
	}

	now := e.Now()
	patch := orders.Patch{}.
		Set(orders.AttrApprovalStatus, orders.ApprovalApproved).
		Set("approved_by", actor.ID).
		Set("approved_at", now).
		Set(orders.AttrProductionStatus, orders.ProductionPending)
	expect := o.ExpectCurrent()
	if entry != nil {
		patch.Set(orders.AttrCreditApplied, true)
		expect.CreditNotApplied = true
	}

	mut := orders.Mutation{
		Update: &orders.OrderUpdate{OrderID: o.OrderID, Patch: patch, Expect: expect},
		Credit: entry,
	}
	if err := e.closeRecord(ctx, &mut, o, actor, orders.ApprovalApproved, notes); err != nil {
		return nil, err
	}
	if err := e.store.Commit(ctx, mut); err != nil {
		return nil, err
	}

	if warning != nil {
		e.logger.Warn("approved over credit limit",
			zap.String("order_id", o.OrderID),
			zap.String("vendor_id", o.VendorID),
			zap.String("available", warning.Available.StringFixed(2)),
			zap.String("order_total", warning.Amount.StringFixed(2)))
	}
	stored, err := e.reload(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.Event{
		Type: events.OrderApproved, OrderID: o.OrderID, OrderNumber: o.OrderNumber, ActorID: actor.ID,
		From: string(orders.ApprovalPending), To: string(orders.ApprovalApproved), Reason: notes, Version: stored.Version,
	})
	return &Result{Order: stored, Warning: warning}, nil
}

// Reject rejects a pending B2B order. A reason is mandatory.
func (e *Engine) Reject(ctx context.Context, actor orders.Actor, orderID, reason string) (res *Result, err error) {
	defer func() { e.finish(ctx, "reject", orderID, actor, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, orders.Invalid("reason", "a rejection reason is required")
	}
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := e.reviewable(o, actor); err != nil {
		return nil, err
	}

	now := e.Now()
	patch := orders.Patch{}.
		Set(orders.AttrApprovalStatus, orders.ApprovalRejected).
		Set("approved_by", actor.ID).
		Set("approved_at", now).
		Set("rejected_at", now).
		Set("rejection_reason", reason)
	mut := orders.Mutation{
		Update: &orders.OrderUpdate{OrderID: o.OrderID, Patch: patch, Expect: o.ExpectCurrent()},
	}
	if err := e.closeRecord(ctx, &mut, o, actor, orders.ApprovalRejected, reason); err != nil {
		return nil, err
	}
	if err := e.store.Commit(ctx, mut); err != nil {
		return nil, err
	}

	stored, err := e.reload(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.Event{
		Type: events.OrderRejected, OrderID: o.OrderID, OrderNumber: o.OrderNumber, ActorID: actor.ID,
		From: string(orders.ApprovalPending), To: string(orders.ApprovalRejected), Reason: reason, Version: stored.Version,
	})
	return &Result{Order: stored}, nil
}

func (e *Engine) reviewable(o *orders.Order, actor orders.Actor) error {
	if err := requireB2B(o); err != nil {
		return err
	}
	if !actor.Role.CanApprove() {
		return orders.Guard(orders.GuardRole, "role %q has no approval authority", actor.Role)
	}
	if o.ApprovalStatus != orders.ApprovalPending {
		return orders.Guard(orders.GuardInvalidTransition, "order is already %s", o.ApprovalStatus)
	}
	return nil
}

// closeRecord adds the approval-record write of a review to mut. The record
// opened by the latest submission is closed by its id; orders without one
// fall back to their most recent pending record, or get a closed record
// when they have none (orders imported without history).
func (e *Engine) closeRecord(ctx context.Context, mut *orders.Mutation, o *orders.Order, actor orders.Actor, status orders.ApprovalStatus, notes string) error {
	if o.PendingRecordID != "" {
		mut.Review = &orders.ApprovalReview{
			RecordID:   o.PendingRecordID,
			Status:     status,
			ReviewedBy: actor.ID,
			Notes:      notes,
		}
		return nil
	}
	records, err := e.store.ListApprovalRecords(ctx, o.OrderID)
	if err != nil {
		return err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Status == orders.ApprovalPending {
			mut.Review = &orders.ApprovalReview{
				RecordID:   records[i].RecordID,
				Status:     status,
				ReviewedBy: actor.ID,
				Notes:      notes,
			}
			return nil
		}
	}
	now := e.Now()
	submittedAt := now
	if o.SubmittedForApprovalAt != nil {
		submittedAt = *o.SubmittedForApprovalAt
	}
	mut.NewRecord = &orders.ApprovalRecord{
		RecordID:    e.newID(),
		OrderID:     o.OrderID,
		Status:      status,
		SubmittedBy: o.CreatedBy,
		SubmittedAt: submittedAt,
		ReviewedBy:  actor.ID,
		ReviewedAt:  &now,
		Notes:       notes,
	}
	return nil
}

// creditWarning checks o against its vendor; lookup failures only drop the warning.
func (e *Engine) creditWarning(ctx context.Context, o *orders.Order) *ledger.CreditWarning {
	if !o.IsB2B || o.VendorID == "" {
		return nil
	}
	w, err := e.ledger.Warning(ctx, o.VendorID, o.OrderType, decimal.NewFromFloat(o.GrandTotal))
	if err != nil {
		e.logger.Warn("credit check failed", zap.String("order_id", o.OrderID), zap.Error(err))
		return nil
	}
	return w
}
