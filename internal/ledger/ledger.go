// Package ledger tracks vendor credit usage for B2B buyout orders.
//
// The credit limit is soft: exceeding it produces a CreditWarning for the
// approver and never blocks submission or approval.
package ledger

import (
	"context"
	"fmt"

	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"github.com/shopspring/decimal"
)

// CreditWarning describes an order that would take a vendor past its limit.
type CreditWarning struct {
	VendorID  string          `json:"vendor_id"`
	Limit     decimal.Decimal `json:"credit_limit"`
	Used      decimal.Decimal `json:"current_credit_used"`
	Amount    decimal.Decimal `json:"order_total"`
	Available decimal.Decimal `json:"available_credit"`
}

func (w *CreditWarning) Error() string {
	return fmt.Sprintf("vendor %s: order total %s exceeds available credit %s",
		w.VendorID, w.Amount.StringFixed(2), w.Available.StringFixed(2))
}

// Available is the credit limit minus the credit already used.
func Available(v orders.Vendor) decimal.Decimal {
	return decimal.NewFromFloat(v.CreditLimit).Sub(decimal.NewFromFloat(v.CurrentCreditUsed)).Round(2)
}

// WouldExceed reports whether approving a t order of total would push the
// vendor's usage over its limit. Consignment never consumes credit.
func WouldExceed(v orders.Vendor, t orders.OrderType, total decimal.Decimal) bool {
	if !t.ConsumesCredit() {
		return false
	}
	used := decimal.NewFromFloat(v.CurrentCreditUsed).Add(total)
	return used.GreaterThan(decimal.NewFromFloat(v.CreditLimit))
}

// Check returns a warning when WouldExceed holds, nil otherwise.
func Check(v orders.Vendor, t orders.OrderType, total decimal.Decimal) *CreditWarning {
	if !WouldExceed(v, t, total) {
		return nil
	}
	return &CreditWarning{
		VendorID:  v.VendorID,
		Limit:     decimal.NewFromFloat(v.CreditLimit).Round(2),
		Used:      decimal.NewFromFloat(v.CurrentCreditUsed).Round(2),
		Amount:    total.Round(2),
		Available: Available(v),
	}
}

// Entry returns the credit increment approving o must commit, or nil when
// o does not consume credit or already has.
func Entry(o orders.Order) *orders.CreditIncrement {
	if !o.IsB2B || !o.OrderType.ConsumesCredit() || o.CreditApplied || o.VendorID == "" {
		return nil
	}
	return &orders.CreditIncrement{
		VendorID: o.VendorID,
		Amount:   decimal.NewFromFloat(o.GrandTotal).Round(2),
	}
}

// Ledger reads vendors and commits credit against the record store.
type Ledger struct {
	store orders.Store
}

// New returns a Ledger backed by store.
func New(store orders.Store) *Ledger {
	return &Ledger{store: store}
}

// Warning loads the vendor and checks a prospective order against it.
func (l *Ledger) Warning(ctx context.Context, vendorID string, t orders.OrderType, total decimal.Decimal) (*CreditWarning, error) {
	v, err := l.store.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	return Check(*v, t, total), nil
}

// Commit applies o's credit on its own, for approved buyout orders whose
// credit was never recorded. The order's credit_applied flag flips in the
// same transaction as the increment, so a second call is a no-op.
// It reports whether credit was applied by this call.
func (l *Ledger) Commit(ctx context.Context, o *orders.Order) (bool, error) {
	entry := Entry(*o)
	if entry == nil {
		return false, nil
	}
	if o.ApprovalStatus != orders.ApprovalApproved {
		return false, orders.Guard(orders.GuardInvalidState, "credit is only committed for approved orders")
	}
	expect := o.ExpectCurrent()
	expect.CreditNotApplied = true
	err := l.store.Commit(ctx, orders.Mutation{
		Update: &orders.OrderUpdate{
			OrderID: o.OrderID,
			Patch:   orders.Patch{}.Set(orders.AttrCreditApplied, true),
			Expect:  expect,
		},
		Credit: entry,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
