package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// Order attribute names used in patches and conditions.
const (
	AttrOrderID          = "order_id"
	AttrStatus           = "status"
	AttrApprovalStatus   = "approval_status"
	AttrProductionStatus = "production_status"
	AttrVersion          = "version"
	AttrCreditApplied    = "credit_applied"
	AttrUpdatedAt        = "updated_at"
	AttrParentOrderID    = "parent_order_id"
	AttrParentItemIndex  = "parent_item_index"
	AttrIsAlteration     = "is_alteration"
	AttrPendingRecordID  = "pending_record_id"
	AttrDiscountKind     = "discount_kind"
	AttrDiscountValue    = "discount_value"
)

// Patch maps attribute names to their new values.
type Patch map[string]interface{}

// Set records a new value for attr and returns p for chaining.
func (p Patch) Set(attr string, v interface{}) Patch {
	p[attr] = v
	return p
}

// Expect is the state a conditional write requires the stored order to still be in.
type Expect struct {
	// Field/Value name a status attribute that must hold Value. Empty Field skips the check.
	Field string
	Value string
	// Version must match the stored version.
	Version int64
	// CreditNotApplied additionally requires credit_applied to be unset or false.
	CreditNotApplied bool
}

// OrderUpdate is a conditional in-place update of one order.
type OrderUpdate struct {
	OrderID string
	Patch   Patch
	Expect  Expect
}

// OrderCheck asserts an order's state without writing it.
type OrderCheck struct {
	OrderID string
	Expect  Expect
}

// CreditIncrement atomically adds Amount to a vendor's used credit.
type CreditIncrement struct {
	VendorID string
	Amount   decimal.Decimal
}

// ApprovalReview closes the pending ApprovalRecord RecordID.
type ApprovalReview struct {
	RecordID   string
	Status     ApprovalStatus
	ReviewedBy string
	Notes      string
}

// Mutation is a set of writes committed all-or-nothing.
type Mutation struct {
	Update    *OrderUpdate
	Check     *OrderCheck
	Insert    *Order
	Credit    *CreditIncrement
	NewRecord *ApprovalRecord
	Review    *ApprovalReview
}

// Store is the record store the lifecycle engine runs against.
//
// Reads are strongly consistent. UpdateOrder and Commit are conditional: when
// the stored order no longer matches the expectation they return ErrConflict
// and write nothing.
type Store interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	ListOrders(ctx context.Context, filter Filter) ([]Order, error)
	InsertOrder(ctx context.Context, order Order) error
	UpdateOrder(ctx context.Context, orderID string, patch Patch, expect Expect) error
	CountAlterations(ctx context.Context, parentOrderID string, itemIndex int) (int, error)

	GetVendor(ctx context.Context, vendorID string) (*Vendor, error)
	PutVendor(ctx context.Context, vendor Vendor) error
	UpdateVendorCredit(ctx context.Context, vendorID string, delta decimal.Decimal) error

	ListApprovalRecords(ctx context.Context, orderID string) ([]ApprovalRecord, error)

	Commit(ctx context.Context, m Mutation) error
}
