package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/tailor-orderflow/internal/events"
	"github.com/imrishuroy/tailor-orderflow/internal/ledger"
	"github.com/imrishuroy/tailor-orderflow/internal/money"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"github.com/shopspring/decimal"
)

// OrderInput is a new order as captured at checkout or by a vendor.
type OrderInput struct {
	IsB2B       bool
	OrderType   orders.OrderType
	OrderNumber string // generated when empty
	VendorID    string
	PONumber    string
	// RequestKey is the caller's scoped idempotency key. When set the order
	// id is derived from it, so a retried create cannot store a second order.
	RequestKey  string

	Items          []orders.OrderItem
	Discount       money.Discount
	AdvancePayment float64

	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	DeliveryAddress string
	DeliveryDate    *time.Time
	Notes           string
}

// EditInput changes an order in place. Nil fields are left unchanged.
type EditInput struct {
	Items          []orders.OrderItem
	Discount       *money.Discount
	AdvancePayment *float64

	CustomerName    *string
	CustomerPhone   *string
	CustomerEmail   *string
	DeliveryAddress *string
	DeliveryDate    *time.Time
	Notes           *string
	PONumber        *string
}

func (in EditInput) repricing() bool {
	return in.Items != nil || in.Discount != nil || in.AdvancePayment != nil
}

// Price computes the totals of items under the convention of the order's
// flow and returns copies of the items with their derived values set.
func (e *Engine) Price(items []orders.OrderItem, d money.Discount, b2b bool) ([]orders.OrderItem, money.Totals) {
	lines := make([]money.Line, len(items))
	for i, it := range items {
		extras := make([]float64, len(it.Extras))
		for j, x := range it.Extras {
			extras[j] = x.Price
		}
		lines[i] = money.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity, Extras: extras}
	}
	rate, conv := e.rates.Consumer, money.Exclusive
	if b2b {
		rate, conv = e.rates.B2B, money.Inclusive
	}
	t := money.ComputeTotals(lines, d, rate, conv)

	priced := make([]orders.OrderItem, len(items))
	for i, it := range items {
		lt := t.Lines[i]
		it.GrossValue = lt.Gross.InexactFloat64()
		it.Discount = lt.Discount.InexactFloat64()
		it.TaxableValue = lt.Taxable.InexactFloat64()
		it.Tax = lt.Tax.InexactFloat64()
		it.InvoiceValue = lt.Invoice.InexactFloat64()
		priced[i] = it
	}
	return priced, t
}

// requestSpace namespaces order ids derived from request keys.
var requestSpace = uuid.MustParse("0b9e4c55-7a31-4d8e-a6f2-3c18d2e07b49")

// RequestOrderID is the order id a create under key always gets.
func RequestOrderID(key string) string {
	return uuid.NewSHA1(requestSpace, []byte(key)).String()
}

// discountOf is the discount o was priced with. Orders stored before the
// requested form was kept fall back to their amount.
func discountOf(o orders.Order) money.Discount {
	if o.DiscountKind != "" {
		return money.Discount{Kind: money.DiscountKind(o.DiscountKind), Value: o.DiscountValue}
	}
	return money.Discount{Kind: money.DiscountFixed, Value: o.Discount}
}

func applyTotals(o *orders.Order, t money.Totals, advance float64) {
	adv, rem := money.Remaining(t.GrandTotal, advance)
	o.Subtotal = t.Subtotal.InexactFloat64()
	o.Discount = t.Discount.InexactFloat64()
	o.Tax = t.Tax.InexactFloat64()
	o.TaxInclusive = t.Inclusive
	o.GrandTotal = t.GrandTotal.InexactFloat64()
	o.AdvancePayment = adv.InexactFloat64()
	o.RemainingPayment = rem.InexactFloat64()
}

func validateItems(items []orders.OrderItem) error {
	if len(items) == 0 {
		return orders.Invalid("items", "at least one item is required")
	}
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return orders.Invalid(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if it.Quantity < 1 {
			return orders.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
	}
	return nil
}

func validateInput(in OrderInput) error {
	if err := validateItems(in.Items); err != nil {
		return err
	}
	if !in.IsB2B {
		if strings.TrimSpace(in.CustomerName) == "" {
			return orders.Invalid("customer_name", "is required")
		}
		return nil
	}
	if strings.TrimSpace(in.VendorID) == "" {
		return orders.Invalid("vendor_id", "is required")
	}
	if strings.TrimSpace(in.PONumber) == "" {
		return orders.Invalid("po_number", "is required")
	}
	if !in.OrderType.Valid() {
		return orders.Invalid("order_type", "must be buyout or consignment")
	}
	return nil
}

func canCreate(actor orders.Actor, b2b bool) bool {
	if b2b {
		return actor.Role == orders.RoleVendor || actor.Role.IsMerchandiser() || actor.Role.IsManager()
	}
	return actor.Role.CanOperateStore()
}

func (e *Engine) orderNumber(b2b bool, id string, now time.Time) string {
	prefix := "TL"
	if b2b {
		prefix = "B2B"
	}
	short := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(short) > 6 {
		short = short[:6]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("060102"), short)
}

// CreateOrder prices and stores a new order. A B2B order enters the
// approval pipeline as pending together with its first approval record.
func (e *Engine) CreateOrder(ctx context.Context, actor orders.Actor, in OrderInput) (res *Result, err error) {
	var orderID string
	defer func() { e.finish(ctx, "create_order", orderID, actor, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !canCreate(actor, in.IsB2B) {
		return nil, orders.Guard(orders.GuardRole, "role %q cannot create this order", actor.Role)
	}

	now := e.Now()
	orderID = e.newID()
	if in.RequestKey != "" {
		orderID = RequestOrderID(in.RequestKey)
	}
	items, totals := e.Price(in.Items, in.Discount, in.IsB2B)
	o := orders.Order{
		OrderID:         orderID,
		OrderNumber:     in.OrderNumber,
		IsB2B:           in.IsB2B,
		Items:           items,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		CustomerEmail:   in.CustomerEmail,
		DeliveryAddress: in.DeliveryAddress,
		DeliveryDate:    in.DeliveryDate,
		Notes:           in.Notes,
		DiscountKind:    string(in.Discount.Kind),
		DiscountValue:   in.Discount.Value,
		RequestKey:      in.RequestKey,
		CreatedAt:       now,
		CreatedBy:       actor.ID,
		Version:         1,
	}
	if o.OrderNumber == "" {
		o.OrderNumber = e.orderNumber(in.IsB2B, orderID, now)
	}
	applyTotals(&o, totals, in.AdvancePayment)

	var warning *ledger.CreditWarning
	if in.IsB2B {
		o.OrderType = in.OrderType
		o.VendorID = in.VendorID
		o.PONumber = in.PONumber
		o.ApprovalStatus = orders.ApprovalPending
		o.SubmittedForApprovalAt = &now
		o.PendingRecordID = e.newID()

		warning, err = e.ledger.Warning(ctx, in.VendorID, in.OrderType, totals.GrandTotal)
		if errors.Is(err, orders.ErrNotFound) {
			return nil, orders.Invalid("vendor_id", "unknown vendor")
		}
		if err != nil {
			return nil, err
		}
		err = e.store.Commit(ctx, orders.Mutation{
			Insert: &o,
			NewRecord: &orders.ApprovalRecord{
				RecordID:    o.PendingRecordID,
				OrderID:     orderID,
				Status:      orders.ApprovalPending,
				SubmittedBy: actor.ID,
				SubmittedAt: now,
				Notes:       in.Notes,
			},
		})
	} else {
		o.Status = orders.StatusPending
		err = e.store.InsertOrder(ctx, o)
	}
	if errors.Is(err, orders.ErrConflict) && in.RequestKey != "" {
		// an earlier attempt under the same key got this far
		existing, gerr := e.store.GetOrder(ctx, orderID)
		if gerr == nil && existing.RequestKey == in.RequestKey {
			return &Result{Order: existing, Warning: warning}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	stored := e.committed(ctx, &o)
	e.publish(ctx, events.Event{
		Type:        events.OrderCreated,
		OrderID:     orderID,
		OrderNumber: stored.OrderNumber,
		ActorID:     actor.ID,
		Version:     stored.Version,
	})
	return &Result{Order: stored, Warning: warning}, nil
}

// EditOrder changes an order inside its edit window. Changing items,
// discount or advance reprices the order once; B2B line items are locked
// after approval so committed credit always matches the order total.
func (e *Engine) EditOrder(ctx context.Context, actor orders.Actor, orderID string, in EditInput) (res *Result, err error) {
	defer func() { e.finish(ctx, "edit_order", orderID, actor, err) }()

	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := e.policy.EditCheck(*o, actor, e.Now()); err != nil {
		return nil, err
	}
	if o.IsB2B && o.ApprovalStatus == orders.ApprovalApproved && (in.Items != nil || in.Discount != nil) {
		return nil, orders.Guard(orders.GuardInvalidState, "line items of approved orders are locked")
	}
	if in.Items != nil {
		if err := validateItems(in.Items); err != nil {
			return nil, err
		}
	}
	if o.IsB2B && in.PONumber != nil && strings.TrimSpace(*in.PONumber) == "" {
		return nil, orders.Invalid("po_number", "is required")
	}

	patch := orders.Patch{}
	var warning *ledger.CreditWarning
	if in.repricing() {
		items := o.Items
		if in.Items != nil {
			items = in.Items
		}
		discount := discountOf(*o)
		if in.Discount != nil {
			discount = *in.Discount
			patch.Set(orders.AttrDiscountKind, string(discount.Kind)).
				Set(orders.AttrDiscountValue, discount.Value)
		}
		advance := o.AdvancePayment
		if in.AdvancePayment != nil {
			advance = *in.AdvancePayment
		}
		priced, totals := e.Price(items, discount, o.IsB2B)
		next := *o
		next.Items = priced
		applyTotals(&next, totals, advance)
		patch.Set("items", next.Items).
			Set("subtotal", next.Subtotal).
			Set("discount", next.Discount).
			Set("tax", next.Tax).
			Set("tax_inclusive", next.TaxInclusive).
			Set("grand_total", next.GrandTotal).
			Set("advance_payment", next.AdvancePayment).
			Set("remaining_payment", next.RemainingPayment)

		if o.IsB2B && o.VendorID != "" {
			warning, err = e.ledger.Warning(ctx, o.VendorID, o.OrderType, totals.GrandTotal)
			if err != nil && !errors.Is(err, orders.ErrNotFound) {
				return nil, err
			}
		}
	}
	setString(patch, "customer_name", in.CustomerName)
	setString(patch, "customer_phone", in.CustomerPhone)
	setString(patch, "customer_email", in.CustomerEmail)
	setString(patch, "delivery_address", in.DeliveryAddress)
	setString(patch, "notes", in.Notes)
	setString(patch, "po_number", in.PONumber)
	if in.DeliveryDate != nil {
		patch.Set("delivery_date", in.DeliveryDate.UTC())
	}
	if len(patch) == 0 {
		return nil, orders.Invalid("body", "nothing to change")
	}

	if err := e.store.UpdateOrder(ctx, o.OrderID, patch, o.ExpectCurrent()); err != nil {
		return nil, err
	}
	stored, err := e.reload(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.Event{Type: events.OrderEdited, OrderID: o.OrderID, OrderNumber: o.OrderNumber, ActorID: actor.ID, Version: stored.Version})
	return &Result{Order: stored, Warning: warning}, nil
}

func setString(p orders.Patch, attr string, v *string) {
	if v != nil {
		p.Set(attr, *v)
	}
}

// Quote prices items without storing anything.
func (e *Engine) Quote(items []orders.OrderItem, d money.Discount, b2b bool, advance float64) Quote {
	priced, t := e.Price(items, d, b2b)
	adv, rem := money.Remaining(t.GrandTotal, advance)
	return Quote{
		Items:            priced,
		Subtotal:         t.Subtotal,
		Discount:         t.Discount,
		Tax:              t.Tax,
		TaxInclusive:     t.Inclusive,
		GrandTotal:       t.GrandTotal,
		AdvancePayment:   adv,
		RemainingPayment: rem,
	}
}

// Quote is a priced but unsaved order.
type Quote struct {
	Items            []orders.OrderItem `json:"items"`
	Subtotal         decimal.Decimal    `json:"subtotal"`
	Discount         decimal.Decimal    `json:"discount"`
	Tax              decimal.Decimal    `json:"tax"`
	TaxInclusive     bool               `json:"tax_inclusive"`
	GrandTotal       decimal.Decimal    `json:"grand_total"`
	AdvancePayment   decimal.Decimal    `json:"advance_payment"`
	RemainingPayment decimal.Decimal    `json:"remaining_payment"`
}
