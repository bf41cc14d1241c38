// Package lifecycle is the order state machine: consumer status, B2B
// approval and B2B production axes.
//
// Every operation reads the order fresh, evaluates its guards against that
// read and then writes with a single conditional store call keyed on the
// status and version it read. A concurrent change makes the write fail with
// orders.ErrConflict; nothing in this package retries.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/tailor-orderflow/internal/events"
	"github.com/imrishuroy/tailor-orderflow/internal/ledger"
	"github.com/imrishuroy/tailor-orderflow/internal/metrics"
	"github.com/imrishuroy/tailor-orderflow/internal/money"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"github.com/imrishuroy/tailor-orderflow/internal/policy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Rates are the GST rates of the two flows.
type Rates struct {
	Consumer decimal.Decimal
	B2B      decimal.Decimal
}

// DefaultRates returns 5% consumer GST and 18% inclusive B2B GST.
func DefaultRates() Rates {
	return Rates{Consumer: money.ConsumerGSTRate, B2B: money.B2BGSTRate}
}

// Engine applies lifecycle transitions against a Store.
type Engine struct {
	store   orders.Store
	policy  *policy.Policy
	ledger  *ledger.Ledger
	events  events.Publisher
	metrics metrics.Recorder
	logger  *zap.Logger
	rates   Rates
	nowFunc func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

func WithEvents(p events.Publisher) Option { return func(e *Engine) { e.events = p } }

func WithMetrics(r metrics.Recorder) Option { return func(e *Engine) { e.metrics = r } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithRates(r Rates) Option { return func(e *Engine) { e.rates = r } }

// WithClock overrides time.Now; tests use it to step through windows.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.nowFunc = now } }

// WithIDs overrides the id generator for orders and approval records.
func WithIDs(next func() string) Option { return func(e *Engine) { e.newID = next } }

// New returns an Engine over store using pol for time-window guards.
func New(store orders.Store, pol *policy.Policy, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		policy:  pol,
		ledger:  ledger.New(store),
		events:  events.Nop{},
		metrics: metrics.Nop{},
		logger:  zap.NewNop(),
		rates:   DefaultRates(),
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy exposes the time-window policy the engine guards with.
func (e *Engine) Policy() *policy.Policy { return e.policy }

// Now returns the engine clock in UTC.
func (e *Engine) Now() time.Time { return e.nowFunc().UTC() }

// Result is the outcome of a successful operation. Warning is set when a
// B2B buyout order exceeds its vendor's available credit; it never blocks.
type Result struct {
	Order   *orders.Order         `json:"order"`
	Warning *ledger.CreditWarning `json:"credit_warning,omitempty"`
}

// GetOrder reads one order.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// ListOrders lists orders matching f.
func (e *Engine) ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, error) {
	return e.store.ListOrders(ctx, f)
}

// ApprovalHistory returns every approval record of an order, oldest first.
func (e *Engine) ApprovalHistory(ctx context.Context, orderID string) ([]orders.ApprovalRecord, error) {
	if _, err := e.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return e.store.ListApprovalRecords(ctx, orderID)
}

// VendorCredit is a vendor with its currently available credit.
type VendorCredit struct {
	orders.Vendor
	Available decimal.Decimal `json:"available_credit"`
}

// VendorCredit reads a vendor's credit position.
func (e *Engine) VendorCredit(ctx context.Context, vendorID string) (*VendorCredit, error) {
	v, err := e.store.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	return &VendorCredit{Vendor: *v, Available: ledger.Available(*v)}, nil
}

// SaveVendor creates a vendor or updates its name and credit limit. Only
// admins manage vendors. Used credit is never set here once the vendor exists.
func (e *Engine) SaveVendor(ctx context.Context, actor orders.Actor, v orders.Vendor) (res *VendorCredit, err error) {
	defer func() { e.finish(ctx, "save_vendor", v.VendorID, actor, err) }()

	if strings.TrimSpace(v.VendorID) == "" {
		return nil, orders.Invalid("vendor_id", "is required")
	}
	if v.CreditLimit < 0 {
		return nil, orders.Invalid("credit_limit", "must not be negative")
	}
	if actor.Role != orders.RoleAdmin {
		return nil, orders.Guard(orders.GuardRole, "role %q cannot manage vendors", actor.Role)
	}
	v.CurrentCreditUsed = 0
	if err := e.store.PutVendor(ctx, v); err != nil {
		return nil, err
	}
	return e.VendorCredit(ctx, v.VendorID)
}

// ApplyCredit records the credit of an approved buyout order that was
// approved without it, such as orders imported before their vendor existed.
// Orders whose credit is already applied are returned unchanged.
func (e *Engine) ApplyCredit(ctx context.Context, actor orders.Actor, orderID string) (res *Result, err error) {
	defer func() { e.finish(ctx, "apply_credit", orderID, actor, err) }()

	if actor.Role != orders.RoleAdmin {
		return nil, orders.Guard(orders.GuardRole, "role %q cannot apply vendor credit", actor.Role)
	}
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsB2B || o.OrderType != orders.OrderTypeBuyout {
		return nil, orders.Guard(orders.GuardInvalidState, "only buyout orders use vendor credit")
	}
	if o.CreditApplied {
		return &Result{Order: o}, nil
	}
	applied, err := e.ledger.Commit(ctx, o)
	if err != nil {
		return nil, err
	}
	if applied {
		e.logger.Info("vendor credit applied",
			zap.String("order_id", o.OrderID),
			zap.String("vendor_id", o.VendorID),
			zap.Float64("amount", o.GrandTotal))
	}
	stored, err := e.reload(ctx, o.OrderID)
	if err != nil {
		return nil, err
	}
	return &Result{Order: stored}, nil
}

// load reads the order an operation acts on.
func (e *Engine) load(ctx context.Context, orderID string) (*orders.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, orders.Invalid("order_id", "is required")
	}
	return e.store.GetOrder(ctx, orderID)
}

// finish records the outcome of op and logs it.
func (e *Engine) finish(ctx context.Context, op string, orderID string, actor orders.Actor, err error) {
	outcome := metrics.OutcomeOf(err)
	e.metrics.Record(ctx, op, outcome)
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("order_id", orderID),
		zap.String("actor", actor.ID),
		zap.String("role", string(actor.Role)),
	}
	switch outcome {
	case metrics.OutcomeOK:
		e.logger.Info("transition applied", fields...)
	case metrics.OutcomeError:
		e.logger.Error("transition failed", append(fields, zap.Error(err))...)
	default:
		e.logger.Info("transition rejected", append(fields, zap.String("outcome", string(outcome)), zap.Error(err))...)
	}
}

// publish sends e after a committed write. The write stands even when the
// event cannot be sent, so the failure is only logged.
func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.Now()
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("order_id", ev.OrderID),
			zap.Error(err))
	}
}

// reload returns the order as stored after a write.
func (e *Engine) reload(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", orderID, err)
	}
	return o, nil
}

// committed returns the stored form of a record whose insert has been
// committed. The write stands even when the read back fails, so the built
// record is returned instead of an error a caller would retry.
func (e *Engine) committed(ctx context.Context, built *orders.Order) *orders.Order {
	stored, err := e.reload(ctx, built.OrderID)
	if err != nil {
		e.logger.Warn("read after commit failed",
			zap.String("order_id", built.OrderID),
			zap.Error(err))
		return built
	}
	return stored
}

func requireB2B(o *orders.Order) error {
	if !o.IsB2B {
		return orders.Guard(orders.GuardInvalidState, "order %s is not a b2b order", o.OrderNumber)
	}
	return nil
}

func requireConsumer(o *orders.Order) error {
	if o.IsB2B {
		return orders.Guard(orders.GuardInvalidState, "order %s is a b2b order", o.OrderNumber)
	}
	return nil
}
