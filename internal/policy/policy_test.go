package policy

import (
	"reflect"
	"testing"
	"time"

	"github.com/imrishuroy/tailor-orderflow/internal/orders"
)

var (
	t0      = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	staff   = orders.Actor{ID: "u-1", Role: orders.RoleStaff}
	manager = orders.Actor{ID: "u-2", Role: orders.RoleManager}
	merch   = orders.Actor{ID: "u-3", Role: orders.RoleMerchandiser}
)

func at(h float64) time.Time { return t0.Add(time.Duration(h * float64(time.Hour))) }

func TestConsumerEditWindow(t *testing.T) {
	p := New(DefaultWindows())
	o := orders.Order{CreatedAt: t0, Status: orders.StatusPending}

	if !p.CanEdit(o, staff, at(35)) {
		t.Fatalf("expected editable at T0+35h")
	}
	if p.CanEdit(o, staff, at(37)) {
		t.Fatalf("expected edit window closed at T0+37h")
	}
	if !orders.IsGuard(p.EditCheck(o, staff, at(37)), orders.GuardWindowClosed) {
		t.Fatalf("expected window_closed guard")
	}

	o.Status = orders.StatusDelivered
	if p.CanEdit(o, staff, at(1)) {
		t.Fatalf("delivered orders are not editable")
	}
}

func TestB2BEditWindow(t *testing.T) {
	p := New(DefaultWindows())
	submitted := at(10)
	o := orders.Order{IsB2B: true, CreatedAt: t0, SubmittedForApprovalAt: &submitted, ApprovalStatus: orders.ApprovalPending}

	if !p.CanEdit(o, staff, at(39)) {
		t.Fatalf("expected editable 29h after submission")
	}
	if p.CanEdit(o, staff, at(41)) {
		t.Fatalf("expected closed 31h after submission")
	}

	o.ApprovalStatus = orders.ApprovalRejected
	if !p.CanEdit(o, staff, at(500)) {
		t.Fatalf("rejected orders stay editable")
	}

	o.ApprovalStatus = orders.ApprovalApproved
	if p.CanEdit(o, staff, at(1)) {
		t.Fatalf("staff cannot edit approved orders")
	}
	if !orders.IsGuard(p.EditCheck(o, staff, at(1)), orders.GuardRole) {
		t.Fatalf("expected role guard")
	}
	if !p.CanEdit(o, merch, at(500)) {
		t.Fatalf("merchandisers can edit approved orders")
	}

	o.ProductionStatus = orders.ProductionDispatched
	for _, h := range []float64{0, 1, 29, 1000} {
		if p.CanEdit(o, merch, at(h)) {
			t.Fatalf("dispatched order editable at +%vh", h)
		}
	}
}

func TestCancelWindows(t *testing.T) {
	p := New(DefaultWindows())
	delivery := at(72)
	o := orders.Order{CreatedAt: t0, Status: orders.StatusInProduction, DeliveryDate: &delivery}

	cases := []struct {
		name  string
		actor orders.Actor
		now   time.Time
		want  []orders.ReasonCode
	}{
		{"early", staff, at(23), []orders.ReasonCode{orders.ReasonCustomerRequest, orders.ReasonPlacedByMistake, orders.ReasonDesignChange}},
		{"staff between windows", staff, at(30), nil},
		{"manager override", manager, at(30), []orders.ReasonCode{orders.ReasonStoreCreditGiven}},
		{"past delivery", staff, at(80), []orders.ReasonCode{orders.ReasonCustomerRequest, orders.ReasonDelayedDelivery}},
		{"manager past delivery", manager, at(80), []orders.ReasonCode{orders.ReasonCustomerRequest, orders.ReasonDelayedDelivery}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.ValidReasonCodes(o, tc.actor, tc.now).Cancel
			if len(got) == 0 && len(tc.want) == 0 {
				if p.CanCancel(o, tc.actor, tc.now) {
					t.Fatalf("expected cancel closed")
				}
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("reasons = %v, want %v", got, tc.want)
			}
			if !p.CanCancel(o, tc.actor, tc.now) {
				t.Fatalf("expected cancel open")
			}
		})
	}

	if !orders.IsGuard(p.CancelCheck(o, staff, at(30)), orders.GuardRole) {
		t.Fatalf("expected role guard for staff in the override window")
	}
}

func TestCancelClosedOnTerminalAndB2B(t *testing.T) {
	p := New(DefaultWindows())
	o := orders.Order{CreatedAt: t0, Status: orders.StatusDelivered}
	if p.CanCancel(o, manager, at(1)) {
		t.Fatalf("delivered orders cannot be cancelled")
	}
	b2b := orders.Order{IsB2B: true, CreatedAt: t0, ApprovalStatus: orders.ApprovalPending}
	if p.CanCancel(b2b, manager, at(1)) {
		t.Fatalf("b2b orders cannot be cancelled")
	}
}

func TestExchangeWindow(t *testing.T) {
	p := New(DefaultWindows())
	delivery := at(72)
	o := orders.Order{CreatedAt: t0, Status: orders.StatusShipped, DeliveryDate: &delivery}

	if p.CanExchange(o, staff, at(48)) {
		t.Fatalf("exchange should be closed before delivery")
	}
	rc := p.ValidReasonCodes(o, staff, at(80))
	if !Offered(rc.Exchange, orders.ReasonDelayedDelivery) {
		t.Fatalf("delayed delivery should be offered past the delivery date: %v", rc.Exchange)
	}

	o.Status = orders.StatusDelivered
	o.DeliveryDate = nil
	rc = p.ValidReasonCodes(o, staff, at(10))
	if Offered(rc.Exchange, orders.ReasonDelayedDelivery) {
		t.Fatalf("delayed delivery offered without a passed delivery date")
	}
	if !Offered(rc.Exchange, orders.ReasonSizeIssue) || len(rc.Cancel) != 0 {
		t.Fatalf("unexpected reason codes %+v", rc)
	}

	o.Status = orders.StatusExchangeReturn
	if p.CanExchange(o, staff, at(10)) {
		t.Fatalf("an exchanged order cannot be exchanged again")
	}
}

func TestNewFillsZeroWindows(t *testing.T) {
	p := New(Windows{ConsumerEdit: time.Hour})
	w := p.Windows()
	if w.ConsumerEdit != time.Hour || w.ConsumerCancel != 24*time.Hour || w.B2BEdit != 30*time.Hour {
		t.Fatalf("unexpected windows %+v", w)
	}
}
