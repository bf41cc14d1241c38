package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/tailor-orderflow/internal/alteration"
	"github.com/imrishuroy/tailor-orderflow/internal/auth"
	"github.com/imrishuroy/tailor-orderflow/internal/idempotency"
	"github.com/imrishuroy/tailor-orderflow/internal/lifecycle"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"github.com/imrishuroy/tailor-orderflow/internal/policy"
)

const secret = "handler-test-secret"

var (
	staff    = orders.Actor{ID: "staff-1", Role: orders.RoleStaff}
	admin    = orders.Actor{ID: "admin-1", Role: orders.RoleAdmin}
	vendor   = orders.Actor{ID: "vendor-user-1", Role: orders.RoleVendor}
	approver = orders.Actor{ID: "approver-1", Role: orders.RoleApprover}
	prod     = orders.Actor{ID: "prod-1", Role: orders.RoleProduction}
)

const consumerBody = `{
	"customer_name": "Asha",
	"delivery_address": "12 MG Road",
	"items": [
		{"product_id": "kurta", "quantity": 2, "unit_price": 1000},
		{"product_id": "dupatta", "quantity": 1, "unit_price": 500}
	],
	"discount": {"type": "fixed", "value": 250},
	"advance_payment": 1000
}`

type testEnv struct {
	router *gin.Engine
	store  *orders.MemoryStore
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		store: orders.NewMemoryStore(),
		now:   time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	env.router = gin.New()
	RegisterOrdersRoutes(env.router, HandlerConfig{
		Lifecycle:   lifecycle.New(env.store, policy.New(policy.DefaultWindows()), lifecycle.WithClock(clock)),
		Alterations: alteration.New(env.store, alteration.WithClock(clock)),
		Idempotency: idempotency.NewMemoryStore(time.Hour),
		JWTSecret:   secret,
	})
	return env
}

func (env *testEnv) do(t *testing.T, actor orders.Actor, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	tok, err := auth.GenerateToken(secret, actor, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

type resultBody struct {
	Order         orders.Order           `json:"order"`
	CreditWarning map[string]interface{} `json:"credit_warning"`
}

func (env *testEnv) createConsumer(t *testing.T) orders.Order {
	t.Helper()
	w := env.do(t, staff, http.MethodPost, "/orders", consumerBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var res resultBody
	decode(t, w, &res)
	return res.Order
}

func TestCreateOrder_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, staff, http.MethodPost, "/orders", consumerBody, IdempotencyHeader, "checkout-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", first.Code, first.Body.String())
	}
	var res resultBody
	decode(t, first, &res)
	if res.Order.GrandTotal != 2362.5 || res.Order.Status != orders.StatusPending {
		t.Fatalf("unexpected order %+v", res.Order)
	}
	if first.Header().Get("Location") != "/orders/"+res.Order.OrderID {
		t.Fatalf("unexpected location %q", first.Header().Get("Location"))
	}
	if want := lifecycle.RequestOrderID(idempotency.Scope("create_order", staff.ID, "checkout-1")); res.Order.OrderID != want {
		t.Fatalf("order id %s is not derived from the key, want %s", res.Order.OrderID, want)
	}

	retry := env.do(t, staff, http.MethodPost, "/orders", consumerBody, IdempotencyHeader, "checkout-1")
	if retry.Code != http.StatusCreated || retry.Body.String() != first.Body.String() {
		t.Fatalf("retry should replay the first response, got %d %s", retry.Code, retry.Body.String())
	}
	if retry.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	list, _ := env.store.ListOrders(context.Background(), orders.Filter{})
	if len(list) != 1 {
		t.Fatalf("expected one order, got %d", len(list))
	}

	changed := strings.Replace(consumerBody, "Asha", "Ravi", 1)
	if w := env.do(t, staff, http.MethodPost, "/orders", changed, IdempotencyHeader, "checkout-1"); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a reused key, got %d", w.Code)
	}

	manager := orders.Actor{ID: "manager-1", Role: orders.RoleManager}
	if w := env.do(t, manager, http.MethodPost, "/orders", consumerBody, IdempotencyHeader, "checkout-1"); w.Code != http.StatusCreated {
		t.Fatalf("keys are scoped per caller, got %d", w.Code)
	}
}

func TestRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	env := newTestEnv(t)
	o := env.createConsumer(t)

	if w := env.do(t, staff, http.MethodGet, "/orders/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w := env.do(t, approver, http.MethodPost, "/orders/"+o.OrderID+"/approve", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("approving a consumer order: expected 422, got %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, vendor, http.MethodPost, "/orders/"+o.OrderID+"/status/advance", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("vendor advancing store status: expected 403, got %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, vendor, http.MethodPost, "/orders", `{"is_b2b":true,"order_type":"buyout","vendor_id":"v-1","items":[{"product_id":"x","quantity":1,"unit_price":10}]}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "po_number") {
		t.Fatalf("expected po_number validation, got %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, staff, http.MethodPost, "/orders/"+o.OrderID+"/cancel", `{"reason_code":"delayed_delivery"}`)
	if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), "reason_not_offered") {
		t.Fatalf("expected reason_not_offered, got %d %s", w.Code, w.Body.String())
	}

	if w := env.do(t, staff, http.MethodGet, "/orders?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestB2BApprovalFlow(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(t, admin, http.MethodPut, "/vendors/v-1", `{"name":"Loom House","credit_limit":10000}`); w.Code != http.StatusOK {
		t.Fatalf("save vendor: %d %s", w.Code, w.Body.String())
	}

	w := env.do(t, vendor, http.MethodPost, "/orders", `{"is_b2b":true,"order_type":"buyout","vendor_id":"v-1","po_number":"PO-1","items":[{"product_id":"lehenga","quantity":1,"unit_price":2360}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create b2b: %d %s", w.Code, w.Body.String())
	}
	var res resultBody
	decode(t, w, &res)
	id := res.Order.OrderID
	if res.Order.ApprovalStatus != orders.ApprovalPending || res.Order.GrandTotal != 2360 || res.Order.Tax != 360 {
		t.Fatalf("unexpected b2b order %+v", res.Order)
	}

	if w := env.do(t, vendor, http.MethodPost, "/orders/"+id+"/approve", ""); w.Code != http.StatusForbidden {
		t.Fatalf("vendor approving: expected 403, got %d", w.Code)
	}
	w = env.do(t, approver, http.MethodPost, "/orders/"+id+"/approve", `{"notes":"ok"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", w.Code, w.Body.String())
	}
	decode(t, w, &res)
	if res.Order.ApprovalStatus != orders.ApprovalApproved || res.Order.ProductionStatus != orders.ProductionPending {
		t.Fatalf("unexpected approved order %+v", res.Order)
	}
	if w := env.do(t, approver, http.MethodPost, "/orders/"+id+"/approve", ""); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second approval: expected 422, got %d", w.Code)
	}

	w = env.do(t, vendor, http.MethodGet, "/vendors/v-1/credit", "")
	var credit map[string]interface{}
	decode(t, w, &credit)
	if credit["current_credit_used"] != 2360.0 || credit["available_credit"] != "7640" {
		t.Fatalf("unexpected credit %v", credit)
	}

	w = env.do(t, vendor, http.MethodGet, "/orders/"+id+"/approvals", "")
	var hist struct {
		Approvals []orders.ApprovalRecord `json:"approvals"`
	}
	decode(t, w, &hist)
	if len(hist.Approvals) != 1 || hist.Approvals[0].Status != orders.ApprovalApproved {
		t.Fatalf("unexpected history %+v", hist.Approvals)
	}

	w = env.do(t, prod, http.MethodPost, "/orders/"+id+"/production/advance", `{"note":"cutting"}`)
	decode(t, w, &res)
	if w.Code != http.StatusOK || res.Order.ProductionStatus != orders.ProductionInProduction || res.Order.InProductionNote != "cutting" {
		t.Fatalf("advance production: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, prod, http.MethodPost, "/orders/"+id+"/production/advance", `{"target":"dispatched"}`)
	if w.Code != http.StatusUnprocessableEntity || !strings.Contains(w.Body.String(), "invalid_transition") {
		t.Fatalf("skipping a production step: %d %s", w.Code, w.Body.String())
	}
}

func TestConsumerCancel(t *testing.T) {
	env := newTestEnv(t)
	o := env.createConsumer(t)

	w := env.do(t, staff, http.MethodGet, "/orders/"+o.OrderID+"/permissions", "")
	var perms lifecycle.Permissions
	decode(t, w, &perms)
	if !perms.CanCancel || !perms.CanEdit || len(perms.ReasonCodes.Cancel) == 0 {
		t.Fatalf("unexpected permissions %+v", perms)
	}

	w = env.do(t, staff, http.MethodPost, "/orders/"+o.OrderID+"/cancel", `{"reason_code":"customer_request"}`)
	var res resultBody
	decode(t, w, &res)
	if w.Code != http.StatusOK || res.Order.Status != orders.StatusCancelled {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
}

func TestAlterationFlow(t *testing.T) {
	env := newTestEnv(t)
	o := env.createConsumer(t)
	for i := 0; i < 4; i++ {
		if w := env.do(t, staff, http.MethodPost, "/orders/"+o.OrderID+"/status/advance", ""); w.Code != http.StatusOK {
			t.Fatalf("advance %d: %d %s", i, w.Code, w.Body.String())
		}
	}

	body := `{"item_index":0,"alteration_type":"Hemming","alteration_location":"Warehouse"}`
	w := env.do(t, staff, http.MethodPost, "/orders/"+o.OrderID+"/alterations", body, IdempotencyHeader, "alt-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("create alteration: %d %s", w.Code, w.Body.String())
	}
	var sub orders.Order
	decode(t, w, &sub)
	if sub.OrderNumber != o.OrderNumber+"-A" || sub.DeliveryAddress != "India" || sub.GrandTotal != 0 {
		t.Fatalf("unexpected sub-order %+v", sub)
	}

	// a retried request must not use up the second slot
	if w := env.do(t, staff, http.MethodPost, "/orders/"+o.OrderID+"/alterations", body, IdempotencyHeader, "alt-1"); w.Code != http.StatusCreated {
		t.Fatalf("replay: %d", w.Code)
	}
	w = env.do(t, staff, http.MethodGet, "/orders/"+o.OrderID+"/alterations", "")
	var list struct {
		Alterations []orders.Order `json:"alterations"`
	}
	decode(t, w, &list)
	if len(list.Alterations) != 1 {
		t.Fatalf("expected one alteration, got %d", len(list.Alterations))
	}

	w = env.do(t, staff, http.MethodPost, "/orders/"+o.OrderID+"/alterations", `{"item_index":0,"alteration_type":"x","alteration_location":"Moon"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown location, got %d", w.Code)
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, staff, http.MethodPost, "/totals", `{"items":[{"product_id":"kurta","quantity":1,"unit_price":1180}],"is_b2b":true}`)
	var q map[string]interface{}
	decode(t, w, &q)
	if w.Code != http.StatusOK || q["grand_total"] != "1180" || q["tax"] != "180" || q["tax_inclusive"] != true {
		t.Fatalf("unexpected quote %d %v", w.Code, q)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{orders.Invalid("items", "is required"), http.StatusBadRequest},
		{orders.Guard(orders.GuardRole, "no"), http.StatusForbidden},
		{orders.Guard(orders.GuardWindowClosed, "late"), http.StatusUnprocessableEntity},
		{fmt.Errorf("approve: %w", orders.ErrConflict), http.StatusConflict},
		{orders.ErrNotFound, http.StatusNotFound},
		{idempotency.ErrInProgress, http.StatusConflict},
		{idempotency.ErrKeyReused, http.StatusUnprocessableEntity},
		{&orders.StoreError{Op: "get order", Err: errors.New("timeout")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
