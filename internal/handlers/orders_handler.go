package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/tailor-orderflow/internal/alteration"
	"github.com/imrishuroy/tailor-orderflow/internal/auth"
	"github.com/imrishuroy/tailor-orderflow/internal/idempotency"
	"github.com/imrishuroy/tailor-orderflow/internal/lifecycle"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
	"github.com/imrishuroy/tailor-orderflow/internal/validation"
	"go.uber.org/zap"
)

// IdempotencyHeader names the client-chosen key that deduplicates creates.
const IdempotencyHeader = "Idempotency-Key"

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Lifecycle   *lifecycle.Engine
	Alterations *alteration.Engine
	Idempotency idempotency.Keeper
	JWTSecret   string
	Logger      *zap.Logger
}

// Handler serves the order API.
type Handler struct {
	orders      *lifecycle.Engine
	alterations *alteration.Engine
	keys        idempotency.Keeper
	validate    *validatorv10.Validate
	logger      *zap.Logger
}

// RegisterOrdersRoutes registers routes for order API. Every route requires a bearer token.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		orders:      cfg.Lifecycle,
		alterations: cfg.Alterations,
		keys:        cfg.Idempotency,
		validate:    validation.New(),
		logger:      logger,
	}

	api := r.Group("/", auth.Middleware(cfg.JWTSecret))
	api.POST("/orders", h.createOrder)
	api.GET("/orders", h.listOrders)
	api.GET("/orders/:id", h.getOrder)
	api.PUT("/orders/:id", h.editOrder)
	api.GET("/orders/:id/permissions", h.permissions)
	api.GET("/orders/:id/approvals", h.approvals)
	api.POST("/orders/:id/submit", h.submit)
	api.POST("/orders/:id/approve", h.approve)
	api.POST("/orders/:id/reject", h.reject)
	api.POST("/orders/:id/production/advance", h.advanceProduction)
	api.POST("/orders/:id/status/advance", h.advanceStatus)
	api.POST("/orders/:id/cancel", h.cancel)
	api.POST("/orders/:id/exchange", h.exchange)
	api.POST("/orders/:id/credit", h.applyCredit)
	api.POST("/orders/:id/alterations", h.createAlteration)
	api.GET("/orders/:id/alterations", h.listAlterations)
	api.GET("/vendors/:id/credit", h.vendorCredit)
	api.PUT("/vendors/:id", h.saveVendor)
	api.POST("/totals", h.quote)
	return h
}

func actor(c *gin.Context) orders.Actor {
	a, _ := auth.ActorFrom(c)
	return a
}

// bindOptional binds a JSON body when one was sent.
func (h *Handler) bindOptional(c *gin.Context, out interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return validation.BindAndValidate(c, out, h.validate)
}

// once runs create under the request's Idempotency-Key, when it has one,
// and writes the (possibly replayed) response. create receives the scoped
// key, or "" without one, so the record it stores can be found again.
func (h *Handler) once(c *gin.Context, op string, req interface{}, create func(ctx context.Context, key string) (int, interface{}, string, error)) {
	ctx := c.Request.Context()
	var scoped string
	run := func() (idempotency.Response, error) {
		status, payload, orderID, err := create(ctx, scoped)
		if err != nil {
			return idempotency.Response{}, err
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return idempotency.Response{}, fmt.Errorf("marshal response: %w", err)
		}
		return idempotency.Response{Status: status, Body: string(body), OrderID: orderID}, nil
	}

	var (
		resp     idempotency.Response
		replayed bool
		err      error
	)
	key := c.GetHeader(IdempotencyHeader)
	if key == "" || h.keys == nil {
		resp, err = run()
	} else {
		fp, merr := json.Marshal(req)
		if merr != nil {
			h.writeError(c, merr)
			return
		}
		scoped = idempotency.Scope(op, actor(c).ID, key)
		resp, replayed, err = idempotency.Do(ctx, h.keys, scoped, idempotency.Fingerprint(fp), run)
	}
	if err != nil {
		if resp.Status == 0 {
			h.writeError(c, err)
			return
		}
		// The create committed but the key could not be closed; the client still gets its answer.
		h.logger.Warn("idempotency bookkeeping failed", zap.String("order_id", resp.OrderID), zap.Error(err))
	}

	if resp.OrderID != "" {
		c.Header("Location", "/orders/"+resp.OrderID)
	}
	if replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	c.Data(resp.Status, "application/json; charset=utf-8", []byte(resp.Body))
}

func (h *Handler) createOrder(c *gin.Context) {
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	h.once(c, "create_order", req, func(ctx context.Context, key string) (int, interface{}, string, error) {
		in := req.ToInput()
		in.RequestKey = key
		res, err := h.orders.CreateOrder(ctx, actor(c), in)
		if err != nil {
			return 0, nil, "", err
		}
		return http.StatusCreated, res, res.Order.OrderID, nil
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	f := orders.Filter{
		VendorID:         c.Query("vendor_id"),
		Status:           orders.Status(c.Query("status")),
		ApprovalStatus:   orders.ApprovalStatus(c.Query("approval_status")),
		ProductionStatus: orders.ProductionStatus(c.Query("production_status")),
		ParentOrderID:    c.Query("parent_order_id"),
	}
	if v := c.Query("is_b2b"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(c, orders.Invalid("is_b2b", "must be true or false"))
			return
		}
		f.IsB2B = &b
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(c, orders.Invalid("limit", "must be a non-negative integer"))
			return
		}
		f.Limit = n
	}

	list, err := h.orders.ListOrders(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *Handler) getOrder(c *gin.Context) {
	o, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) editOrder(c *gin.Context) {
	var req validation.EditOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	res, err := h.orders.EditOrder(c.Request.Context(), actor(c), c.Param("id"), req.ToInput())
	h.respond(c, res, err)
}

func (h *Handler) permissions(c *gin.Context) {
	p, err := h.orders.Permissions(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) approvals(c *gin.Context) {
	records, err := h.orders.ApprovalHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []orders.ApprovalRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"approvals": records})
}

func (h *Handler) submit(c *gin.Context) {
	var req validation.NotesRequest
	if err := h.bindOptional(c, &req); err != nil {
		return
	}
	res, err := h.orders.SubmitForApproval(c.Request.Context(), actor(c), c.Param("id"), req.Notes)
	h.respond(c, res, err)
}

func (h *Handler) approve(c *gin.Context) {
	var req validation.NotesRequest
	if err := h.bindOptional(c, &req); err != nil {
		return
	}
	res, err := h.orders.Approve(c.Request.Context(), actor(c), c.Param("id"), req.Notes)
	h.respond(c, res, err)
}

func (h *Handler) reject(c *gin.Context) {
	var req validation.RejectRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	res, err := h.orders.Reject(c.Request.Context(), actor(c), c.Param("id"), req.Reason)
	h.respond(c, res, err)
}

func (h *Handler) advanceProduction(c *gin.Context) {
	var req validation.ProductionRequest
	if err := h.bindOptional(c, &req); err != nil {
		return
	}
	var (
		res *lifecycle.Result
		err error
	)
	if req.Target != "" {
		res, err = h.orders.TransitionProduction(c.Request.Context(), actor(c), c.Param("id"), orders.ProductionStatus(req.Target), req.Note)
	} else {
		res, err = h.orders.AdvanceProduction(c.Request.Context(), actor(c), c.Param("id"), req.Note)
	}
	h.respond(c, res, err)
}

func (h *Handler) advanceStatus(c *gin.Context) {
	res, err := h.orders.AdvanceStatus(c.Request.Context(), actor(c), c.Param("id"))
	h.respond(c, res, err)
}

func (h *Handler) cancel(c *gin.Context) {
	var req validation.ReasonRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	res, err := h.orders.CancelOrder(c.Request.Context(), actor(c), c.Param("id"), orders.ReasonCode(req.ReasonCode))
	h.respond(c, res, err)
}

func (h *Handler) exchange(c *gin.Context) {
	var req validation.ReasonRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	res, err := h.orders.ProcessExchange(c.Request.Context(), actor(c), c.Param("id"), orders.ReasonCode(req.ReasonCode))
	h.respond(c, res, err)
}

func (h *Handler) createAlteration(c *gin.Context) {
	var req validation.AlterationRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	parentID := c.Param("id")
	h.once(c, "create_alteration:"+parentID, req, func(ctx context.Context, key string) (int, interface{}, string, error) {
		d := req.ToDetails()
		d.RequestKey = key
		sub, err := h.alterations.CreateAlteration(ctx, actor(c), parentID, *req.ItemIndex, d)
		if err != nil {
			return 0, nil, "", err
		}
		return http.StatusCreated, sub, sub.OrderID, nil
	})
}

func (h *Handler) listAlterations(c *gin.Context) {
	subs, err := h.alterations.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if subs == nil {
		subs = []orders.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"alterations": subs})
}

func (h *Handler) vendorCredit(c *gin.Context) {
	vc, err := h.orders.VendorCredit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vc)
}

func (h *Handler) saveVendor(c *gin.Context) {
	var req validation.VendorRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	vc, err := h.orders.SaveVendor(c.Request.Context(), actor(c), orders.Vendor{
		VendorID:    c.Param("id"),
		Name:        req.Name,
		CreditLimit: req.CreditLimit,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vc)
}

func (h *Handler) applyCredit(c *gin.Context) {
	res, err := h.orders.ApplyCredit(c.Request.Context(), actor(c), c.Param("id"))
	h.respond(c, res, err)
}

func (h *Handler) quote(c *gin.Context) {
	var req validation.QuoteRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	items, d := req.Lines()
	c.JSON(http.StatusOK, h.orders.Quote(items, d, req.IsB2B, req.AdvancePayment))
}

func (h *Handler) respond(c *gin.Context, res *lifecycle.Result, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
