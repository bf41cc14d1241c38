package orders

import "time"

// Status is the consumer order status.
type Status string

// Consumer statuses
const (
	StatusPending        Status = "pending"
	StatusInProduction   Status = "in_production"
	StatusReady          Status = "ready"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCompleted      Status = "completed" // legacy alias of delivered
	StatusCancelled      Status = "cancelled"
	StatusRevoked        Status = "revoked"
	StatusExchangeReturn Status = "exchange_return"
)

var statusFlow = map[Status]Status{
	StatusPending:      StatusInProduction,
	StatusInProduction: StatusReady,
	StatusReady:        StatusShipped,
	StatusShipped:      StatusDelivered,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProduction, StatusReady, StatusShipped, StatusDelivered,
		StatusCompleted, StatusCancelled, StatusRevoked, StatusExchangeReturn:
		return true
	}
	return false
}

// Delivered reports whether the order reached the customer.
func (s Status) Delivered() bool {
	return s == StatusDelivered || s == StatusCompleted
}

// Terminal reports whether no forward transition, cancellation or revocation is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCompleted, StatusCancelled, StatusRevoked, StatusExchangeReturn:
		return true
	}
	return false
}

// Next returns the status that follows s on the forward axis.
func (s Status) Next() (Status, bool) {
	n, ok := statusFlow[s]
	return n, ok
}

// ApprovalStatus is the B2B approval axis.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// ProductionStatus is the B2B production axis, meaningful once approved.
type ProductionStatus string

const (
	ProductionPending          ProductionStatus = "pending_production"
	ProductionInProduction     ProductionStatus = "in_production"
	ProductionReadyForDispatch ProductionStatus = "ready_for_dispatch"
	ProductionDispatched       ProductionStatus = "dispatched"
)

var productionFlow = map[ProductionStatus]ProductionStatus{
	ProductionPending:          ProductionInProduction,
	ProductionInProduction:     ProductionReadyForDispatch,
	ProductionReadyForDispatch: ProductionDispatched,
}

func (s ProductionStatus) Valid() bool {
	switch s {
	case ProductionPending, ProductionInProduction, ProductionReadyForDispatch, ProductionDispatched:
		return true
	}
	return false
}

// Next returns the following production status; dispatched has none.
func (s ProductionStatus) Next() (ProductionStatus, bool) {
	n, ok := productionFlow[s]
	return n, ok
}

// OrderType classifies B2B orders.
type OrderType string

const (
	OrderTypeBuyout      OrderType = "buyout"
	OrderTypeConsignment OrderType = "consignment"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeBuyout || t == OrderTypeConsignment
}

// ConsumesCredit reports whether approving an order of this type draws on vendor credit.
func (t OrderType) ConsumesCredit() bool {
	return t == OrderTypeBuyout
}

// Role is the actor's role as carried in the session token.
type Role string

const (
	RoleStaff        Role = "staff"
	RoleManager      Role = "manager"
	RoleAdmin        Role = "admin"
	RoleVendor       Role = "vendor"
	RoleMerchandiser Role = "merchandiser"
	RoleApprover     Role = "approver"
	RoleProduction   Role = "production"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleManager, RoleAdmin, RoleVendor, RoleMerchandiser, RoleApprover, RoleProduction:
		return true
	}
	return false
}

// IsManager covers the store roles allowed to use the cancellation override.
func (r Role) IsManager() bool { return r == RoleManager || r == RoleAdmin }

// IsMerchandiser covers the roles allowed to edit approved B2B orders.
func (r Role) IsMerchandiser() bool { return r == RoleMerchandiser || r == RoleAdmin }

// CanApprove reports approval authority over B2B orders.
func (r Role) CanApprove() bool { return r == RoleApprover || r == RoleAdmin }

// CanManageProduction reports whether the role may move the production axis.
func (r Role) CanManageProduction() bool {
	return r == RoleProduction || r == RoleMerchandiser || r == RoleAdmin
}

// CanOperateStore reports whether the role may move consumer orders forward.
func (r Role) CanOperateStore() bool {
	return r == RoleStaff || r == RoleManager || r == RoleAdmin
}

// Actor identifies who requests an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// ReasonCode is a cancellation or exchange reason.
type ReasonCode string

const (
	ReasonCustomerRequest  ReasonCode = "customer_request"
	ReasonPlacedByMistake  ReasonCode = "placed_by_mistake"
	ReasonDesignChange     ReasonCode = "design_change"
	ReasonDelayedDelivery  ReasonCode = "delayed_delivery"
	ReasonStoreCreditGiven ReasonCode = "store_credit_given"
	ReasonSizeIssue        ReasonCode = "size_issue"
	ReasonFittingIssue     ReasonCode = "fitting_issue"
	ReasonQualityIssue     ReasonCode = "quality_issue"
	ReasonWrongProduct     ReasonCode = "wrong_product"
)

var reasonLabels = map[ReasonCode]string{
	ReasonCustomerRequest:  "Customer Request",
	ReasonPlacedByMistake:  "Order Placed By Mistake",
	ReasonDesignChange:     "Design Change",
	ReasonDelayedDelivery:  "Delayed Delivery",
	ReasonStoreCreditGiven: "Store Credit Given",
	ReasonSizeIssue:        "Size Issue",
	ReasonFittingIssue:     "Fitting Issue",
	ReasonQualityIssue:     "Quality Issue",
	ReasonWrongProduct:     "Wrong Product",
}

// Label is the human-readable menu text.
func (c ReasonCode) Label() string {
	return reasonLabels[c]
}

// AlterationLocation is where an alteration is carried out.
type AlterationLocation string

const (
	LocationHomeDelivery AlterationLocation = "Home Delivery"
	LocationWarehouse    AlterationLocation = "Warehouse"
	LocationInStore      AlterationLocation = "In-Store"
)

func (l AlterationLocation) Valid() bool {
	switch l {
	case LocationHomeDelivery, LocationWarehouse, LocationInStore:
		return true
	}
	return false
}

// Extra is a priced add-on on a line item.
type Extra struct {
	Name  string  `dynamodbav:"name" json:"name"`
	Price float64 `dynamodbav:"price" json:"price"`
}

// OrderItem is a line item embedded in an order.
type OrderItem struct {
	ProductID   string  `dynamodbav:"product_id" json:"product_id"`
	ProductName string  `dynamodbav:"product_name,omitempty" json:"product_name,omitempty"`
	Size        string  `dynamodbav:"size,omitempty" json:"size,omitempty"`
	TopColor    string  `dynamodbav:"top_color,omitempty" json:"top_color,omitempty"`
	BottomColor string  `dynamodbav:"bottom_color,omitempty" json:"bottom_color,omitempty"`
	Extras      []Extra `dynamodbav:"extras,omitempty" json:"extras,omitempty"`
	Quantity    int     `dynamodbav:"quantity" json:"quantity"`
	UnitPrice   float64 `dynamodbav:"unit_price" json:"unit_price"`
	Notes       string  `dynamodbav:"notes,omitempty" json:"notes,omitempty"`

	// Derived at creation/edit time.
	GrossValue   float64 `dynamodbav:"gross_value" json:"gross_value"`
	Discount     float64 `dynamodbav:"discount" json:"discount"`
	TaxableValue float64 `dynamodbav:"taxable_value" json:"taxable_value"`
	Tax          float64 `dynamodbav:"tax" json:"tax"`
	InvoiceValue float64 `dynamodbav:"invoice_value" json:"invoice_value"`
}

// Order represents the item stored in the orders table.
type Order struct {
	OrderID      string    `dynamodbav:"order_id" json:"order_id"` // PK
	OrderNumber  string    `dynamodbav:"order_number" json:"order_number"`
	IsB2B        bool      `dynamodbav:"is_b2b" json:"is_b2b"`
	IsAlteration bool      `dynamodbav:"is_alteration" json:"is_alteration"`
	OrderType    OrderType `dynamodbav:"order_type,omitempty" json:"order_type,omitempty"`

	Items []OrderItem `dynamodbav:"items" json:"items"`

	CustomerName    string `dynamodbav:"customer_name,omitempty" json:"customer_name,omitempty"`
	CustomerPhone   string `dynamodbav:"customer_phone,omitempty" json:"customer_phone,omitempty"`
	CustomerEmail   string `dynamodbav:"customer_email,omitempty" json:"customer_email,omitempty"`
	DeliveryAddress string `dynamodbav:"delivery_address,omitempty" json:"delivery_address,omitempty"`
	Notes           string `dynamodbav:"notes,omitempty" json:"notes,omitempty"`

	VendorID string `dynamodbav:"vendor_id,omitempty" json:"vendor_id,omitempty"`
	PONumber string `dynamodbav:"po_number,omitempty" json:"po_number,omitempty"`

	// DiscountKind and DiscountValue are the discount as requested; Discount
	// is the amount it came to. Repricing starts from the requested form.
	DiscountKind  string  `dynamodbav:"discount_kind,omitempty" json:"discount_kind,omitempty"`
	DiscountValue float64 `dynamodbav:"discount_value,omitempty" json:"discount_value,omitempty"`

	Subtotal         float64 `dynamodbav:"subtotal" json:"subtotal"`
	Discount         float64 `dynamodbav:"discount" json:"discount"`
	Tax              float64 `dynamodbav:"tax" json:"tax"`
	TaxInclusive     bool    `dynamodbav:"tax_inclusive" json:"tax_inclusive"`
	GrandTotal       float64 `dynamodbav:"grand_total" json:"grand_total"`
	AdvancePayment   float64 `dynamodbav:"advance_payment" json:"advance_payment"`
	RemainingPayment float64 `dynamodbav:"remaining_payment" json:"remaining_payment"`

	Status           Status           `dynamodbav:"status,omitempty" json:"status,omitempty"`
	ApprovalStatus   ApprovalStatus   `dynamodbav:"approval_status,omitempty" json:"approval_status,omitempty"`
	ProductionStatus ProductionStatus `dynamodbav:"production_status,omitempty" json:"production_status,omitempty"`

	CreatedAt              time.Time  `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `dynamodbav:"updated_at" json:"updated_at"`
	CreatedBy              string     `dynamodbav:"created_by,omitempty" json:"created_by,omitempty"`
	DeliveryDate           *time.Time `dynamodbav:"delivery_date,omitempty" json:"delivery_date,omitempty"`
	SubmittedForApprovalAt *time.Time `dynamodbav:"submitted_for_approval_at,omitempty" json:"submitted_for_approval_at,omitempty"`
	ApprovedAt             *time.Time `dynamodbav:"approved_at,omitempty" json:"approved_at,omitempty"`
	ApprovedBy             string     `dynamodbav:"approved_by,omitempty" json:"approved_by,omitempty"`
	RejectedAt             *time.Time `dynamodbav:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	RejectionReason        string     `dynamodbav:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	DeliveredAt            *time.Time `dynamodbav:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	CancelledAt            *time.Time `dynamodbav:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CancelledBy            string     `dynamodbav:"cancelled_by,omitempty" json:"cancelled_by,omitempty"`
	CancelReason           ReasonCode `dynamodbav:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	ExchangeRequestedAt    *time.Time `dynamodbav:"exchange_requested_at,omitempty" json:"exchange_requested_at,omitempty"`
	ExchangeReason         ReasonCode `dynamodbav:"exchange_reason,omitempty" json:"exchange_reason,omitempty"`

	InProductionAt       *time.Time `dynamodbav:"in_production_at,omitempty" json:"in_production_at,omitempty"`
	InProductionBy       string     `dynamodbav:"in_production_by,omitempty" json:"in_production_by,omitempty"`
	InProductionNote     string     `dynamodbav:"in_production_note,omitempty" json:"in_production_note,omitempty"`
	ReadyForDispatchAt   *time.Time `dynamodbav:"ready_for_dispatch_at,omitempty" json:"ready_for_dispatch_at,omitempty"`
	ReadyForDispatchBy   string     `dynamodbav:"ready_for_dispatch_by,omitempty" json:"ready_for_dispatch_by,omitempty"`
	ReadyForDispatchNote string     `dynamodbav:"ready_for_dispatch_note,omitempty" json:"ready_for_dispatch_note,omitempty"`
	DispatchedAt         *time.Time `dynamodbav:"dispatched_at,omitempty" json:"dispatched_at,omitempty"`
	DispatchedBy         string     `dynamodbav:"dispatched_by,omitempty" json:"dispatched_by,omitempty"`
	DispatchedNote       string     `dynamodbav:"dispatched_note,omitempty" json:"dispatched_note,omitempty"`

	// Alteration sub-order linkage and metadata.
	ParentOrderID       string             `dynamodbav:"parent_order_id,omitempty" json:"parent_order_id,omitempty"`
	ParentItemIndex     *int               `dynamodbav:"parent_item_index,omitempty" json:"parent_item_index,omitempty"`
	AlterationNumber    int                `dynamodbav:"alteration_number,omitempty" json:"alteration_number,omitempty"`
	AlterationType      string             `dynamodbav:"alteration_type,omitempty" json:"alteration_type,omitempty"`
	AlterationLocation  AlterationLocation `dynamodbav:"alteration_location,omitempty" json:"alteration_location,omitempty"`
	AlterationNotes     string             `dynamodbav:"alteration_notes,omitempty" json:"alteration_notes,omitempty"`
	Attachments         []string           `dynamodbav:"attachments,omitempty" json:"attachments,omitempty"`
	NotifyWarehouse     bool               `dynamodbav:"notify_warehouse,omitempty" json:"notify_warehouse,omitempty"`
	WarehouseNotifiedAt *time.Time         `dynamodbav:"warehouse_notified_at,omitempty" json:"warehouse_notified_at,omitempty"`

	// PendingRecordID is the approval record opened by the latest submission.
	PendingRecordID string `dynamodbav:"pending_record_id,omitempty" json:"pending_record_id,omitempty"`
	// RequestKey is the scoped idempotency key the order was created under.
	RequestKey      string `dynamodbav:"request_key,omitempty" json:"-"`

	CreditApplied bool  `dynamodbav:"credit_applied,omitempty" json:"credit_applied,omitempty"`
	Version       int64 `dynamodbav:"version" json:"version"`
}

// StatusField returns the attribute and value of the status axis that guards
// writes to this order: approval axis for B2B orders, consumer status otherwise.
func (o Order) StatusField() (string, string) {
	if o.IsB2B {
		return AttrApprovalStatus, string(o.ApprovalStatus)
	}
	return AttrStatus, string(o.Status)
}

// ExpectCurrent builds the write expectation matching o as it was read.
func (o Order) ExpectCurrent() Expect {
	field, value := o.StatusField()
	return Expect{Field: field, Value: value, Version: o.Version}
}

// Vendor is a B2B buyer with a soft credit limit.
type Vendor struct {
	VendorID          string    `dynamodbav:"vendor_id" json:"vendor_id"` // PK
	Name              string    `dynamodbav:"name" json:"name"`
	CreditLimit       float64   `dynamodbav:"credit_limit" json:"credit_limit"`
	CurrentCreditUsed float64   `dynamodbav:"current_credit_used" json:"current_credit_used"`
	UpdatedAt         time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// ApprovalRecord is one submission of a B2B order for approval.
type ApprovalRecord struct {
	RecordID    string         `dynamodbav:"record_id" json:"record_id"` // PK
	OrderID     string         `dynamodbav:"order_id" json:"order_id"`   // GSI
	Status      ApprovalStatus `dynamodbav:"status" json:"status"`
	SubmittedBy string         `dynamodbav:"submitted_by" json:"submitted_by"`
	SubmittedAt time.Time      `dynamodbav:"submitted_at" json:"submitted_at"`
	ReviewedBy  string         `dynamodbav:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time     `dynamodbav:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	Notes       string         `dynamodbav:"notes,omitempty" json:"notes,omitempty"`
}

// Filter narrows ListOrders. Zero-valued fields are ignored.
type Filter struct {
	IsB2B            *bool
	VendorID         string
	Status           Status
	ApprovalStatus   ApprovalStatus
	ProductionStatus ProductionStatus
	ParentOrderID    string
	Limit            int
}

// Match reports whether o satisfies the filter.
func (f Filter) Match(o Order) bool {
	if f.IsB2B != nil && o.IsB2B != *f.IsB2B {
		return false
	}
	if f.VendorID != "" && o.VendorID != f.VendorID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.ApprovalStatus != "" && o.ApprovalStatus != f.ApprovalStatus {
		return false
	}
	if f.ProductionStatus != "" && o.ProductionStatus != f.ProductionStatus {
		return false
	}
	if f.ParentOrderID != "" && o.ParentOrderID != f.ParentOrderID {
		return false
	}
	return true
}
