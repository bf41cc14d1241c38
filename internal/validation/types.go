package validation

import (
	"time"

	"github.com/imrishuroy/tailor-orderflow/internal/alteration"
	"github.com/imrishuroy/tailor-orderflow/internal/lifecycle"
	"github.com/imrishuroy/tailor-orderflow/internal/money"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
)

// Extra is a priced add-on of a line item.
type Extra struct {
	Name  string  `json:"name" validate:"required"`
	Price float64 `json:"price" validate:"gte=0"`
}

// Item represents a single order line item.
type Item struct {
	ProductID   string  `json:"product_id" validate:"required"`
	ProductName string  `json:"product_name,omitempty"`
	Size        string  `json:"size,omitempty"`
	TopColor    string  `json:"top_color,omitempty"`
	BottomColor string  `json:"bottom_color,omitempty"`
	Extras      []Extra `json:"extras,omitempty" validate:"omitempty,dive"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"` // price per unit, before extras
	Notes       string  `json:"notes,omitempty"`
}

// Discount is an order-level discount.
type Discount struct {
	Type  string  `json:"type" validate:"required,oneof=fixed percentage"`
	Value float64 `json:"value" validate:"gte=0"`
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	IsB2B       bool   `json:"is_b2b"`
	OrderType   string `json:"order_type,omitempty" validate:"omitempty,oneof=buyout consignment"`
	OrderNumber string `json:"order_number,omitempty"`
	VendorID    string `json:"vendor_id,omitempty"`
	PONumber    string `json:"po_number,omitempty"`

	Items          []Item    `json:"items" validate:"required,min=1,dive"` // at least one item
	Discount       *Discount `json:"discount,omitempty"`
	AdvancePayment float64   `json:"advance_payment" validate:"gte=0"`

	CustomerName    string     `json:"customer_name,omitempty"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	CustomerEmail   string     `json:"customer_email,omitempty" validate:"omitempty,email"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	DeliveryDate    *time.Time `json:"delivery_date,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// EditOrderRequest is the payload for PUT /orders/:id. Absent fields are left unchanged.
type EditOrderRequest struct {
	Items          []Item    `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	Discount       *Discount `json:"discount,omitempty"`
	AdvancePayment *float64  `json:"advance_payment,omitempty" validate:"omitempty,gte=0"`

	CustomerName    *string    `json:"customer_name,omitempty"`
	CustomerPhone   *string    `json:"customer_phone,omitempty"`
	CustomerEmail   *string    `json:"customer_email,omitempty" validate:"omitempty,email"`
	DeliveryAddress *string    `json:"delivery_address,omitempty"`
	DeliveryDate    *time.Time `json:"delivery_date,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	PONumber        *string    `json:"po_number,omitempty"`
}

// QuoteRequest is the payload for POST /totals.
type QuoteRequest struct {
	IsB2B          bool      `json:"is_b2b"`
	Items          []Item    `json:"items" validate:"required,min=1,dive"`
	Discount       *Discount `json:"discount,omitempty"`
	AdvancePayment float64   `json:"advance_payment" validate:"gte=0"`
}

// NotesRequest carries optional notes for submit and approve.
type NotesRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=2000"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// ReasonRequest is the payload for cancellations and exchanges.
type ReasonRequest struct {
	ReasonCode string `json:"reason_code" validate:"required"`
}

// ProductionRequest advances production; Target, when set, must be the next status.
type ProductionRequest struct {
	Target string `json:"target,omitempty" validate:"omitempty,oneof=pending_production in_production ready_for_dispatch dispatched"`
	Note   string `json:"note,omitempty"`
}

// AlterationRequest is the payload for POST /orders/:id/alterations
type AlterationRequest struct {
	ItemIndex       *int       `json:"item_index" validate:"required,gte=0"`
	AlterationType  string     `json:"alteration_type" validate:"required"`
	Location        string     `json:"alteration_location" validate:"required,alteration_location"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	DeliveryDate    *time.Time `json:"delivery_date,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Attachments     []string   `json:"attachments,omitempty" validate:"omitempty,max=10,dive,url"`
}

// VendorRequest is the payload for PUT /vendors/:id.
type VendorRequest struct {
	Name        string  `json:"name" validate:"required"`
	CreditLimit float64 `json:"credit_limit" validate:"gte=0"`
}

func toItems(in []Item) []orders.OrderItem {
	if in == nil {
		return nil
	}
	out := make([]orders.OrderItem, len(in))
	for i, it := range in {
		var extras []orders.Extra
		for _, x := range it.Extras {
			extras = append(extras, orders.Extra{Name: x.Name, Price: x.Price})
		}
		out[i] = orders.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Size:        it.Size,
			TopColor:    it.TopColor,
			BottomColor: it.BottomColor,
			Extras:      extras,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Notes:       it.Notes,
		}
	}
	return out
}

func (d *Discount) toDiscount() money.Discount {
	if d == nil {
		return money.Discount{}
	}
	return money.Discount{Kind: money.DiscountKind(d.Type), Value: d.Value}
}

func (r CreateOrderRequest) ToInput() lifecycle.OrderInput {
	return lifecycle.OrderInput{
		IsB2B:           r.IsB2B,
		OrderType:       orders.OrderType(r.OrderType),
		OrderNumber:     r.OrderNumber,
		VendorID:        r.VendorID,
		PONumber:        r.PONumber,
		Items:           toItems(r.Items),
		Discount:        r.Discount.toDiscount(),
		AdvancePayment:  r.AdvancePayment,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		CustomerEmail:   r.CustomerEmail,
		DeliveryAddress: r.DeliveryAddress,
		DeliveryDate:    r.DeliveryDate,
		Notes:           r.Notes,
	}
}

func (r EditOrderRequest) ToInput() lifecycle.EditInput {
	in := lifecycle.EditInput{
		Items:           toItems(r.Items),
		AdvancePayment:  r.AdvancePayment,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		CustomerEmail:   r.CustomerEmail,
		DeliveryAddress: r.DeliveryAddress,
		DeliveryDate:    r.DeliveryDate,
		Notes:           r.Notes,
		PONumber:        r.PONumber,
	}
	if r.Discount != nil {
		d := r.Discount.toDiscount()
		in.Discount = &d
	}
	return in
}

func (r QuoteRequest) Lines() ([]orders.OrderItem, money.Discount) {
	return toItems(r.Items), r.Discount.toDiscount()
}

func (r AlterationRequest) ToDetails() alteration.Details {
	return alteration.Details{
		Type:            r.AlterationType,
		Location:        orders.AlterationLocation(r.Location),
		DeliveryAddress: r.DeliveryAddress,
		DeliveryDate:    r.DeliveryDate,
		Notes:           r.Notes,
		Attachments:     r.Attachments,
	}
}
