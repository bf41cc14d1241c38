package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/tailor-orderflow/internal/orders"
)

// New returns a configured validator with the custom tags and struct-level
// rules registered. Field errors are reported by their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	err := v.RegisterValidation("alteration_location", func(fl validatorv10.FieldLevel) bool {
		return orders.AlterationLocation(fl.Field().String()).Valid()
	})
	if err != nil {
		panic("validation: register alteration_location: " + err.Error())
	}

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(discountStructValidation, Discount{})

	return v
}

// createOrderStructValidation enforces the fields each flow requires:
// B2B orders name a vendor, a PO number and an order type; consumer orders
// name a customer.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	if req.IsB2B {
		if strings.TrimSpace(req.VendorID) == "" {
			sl.ReportError(req.VendorID, "vendor_id", "VendorID", "required_for_b2b", "")
		}
		if strings.TrimSpace(req.PONumber) == "" {
			sl.ReportError(req.PONumber, "po_number", "PONumber", "required_for_b2b", "")
		}
		if req.OrderType == "" {
			sl.ReportError(req.OrderType, "order_type", "OrderType", "required_for_b2b", "")
		}
		return
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		sl.ReportError(req.CustomerName, "customer_name", "CustomerName", "required_for_consumer", "")
	}
}

// discountStructValidation caps percentage discounts at 100.
func discountStructValidation(sl validatorv10.StructLevel) {
	d := sl.Current().Interface().(Discount)
	if d.Type == "percentage" && d.Value > 100 {
		sl.ReportError(d.Value, "value", "Value", "max_percentage", "100")
	}
}
