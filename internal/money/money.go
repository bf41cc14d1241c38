// Package money computes order totals: proportional discount allocation and
// GST under the consumer (tax added on top) and B2B (tax included) conventions.
//
// Every amount is rounded to two decimal places where it is computed, so
// stored and displayed values never drift. Inputs are lenient: missing,
// negative or non-finite numbers count as zero.
package money

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Convention selects how tax relates to the line values.
type Convention int

const (
	// Exclusive adds tax on top of the taxable value (consumer GST).
	Exclusive Convention = iota
	// Inclusive backs tax out of a tax-inclusive total (B2B GST).
	Inclusive
)

func (c Convention) String() string {
	if c == Inclusive {
		return "inclusive"
	}
	return "exclusive"
}

// Default GST rates of the two flows.
var (
	ConsumerGSTRate = decimal.RequireFromString("0.05")
	B2BGSTRate      = decimal.RequireFromString("0.18")
)

var hundred = decimal.NewFromInt(100)

// DiscountKind is how an order-level discount is expressed.
type DiscountKind string

const (
	DiscountFixed      DiscountKind = "fixed"
	DiscountPercentage DiscountKind = "percentage"
)

// Discount is an order-level discount. The zero value is no discount.
type Discount struct {
	Kind  DiscountKind
	Value float64
}

// Line is the priced part of one order line.
type Line struct {
	UnitPrice float64
	Quantity  int
	Extras    []float64
}

// LineTotals is the computed breakdown of one line.
type LineTotals struct {
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Taxable  decimal.Decimal
	Tax      decimal.Decimal
	Invoice  decimal.Decimal
}

// Totals is the computed breakdown of an order.
type Totals struct {
	Lines      []LineTotals
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Taxable    decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
	Inclusive  bool
}

// Amount converts f to a 2dp decimal, treating NaN, ±Inf and negatives as zero.
func Amount(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f).Round(2)
}

// ParseAmount parses s leniently; anything unparsable or negative is zero.
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

// Gross is Σ(unitPrice × quantity) + Σ(extra prices) for one line.
func Gross(l Line) decimal.Decimal {
	qty := l.Quantity
	if qty < 0 {
		qty = 0
	}
	g := Amount(l.UnitPrice).Mul(decimal.NewFromInt(int64(qty)))
	for _, e := range l.Extras {
		g = g.Add(Amount(e))
	}
	return g.Round(2)
}

// OrderDiscount resolves d against subtotal, clamped to [0, subtotal].
func OrderDiscount(d Discount, subtotal decimal.Decimal) decimal.Decimal {
	amt := Amount(d.Value)
	if d.Kind == DiscountPercentage {
		if amt.GreaterThan(hundred) {
			amt = hundred
		}
		amt = subtotal.Mul(amt).Div(hundred)
	}
	amt = amt.Round(2)
	if amt.GreaterThan(subtotal) {
		return subtotal
	}
	return amt
}

// ComputeTotals prices lines, allocates the order discount proportionally to
// each line's share of the subtotal and applies tax at rate under conv.
func ComputeTotals(lines []Line, discount Discount, rate decimal.Decimal, conv Convention) Totals {
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	t := Totals{Lines: make([]LineTotals, len(lines)), Inclusive: conv == Inclusive}

	for i, l := range lines {
		t.Lines[i].Gross = Gross(l)
		t.Subtotal = t.Subtotal.Add(t.Lines[i].Gross)
	}
	t.Discount = OrderDiscount(discount, t.Subtotal)
	allocate(t.Lines, t.Discount, t.Subtotal)

	divisor := decimal.NewFromInt(1).Add(rate)
	for i := range t.Lines {
		lt := &t.Lines[i]
		net := lt.Gross.Sub(lt.Discount)
		if conv == Inclusive {
			lt.Taxable = net.Div(divisor).Round(2)
			lt.Tax = net.Sub(lt.Taxable)
			lt.Invoice = net
		} else {
			lt.Taxable = net
			lt.Tax = net.Mul(rate).Round(2)
			lt.Invoice = net.Add(lt.Tax)
		}
	}

	net := t.Subtotal.Sub(t.Discount)
	if conv == Inclusive {
		t.Taxable = net.Div(divisor).Round(2)
		t.Tax = net.Sub(t.Taxable)
		t.GrandTotal = net
		return t
	}
	for _, lt := range t.Lines {
		t.Taxable = t.Taxable.Add(lt.Taxable)
		t.Tax = t.Tax.Add(lt.Tax)
	}
	t.GrandTotal = t.Subtotal.Sub(t.Discount).Add(t.Tax)
	return t
}

// allocate spreads discount across lines by gross share. The rounding
// residue lands on the last line with a non-zero gross so the line
// discounts always sum to the order discount.
func allocate(lines []LineTotals, discount, subtotal decimal.Decimal) {
	if subtotal.IsZero() || discount.IsZero() {
		return
	}
	last := -1
	allocated := decimal.Zero
	for i := range lines {
		if lines[i].Gross.IsZero() {
			continue
		}
		lines[i].Discount = discount.Mul(lines[i].Gross).Div(subtotal).Round(2)
		allocated = allocated.Add(lines[i].Discount)
		last = i
	}
	if last >= 0 {
		lines[last].Discount = lines[last].Discount.Add(discount.Sub(allocated))
	}
}

// Remaining is the balance due after an advance payment, never below zero.
// The advance itself is clamped to the grand total.
func Remaining(grandTotal decimal.Decimal, advance float64) (decimal.Decimal, decimal.Decimal) {
	adv := Amount(advance)
	if adv.GreaterThan(grandTotal) {
		adv = grandTotal
	}
	return adv, grandTotal.Sub(adv)
}
