package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Fatalf("%s = %s, want %s", name, got.StringFixed(2), want)
	}
}

func TestComputeTotals_ExclusiveProportionalDiscount(t *testing.T) {
	lines := []Line{
		{UnitPrice: 1000, Quantity: 2},
		{UnitPrice: 500, Quantity: 1},
	}
	got := ComputeTotals(lines, Discount{Kind: DiscountFixed, Value: 250}, ConsumerGSTRate, Exclusive)

	assertAmount(t, "subtotal", got.Subtotal, "2500")
	assertAmount(t, "line 0 discount", got.Lines[0].Discount, "200")
	assertAmount(t, "line 1 discount", got.Lines[1].Discount, "50")
	assertAmount(t, "taxable", got.Taxable, "2250")
	assertAmount(t, "tax", got.Tax, "112.50")
	assertAmount(t, "grand total", got.GrandTotal, "2362.50")

	if !got.GrandTotal.Equal(got.Subtotal.Sub(got.Discount).Add(got.Tax)) {
		t.Fatalf("grand total does not reconcile")
	}
}

func TestComputeTotals_InclusiveB2B(t *testing.T) {
	lines := []Line{{UnitPrice: 1180, Quantity: 1}}
	got := ComputeTotals(lines, Discount{}, B2BGSTRate, Inclusive)

	assertAmount(t, "taxable", got.Taxable, "1000")
	assertAmount(t, "tax", got.Tax, "180")
	assertAmount(t, "grand total", got.GrandTotal, "1180")
	if !got.Inclusive {
		t.Fatalf("expected inclusive totals")
	}
	if !got.GrandTotal.Equal(got.Subtotal.Sub(got.Discount)) {
		t.Fatalf("inclusive grand total must equal subtotal minus discount")
	}
}

func TestComputeTotals_PercentageDiscount(t *testing.T) {
	lines := []Line{{UnitPrice: 999.99, Quantity: 3, Extras: []float64{100}}}
	got := ComputeTotals(lines, Discount{Kind: DiscountPercentage, Value: 10}, ConsumerGSTRate, Exclusive)
	assertAmount(t, "subtotal", got.Subtotal, "3099.97")
	assertAmount(t, "discount", got.Discount, "310")
}

func TestComputeTotals_DiscountResidueSumsExactly(t *testing.T) {
	lines := []Line{
		{UnitPrice: 100, Quantity: 1},
		{UnitPrice: 100, Quantity: 1},
		{UnitPrice: 100, Quantity: 1},
	}
	got := ComputeTotals(lines, Discount{Kind: DiscountFixed, Value: 100}, ConsumerGSTRate, Exclusive)
	sum := decimal.Zero
	for _, l := range got.Lines {
		sum = sum.Add(l.Discount)
	}
	assertAmount(t, "allocated", sum, "100")
	assertAmount(t, "last line", got.Lines[2].Discount, "33.34")
}

func TestComputeTotals_LenientInputs(t *testing.T) {
	lines := []Line{
		{UnitPrice: math.NaN(), Quantity: 2},
		{UnitPrice: -50, Quantity: 1},
		{UnitPrice: 100, Quantity: -1},
		{UnitPrice: 200, Quantity: 1, Extras: []float64{math.Inf(1), 20}},
	}
	got := ComputeTotals(lines, Discount{Kind: DiscountFixed, Value: 1e9}, ConsumerGSTRate, Exclusive)
	assertAmount(t, "subtotal", got.Subtotal, "220")
	assertAmount(t, "discount clamped", got.Discount, "220")
	assertAmount(t, "grand total", got.GrandTotal, "0")
}

func TestComputeTotals_Empty(t *testing.T) {
	got := ComputeTotals(nil, Discount{Kind: DiscountPercentage, Value: 50}, B2BGSTRate, Inclusive)
	if !got.GrandTotal.IsZero() || len(got.Lines) != 0 {
		t.Fatalf("expected zero totals, got %+v", got)
	}
}

func TestRemaining(t *testing.T) {
	adv, rem := Remaining(d("2362.50"), 500)
	assertAmount(t, "advance", adv, "500")
	assertAmount(t, "remaining", rem, "1862.50")

	adv, rem = Remaining(d("100"), 150)
	assertAmount(t, "advance", adv, "100")
	assertAmount(t, "remaining", rem, "0")
}

func TestParseAmount(t *testing.T) {
	assertAmount(t, "plain", ParseAmount(" 12.345 "), "12.35")
	assertAmount(t, "garbage", ParseAmount("abc"), "0")
	assertAmount(t, "negative", ParseAmount("-3"), "0")
}
