package invoicing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(kind ItemKind, qty int, price string) LineItem {
	return LineItem{Kind: kind, Description: "row", Quantity: qty, UnitPrice: dec(price)}
}

func assertAmount(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: expected %s, got %s", name, want, got)
	}
}

func TestComputeTotals_FixedDiscountThenTax(t *testing.T) {
	items := []LineItem{item(KindConsultation, 2, "100")}
	got, err := ComputeTotals(items, DiscountSpec{Type: DiscountFixed, Value: dec("50")}, dec("18"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, "subtotal", got.Subtotal, "200")
	assertAmount(t, "discount", got.DiscountAmount, "50")
	assertAmount(t, "taxable", got.TaxableBase, "150")
	assertAmount(t, "tax", got.TaxAmount, "27")
	assertAmount(t, "total", got.TotalAmount, "177")
}

func TestComputeTotals_OrderOfOperations(t *testing.T) {
	items := []LineItem{item(KindConsultation, 2, "100")}
	got, err := ComputeTotals(items, DiscountSpec{Type: DiscountFixed, Value: dec("50")}, dec("18"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Tax charged on the full subtotal before discounting: 200 + 36 - 50.
	taxFirst := dec("200").Add(percentOf(dec("200"), dec("18"))).Sub(dec("50"))
	assertAmount(t, "tax-first total", taxFirst, "186")
	if got.TotalAmount.Equal(taxFirst) {
		t.Errorf("discount-then-tax and tax-then-discount should differ, both gave %s", taxFirst)
	}
	assertAmount(t, "discount-then-tax total", got.TotalAmount, "177")
}

func TestComputeTotals_Clamp(t *testing.T) {
	tests := []struct {
		name     string
		discount DiscountSpec
	}{
		{"fixed above subtotal", DiscountSpec{Type: DiscountFixed, Value: dec("500")}},
		{"percentage above 100", DiscountSpec{Type: DiscountPercentage, Value: dec("150")}},
		{"exactly subtotal", DiscountSpec{Type: DiscountFixed, Value: dec("200")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeTotals([]LineItem{item(KindOther, 2, "100")}, tt.discount, dec("18"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertAmount(t, "discount", got.DiscountAmount, "200")
			assertAmount(t, "taxable", got.TaxableBase, "0")
			assertAmount(t, "tax", got.TaxAmount, "0")
			assertAmount(t, "total", got.TotalAmount, "0")
		})
	}
}

func TestComputeTotals_SubtotalIsExactSum(t *testing.T) {
	items := []LineItem{
		item(KindPharmacyProduct, 3, "19.99"),
		item(KindOther, 7, "0.01"),
		item(KindLabTest, 1, "1234.56"),
	}
	got, err := ComputeTotals(items, NoDiscount, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.Zero
	for _, li := range items {
		want = want.Add(li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))))
	}
	assertAmount(t, "subtotal", got.Subtotal, want.String())
	assertAmount(t, "subtotal", got.Subtotal, "1294.60")
	assertAmount(t, "total", got.TotalAmount, "1294.60")
}

func TestComputeTotals_RoundsEachStageHalfUp(t *testing.T) {
	items := []LineItem{
		item(KindOther, 1, "33.33"),
		item(KindOther, 1, "33.33"),
		item(KindOther, 1, "33.33"),
	}
	got, err := ComputeTotals(items, DiscountSpec{Type: DiscountPercentage, Value: dec("10")}, dec("18"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, "subtotal", got.Subtotal, "99.99")
	assertAmount(t, "discount", got.DiscountAmount, "10.00") // 9.999
	assertAmount(t, "taxable", got.TaxableBase, "89.99")
	assertAmount(t, "tax", got.TaxAmount, "16.20") // 16.1982
	assertAmount(t, "total", got.TotalAmount, "106.19")

	half, err := ComputeTotals([]LineItem{item(KindOther, 1, "12.50")}, NoDiscount, dec("1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, "half-up tax", half.TaxAmount, "0.13") // 0.125
}

func TestComputeTotals_Empty(t *testing.T) {
	got, err := ComputeTotals(nil, DiscountSpec{Type: DiscountFixed, Value: dec("10")}, dec("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, "discount", got.DiscountAmount, "0")
	assertAmount(t, "total", got.TotalAmount, "0")
}

func TestComputeTotals_DefaultsToFixed(t *testing.T) {
	got, err := ComputeTotals([]LineItem{item(KindOther, 1, "80")}, DiscountSpec{Value: dec("5")}, decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, "discount", got.DiscountAmount, "5")
}

func TestComputeTotals_Validation(t *testing.T) {
	ok := []LineItem{item(KindOther, 1, "10")}
	tests := []struct {
		name     string
		items    []LineItem
		discount DiscountSpec
		tax      string
	}{
		{"negative tax", ok, NoDiscount, "-1"},
		{"negative discount", ok, DiscountSpec{Type: DiscountFixed, Value: dec("-5")}, "0"},
		{"unknown discount type", ok, DiscountSpec{Type: "BOGO", Value: dec("5")}, "0"},
		{"zero quantity", []LineItem{item(KindOther, 0, "10")}, NoDiscount, "0"},
		{"negative price", []LineItem{item(KindOther, 1, "-10")}, NoDiscount, "0"},
		{"unknown kind", []LineItem{item("SURGERY", 1, "10")}, NoDiscount, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeTotals(tt.items, tt.discount, dec(tt.tax))
			if !IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}
