package invoicing

import "github.com/shopspring/decimal"

// DiscountType selects how DiscountSpec.Value is read.
type DiscountType string

const (
	DiscountFixed      DiscountType = "FIXED"
	DiscountPercentage DiscountType = "PERCENTAGE"
)

// DiscountSpec is the editable discount on an invoice. Only its effect,
// the discount amount, is guaranteed to survive persistence.
type DiscountSpec struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// NoDiscount is a zero fixed discount.
var NoDiscount = DiscountSpec{Type: DiscountFixed, Value: decimal.Zero}

func (d DiscountSpec) normalized() (DiscountSpec, error) {
	if d.Type == "" {
		d.Type = DiscountFixed
	}
	switch d.Type {
	case DiscountFixed, DiscountPercentage:
	default:
		return d, invalid("discount.type", "unknown discount type %q", d.Type)
	}
	if d.Value.IsNegative() {
		return d, invalid("discount.value", "must not be negative, got %s", d.Value)
	}
	return d, nil
}

// Totals are the derived monetary fields of an invoice, each rounded to two
// decimals.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxableBase    decimal.Decimal `json:"taxable_base"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// ComputeTotals derives subtotal, discount, tax and total from items.
//
// The discount is taken off the subtotal first and tax is charged on what
// remains. A discount larger than the subtotal is clamped to it, leaving a
// zero taxable base, zero tax and a zero total.
func ComputeTotals(items []LineItem, discount DiscountSpec, taxRatePercent decimal.Decimal) (Totals, error) {
	discount, err := discount.normalized()
	if err != nil {
		return Totals{}, err
	}
	if taxRatePercent.IsNegative() {
		return Totals{}, invalid("tax_rate_percent", "must not be negative, got %s", taxRatePercent)
	}

	subtotal := decimal.Zero
	for _, li := range items {
		if err := li.validate(); err != nil {
			return Totals{}, err
		}
		subtotal = subtotal.Add(li.LineAmount())
	}
	subtotal = Round2(subtotal)

	var rawDiscount decimal.Decimal
	switch discount.Type {
	case DiscountPercentage:
		rawDiscount = percentOf(subtotal, discount.Value)
	case DiscountFixed:
		rawDiscount = discount.Value
	}
	discountAmount := Round2(clamp(rawDiscount, decimal.Zero, subtotal))

	taxableBase := subtotal.Sub(discountAmount)
	taxAmount := Round2(percentOf(taxableBase, taxRatePercent))

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		TaxableBase:    taxableBase,
		TaxAmount:      taxAmount,
		TotalAmount:    taxableBase.Add(taxAmount),
	}, nil
}
