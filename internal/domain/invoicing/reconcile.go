package invoicing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EditState is the editable form of a persisted invoice.
//
// TaxRateUnknown is set when the invoice stored no tax rate and its taxable
// base was zero, so the original rate cannot be recovered. TaxRatePercent is
// zero in that case and must not be shown as the rate actually charged.
type EditState struct {
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	PatientID      uuid.UUID       `json:"patient_id"`
	ClinicianID    *uuid.UUID      `json:"clinician_id,omitempty"`
	Kind           InvoiceKind     `json:"kind"`
	Notes          *string         `json:"notes,omitempty"`
	Items          []LineItem      `json:"items"`
	Discount       DiscountSpec    `json:"discount"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	TaxRateUnknown bool            `json:"tax_rate_unknown"`
}

// Reconcile rebuilds the discount and tax inputs of a persisted invoice.
//
// A stored non-zero discount percent yields a percentage discount; anything
// else becomes a fixed discount of the stored amount. A stored tax rate is
// used as is. Older rows without one get the rate back-solved from the tax
// amount over the taxable base, rounded to two decimals.
func Reconcile(inv *Invoice) EditState {
	st := EditState{
		InvoiceID:   inv.ID,
		PatientID:   inv.PatientID,
		ClinicianID: copyID(inv.ClinicianID),
		Kind:        inv.Kind,
		Notes:       inv.Notes,
		Items:       make([]LineItem, len(inv.Items)),
	}
	for i, li := range inv.Items {
		li.CatalogRef = copyID(li.CatalogRef)
		li.ClinicianRef = copyID(li.ClinicianRef)
		st.Items[i] = li
	}

	if inv.DiscountPercent != nil && !inv.DiscountPercent.IsZero() {
		st.Discount = DiscountSpec{Type: DiscountPercentage, Value: *inv.DiscountPercent}
	} else {
		st.Discount = DiscountSpec{Type: DiscountFixed, Value: inv.DiscountAmount}
	}

	st.TaxRatePercent, st.TaxRateUnknown = backSolveTaxRate(inv)
	return st
}

func backSolveTaxRate(inv *Invoice) (decimal.Decimal, bool) {
	if inv.TaxRatePercent != nil {
		return *inv.TaxRatePercent, false
	}
	taxableBase := inv.Subtotal.Sub(inv.DiscountAmount)
	if !taxableBase.IsPositive() {
		return decimal.Zero, true
	}
	return Round2(inv.TaxAmount.Mul(hundred).Div(taxableBase)), false
}

// Draft seeds an edit draft from the reconciled state. Items keep their
// persisted default-price flag, so defaulted consultations still follow a
// clinician change. Edit drafts never accept a prefill.
func (st EditState) Draft(fees *FeeResolver) *Draft {
	d := &Draft{
		PatientID:   st.PatientID,
		ClinicianID: copyID(st.ClinicianID),
		Kind:        st.Kind,
		Notes:       st.Notes,
		discount:    st.Discount,
		taxRate:     st.TaxRatePercent,
		fees:        fees,
		origin:      originEdit,
	}
	d.items.items = append([]LineItem(nil), st.Items...)
	return d
}
