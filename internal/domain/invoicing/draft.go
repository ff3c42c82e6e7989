package invoicing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type draftOrigin int

const (
	originNew draftOrigin = iota
	originEdit
)

// ItemInput describes a row to add. A nil UnitPrice asks for the default
// price and a nil Quantity means one. PriceIsDefaulted on a priced row keeps
// a price that came from the fee schedule following clinician changes, as
// when an edited invoice is resubmitted.
type ItemInput struct {
	Kind             ItemKind         `json:"kind"`
	Description      string           `json:"description"`
	Quantity         *int             `json:"quantity,omitempty"`
	UnitPrice        *decimal.Decimal `json:"unit_price,omitempty"`
	PriceIsDefaulted bool             `json:"price_is_defaulted,omitempty"`
	CatalogRef       *uuid.UUID       `json:"catalog_ref,omitempty"`
	ClinicianRef     *uuid.UUID       `json:"clinician_ref,omitempty"`
}

// Draft is the in-memory editing state of one invoice. Nothing on it is
// persisted until the service submits it.
type Draft struct {
	PatientID   uuid.UUID
	ClinicianID *uuid.UUID
	Kind        InvoiceKind
	Notes       *string

	items    ItemList
	discount DiscountSpec
	taxRate  decimal.Decimal
	fees     *FeeResolver
	origin   draftOrigin
}

// NewDraft starts an empty draft for a brand-new invoice.
func NewDraft(patientID uuid.UUID, fees *FeeResolver) *Draft {
	return &Draft{PatientID: patientID, discount: NoDiscount, taxRate: decimal.Zero, fees: fees}
}

// IsEdit reports whether the draft was seeded from a persisted invoice.
func (d *Draft) IsEdit() bool { return d.origin == originEdit }

func (d *Draft) Items() []LineItem { return d.items.Items() }

func (d *Draft) Discount() DiscountSpec { return d.discount }

func (d *Draft) TaxRatePercent() decimal.Decimal { return d.taxRate }

// AddItem adds a row, resolving a default price when none is given.
// Consultation rows without a clinician inherit the draft's clinician.
func (d *Draft) AddItem(ctx context.Context, in ItemInput) (LineItem, error) {
	if !in.Kind.Valid() {
		return LineItem{}, invalid("kind", "unknown item kind %q", in.Kind)
	}
	li := LineItem{
		Kind:        in.Kind,
		Description: in.Description,
		Quantity:    1,
		CatalogRef:  copyID(in.CatalogRef),
	}
	if in.Quantity != nil {
		li.Quantity = *in.Quantity
	}
	if in.Kind == KindConsultation {
		li.ClinicianRef = copyID(in.ClinicianRef)
		if li.ClinicianRef == nil {
			li.ClinicianRef = copyID(d.ClinicianID)
		}
	}
	if in.UnitPrice != nil {
		li.UnitPrice = *in.UnitPrice
		li.PriceIsDefaulted = in.PriceIsDefaulted
	} else {
		li.UnitPrice = d.fees.Resolve(ctx, li.Kind, li.ClinicianRef)
		li.PriceIsDefaulted = true
	}
	return d.items.Add(li)
}

// addResolved inserts a row whose price was already resolved elsewhere,
// such as from a catalog during prefill.
func (d *Draft) addResolved(li LineItem) (LineItem, error) {
	return d.items.Add(li)
}

func (d *Draft) UpdateItem(id uuid.UUID, upd ItemUpdate) (LineItem, error) {
	return d.items.Update(id, upd)
}

func (d *Draft) RemoveItem(id uuid.UUID) error {
	return d.items.Remove(id)
}

// SetClinician changes the invoice-level clinician and re-resolves the price
// of every consultation row still carrying a default price.
func (d *Draft) SetClinician(ctx context.Context, clinician *uuid.UUID) {
	d.ClinicianID = copyID(clinician)
	d.fees.Reassign(ctx, d.items.items, clinician)
}

func (d *Draft) SetDiscount(spec DiscountSpec) error {
	spec, err := spec.normalized()
	if err != nil {
		return err
	}
	d.discount = spec
	return nil
}

func (d *Draft) SetTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return invalid("tax_rate_percent", "must not be negative, got %s", rate)
	}
	d.taxRate = rate
	return nil
}

// Totals recomputes the invoice amounts from the current state.
func (d *Draft) Totals() (Totals, error) {
	return ComputeTotals(d.items.items, d.discount, d.taxRate)
}

// validateForSubmit checks what a persisted invoice needs beyond valid items.
func (d *Draft) validateForSubmit() error {
	if d.PatientID == uuid.Nil {
		return invalid("patient_id", "is required")
	}
	if d.items.Len() == 0 {
		return invalid("items", "at least one line item is required")
	}
	if d.Kind != "" && !d.Kind.Valid() {
		return invalid("kind", "unknown invoice kind %q", d.Kind)
	}
	return nil
}

// invoiceKind returns the explicit kind or derives one from the items.
func (d *Draft) invoiceKind() InvoiceKind {
	if d.Kind != "" {
		return d.Kind
	}
	return DeriveInvoiceKind(d.items.items)
}

// discountPercent is the percent to persist alongside the amount, nil for
// fixed discounts.
func (d *Draft) discountPercent() *decimal.Decimal {
	if d.discount.Type != DiscountPercentage || d.discount.Value.IsZero() {
		return nil
	}
	v := d.discount.Value
	return &v
}
