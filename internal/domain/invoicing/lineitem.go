package invoicing

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ItemKind tags a line item. Kind-specific fields (CatalogRef, ClinicianRef)
// are only meaningful for the kinds listed on them.
type ItemKind string

const (
	KindConsultation    ItemKind = "CONSULTATION"
	KindPharmacyProduct ItemKind = "PHARMACY_PRODUCT"
	KindLabTest         ItemKind = "LAB_TEST"
	KindOther           ItemKind = "OTHER"
)

// Valid reports whether k is one of the four known kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case KindConsultation, KindPharmacyProduct, KindLabTest, KindOther:
		return true
	}
	return false
}

// carriesCatalogRef reports whether items of this kind may point into an
// external catalog.
func (k ItemKind) carriesCatalogRef() bool {
	switch k {
	case KindPharmacyProduct, KindLabTest:
		return true
	case KindConsultation, KindOther:
		return false
	}
	return false
}

// defaultDescription is used when an item is added without display text.
func (k ItemKind) defaultDescription() string {
	switch k {
	case KindConsultation:
		return "Consultation"
	case KindPharmacyProduct:
		return "Pharmacy product"
	case KindLabTest:
		return "Lab test"
	case KindOther:
		return "Other charge"
	}
	return ""
}

// LineItem is one billable row. LineAmount is always derived.
type LineItem struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	Kind             ItemKind        `db:"kind" json:"kind"`
	Description      string          `db:"description" json:"description"`
	Quantity         int             `db:"quantity" json:"quantity"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unit_price"`
	CatalogRef       *uuid.UUID      `db:"catalog_ref" json:"catalog_ref,omitempty"`
	ClinicianRef     *uuid.UUID      `db:"clinician_ref" json:"clinician_ref,omitempty"`
	PriceIsDefaulted bool            `db:"price_is_defaulted" json:"price_is_defaulted"`
}

// LineAmount returns quantity * unit price, unrounded.
func (li LineItem) LineAmount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// MarshalJSON adds the derived line_amount to the wire form.
func (li LineItem) MarshalJSON() ([]byte, error) {
	type alias LineItem
	return json.Marshal(struct {
		alias
		LineAmount decimal.Decimal `json:"line_amount"`
	}{alias(li), li.LineAmount()})
}

func (li LineItem) validate() error {
	if !li.Kind.Valid() {
		return invalid("kind", "unknown item kind %q", li.Kind)
	}
	if li.Quantity < 1 {
		return invalid("quantity", "must be at least 1, got %d", li.Quantity)
	}
	if li.UnitPrice.IsNegative() {
		return invalid("unit_price", "must not be negative, got %s", li.UnitPrice)
	}
	if hasMoreThanTwoPlaces(li.UnitPrice) {
		return invalid("unit_price", "must have at most %d decimal places, got %s", MoneyPlaces, li.UnitPrice)
	}
	if li.CatalogRef != nil && !li.Kind.carriesCatalogRef() {
		return invalid("catalog_ref", "not allowed on %s items", li.Kind)
	}
	return nil
}

// ItemList is the ordered set of line items on one invoice.
type ItemList struct {
	items []LineItem
}

// Items returns a copy of the rows in display order.
func (l *ItemList) Items() []LineItem {
	out := make([]LineItem, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of rows.
func (l *ItemList) Len() int { return len(l.items) }

func (l *ItemList) indexOf(id uuid.UUID) int {
	_, i, ok := lo.FindIndexOf(l.items, func(li LineItem) bool { return li.ID == id })
	if !ok {
		return -1
	}
	return i
}

// Add validates li and inserts it. A pharmacy product whose catalog ref is
// already on the list bumps that row's quantity instead of adding a row; every
// other item is appended. The stored row is returned.
func (l *ItemList) Add(li LineItem) (LineItem, error) {
	li.Description = strings.TrimSpace(li.Description)
	if li.Description == "" {
		li.Description = li.Kind.defaultDescription()
	}
	if err := li.validate(); err != nil {
		return LineItem{}, err
	}
	if li.Kind == KindPharmacyProduct && li.CatalogRef != nil {
		_, i, found := lo.FindIndexOf(l.items, func(e LineItem) bool {
			return e.Kind == KindPharmacyProduct && e.CatalogRef != nil && *e.CatalogRef == *li.CatalogRef
		})
		if found {
			l.items[i].Quantity += li.Quantity
			return l.items[i], nil
		}
	}
	if li.ID == uuid.Nil {
		li.ID = uuid.New()
	}
	l.items = append(l.items, li)
	return li, nil
}

// ItemUpdate carries the user-editable fields of a row. Nil fields are left
// unchanged. Setting UnitPrice marks the price as a manual override.
type ItemUpdate struct {
	Description *string          `json:"description,omitempty"`
	Quantity    *int             `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
}

// Update applies upd to the row with the given id. The row is only replaced
// when the result is valid.
func (l *ItemList) Update(id uuid.UUID, upd ItemUpdate) (LineItem, error) {
	i := l.indexOf(id)
	if i < 0 {
		return LineItem{}, invalid("item_id", "no line item %s", id)
	}
	next := l.items[i]
	if upd.Description != nil {
		next.Description = strings.TrimSpace(*upd.Description)
		if next.Description == "" {
			next.Description = next.Kind.defaultDescription()
		}
	}
	if upd.Quantity != nil {
		next.Quantity = *upd.Quantity
	}
	if upd.UnitPrice != nil {
		next.UnitPrice = *upd.UnitPrice
		next.PriceIsDefaulted = false
	}
	if err := next.validate(); err != nil {
		return LineItem{}, err
	}
	l.items[i] = next
	return next, nil
}

// Remove deletes the row with the given id.
func (l *ItemList) Remove(id uuid.UUID) error {
	i := l.indexOf(id)
	if i < 0 {
		return invalid("item_id", "no line item %s", id)
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return nil
}
