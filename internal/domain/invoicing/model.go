package invoicing

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// InvoiceKind summarizes the item kinds on an invoice.
type InvoiceKind string

const (
	InvoiceConsultation InvoiceKind = "CONSULTATION"
	InvoicePharmacy     InvoiceKind = "PHARMACY"
	InvoiceLabTest      InvoiceKind = "LAB_TEST"
	InvoiceMixed        InvoiceKind = "MIXED"
)

func (k InvoiceKind) Valid() bool {
	switch k {
	case InvoiceConsultation, InvoicePharmacy, InvoiceLabTest, InvoiceMixed:
		return true
	}
	return false
}

// kindFor maps an item kind to the invoice kind of an invoice holding only
// items of that kind.
func kindFor(k ItemKind) InvoiceKind {
	switch k {
	case KindConsultation:
		return InvoiceConsultation
	case KindPharmacyProduct:
		return InvoicePharmacy
	case KindLabTest:
		return InvoiceLabTest
	case KindOther:
		return InvoiceMixed
	}
	return InvoiceMixed
}

// DeriveInvoiceKind returns the single-kind invoice kind when every item
// shares one kind, and MIXED otherwise.
func DeriveInvoiceKind(items []LineItem) InvoiceKind {
	if len(items) == 0 {
		return InvoiceMixed
	}
	kinds := lo.Uniq(lo.Map(items, func(li LineItem, _ int) ItemKind { return li.Kind }))
	if len(kinds) != 1 {
		return InvoiceMixed
	}
	return kindFor(kinds[0])
}

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusPartial   PaymentStatus = "PARTIAL"
	StatusPaid      PaymentStatus = "PAID"
	StatusCancelled PaymentStatus = "CANCELLED"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodUPI          PaymentMethod = "UPI"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodOther        PaymentMethod = "OTHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodUPI, MethodBankTransfer, MethodOther:
		return true
	}
	return false
}

// Invoice maps to the invoice table. Only the absolute amounts are
// authoritative; DiscountPercent and TaxRatePercent are nil on rows written
// before they were stored.
type Invoice struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	InvoiceNumber   string           `db:"invoice_number" json:"invoice_number"`
	PatientID       uuid.UUID        `db:"patient_id" json:"patient_id"`
	ClinicianID     *uuid.UUID       `db:"clinician_id" json:"clinician_id,omitempty"`
	Kind            InvoiceKind      `db:"kind" json:"kind"`
	Subtotal        decimal.Decimal  `db:"subtotal" json:"subtotal"`
	DiscountAmount  decimal.Decimal  `db:"discount_amount" json:"discount_amount"`
	DiscountPercent *decimal.Decimal `db:"discount_percent" json:"discount_percent,omitempty"`
	TaxRatePercent  *decimal.Decimal `db:"tax_rate_percent" json:"tax_rate_percent,omitempty"`
	TaxAmount       decimal.Decimal  `db:"tax_amount" json:"tax_amount"`
	TotalAmount     decimal.Decimal  `db:"total_amount" json:"total_amount"`
	PaidAmount      decimal.Decimal  `db:"paid_amount" json:"paid_amount"`
	DueAmount       decimal.Decimal  `db:"due_amount" json:"due_amount"`
	PaymentStatus   PaymentStatus    `db:"payment_status" json:"payment_status"`
	Notes           *string          `db:"notes" json:"notes,omitempty"`
	Items           []LineItem       `json:"items"`
	Payments        []Payment        `json:"payments,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// Payment maps to the invoice_payment table.
type Payment struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	InvoiceID uuid.UUID       `db:"invoice_id" json:"invoice_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Method    PaymentMethod   `db:"method" json:"method"`
	Reference *string         `db:"reference" json:"reference,omitempty"`
	PaidAt    time.Time       `db:"paid_at" json:"paid_at"`
}

// Prescription is the slice of a clinical record billing cares about.
type Prescription struct {
	ID          uuid.UUID            `json:"id"`
	PatientID   uuid.UUID            `json:"patient_id"`
	ClinicianID *uuid.UUID           `json:"clinician_id,omitempty"`
	IssuedAt    time.Time            `json:"issued_at"`
	Medicines   []PrescribedMedicine `json:"medicines"`
	LabTests    []PrescribedLabTest  `json:"lab_tests"`
}

type PrescribedMedicine struct {
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Name      string     `json:"name"`
}

type PrescribedLabTest struct {
	LabTestID *uuid.UUID `json:"lab_test_id,omitempty"`
	Name      string     `json:"name"`
}
