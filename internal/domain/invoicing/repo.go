package invoicing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceRepository interface {
	// Create inserts the invoice with its items and any payments.
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// GetForUpdate is GetByID with the invoice row locked for the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// Update rewrites the header and replaces the item rows.
	Update(ctx context.Context, inv *Invoice) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error)
	// Payments
	AddPayment(ctx context.Context, inv *Invoice, p *Payment) error
	ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
	// SetStatus persists a status change that does not touch amounts.
	SetStatus(ctx context.Context, id uuid.UUID, status PaymentStatus) error
}

// Transactor runs fn so that every repository call made with the ctx it
// receives shares one transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// FeeSchedule is clinic settings' per-clinician default consultation fee.
// ok is false when the clinician has no fee configured.
type FeeSchedule interface {
	ClinicianFee(ctx context.Context, clinicianID uuid.UUID) (fee decimal.Decimal, ok bool, err error)
}

// ClinicalRecordStore returns a patient's most recent prescription, or nil
// when the patient has none.
type ClinicalRecordStore interface {
	LatestPrescription(ctx context.Context, patientID uuid.UUID) (*Prescription, error)
}

// Catalog resolves list prices. ok is false when the entry is unknown or has
// no price.
type Catalog interface {
	PharmacyPrice(ctx context.Context, productID uuid.UUID) (price decimal.Decimal, ok bool, err error)
	LabTestPrice(ctx context.Context, labTestID uuid.UUID) (price decimal.Decimal, ok bool, err error)
}
