package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DraftInput is the full editable state of an invoice as sent by the UI.
type DraftInput struct {
	PatientID      uuid.UUID       `json:"patient_id"`
	ClinicianID    *uuid.UUID      `json:"clinician_id,omitempty"`
	Kind           InvoiceKind     `json:"kind,omitempty"`
	Items          []ItemInput     `json:"items"`
	Discount       DiscountSpec    `json:"discount"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	Notes          *string         `json:"notes,omitempty"`
}

// DraftView is a draft with its live totals.
type DraftView struct {
	PatientID      uuid.UUID       `json:"patient_id"`
	ClinicianID    *uuid.UUID      `json:"clinician_id,omitempty"`
	Kind           InvoiceKind     `json:"kind"`
	Items          []LineItem      `json:"items"`
	Discount       DiscountSpec    `json:"discount"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	Totals         Totals          `json:"totals"`
	Prefill        *PrefillOutcome `json:"prefill,omitempty"`
}

func viewOf(d *Draft) (*DraftView, error) {
	t, err := d.Totals()
	if err != nil {
		return nil, err
	}
	return &DraftView{
		PatientID:      d.PatientID,
		ClinicianID:    d.ClinicianID,
		Kind:           d.invoiceKind(),
		Items:          d.Items(),
		Discount:       d.Discount(),
		TaxRatePercent: d.TaxRatePercent(),
		Totals:         t,
	}, nil
}

type Service struct {
	invoices       InvoiceRepository
	tx             Transactor
	fees           *FeeResolver
	prefill        *PrefillMerger
	logger         zerolog.Logger
	prefillTimeout time.Duration
	now            func() time.Time
}

func NewService(invoices InvoiceRepository, tx Transactor, fees FeeSchedule, records ClinicalRecordStore, catalog Catalog, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "invoicing").Logger()
	return &Service{
		invoices: invoices,
		tx:       tx,
		fees:     NewFeeResolver(fees, logger),
		prefill:  NewPrefillMerger(records, catalog, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// SetPrefillTimeout bounds the clinical-record and catalog lookups of one
// prefill. Zero means no bound beyond the caller's context.
func (s *Service) SetPrefillTimeout(d time.Duration) {
	s.prefillTimeout = d
}

// buildDraft replays in onto a fresh draft. The clinician is set before the
// items so consultation rows without a price pick up the clinician's fee.
func (s *Service) buildDraft(ctx context.Context, in DraftInput, origin draftOrigin) (*Draft, error) {
	d := NewDraft(in.PatientID, s.fees)
	d.origin = origin
	d.ClinicianID = copyID(in.ClinicianID)
	d.Kind = in.Kind
	d.Notes = trimmedOrNil(in.Notes)
	for i, item := range in.Items {
		if _, err := d.AddItem(ctx, item); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	if err := d.SetDiscount(in.Discount); err != nil {
		return nil, err
	}
	if err := d.SetTaxRate(in.TaxRatePercent); err != nil {
		return nil, err
	}
	return d, nil
}

// Preview resolves default prices and computes totals without persisting.
func (s *Service) Preview(ctx context.Context, in DraftInput) (*DraftView, error) {
	d, err := s.buildDraft(ctx, in, originNew)
	if err != nil {
		return nil, err
	}
	return viewOf(d)
}

// Prefill starts a new draft for the patient seeded from their latest
// prescription. A missing or unreachable record yields an empty draft.
func (s *Service) Prefill(ctx context.Context, patientID uuid.UUID) (*DraftView, error) {
	if patientID == uuid.Nil {
		return nil, invalid("patient_id", "is required")
	}
	if s.prefillTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.prefillTimeout)
		defer cancel()
	}
	d := NewDraft(patientID, s.fees)
	outcome, err := s.prefill.Merge(ctx, d)
	if err != nil {
		return nil, err
	}
	v, err := viewOf(d)
	if err != nil {
		return nil, err
	}
	v.Prefill = &outcome
	return v, nil
}

// CreateInvoice computes and persists a new invoice, optionally with an
// immediate payment. The invoice, its items and the payment are written in
// one transaction.
func (s *Service) CreateInvoice(ctx context.Context, in DraftInput, pay *PaymentInput) (*Invoice, error) {
	d, err := s.buildDraft(ctx, in, originNew)
	if err != nil {
		return nil, err
	}
	if err := d.validateForSubmit(); err != nil {
		return nil, err
	}
	totals, err := d.Totals()
	if err != nil {
		return nil, err
	}

	taxRate := d.TaxRatePercent()
	inv := &Invoice{
		PatientID:       d.PatientID,
		ClinicianID:     d.ClinicianID,
		Kind:            d.invoiceKind(),
		DiscountPercent: d.discountPercent(),
		TaxRatePercent:  &taxRate,
		Notes:           d.Notes,
		Items:           d.Items(),
		PaidAmount:      decimal.Zero,
		PaymentStatus:   StatusPending,
	}
	inv.applyTotals(totals)
	if pay != nil {
		if _, err := inv.RecordPayment(*pay, s.now()); err != nil {
			return nil, err
		}
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.invoices.Create(ctx, inv)
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("patient_id", inv.PatientID.String()).
		Str("total", inv.TotalAmount.StringFixed(MoneyPlaces)).
		Str("status", string(inv.PaymentStatus)).
		Msg("invoice created")
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) ListInvoicesByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Invoice, int, error) {
	return s.invoices.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) SearchInvoices(ctx context.Context, params map[string]string, limit, offset int) ([]*Invoice, int, error) {
	return s.invoices.Search(ctx, params, limit, offset)
}

func (s *Service) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	return s.invoices.ListPayments(ctx, invoiceID)
}

// editable loads an invoice for an edit operation. A missing or cancelled
// invoice is a StateError: there is nothing that can be edited.
func (s *Service) editable(ctx context.Context, id uuid.UUID, lock bool) (*Invoice, error) {
	get := s.invoices.GetByID
	if lock {
		get = s.invoices.GetForUpdate
	}
	inv, err := get(ctx, id)
	if errors.Is(err, ErrInvoiceNotFound) {
		return nil, &StateError{InvoiceID: id.String(), Reason: "no invoice loaded for editing"}
	}
	if err != nil {
		return nil, err
	}
	if inv.PaymentStatus == StatusCancelled {
		return nil, &StateError{InvoiceID: id.String(), Reason: "cancelled invoices cannot be edited"}
	}
	return inv, nil
}

// LoadForEdit reconciles a persisted invoice back into editable inputs.
func (s *Service) LoadForEdit(ctx context.Context, id uuid.UUID) (*EditState, error) {
	inv, err := s.editable(ctx, id, false)
	if err != nil {
		return nil, err
	}
	st := Reconcile(inv)
	if st.TaxRateUnknown {
		s.logger.Warn().Str("invoice_id", id.String()).Msg("tax rate not recoverable for fully discounted invoice")
	}
	return &st, nil
}

// UpdateInvoice replaces the items, discount and tax of an existing invoice
// and recomputes its amounts. Recorded payments are kept, so the new total
// may not drop below the amount already paid.
func (s *Service) UpdateInvoice(ctx context.Context, id uuid.UUID, in DraftInput) (*Invoice, error) {
	var inv *Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.editable(ctx, id, true)
		if err != nil {
			return err
		}
		if in.PatientID == uuid.Nil {
			in.PatientID = inv.PatientID
		}
		if in.PatientID != inv.PatientID {
			return invalid("patient_id", "cannot be changed on an existing invoice")
		}
		d, err := s.buildDraft(ctx, in, originEdit)
		if err != nil {
			return err
		}
		if err := d.validateForSubmit(); err != nil {
			return err
		}
		totals, err := d.Totals()
		if err != nil {
			return err
		}
		if totals.TotalAmount.LessThan(inv.PaidAmount) {
			return invalid("items", "new total %s is below the amount already paid %s", totals.TotalAmount, inv.PaidAmount)
		}

		taxRate := d.TaxRatePercent()
		inv.ClinicianID = d.ClinicianID
		inv.Kind = d.invoiceKind()
		inv.DiscountPercent = d.discountPercent()
		inv.TaxRatePercent = &taxRate
		inv.Notes = d.Notes
		inv.Items = d.Items()
		inv.applyTotals(totals)
		return s.invoices.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("total", inv.TotalAmount.StringFixed(MoneyPlaces)).
		Str("status", string(inv.PaymentStatus)).
		Msg("invoice updated")
	return inv, nil
}

// RecordPayment adds a payment to an invoice and persists the new paid and
// due amounts together with the payment row.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, in PaymentInput) (*Invoice, *Payment, error) {
	var (
		inv *Invoice
		p   *Payment
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invoices.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		p, err = inv.RecordPayment(in, s.now())
		if err != nil {
			return err
		}
		return s.invoices.AddPayment(ctx, inv, p)
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("amount", p.Amount.StringFixed(MoneyPlaces)).
		Str("method", string(p.Method)).
		Str("status", string(inv.PaymentStatus)).
		Msg("payment recorded")
	return inv, p, nil
}

// CancelInvoice marks an invoice cancelled. No further payments or edits are
// accepted afterwards.
func (s *Service) CancelInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	var inv *Invoice
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.invoices.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := inv.Cancel(); err != nil {
			return err
		}
		return s.invoices.SetStatus(ctx, inv.ID, inv.PaymentStatus)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("invoice_id", inv.ID.String()).Msg("invoice cancelled")
	return inv, nil
}
