package invoicing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentInput is a payment to record against an invoice.
type PaymentInput struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Reference *string         `json:"reference,omitempty"`
}

// applyTotals copies computed totals onto the invoice and refreshes the due
// amount and status against what has already been paid.
func (inv *Invoice) applyTotals(t Totals) {
	inv.Subtotal = t.Subtotal
	inv.DiscountAmount = t.DiscountAmount
	inv.TaxAmount = t.TaxAmount
	inv.TotalAmount = t.TotalAmount
	inv.DueAmount = inv.TotalAmount.Sub(inv.PaidAmount)
	inv.refreshStatus()
}

// refreshStatus derives the payment status from the paid and due amounts.
// A cancelled invoice stays cancelled.
func (inv *Invoice) refreshStatus() {
	if inv.PaymentStatus == StatusCancelled {
		return
	}
	switch {
	case inv.DueAmount.IsZero():
		inv.PaymentStatus = StatusPaid
	case inv.PaidAmount.IsZero():
		inv.PaymentStatus = StatusPending
	default:
		inv.PaymentStatus = StatusPartial
	}
}

// RecordPayment appends a payment of in.Amount, bounded by the amount still
// due, and moves the invoice to PARTIAL or PAID.
func (inv *Invoice) RecordPayment(in PaymentInput, at time.Time) (*Payment, error) {
	if inv.PaymentStatus == StatusCancelled {
		return nil, &StateError{InvoiceID: inv.ID.String(), Reason: "cannot record a payment on a cancelled invoice"}
	}
	if !in.Amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero, got %s", in.Amount)
	}
	if hasMoreThanTwoPlaces(in.Amount) {
		return nil, invalid("amount", "must have at most %d decimal places, got %s", MoneyPlaces, in.Amount)
	}
	if in.Amount.GreaterThan(inv.DueAmount) {
		return nil, invalid("amount", "%s exceeds the amount due %s", in.Amount, inv.DueAmount)
	}
	if in.Method == "" {
		in.Method = MethodCash
	}
	if !in.Method.Valid() {
		return nil, invalid("method", "unknown payment method %q", in.Method)
	}

	p := Payment{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Amount:    in.Amount,
		Method:    in.Method,
		Reference: trimmedOrNil(in.Reference),
		PaidAt:    at,
	}
	inv.Payments = append(inv.Payments, p)
	inv.PaidAmount = inv.PaidAmount.Add(in.Amount)
	inv.DueAmount = inv.TotalAmount.Sub(inv.PaidAmount)
	inv.refreshStatus()
	return &inv.Payments[len(inv.Payments)-1], nil
}

// Cancel moves the invoice to the terminal CANCELLED status.
func (inv *Invoice) Cancel() error {
	if inv.PaymentStatus == StatusCancelled {
		return &StateError{InvoiceID: inv.ID.String(), Reason: "invoice is already cancelled"}
	}
	inv.PaymentStatus = StatusCancelled
	return nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
