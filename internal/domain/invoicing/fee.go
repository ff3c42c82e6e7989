package invoicing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// FeeResolver supplies default unit prices for consultation items from the
// clinic's fee schedule.
type FeeResolver struct {
	schedule FeeSchedule
	logger   zerolog.Logger
}

func NewFeeResolver(schedule FeeSchedule, logger zerolog.Logger) *FeeResolver {
	return &FeeResolver{schedule: schedule, logger: logger}
}

// Resolve returns the default unit price for an item of the given kind
// attributed to clinician. Only consultations have a default; every other
// kind, an unknown clinician, an unset fee or a failed lookup yields zero.
func (r *FeeResolver) Resolve(ctx context.Context, kind ItemKind, clinician *uuid.UUID) decimal.Decimal {
	if kind != KindConsultation || r == nil || r.schedule == nil || clinician == nil {
		return decimal.Zero
	}
	fee, ok, err := r.schedule.ClinicianFee(ctx, *clinician)
	if err != nil {
		r.logger.Warn().
			Err(&LookupFailure{Source: "fee schedule", Err: err}).
			Str("clinician_id", clinician.String()).
			Msg("consultation fee unavailable, defaulting to zero")
		return decimal.Zero
	}
	if !ok || fee.IsNegative() {
		return decimal.Zero
	}
	return Round2(fee)
}

// Reassign moves every defaulted consultation item to clinician and refreshes
// its price from the fee schedule. Items whose price was entered by hand keep
// both their price and their clinician.
func (r *FeeResolver) Reassign(ctx context.Context, items []LineItem, clinician *uuid.UUID) {
	var fee *decimal.Decimal
	for i := range items {
		li := &items[i]
		if li.Kind != KindConsultation || !li.PriceIsDefaulted {
			continue
		}
		if fee == nil {
			f := r.Resolve(ctx, KindConsultation, clinician)
			fee = &f
		}
		li.ClinicianRef = copyID(clinician)
		li.UnitPrice = *fee
	}
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	return lo.ToPtr(*id)
}
