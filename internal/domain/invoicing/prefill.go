package invoicing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PrefillMerger seeds a new draft from the patient's latest prescription.
// It is a convenience: lookup failures are logged and never returned.
type PrefillMerger struct {
	records ClinicalRecordStore
	catalog Catalog
	logger  zerolog.Logger
}

func NewPrefillMerger(records ClinicalRecordStore, catalog Catalog, logger zerolog.Logger) *PrefillMerger {
	return &PrefillMerger{records: records, catalog: catalog, logger: logger}
}

// PrefillOutcome summarizes what Merge added.
type PrefillOutcome struct {
	PrescriptionID *uuid.UUID `json:"prescription_id,omitempty"`
	ItemsAdded     int        `json:"items_added"`
}

// Merge adds one pharmacy row per prescribed medicine and one lab row per
// prescribed test to d, each with quantity one and the catalog price when
// known. The prescription's clinician becomes the draft's clinician.
// Merging into a draft loaded from a persisted invoice is a StateError.
func (m *PrefillMerger) Merge(ctx context.Context, d *Draft) (PrefillOutcome, error) {
	if d.IsEdit() {
		return PrefillOutcome{}, &StateError{Reason: "prefill is only available for new invoices"}
	}
	if m == nil || m.records == nil || d.PatientID == uuid.Nil {
		return PrefillOutcome{}, nil
	}

	rx, err := m.records.LatestPrescription(ctx, d.PatientID)
	if err != nil {
		m.logger.Warn().
			Err(&LookupFailure{Source: "clinical record", Err: err}).
			Str("patient_id", d.PatientID.String()).
			Msg("prefill skipped")
		return PrefillOutcome{}, nil
	}
	if rx == nil {
		return PrefillOutcome{}, nil
	}

	out := PrefillOutcome{PrescriptionID: &rx.ID}
	if rx.ClinicianID != nil {
		d.SetClinician(ctx, rx.ClinicianID)
	}
	for _, med := range rx.Medicines {
		li := LineItem{
			Kind:             KindPharmacyProduct,
			Description:      med.Name,
			Quantity:         1,
			CatalogRef:       copyID(med.ProductID),
			UnitPrice:        m.price(ctx, KindPharmacyProduct, med.ProductID),
			PriceIsDefaulted: true,
		}
		if m.add(d, li) {
			out.ItemsAdded++
		}
	}
	for _, lab := range rx.LabTests {
		li := LineItem{
			Kind:             KindLabTest,
			Description:      lab.Name,
			Quantity:         1,
			CatalogRef:       copyID(lab.LabTestID),
			UnitPrice:        m.price(ctx, KindLabTest, lab.LabTestID),
			PriceIsDefaulted: true,
		}
		if m.add(d, li) {
			out.ItemsAdded++
		}
	}
	return out, nil
}

func (m *PrefillMerger) add(d *Draft, li LineItem) bool {
	before := d.items.Len()
	if _, err := d.addResolved(li); err != nil {
		m.logger.Warn().Err(err).Str("description", li.Description).Msg("prefill item rejected")
		return false
	}
	return d.items.Len() > before
}

// price looks up the catalog price for ref, falling back to zero.
func (m *PrefillMerger) price(ctx context.Context, kind ItemKind, ref *uuid.UUID) decimal.Decimal {
	if ref == nil || m.catalog == nil {
		return decimal.Zero
	}
	var (
		price  decimal.Decimal
		ok     bool
		err    error
		source string
	)
	switch kind {
	case KindPharmacyProduct:
		source = "pharmacy catalog"
		price, ok, err = m.catalog.PharmacyPrice(ctx, *ref)
	case KindLabTest:
		source = "lab test catalog"
		price, ok, err = m.catalog.LabTestPrice(ctx, *ref)
	case KindConsultation, KindOther:
		return decimal.Zero
	}
	if err != nil {
		m.logger.Warn().
			Err(&LookupFailure{Source: source, Err: err}).
			Str("catalog_ref", ref.String()).
			Msg("catalog price unavailable, defaulting to zero")
		return decimal.Zero
	}
	if !ok || price.IsNegative() {
		return decimal.Zero
	}
	return Round2(price)
}
